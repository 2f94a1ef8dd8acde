package common

// Version is set at build time via -ldflags "-X github.com/tapwire/tapwire/internal/common.Version=..."
var Version = "dev"

// GetVersion returns the application version
func GetVersion() string {
	return Version
}
