package dispatcher

import (
	"sync"
)

// claimRegistry tracks which schedules have a firing in flight. A schedule
// can hold at most one claim, which is what guarantees no-overlap: a tick
// that finds a schedule already claimed skips it without rescheduling.
type claimRegistry struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

func newClaimRegistry() *claimRegistry {
	return &claimRegistry{claims: make(map[string]struct{})}
}

// claim takes the claim for a schedule. Returns false if already held.
func (r *claimRegistry) claim(scheduleID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.claims[scheduleID]; held {
		return false
	}
	r.claims[scheduleID] = struct{}{}
	return true
}

// release frees the claim. Releasing an unheld claim is a no-op.
func (r *claimRegistry) release(scheduleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, scheduleID)
}

// held reports whether a schedule currently holds a claim
func (r *claimRegistry) held(scheduleID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.claims[scheduleID]
	return held
}

// count returns the number of live claims
func (r *claimRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}
