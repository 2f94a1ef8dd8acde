package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/models"
)

// Sandbox is one dedicated headless-browser process implementing the
// SandboxHandle interface. Each sandbox gets its own exec allocator, so
// closing one cannot disturb another.
type Sandbox struct {
	id      string
	pageCtx context.Context

	cancelPage  context.CancelFunc
	cancelAlloc context.CancelFunc

	loadStarted chan struct{}
	loadOnce    sync.Once
	done        chan struct{}
	doneOnce    sync.Once
	closeOnce   sync.Once

	pageHookOnce sync.Once

	logger arbor.ILogger
}

func (s *Sandbox) ID() string { return s.id }

// LoadStarted is closed on the first frame-load signal from the browser
func (s *Sandbox) LoadStarted() <-chan struct{} { return s.loadStarted }

// Done is closed when the browser process goes away for any reason
func (s *Sandbox) Done() <-chan struct{} { return s.done }

func (s *Sandbox) signalLoadStarted() {
	s.loadOnce.Do(func() { close(s.loadStarted) })
}

func (s *Sandbox) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Navigate issues the navigation. Load progress is reported via the
// LoadStarted channel, not the return value.
func (s *Sandbox) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(s.pageCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Close tears the browser down. Safe to call more than once.
func (s *Sandbox) Close() error {
	s.closeOnce.Do(func() {
		s.cancelPage()
		s.cancelAlloc()
		s.signalDone()
		s.logger.Debug().Str("sandbox_id", s.id).Msg("Sandbox closed")
	})
	return nil
}

// emit delivers an event unless the sandbox is already gone, so a late
// browser event can never block a hook goroutine forever.
func (s *Sandbox) emit(events chan<- interfaces.ExchangeEvent, ev interfaces.ExchangeEvent) {
	select {
	case events <- ev:
	case <-s.done:
	}
}

// netRequest is the per-request state the network hook accumulates across
// CDP events until the body becomes readable.
type netRequest struct {
	url         string
	method      string
	headers     map[string]string
	requestBody string
	status      int
	respHeaders map[string]string
}

// ObserveNetworkLayer installs the network-visibility hook. Request
// metadata arrives on EventRequestWillBeSent, status and headers on
// EventResponseReceived, and the body is fetched once EventLoadingFinished
// says it is complete.
func (s *Sandbox) ObserveNetworkLayer(ctx context.Context, cfg interfaces.ObserverConfig, events chan<- interfaces.ExchangeEvent) error {
	var requests sync.Map // network.RequestID -> *netRequest

	chromedp.ListenTarget(s.pageCtx, func(ev interface{}) {
		switch evTyped := ev.(type) {
		case *page.EventFrameStartedLoading:
			s.signalLoadStarted()

		case *network.EventRequestWillBeSent:
			req := evTyped.Request
			if !cfg.Matcher.Match(req.URL) {
				return
			}
			pending := &netRequest{
				url:     req.URL,
				method:  req.Method,
				headers: flattenHeaders(req.Headers),
			}
			requests.Store(evTyped.RequestID, pending)

			requestID := evTyped.RequestID
			hasBody := req.HasPostData

			// The request half is emitted right away so it can never lose
			// the race against its own response. The post body needs a CDP
			// round trip, so it follows as a second request event.
			go func() {
				ev := interfaces.ExchangeEvent{
					LocalID:        string(requestID),
					Source:         models.ExchangeSourceNetwork,
					Phase:          interfaces.PhaseRequest,
					URL:            pending.url,
					Method:         pending.method,
					RequestHeaders: pending.headers,
					At:             time.Now(),
				}
				s.emit(events, ev)

				if !hasBody {
					return
				}
				body, err := s.fetchRequestBody(requestID)
				if err != nil {
					return
				}
				pending.requestBody = body
				ev.RequestBody = body
				ev.At = time.Now()
				s.emit(events, ev)
			}()

		case *network.EventResponseReceived:
			if cached, ok := requests.Load(evTyped.RequestID); ok {
				pending := cached.(*netRequest)
				pending.status = int(evTyped.Response.Status)
				pending.respHeaders = flattenHeaders(evTyped.Response.Headers)
			}

		case *network.EventLoadingFinished:
			cached, ok := requests.LoadAndDelete(evTyped.RequestID)
			if !ok {
				return
			}
			pending := cached.(*netRequest)
			requestID := evTyped.RequestID

			// The body is only readable after loading finishes; fetch it
			// off the event goroutine so the listener never blocks.
			go func() {
				body, err := s.fetchResponseBody(requestID)
				if err != nil {
					s.logger.Debug().
						Err(err).
						Str("sandbox_id", s.id).
						Str("url", pending.url).
						Msg("Failed to read response body")
				}
				s.emit(events, interfaces.ExchangeEvent{
					LocalID:         string(requestID),
					Source:          models.ExchangeSourceNetwork,
					Phase:           interfaces.PhaseResponse,
					URL:             pending.url,
					Method:          pending.method,
					Status:          pending.status,
					ResponseHeaders: pending.respHeaders,
					Body:            body,
					At:              time.Now(),
				})
			}()

		case *network.EventLoadingFailed:
			cached, ok := requests.LoadAndDelete(evTyped.RequestID)
			if !ok {
				return
			}
			pending := cached.(*netRequest)
			s.emit(events, interfaces.ExchangeEvent{
				LocalID: string(evTyped.RequestID),
				Source:  models.ExchangeSourceNetwork,
				Phase:   interfaces.PhaseError,
				URL:     pending.url,
				Method:  pending.method,
				At:      time.Now(),
			})
		}
	})

	s.emit(events, interfaces.ExchangeEvent{
		Source: models.ExchangeSourceNetwork,
		Phase:  interfaces.PhaseReady,
		At:     time.Now(),
	})
	return nil
}

// ObservePageLayer injects the fetch/XHR wrapper and wires its relay
// binding. The evaluate step fails while the document is still initializing;
// callers retry on error.
func (s *Sandbox) ObservePageLayer(ctx context.Context, cfg interfaces.ObserverConfig, events chan<- interfaces.ExchangeEvent) error {
	s.pageHookOnce.Do(func() {
		chromedp.ListenTarget(s.pageCtx, func(ev interface{}) {
			if bc, ok := ev.(*runtime.EventBindingCalled); ok && bc.Name == relayBindingName {
				s.handleRelayedMessage(bc.Payload, cfg, events)
			}
		})
	})

	script := buildPageScript(cfg.URLPattern, cfg.Alternates)
	err := chromedp.Run(s.pageCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(relayBindingName).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Evaluate(script, nil),
	)
	if err != nil {
		return fmt.Errorf("page hook injection failed: %w", err)
	}
	return nil
}

// handleRelayedMessage translates one relayed page message into an
// exchange event. Malformed payloads are dropped with a log line.
func (s *Sandbox) handleRelayedMessage(payload string, cfg interfaces.ObserverConfig, events chan<- interfaces.ExchangeEvent) {
	var msg pageMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.logger.Warn().
			Err(err).
			Str("sandbox_id", s.id).
			Msg("Dropping malformed page hook message")
		return
	}

	if msg.Type != "ready" && !cfg.Matcher.Match(msg.URL) {
		return
	}

	ev := interfaces.ExchangeEvent{
		LocalID: msg.ID,
		Source:  models.ExchangeSourcePage,
		URL:     msg.URL,
		Method:  msg.Method,
		At:      time.Now(),
	}

	switch msg.Type {
	case "ready":
		ev.Phase = interfaces.PhaseReady
	case "request":
		ev.Phase = interfaces.PhaseRequest
		ev.RequestHeaders = msg.Headers
		ev.RequestBody = msg.Body
	case "response":
		ev.Phase = interfaces.PhaseResponse
		ev.Status = msg.Status
		ev.ResponseHeaders = msg.Headers
		ev.Body = []byte(msg.Body)
	case "error":
		ev.Phase = interfaces.PhaseError
	default:
		return
	}

	s.emit(events, ev)
}

func (s *Sandbox) fetchResponseBody(requestID network.RequestID) ([]byte, error) {
	c := chromedp.FromContext(s.pageCtx)
	if c == nil || c.Target == nil {
		return nil, fmt.Errorf("browser target unavailable")
	}
	execCtx := cdp.WithExecutor(s.pageCtx, c.Target)
	return network.GetResponseBody(requestID).Do(execCtx)
}

func (s *Sandbox) fetchRequestBody(requestID network.RequestID) (string, error) {
	c := chromedp.FromContext(s.pageCtx)
	if c == nil || c.Target == nil {
		return "", fmt.Errorf("browser target unavailable")
	}
	execCtx := cdp.WithExecutor(s.pageCtx, c.Target)
	return network.GetRequestPostData(requestID).Do(execCtx)
}

// flattenHeaders converts CDP headers to plain strings
func flattenHeaders(headers network.Headers) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[key] = fmt.Sprintf("%v", value)
	}
	return out
}
