// Package renderer drives single page loads in headless browser tabs and
// returns the serialized document once the page is considered ready.
//
// Two readiness strategies exist. Without a ready signal the render resolves
// on the first DOMContentLoaded event and the orchestrator arms no timer of
// its own; the caller's context deadline is the only bound, so an
// unresponsive page hangs until that deadline fires. With a ready signal the
// render resolves only when the page logs exactly that value to the console,
// bounded by the configured render timeout.
package renderer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultRenderTimeout bounds signal-ready renders when no timeout is
// configured.
const DefaultRenderTimeout = 5 * time.Second

// ConsoleMessage is a console-api-called event reduced to its stringified
// arguments.
type ConsoleMessage struct {
	Args []string
}

// RequestSent identifies a network request the page issued.
type RequestSent struct {
	RequestID string
}

// LoadingFailure reports a network request that failed to load.
type LoadingFailure struct {
	RequestID string
	ErrorText string
}

// ProtocolClient is the per-tab DevTools surface the orchestrator consumes.
// The event channels are armed when the tab is created, before any
// navigation, and stay live for the lifetime of the tab.
type ProtocolClient interface {
	Navigate(ctx context.Context, url, referrer string) error
	SetCookies(ctx context.Context, pageURL string, cookies []Cookie) error
	SetExtraHeaders(ctx context.Context, headers map[string]string) error
	AddScriptOnNewDocument(ctx context.Context, source string) error
	OuterHTML(ctx context.Context) (string, error)

	DOMContentLoaded() <-chan struct{}
	ConsoleMessages() <-chan ConsoleMessage
	RequestsSent() <-chan RequestSent
	LoadingFailures() <-chan LoadingFailure

	Close() error
}

// TabPool hands out exclusive tab handles bounded by a configured maximum.
// Acquire suspends when the pool is exhausted. Release must be called exactly
// once per acquired handle.
type TabPool interface {
	Acquire(ctx context.Context) (ProtocolClient, error)
	Release(tab ProtocolClient)
}

// Orchestrator runs one render per call on a caller-provided tab.
type Orchestrator struct {
	logger        *slog.Logger
	renderTimeout time.Duration
}

// NewOrchestrator builds an orchestrator. renderTimeout applies only to
// signal-ready renders and defaults to DefaultRenderTimeout when
// non-positive.
func NewOrchestrator(logger *slog.Logger, renderTimeout time.Duration) *Orchestrator {
	if renderTimeout <= 0 {
		renderTimeout = DefaultRenderTimeout
	}
	return &Orchestrator{logger: logger, renderTimeout: renderTimeout}
}

type outcome struct {
	html string
	err  error
}

// session is the ephemeral state of one in-flight render. It is owned by a
// single render call and discarded at settlement.
type session struct {
	mu      sync.Mutex
	settled bool
	timer   *time.Timer

	// navRequestID tracks the first request-will-be-sent event observed.
	// Later top-level navigations (redirect chains) do not update it.
	navRequestID string

	done chan outcome
	stop chan struct{}
}

func newSession() *session {
	return &session{
		done: make(chan outcome, 1),
		stop: make(chan struct{}),
	}
}

// settle records the render outcome. The first caller wins; every later call
// is a no-op and reports false. The timer, when armed, is stopped here so a
// late expiry cannot produce a dangling rejection.
func (s *session) settle(html string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return false
	}
	s.settled = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.done <- outcome{html: html, err: err}
	close(s.stop)
	return true
}

// Render drives one page load on tab to completion or failure. The tab is
// borrowed; releasing it back to its pool is the caller's job.
func (o *Orchestrator) Render(ctx context.Context, tab ProtocolClient, req Request) (*Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrMissingURL
	}

	cookies, err := parseCookies(req.Cookies)
	if err != nil {
		return nil, err
	}
	headers, referrer := mergeHeaders(req.Headers)

	if len(cookies) > 0 {
		if err := tab.SetCookies(ctx, req.URL, cookies); err != nil {
			return nil, &ProtocolError{Op: "set cookies", Err: err}
		}
	}
	if err := tab.SetExtraHeaders(ctx, headers); err != nil {
		return nil, &ProtocolError{Op: "set extra headers", Err: err}
	}
	if req.Script != "" {
		if err := tab.AddScriptOnNewDocument(ctx, req.Script); err != nil {
			return nil, &ProtocolError{Op: "register script", Err: err}
		}
	}

	sess := newSession()

	// Mutually exclusive readiness strategies: a nil channel never fires in
	// the watch loop.
	domReady := tab.DOMContentLoaded()
	var console <-chan ConsoleMessage
	var timeout <-chan time.Time
	if req.ReadySignal != "" {
		domReady = nil
		console = tab.ConsoleMessages()
		sess.timer = time.NewTimer(o.renderTimeout)
		timeout = sess.timer.C
	}

	// The watcher must be consuming events before navigation is issued, so
	// the browser cannot fire a readiness or failure event into the void.
	go o.watch(ctx, tab, req.ReadySignal, sess, domReady, console, timeout)

	if err := tab.Navigate(ctx, req.URL, referrer); err != nil {
		sess.settle("", &ProtocolError{Op: "navigate", Err: err})
	}

	select {
	case out := <-sess.done:
		if out.err != nil {
			return nil, out.err
		}
		return &Result{HTML: out.html}, nil
	case <-ctx.Done():
		if sess.settle("", ctx.Err()) {
			return nil, ctx.Err()
		}
		// Lost the race: the watcher settled first.
		out := <-sess.done
		if out.err != nil {
			return nil, out.err
		}
		return &Result{HTML: out.html}, nil
	}
}

// watch is the single consumer of the session's competing signals. The first
// of readiness, matching navigation failure, or timeout settles the session;
// everything after settlement is ignored.
func (o *Orchestrator) watch(
	ctx context.Context,
	tab ProtocolClient,
	readySignal string,
	sess *session,
	domReady <-chan struct{},
	console <-chan ConsoleMessage,
	timeout <-chan time.Time,
) {
	requests := tab.RequestsSent()
	failures := tab.LoadingFailures()

	for {
		select {
		case <-sess.stop:
			return

		case <-domReady:
			o.read(ctx, tab, sess)
			return

		case msg := <-console:
			if len(msg.Args) == 1 && msg.Args[0] == readySignal {
				o.read(ctx, tab, sess)
				return
			}

		case ev := <-requests:
			if sess.navRequestID == "" {
				sess.navRequestID = ev.RequestID
			}

		case failure := <-failures:
			if sess.navRequestID != "" && failure.RequestID == sess.navRequestID {
				sess.settle("", &LoadingFailedError{RequestID: failure.RequestID, Reason: failure.ErrorText})
				return
			}
			// Subresource or foreign request: not this session's problem.

		case <-timeout:
			sess.settle("", ErrRenderTimeout)
			return

		case <-ctx.Done():
			sess.settle("", ctx.Err())
			return
		}
	}
}

// read fetches the serialized document and settles the session with it. A
// failed document read settles as a protocol error through the same gate.
func (o *Orchestrator) read(ctx context.Context, tab ProtocolClient, sess *session) {
	html, err := tab.OuterHTML(ctx)
	if err != nil {
		sess.settle("", &ProtocolError{Op: "read document", Err: err})
		return
	}
	sess.settle(html, nil)
}
