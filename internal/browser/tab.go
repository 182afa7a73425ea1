package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ccheshirecat/renderd/internal/renderer"
)

const (
	domReadyBuffer = 4
	consoleBuffer  = 64
	requestBuffer  = 256
	failureBuffer  = 64
)

// Tab is one DevTools target. It implements renderer.ProtocolClient:
// commands run against the target context, and the interesting target events
// are dispatched into buffered channels the moment the tab exists, so no
// navigation can outrun its listeners. Events that arrive faster than the
// renderer consumes them are dropped rather than blocking the dispatcher.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc

	domReady chan struct{}
	console  chan renderer.ConsoleMessage
	requests chan renderer.RequestSent
	failures chan renderer.LoadingFailure
}

var _ renderer.ProtocolClient = (*Tab)(nil)

// NewTab opens a fresh target under the managed browser and enables the
// page, network, and runtime domains so their events flow.
func (b *Browser) NewTab(ctx context.Context) (renderer.ProtocolClient, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)

	t := &Tab{
		ctx:      tabCtx,
		cancel:   cancel,
		domReady: make(chan struct{}, domReadyBuffer),
		console:  make(chan renderer.ConsoleMessage, consoleBuffer),
		requests: make(chan renderer.RequestSent, requestBuffer),
		failures: make(chan renderer.LoadingFailure, failureBuffer),
	}
	chromedp.ListenTarget(tabCtx, t.dispatch)

	if err := t.run(ctx, page.Enable(), network.Enable(), cpruntime.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: enable tab domains: %w", err)
	}
	return t, nil
}

func (t *Tab) dispatch(ev any) {
	switch ev := ev.(type) {
	case *page.EventDomContentEventFired:
		select {
		case t.domReady <- struct{}{}:
		default:
		}
	case *cpruntime.EventConsoleAPICalled:
		args := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			args = append(args, consoleArgString(arg))
		}
		select {
		case t.console <- renderer.ConsoleMessage{Args: args}:
		default:
		}
	case *network.EventRequestWillBeSent:
		select {
		case t.requests <- renderer.RequestSent{RequestID: string(ev.RequestID)}:
		default:
		}
	case *network.EventLoadingFailed:
		select {
		case t.failures <- renderer.LoadingFailure{RequestID: string(ev.RequestID), ErrorText: ev.ErrorText}:
		default:
		}
	}
}

// Navigate issues the navigation. A navigation-level network error is not
// reported here; it surfaces through the loading-failed event stream where
// the renderer can match it against the tracked request.
func (t *Tab) Navigate(ctx context.Context, pageURL, referrer string) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.Navigate(pageURL)
		if referrer != "" {
			params = params.WithReferrer(referrer)
		}
		_, _, _, err := params.Do(ctx)
		return err
	}))
}

// SetCookies applies the name/value pairs scoped to the page URL.
func (t *Tab) SetCookies(ctx context.Context, pageURL string, cookies []renderer.Cookie) error {
	actions := make([]chromedp.Action, 0, len(cookies))
	for _, cookie := range cookies {
		params := network.SetCookie(cookie.Name, cookie.Value).WithURL(pageURL)
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return params.Do(ctx)
		}))
	}
	return t.run(ctx, actions...)
}

// SetExtraHeaders applies headers to every request the page issues.
func (t *Tab) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	values := make(network.Headers, len(headers))
	for name, value := range headers {
		values[name] = value
	}
	return t.run(ctx, network.SetExtraHTTPHeaders(values))
}

// AddScriptOnNewDocument registers source for evaluation on every subsequent
// page load.
func (t *Tab) AddScriptOnNewDocument(ctx context.Context, source string) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	}))
}

// OuterHTML reads the document root and returns its serialized outer HTML.
func (t *Tab) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
		return err
	}))
	return html, err
}

func (t *Tab) DOMContentLoaded() <-chan struct{}                 { return t.domReady }
func (t *Tab) ConsoleMessages() <-chan renderer.ConsoleMessage   { return t.console }
func (t *Tab) RequestsSent() <-chan renderer.RequestSent         { return t.requests }
func (t *Tab) LoadingFailures() <-chan renderer.LoadingFailure   { return t.failures }

// Close destroys the target. In-flight protocol calls against this tab are
// abandoned when the target context dies.
func (t *Tab) Close() error {
	t.cancel()
	return nil
}

// run executes actions against the tab target while honoring the caller's
// context. An abandoned call keeps running until the tab is closed.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(t.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func consoleArgString(obj *cpruntime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	if obj.Type == cpruntime.TypeString && len(obj.Value) > 0 {
		var s string
		if err := json.Unmarshal(obj.Value, &s); err == nil {
			return s
		}
	}
	if len(obj.Value) > 0 {
		return string(obj.Value)
	}
	return obj.Description
}
