package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccheshirecat/renderd/internal/renderer"
)

// Factory opens a new tab. Browser.NewTab is the production factory.
type Factory func(ctx context.Context) (renderer.ProtocolClient, error)

// Pool bounds the number of concurrently open tabs. Every acquisition opens
// a fresh DevTools target and every release closes it, so sessions never see
// events left over from a previous page.
type Pool struct {
	logger  *slog.Logger
	factory Factory
	sem     chan struct{} // nil means unbounded
}

var _ renderer.TabPool = (*Pool)(nil)

// NewPool creates a pool bounded to maxTabs concurrent tabs. A non-positive
// maxTabs leaves the pool unbounded.
func NewPool(logger *slog.Logger, factory Factory, maxTabs int) (*Pool, error) {
	if logger == nil {
		return nil, fmt.Errorf("browser: logger is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("browser: tab factory is required")
	}
	p := &Pool{logger: logger, factory: factory}
	if maxTabs > 0 {
		p.sem = make(chan struct{}, maxTabs)
	}
	return p, nil
}

// Acquire hands out an exclusive tab, suspending while the pool is at
// capacity. The caller owns the tab until Release.
func (p *Pool) Acquire(ctx context.Context) (renderer.ProtocolClient, error) {
	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	tab, err := p.factory(ctx)
	if err != nil {
		if p.sem != nil {
			<-p.sem
		}
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}
	return tab, nil
}

// Release closes the tab and returns its slot. Call it exactly once per
// acquired tab.
func (p *Pool) Release(tab renderer.ProtocolClient) {
	if tab != nil {
		if err := tab.Close(); err != nil {
			p.logger.Error("close tab", "error", err)
		}
	}
	if p.sem != nil {
		<-p.sem
	}
}
