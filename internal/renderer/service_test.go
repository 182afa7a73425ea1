package renderer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePool hands out scripted tabs while tracking acquire/release pairing and
// peak concurrency. With a positive limit it queues like the production pool.
type fakePool struct {
	mu         sync.Mutex
	sem        chan struct{}
	inUse      int
	peak       int
	acquires   int
	releases   int
	acquireErr error
	newTab     func() *fakeTab
}

func newFakePool(limit int) *fakePool {
	p := &fakePool{}
	if limit > 0 {
		p.sem = make(chan struct{}, limit)
	}
	return p
}

func (p *fakePool) Acquire(ctx context.Context) (ProtocolClient, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	p.acquires++
	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
	p.mu.Unlock()

	if p.newTab != nil {
		return p.newTab(), nil
	}
	tab := newFakeTab()
	tab.onNavigate = func(tab *fakeTab) { tab.domReady <- struct{}{} }
	return tab, nil
}

func (p *fakePool) Release(tab ProtocolClient) {
	p.mu.Lock()
	p.releases++
	p.inUse--
	p.mu.Unlock()
	if tab != nil {
		tab.Close()
	}
	if p.sem != nil {
		<-p.sem
	}
}

func newTestService(t *testing.T, pool TabPool, maxTabs int) *Service {
	t.Helper()
	svc, err := New(Params{Logger: testLogger(), Pool: pool, MaxTabs: maxTabs, RenderTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestServiceMissingURLNeverAcquires(t *testing.T) {
	pool := newFakePool(0)
	svc := newTestService(t, pool, 0)

	if _, err := svc.Render(context.Background(), Request{URL: "  "}); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("err = %v, want ErrMissingURL", err)
	}
	if pool.acquires != 0 {
		t.Fatalf("acquires = %d, want 0", pool.acquires)
	}
}

func TestServiceReleasesOnSuccess(t *testing.T) {
	pool := newFakePool(0)
	svc := newTestService(t, pool, 0)

	result, err := svc.Render(context.Background(), Request{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if result.HTML == "" {
		t.Fatal("expected document HTML")
	}
	if pool.acquires != 1 || pool.releases != 1 {
		t.Fatalf("acquires/releases = %d/%d, want 1/1", pool.acquires, pool.releases)
	}
}

func TestServiceReleasesOnFailure(t *testing.T) {
	pool := newFakePool(0)
	pool.newTab = func() *fakeTab {
		tab := newFakeTab()
		tab.navigateErr = errors.New("target crashed")
		return tab
	}
	svc := newTestService(t, pool, 0)

	if _, err := svc.Render(context.Background(), Request{URL: "https://example.com"}); err == nil {
		t.Fatal("expected render error")
	}
	if pool.acquires != 1 || pool.releases != 1 {
		t.Fatalf("acquires/releases = %d/%d, want 1/1", pool.acquires, pool.releases)
	}
}

func TestServiceAcquireErrorIsProtocolError(t *testing.T) {
	pool := newFakePool(0)
	pool.acquireErr = errors.New("browser gone")
	svc := newTestService(t, pool, 0)

	_, err := svc.Render(context.Background(), Request{URL: "https://example.com"})
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("err = %v, want ProtocolError", err)
	}
	if pool.releases != 0 {
		t.Fatalf("releases = %d for failed acquire, want 0", pool.releases)
	}
}

// Seventeen renders against a bound of five: every render completes, every
// tab is handed back, and concurrency never exceeds the bound.
func TestServiceConcurrentRendersHonorBound(t *testing.T) {
	const renders = 17
	const bound = 5

	pool := newFakePool(bound)
	pool.newTab = func() *fakeTab {
		tab := newFakeTab()
		tab.onNavigate = func(tab *fakeTab) {
			time.Sleep(5 * time.Millisecond)
			tab.domReady <- struct{}{}
		}
		return tab
	}
	svc := newTestService(t, pool, bound)

	var wg sync.WaitGroup
	errs := make(chan error, renders)
	for i := 0; i < renders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Render(context.Background(), Request{URL: "https://example.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	if pool.acquires != renders || pool.releases != renders {
		t.Fatalf("acquires/releases = %d/%d, want %d/%d", pool.acquires, pool.releases, renders, renders)
	}
	if pool.peak > bound {
		t.Fatalf("peak concurrency %d exceeded bound %d", pool.peak, bound)
	}
	if status := svc.Status(); status.ActiveRenders != 0 {
		t.Fatalf("ActiveRenders = %d after completion, want 0", status.ActiveRenders)
	}
}
