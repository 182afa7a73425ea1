package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	rendererevents "github.com/ccheshirecat/renderd/internal/renderer/events"
	"github.com/ccheshirecat/renderd/internal/server/db"
	"github.com/ccheshirecat/renderd/internal/server/eventbus"
)

// Engine is the render service surface consumed by the HTTP API and CLI.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Render(ctx context.Context, req Request) (*Result, error)
	ListJobs(ctx context.Context, limit int) ([]db.RenderJob, error)
	GetJob(ctx context.Context, id int64) (*db.RenderJob, error)
	Status() Status
}

// Status reports pool occupancy and renderer configuration.
type Status struct {
	MaxTabs         int   `json:"max_tabs"`
	ActiveRenders   int64 `json:"active_renders"`
	RenderTimeoutMS int64 `json:"render_timeout_ms"`
}

// Params wires dependencies for the render service.
type Params struct {
	Logger        *slog.Logger
	Pool          TabPool
	Store         db.Store     // optional; job history is skipped when nil
	Bus           eventbus.Bus // optional; events are skipped when nil
	MaxTabs       int
	RenderTimeout time.Duration
}

// Service wraps the orchestrator with resource lifecycle: it acquires a tab
// per render, releases it on every exit path, and records the outcome.
type Service struct {
	logger  *slog.Logger
	pool    TabPool
	store   db.Store
	bus     eventbus.Bus
	orch    *Orchestrator
	maxTabs int
	active  atomic.Int64
}

var _ Engine = (*Service)(nil)

// New constructs the production render service.
func New(params Params) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("renderer: logger is required")
	}
	if params.Pool == nil {
		return nil, fmt.Errorf("renderer: tab pool is required")
	}
	return &Service{
		logger:  params.Logger,
		pool:    params.Pool,
		store:   params.Store,
		bus:     params.Bus,
		orch:    NewOrchestrator(params.Logger, params.RenderTimeout),
		maxTabs: params.MaxTabs,
	}, nil
}

// Start logs readiness. The browser process and pool are constructed by the
// caller and owned for the daemon lifetime.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("render service ready", "max_tabs", s.maxTabs, "render_timeout", s.orch.renderTimeout)
	return nil
}

// Stop is the counterpart of Start. In-flight renders are bounded by their
// own contexts; nothing needs to be torn down here.
func (s *Service) Stop(ctx context.Context) error {
	return nil
}

// Render validates the request, borrows a tab, and drives one page load.
// The tab is released back to the pool on every path; a leaked tab would
// permanently shrink pool capacity.
func (s *Service) Render(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrMissingURL
	}

	jobID := s.recordStart(ctx, req)
	s.publish(rendererevents.JobEvent{
		Type:      rendererevents.TypeJobStarted,
		JobID:     jobID,
		URL:       req.URL,
		Status:    rendererevents.JobStatusRunning,
		Timestamp: time.Now().UTC(),
	})

	started := time.Now()

	tab, err := s.pool.Acquire(ctx)
	if err != nil {
		err = &ProtocolError{Op: "acquire tab", Err: err}
		s.finish(ctx, jobID, req, started, 0, err)
		return nil, err
	}
	s.active.Add(1)
	defer func() {
		s.pool.Release(tab)
		s.active.Add(-1)
	}()

	result, err := s.orch.Render(ctx, tab, req)
	if err != nil {
		s.finish(ctx, jobID, req, started, 0, err)
		return nil, err
	}

	result.JobID = jobID
	result.DurationMS = time.Since(started).Milliseconds()
	s.finish(ctx, jobID, req, started, int64(len(result.HTML)), nil)
	return result, nil
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]db.RenderJob, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Queries().RenderJobs().List(ctx, limit)
}

func (s *Service) GetJob(ctx context.Context, id int64) (*db.RenderJob, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Queries().RenderJobs().GetByID(ctx, id)
}

func (s *Service) Status() Status {
	return Status{
		MaxTabs:         s.maxTabs,
		ActiveRenders:   s.active.Load(),
		RenderTimeoutMS: s.orch.renderTimeout.Milliseconds(),
	}
}

func (s *Service) recordStart(ctx context.Context, req Request) int64 {
	if s.store == nil {
		return 0
	}
	job := &db.RenderJob{URL: req.URL, Status: db.JobStatusRunning, ReadySignal: req.ReadySignal}
	id, err := s.store.Queries().RenderJobs().Create(ctx, job)
	if err != nil {
		s.logger.Error("record render job", "url", req.URL, "error", err)
		return 0
	}
	return id
}

func (s *Service) finish(ctx context.Context, jobID int64, req Request, started time.Time, htmlBytes int64, renderErr error) {
	duration := time.Since(started).Milliseconds()

	status := db.JobStatusSucceeded
	eventType := rendererevents.TypeJobSucceeded
	eventStatus := rendererevents.JobStatusSucceeded
	kind := ""
	message := ""
	if renderErr != nil {
		status = db.JobStatusFailed
		eventType = rendererevents.TypeJobFailed
		eventStatus = rendererevents.JobStatusFailed
		kind = ErrorKind(renderErr)
		message = renderErr.Error()
	}

	if s.store != nil && jobID != 0 {
		// Persist even when the request context is already done.
		if err := s.store.Queries().RenderJobs().Finish(context.WithoutCancel(ctx), jobID, status, kind, message, duration, htmlBytes); err != nil {
			s.logger.Error("finish render job", "job_id", jobID, "error", err)
		}
	}

	s.publish(rendererevents.JobEvent{
		Type:       eventType,
		JobID:      jobID,
		URL:        req.URL,
		Status:     eventStatus,
		ErrorKind:  kind,
		Message:    message,
		DurationMS: duration,
		Timestamp:  time.Now().UTC(),
	})
}

func (s *Service) publish(event rendererevents.JobEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), rendererevents.TopicJobEvents, event); err != nil {
		s.logger.Error("publish job event", "type", event.Type, "error", err)
	}
}
