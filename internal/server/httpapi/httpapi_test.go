package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ccheshirecat/renderd/internal/renderer"
	"github.com/ccheshirecat/renderd/internal/server/db"
	"github.com/ccheshirecat/renderd/internal/server/eventbus/memory"
)

type stubEngine struct {
	renderResult *renderer.Result
	renderErr    error
	jobs         []db.RenderJob
	job          *db.RenderJob
	lastRequest  renderer.Request
}

func (e *stubEngine) Start(ctx context.Context) error { return nil }
func (e *stubEngine) Stop(ctx context.Context) error  { return nil }

func (e *stubEngine) Render(ctx context.Context, req renderer.Request) (*renderer.Result, error) {
	e.lastRequest = req
	if e.renderErr != nil {
		return nil, e.renderErr
	}
	return e.renderResult, nil
}

func (e *stubEngine) ListJobs(ctx context.Context, limit int) ([]db.RenderJob, error) {
	return e.jobs, nil
}

func (e *stubEngine) GetJob(ctx context.Context, id int64) (*db.RenderJob, error) {
	return e.job, nil
}

func (e *stubEngine) Status() renderer.Status {
	return renderer.Status{MaxTabs: 5, RenderTimeoutMS: 5000}
}

func newTestAPI(engine renderer.Engine) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, engine, memory.New())
}

func TestRenderEndpoint(t *testing.T) {
	engine := &stubEngine{renderResult: &renderer.Result{HTML: "<html><body>hi</body></html>", JobID: 7, DurationMS: 42}}
	api := newTestAPI(engine)

	body := `{"url":"https://example.com","ready_signal":"page-ready","headers":{"x-custom":"1"}}`
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/render", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result renderer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.HTML != engine.renderResult.HTML || result.JobID != 7 {
		t.Fatalf("result = %+v", result)
	}
	if engine.lastRequest.ReadySignal != "page-ready" || engine.lastRequest.Headers["x-custom"] != "1" {
		t.Fatalf("engine saw request %+v", engine.lastRequest)
	}
}

func TestRenderEndpointErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"missing url", renderer.ErrMissingURL, http.StatusBadRequest, "missing_url"},
		{"invalid cookies", renderer.ErrInvalidCookies, http.StatusBadRequest, "invalid_cookies"},
		{"timeout", renderer.ErrRenderTimeout, http.StatusGatewayTimeout, "render_timeout"},
		{"loading failed", &renderer.LoadingFailedError{RequestID: "r", Reason: "dns"}, http.StatusBadGateway, "loading_failed"},
		{"protocol", &renderer.ProtocolError{Op: "navigate", Err: io.ErrUnexpectedEOF}, http.StatusInternalServerError, "protocol_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(&stubEngine{renderErr: tc.err})

			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/render", strings.NewReader(`{"url":"https://example.com"}`)))

			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			var payload struct {
				Error string `json:"error"`
				Kind  string `json:"kind"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if payload.Kind != tc.kind || payload.Error == "" {
				t.Fatalf("payload = %+v, want kind %q", payload, tc.kind)
			}
		})
	}
}

func TestRenderEndpointRejectsBadJSON(t *testing.T) {
	api := newTestAPI(&stubEngine{})

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/render", strings.NewReader(`{"url":`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestJobsEndpoints(t *testing.T) {
	engine := &stubEngine{
		jobs: []db.RenderJob{{ID: 2, URL: "https://b.example", Status: db.JobStatusSucceeded}},
		job:  &db.RenderJob{ID: 2, URL: "https://b.example", Status: db.JobStatusSucceeded},
	}
	api := newTestAPI(engine)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var jobs []jobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != 2 {
		t.Fatalf("jobs = %+v", jobs)
	}

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	engine.job = nil
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/99", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}
}

func TestSystemStatusEndpoint(t *testing.T) {
	api := newTestAPI(&stubEngine{})

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status renderer.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.MaxTabs != 5 || status.RenderTimeoutMS != 5000 {
		t.Fatalf("status = %+v", status)
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(&stubEngine{})

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
