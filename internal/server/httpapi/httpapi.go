package httpapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ccheshirecat/renderd/internal/renderer"
	rendererevents "github.com/ccheshirecat/renderd/internal/renderer/events"
	"github.com/ccheshirecat/renderd/internal/server/db"
	"github.com/ccheshirecat/renderd/internal/server/eventbus"
)

// New constructs the HTTP API router backed by the render engine.
func New(logger *slog.Logger, engine renderer.Engine, bus eventbus.Bus) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	if cidr := os.Getenv("RENDERD_API_ALLOW_CIDR"); cidr != "" {
		allowList := strings.Split(cidr, ",")
		r.Use(ipFilterMiddleware(logger, allowList))
	}

	if apiKey := os.Getenv("RENDERD_API_KEY"); apiKey != "" {
		r.Use(apiKeyMiddleware(apiKey))
	}

	api := &apiServer{logger: logger, engine: engine, bus: bus}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/render", api.render)
		v1.GET("/system/status", api.systemStatus)

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", api.listJobs)
			jobs.GET(":id", api.getJob)
		}
	}

	r.GET("/ws/v1/events", api.eventsWebSocket)

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		args := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", latency.String()),
			slog.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			args = append(args, slog.String("error", c.Errors.String()))
			logger.Error("http request", args...)
		} else {
			logger.Info("http request", args...)
		}
	}
}

func ipFilterMiddleware(logger *slog.Logger, cidrs []string) gin.HandlerFunc {
	var networks []*net.IPNet
	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			logger.Warn("invalid CIDR", "cidr", raw, "error", err)
			continue
		}
		networks = append(networks, network)
	}
	if len(networks) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid client IP"})
			return
		}
		for _, network := range networks {
			if network.Contains(ip) {
				c.Next()
				return
			}
		}
		logger.Warn("request blocked by CIDR filter", "ip", ip.String())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func apiKeyMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Renderd-API-Key")
		if provided == "" {
			provided = c.Query("api_key")
		}
		if provided != expected {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

type apiServer struct {
	logger *slog.Logger
	engine renderer.Engine
	bus    eventbus.Bus
}

type jobResponse struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	ReadySignal string     `json:"ready_signal,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	HTMLBytes   int64      `json:"html_bytes"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func jobToResponse(job *db.RenderJob) jobResponse {
	if job == nil {
		return jobResponse{}
	}
	resp := jobResponse{
		ID:          job.ID,
		URL:         job.URL,
		Status:      string(job.Status),
		ReadySignal: job.ReadySignal,
		ErrorKind:   job.ErrorKind,
		Error:       job.Error,
		DurationMS:  job.DurationMS,
		HTMLBytes:   job.HTMLBytes,
	}
	if !job.CreatedAt.IsZero() {
		t := job.CreatedAt
		resp.CreatedAt = &t
	}
	if !job.UpdatedAt.IsZero() {
		t := job.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

func (api *apiServer) render(c *gin.Context) {
	var req renderer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := api.engine.Render(c.Request.Context(), req)
	if err != nil {
		api.logger.Error("render", "url", req.URL, "error", err)
		c.JSON(renderStatus(err), gin.H{"error": err.Error(), "kind": renderer.ErrorKind(err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

// renderStatus maps render error kinds onto HTTP statuses: caller mistakes
// are 4xx, upstream page failures are gateway errors, everything else is a
// plain 500.
func renderStatus(err error) int {
	var loadErr *renderer.LoadingFailedError
	switch {
	case errors.Is(err, renderer.ErrMissingURL), errors.Is(err, renderer.ErrInvalidCookies):
		return http.StatusBadRequest
	case errors.Is(err, renderer.ErrRenderTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &loadErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *apiServer) listJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	jobs, err := api.engine.ListJobs(c.Request.Context(), limit)
	if err != nil {
		api.logger.Error("list jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, jobToResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (api *apiServer) getJob(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := api.engine.GetJob(c.Request.Context(), id)
	if err != nil {
		api.logger.Error("get job", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (api *apiServer) systemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, api.engine.Status())
}

// eventsWebSocket streams render job lifecycle events to the client.
func (api *apiServer) eventsWebSocket(c *gin.Context) {
	conn, err := (&websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}).Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		api.logger.Error("events ws upgrade", "error", err)
		return
	}
	defer conn.Close()

	eventsCh := make(chan any, 16)
	unsubscribe, err := api.bus.Subscribe(rendererevents.TopicJobEvents, eventsCh)
	if err != nil {
		api.logger.Error("events ws subscribe", "error", err)
		return
	}
	defer unsubscribe()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-eventsCh:
			if payload == nil {
				continue
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}
