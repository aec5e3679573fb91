package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	env       string
	startTime time.Time
	checks    map[string]HealthCheck
	timeout   time.Duration
}

// SystemHandlerOption configures a SystemHandler
type SystemHandlerOption func(*SystemHandler)

// WithHealthCheck adds a named readiness probe
func WithHealthCheck(name string, check HealthCheck) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.checks[name] = check
	}
}

// WithHealthTimeout bounds each probe
func WithHealthTimeout(d time.Duration) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.timeout = d
	}
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version, env string, opts ...SystemHandlerOption) *SystemHandler {
	h := &SystemHandler{
		name:      name,
		version:   version,
		env:       env,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheck),
		timeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name" example:"backoffice"`
	Version   string `json:"version" example:"1.0.0"`
	Env       string `json:"env" example:"production"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// GetSystemInfo godoc
// @ID           getSystemInfo
// @Summary      Get system information
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		Env:       h.env,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Liveness probe
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	h.Success(c, PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// ComponentHealth is the outcome of one probe
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthResponse aggregates the probes
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
}

// Health godoc
// @ID           health
// @Summary      Readiness probe
// @Description  Runs every registered probe; 503 when any fails
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Components: make([]ComponentHealth, 0, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		start := time.Now()
		err := h.checks[name](ctx)
		cancel()

		component := ComponentHealth{Name: name, Status: "ok", Latency: time.Since(start).String()}
		if err != nil {
			component.Status = "down"
			component.Error = err.Error()
			resp.Status = "degraded"
		}
		resp.Components = append(resp.Components, component)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// RegisterRoutes mounts /system/info and /system/ping under rg
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/system")
	g.GET("/info", h.GetSystemInfo)
	g.GET("/ping", h.Ping)
}
