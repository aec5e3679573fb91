package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingRegistrar struct{ path string }

func (p pingRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(p.path, func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
}

type panicRegistrar struct{}

func (panicRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})
}

func TestRouterSetup(t *testing.T) {
	tests := []struct {
		name    string
		opts    []RouterOption
		path    string
		root    bool
		request string
	}{
		{name: "versioned default", path: "/ping", request: "/api/v1/ping"},
		{name: "custom version", opts: []RouterOption{WithAPIVersion("v2")}, path: "/ping", request: "/api/v2/ping"},
		{name: "root registrar", path: "/health", root: true, request: "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			r := NewRouter(engine, tt.opts...)
			if tt.root {
				r.RegisterRoot(pingRegistrar{path: tt.path})
			} else {
				r.Register(pingRegistrar{path: tt.path})
			}
			r.Setup()

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.request, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "pong", w.Body.String())
		})
	}
}

func TestNewEngine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	engine, err := NewEngine(EngineConfig{
		ServiceName: "backoffice-test",
		CORS:        middleware.CORSConfigFrom([]string{"https://backoffice.example.com"}, nil, nil),
		Security:    middleware.DefaultSecurityConfig(),
		MaxBodySize: 64,
	}, zap.New(core))
	require.NoError(t, err)

	NewRouter(engine).Register(pingRegistrar{path: "/ping"}).Register(panicRegistrar{}).Setup()

	t.Run("stack applies headers and logs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
		req.Header.Set("Origin", "https://backoffice.example.com")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, "https://backoffice.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

		entries := logs.FilterMessage("HTTP Request").All()
		require.NotEmpty(t, entries)
		assert.Equal(t, int64(http.StatusOK), entries[len(entries)-1].ContextMap()["status"])
	})

	t.Run("oversized body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ping", strings.NewReader(strings.Repeat("x", 128)))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("panic recovered", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotEmpty(t, logs.FilterMessage("Panic recovered").All())
	})
}
