package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "atende_backend/internal/http"
	"atende_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type routerConfig struct{}

func (routerConfig) GetHTTPAddr() string        { return ":0" }
func (routerConfig) GetCORSAllowAll() bool      { return false }
func (routerConfig) GetCORSOrigins() []string   { return []string{"https://painel.example.com"} }
func (routerConfig) GetJWTAccessSecret() string { return "secret" }

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

type echoModule struct{}

func (echoModule) Name() string { return "echo" }

func (echoModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/echo", func(c *gin.Context) { c.String(http.StatusOK, "echo") })
	ctx.Admin.GET("/echo", func(c *gin.Context) { c.String(http.StatusOK, "admin") })
}

func newTestEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  routerConfig{},
		Logger:  logger.Nop(),
		Health:  health,
		Modules: []apphttp.Module{echoModule{}},
	})
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthReportsDatabaseState(t *testing.T) {
	if rec := serve(newTestEngine(pingStub{}), http.MethodGet, "/api/health"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := serve(newTestEngine(pingStub{err: errors.New("down")}), http.MethodGet, "/api/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestModulesAreMounted(t *testing.T) {
	engine := newTestEngine(nil)

	rec := serve(engine, http.MethodGet, "/api/v1/echo")
	if rec.Code != http.StatusOK || rec.Body.String() != "echo" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	rec := serve(newTestEngine(nil), http.MethodGet, "/api/v1/admin/echo")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
