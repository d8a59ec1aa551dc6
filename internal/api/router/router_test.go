package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"

	"github.com/runcall/platform/internal/bookings"
	"github.com/runcall/platform/pkg/logging"
)

func newTestRouter() http.Handler {
	reg := prometheus.NewRegistry()
	return New(&Config{
		Logger:          logging.Default(),
		BookingsHandler: bookings.NewHandler(bookings.NewService(bookings.ServiceConfig{}), nil),
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret: "test-secret",
	})
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealth(t *testing.T) {
	rec := get(newTestRouter(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouterMetricsMounted(t *testing.T) {
	rec := get(newTestRouter(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAdminRequiresToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/admin/bookings/expire", nil)
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	rec := get(newTestRouter(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
