package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewHTTPMetrics("fabrica-test")
	NewHTTPMetrics("fabrica-test") // повторная регистрация не паникует

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(RequestCounter.WithLabelValues("fabrica-test", "GET", "/items/:id", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/7", nil))
	after := testutil.ToFloat64(RequestCounter.WithLabelValues("fabrica-test", "GET", "/items/:id", "200"))

	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}

func TestPrometheusHandlerExposesImportRows(t *testing.T) {
	Register()
	ObserveImportRow("simulation", "imported")

	w := httptest.NewRecorder()
	GetPrometheusHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `import_rows_total{outcome="imported",type="simulation"}`) {
		t.Error("import_rows_total not exposed")
	}
}
