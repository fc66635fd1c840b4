package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter считает HTTP запросы
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	// RequestDurationHistogram длительность HTTP запросов в секундах
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	// ImportRows строки импорта по типу файла и исходу (imported / row_error / persistence_error)
	ImportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Imported spreadsheet rows by import type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// ImportFiles файлы импорта по типу и конечному состоянию
	ImportFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_files_total",
			Help: "Imported spreadsheet files by import type and final state",
		},
		[]string{"type", "state"},
	)

	// PricingGaps материалы без цены при расчете себестоимости
	PricingGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_gaps_total",
			Help: "Bill of materials lines costed at zero because no price was resolved",
		},
	)

	// CostBreakdownDuration длительность расчета себестоимости (с загрузкой цен)
	CostBreakdownDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cost_breakdown_duration_seconds",
			Help:    "Duration of cost breakdown computations including price loading",
			Buckets: prometheus.DefBuckets,
		},
	)

	registerOnce sync.Once
)

// Register регистрирует метрики в глобальном реестре (повторные вызовы безопасны)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDurationHistogram,
			ImportRows,
			ImportFiles,
			PricingGaps,
			CostBreakdownDuration,
		)
	})
}

// HTTPMetrics сборщик HTTP метрик сервиса
type HTTPMetrics struct {
	ServiceName string
}

// NewHTTPMetrics создает сборщик и регистрирует метрики
func NewHTTPMetrics(serviceName string) *HTTPMetrics {
	Register()
	return &HTTPMetrics{ServiceName: serviceName}
}

// Middleware gin middleware, записывающий метрики запроса
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method

		RequestCounter.WithLabelValues(m.ServiceName, method, path, status).Inc()
		RequestDurationHistogram.WithLabelValues(m.ServiceName, method, path, status).Observe(time.Since(start).Seconds())
	}
}

// ObserveImportRow учитывает строку импорта
func ObserveImportRow(importType, outcome string) {
	ImportRows.WithLabelValues(importType, outcome).Inc()
}

// ObserveImportFile учитывает файл импорта в конечном состоянии
func ObserveImportFile(importType, state string) {
	ImportFiles.WithLabelValues(importType, state).Inc()
}

// GetPrometheusHandler HTTP обработчик /metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}
