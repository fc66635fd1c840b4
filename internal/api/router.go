package api

import (
	"net/http"

	"fabrica/server/internal/database"
	"fabrica/server/internal/logger"
	"fabrica/server/internal/metrics"
	"fabrica/server/internal/services"
	"github.com/gin-gonic/gin"
)

var (
	_ services.Store = (*database.GormStore)(nil)
	_ services.Store = (*database.MemoryStore)(nil)
)

// ServiceName имя сервиса в метриках и health check
const ServiceName = "fabrica-costing"

// Controllers обработчики HTTP API
type Controllers struct {
	Imports     *ImportController
	Simulations *SimulationController
	Materials   *MaterialController
	Purchases   *PurchaseController
	Hub         *Hub
}

// SetupRouter собирает gin движок: логирование, метрики, CORS, маршруты /api/v1
func SetupRouter(ctrl Controllers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check до остальных middleware
	r.GET("/health", healthHandler)
	r.GET("/api/v1/health", healthHandler)
	r.GET("/metrics", gin.WrapH(metrics.GetPrometheusHandler()))

	r.Use(logger.Middleware())
	r.Use(metrics.NewHTTPMetrics(ServiceName).Middleware())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-ID, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	apiGroup := r.Group("/api/v1")

	if ctrl.Imports != nil {
		importGroup := apiGroup.Group("/imports")
		{
			importGroup.POST("/:type", ctrl.Imports.Import)
			importGroup.GET("/jobs/:id", ctrl.Imports.GetJob)
		}
	}

	if ctrl.Simulations != nil {
		simulationGroup := apiGroup.Group("/simulations")
		{
			simulationGroup.GET("", ctrl.Simulations.List)
			simulationGroup.POST("/breakdown", ctrl.Simulations.Breakdown)
			simulationGroup.GET("/:id/breakdown", ctrl.Simulations.ItemBreakdown)
			simulationGroup.DELETE("/:id", ctrl.Simulations.Delete)
		}
	}

	if ctrl.Materials != nil {
		materialGroup := apiGroup.Group("/materials")
		{
			materialGroup.GET("/quote", ctrl.Materials.Quote)
			materialGroup.GET("/fifo-cost", ctrl.Materials.FIFOCost)
		}
	}

	if ctrl.Purchases != nil {
		apiGroup.POST("/purchases", ctrl.Purchases.RecordPurchase)
	}

	if ctrl.Hub != nil {
		apiGroup.GET("/ws/imports", ServeImportsWS(ctrl.Hub))
	}

	return r
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": ServiceName,
		"version": "1.0.0",
	})
}
