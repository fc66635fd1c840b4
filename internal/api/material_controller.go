package api

import (
	"net/http"
	"strings"

	"fabrica/server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type MaterialController struct {
	simulations *services.SimulationService
	fifo        *services.FIFOCalculator
}

func NewMaterialController(simulations *services.SimulationService, fifo *services.FIFOCalculator) *MaterialController {
	return &MaterialController{simulations: simulations, fifo: fifo}
}

// Quote цена материала по складу и истории закупок
// GET /api/v1/materials/quote?tenant_id=&name=
func (mc *MaterialController) Quote(c *gin.Context) {
	tenant, name := tenantID(c), strings.TrimSpace(c.Query("name"))
	if tenant == "" || name == "" {
		respondError(c, http.StatusBadRequest, "Не указаны tenant_id или name", nil)
		return
	}

	quote, ok, err := mc.simulations.Quote(c.Request.Context(), tenant, name)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка поиска цены", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":    "Цена материала не найдена",
			"material": name,
		})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// FIFOCost стоимость количества материала по FIFO
// GET /api/v1/materials/fifo-cost?tenant_id=&name=&quantity=
func (mc *MaterialController) FIFOCost(c *gin.Context) {
	tenant, name := tenantID(c), strings.TrimSpace(c.Query("name"))
	if tenant == "" || name == "" {
		respondError(c, http.StatusBadRequest, "Не указаны tenant_id или name", nil)
		return
	}
	quantity, err := decimal.NewFromString(strings.ReplaceAll(c.Query("quantity"), ",", "."))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Некорректное quantity", err)
		return
	}

	cost, err := mc.fifo.CostOf(c.Request.Context(), tenant, name, quantity)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка расчета FIFO", err)
		return
	}
	c.JSON(http.StatusOK, cost)
}
