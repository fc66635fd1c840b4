package api

import (
	"errors"
	"net/http"
	"strings"

	"fabrica/server/internal/models"
	"fabrica/server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type SimulationController struct {
	service    *services.SimulationService
	normalizer *services.CurrencyNormalizer
}

func NewSimulationController(service *services.SimulationService, normalizer *services.CurrencyNormalizer) *SimulationController {
	return &SimulationController{service: service, normalizer: normalizer}
}

// BreakdownRequest несохраненная позиция для расчета "что если"
type BreakdownRequest struct {
	TenantID           string                `json:"tenant_id" binding:"required"`
	Item               models.SimulationItem `json:"item"`
	OtherCostsCurrency models.Currency       `json:"other_costs_currency"` // Пусто - ARS
}

// Breakdown считает позицию из тела запроса
// POST /api/v1/simulations/breakdown
func (sc *SimulationController) Breakdown(c *gin.Context) {
	var req BreakdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса", err)
		return
	}
	item := req.Item
	if strings.TrimSpace(item.Family) == "" {
		respondError(c, http.StatusBadRequest, "Не указана familia", nil)
		return
	}
	if item.Name == "" {
		item.Name = item.Family
	}
	if item.DiscountPct.IsNegative() || item.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		respondError(c, http.StatusBadRequest, "discount_pct вне диапазона 0-100", nil)
		return
	}
	if req.OtherCostsCurrency == models.CurrencyUSD {
		item.OtherCostsPerUnit = sc.normalizer.ToARS(item.OtherCostsPerUnit, models.CurrencyUSD, item.FXRate).ValueARS
	}

	breakdown, err := sc.service.Breakdown(c.Request.Context(), req.TenantID, item)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка расчета себестоимости", err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// ItemBreakdown пересчитывает сохраненную позицию
// GET /api/v1/simulations/:id/breakdown?tenant_id=
func (sc *SimulationController) ItemBreakdown(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		respondError(c, http.StatusBadRequest, "Не указан tenant_id", nil)
		return
	}

	breakdown, err := sc.service.BreakdownForItem(c.Request.Context(), tenant, c.Param("id"))
	if errors.Is(err, services.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Позиция не найдена", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка расчета себестоимости", err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// List все позиции тенанта с расчетом
// GET /api/v1/simulations?tenant_id=
func (sc *SimulationController) List(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		respondError(c, http.StatusBadRequest, "Не указан tenant_id", nil)
		return
	}

	items, err := sc.service.BreakdownAll(c.Request.Context(), tenant)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка расчета себестоимости", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// Delete удаляет позицию
// DELETE /api/v1/simulations/:id?tenant_id=
func (sc *SimulationController) Delete(c *gin.Context) {
	tenant := tenantID(c)
	if tenant == "" {
		respondError(c, http.StatusBadRequest, "Не указан tenant_id", nil)
		return
	}

	err := sc.service.DeleteItem(c.Request.Context(), tenant, c.Param("id"))
	if errors.Is(err, services.ErrNotFound) {
		respondError(c, http.StatusNotFound, "Позиция не найдена", nil)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка удаления позиции", err)
		return
	}
	c.Status(http.StatusNoContent)
}
