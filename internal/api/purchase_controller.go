package api

import (
	"errors"
	"net/http"

	"fabrica/server/internal/services"
	"github.com/gin-gonic/gin"
)

type PurchaseController struct {
	service *services.PurchaseService
}

func NewPurchaseController(service *services.PurchaseService) *PurchaseController {
	return &PurchaseController{service: service}
}

// RecordPurchase записывает поступление сырья
// POST /api/v1/purchases
func (pc *PurchaseController) RecordPurchase(c *gin.Context) {
	var receipt services.PurchaseReceipt
	if err := c.ShouldBindJSON(&receipt); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса", err)
		return
	}

	lot, err := pc.service.RecordPurchase(c.Request.Context(), receipt)
	if errors.Is(err, services.ErrInvalidPurchase) {
		respondError(c, http.StatusBadRequest, "Некорректное поступление", err)
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка записи поступления", err)
		return
	}
	c.JSON(http.StatusCreated, lot)
}
