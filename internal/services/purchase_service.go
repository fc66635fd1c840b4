package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidPurchase поступление не прошло проверку
var ErrInvalidPurchase = errors.New("некорректное поступление")

// PurchaseReceipt поступление сырья от поставщика
type PurchaseReceipt struct {
	TenantID     string          `json:"tenant_id"`
	MaterialName string          `json:"material_name"`
	MaterialCode string          `json:"material_code,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Currency     models.Currency `json:"currency"`
	FXRate       decimal.Decimal `json:"fx_rate"`
	PurchaseDate time.Time       `json:"purchase_date"`
	Source       string          `json:"source,omitempty"`
}

// PurchaseObserver уведомляется о записанной партии
type PurchaseObserver interface {
	PurchaseRecorded(ctx context.Context, material models.Material, lot models.PurchaseLot)
}

// PurchaseService записывает поступления: неизменяемая партия + обновление цены и остатка материала
type PurchaseService struct {
	materials  MaterialStore
	lots       LotStore
	normalizer *CurrencyNormalizer
	observers  []PurchaseObserver
	now        func() time.Time
}

// NewPurchaseService создает сервис закупок
func NewPurchaseService(materials MaterialStore, lots LotStore, normalizer *CurrencyNormalizer, observers ...PurchaseObserver) *PurchaseService {
	return &PurchaseService{materials: materials, lots: lots, normalizer: normalizer, observers: observers, now: time.Now}
}

// AddObserver подписывает наблюдателя
func (s *PurchaseService) AddObserver(o PurchaseObserver) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// Validate проверяет поступление
func (r *PurchaseReceipt) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: не указан tenant_id", ErrInvalidPurchase)
	}
	if strings.TrimSpace(r.MaterialName) == "" && strings.TrimSpace(r.MaterialCode) == "" {
		return fmt.Errorf("%w: не указан материал", ErrInvalidPurchase)
	}
	if !r.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity должен быть > 0, получено: %s", ErrInvalidPurchase, r.Quantity)
	}
	if !r.UnitPrice.IsPositive() {
		return fmt.Errorf("%w: unit_price должен быть > 0, получено: %s", ErrInvalidPurchase, r.UnitPrice)
	}
	if r.Currency != "" && r.Currency != models.CurrencyARS && r.Currency != models.CurrencyUSD {
		return fmt.Errorf("%w: неизвестная валюта %s", ErrInvalidPurchase, r.Currency)
	}
	return nil
}

// RecordPurchase создает партию в ARS и обновляет остаток материала. Цена материала
// обновляется, только если партия стала самой свежей
func (s *PurchaseService) RecordPurchase(ctx context.Context, receipt PurchaseReceipt) (*models.PurchaseLot, error) {
	if err := receipt.Validate(); err != nil {
		return nil, err
	}
	if receipt.PurchaseDate.IsZero() {
		receipt.PurchaseDate = s.now().UTC()
	}
	if receipt.Source == "" {
		receipt.Source = "purchase"
	}

	material, err := s.resolveMaterial(ctx, receipt)
	if err != nil {
		return nil, err
	}

	price := s.normalizer.ToARS(receipt.UnitPrice, receipt.Currency, receipt.FXRate)
	lot := &models.PurchaseLot{
		TenantID:     receipt.TenantID,
		MaterialID:   material.ID,
		Quantity:     receipt.Quantity,
		UnitPrice:    price.Original,
		UnitPriceARS: price.ValueARS,
		Currency:     price.Currency,
		FXRate:       price.FXRate,
		PurchaseDate: receipt.PurchaseDate.UTC(),
		Source:       receipt.Source,
	}
	if err := s.lots.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("ошибка сохранения партии: %w", err)
	}

	latest, err := s.lots.LatestLot(ctx, receipt.TenantID, material.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки последней партии: %w", err)
	}
	if latest == nil || latest.ID == lot.ID {
		applyMaterialPrice(material, price)
	}
	material.OnHand = material.OnHand.Add(receipt.Quantity)
	material.IsDraft = false
	if err := s.materials.SaveMaterial(ctx, material); err != nil {
		return nil, fmt.Errorf("ошибка обновления материала: %w", err)
	}

	logger.FromContext(ctx).Info("📦 Поступление записано",
		zap.String("tenant_id", receipt.TenantID),
		zap.String("material", material.Name),
		zap.String("quantity", receipt.Quantity.String()),
		zap.String("unit_price_ars", price.ValueARS.String()))

	for _, o := range s.observers {
		o.PurchaseRecorded(ctx, *material, *lot)
	}
	return lot, nil
}

func (s *PurchaseService) resolveMaterial(ctx context.Context, receipt PurchaseReceipt) (*models.Material, error) {
	var (
		material *models.Material
		err      error
	)
	if receipt.MaterialName != "" {
		if material, err = s.materials.FindMaterialByName(ctx, receipt.TenantID, receipt.MaterialName); err != nil {
			return nil, fmt.Errorf("ошибка поиска материала: %w", err)
		}
	}
	if material == nil && receipt.MaterialCode != "" {
		if material, err = s.materials.FindMaterialByCode(ctx, receipt.TenantID, receipt.MaterialCode); err != nil {
			return nil, fmt.Errorf("ошибка поиска материала: %w", err)
		}
	}
	if material != nil {
		return material, nil
	}

	name := receipt.MaterialName
	if name == "" {
		name = receipt.MaterialCode
	}
	material = &models.Material{
		TenantID: receipt.TenantID,
		Name:     name,
		Code:     receipt.MaterialCode,
		Unit:     "kg",
	}
	if err := s.materials.SaveMaterial(ctx, material); err != nil {
		return nil, fmt.Errorf("ошибка создания материала: %w", err)
	}
	return material, nil
}
