package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LotConsumption сколько взято из одной партии при FIFO оценке
type LotConsumption struct {
	LotID        string          `json:"lot_id"`
	PurchaseDate time.Time       `json:"purchase_date"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPriceARS decimal.Decimal `json:"unit_price_ars"`
	Cost         decimal.Decimal `json:"cost"`
	Extrapolated bool            `json:"extrapolated"` // Недостача, оцененная по цене последней партии
}

// FIFOCost стоимость количества материала по FIFO
type FIFOCost struct {
	MaterialName string           `json:"material_name"`
	Quantity     decimal.Decimal  `json:"quantity"`
	TotalCost    decimal.Decimal  `json:"total_cost"`
	UnitCost     decimal.Decimal  `json:"unit_cost"`
	LotsConsumed []LotConsumption `json:"lots_consumed"`
}

// FIFOCalculator оценка расхода материала по партиям закупок, старые партии первыми
type FIFOCalculator struct {
	materials MaterialStore
	lots      LotStore
	fanout    int
}

// NewFIFOCalculator создает калькулятор. fanout - лимит параллельных запросов при прогреве кеша
func NewFIFOCalculator(materials MaterialStore, lots LotStore, fanout int) *FIFOCalculator {
	if fanout <= 0 {
		fanout = 8
	}
	return &FIFOCalculator{materials: materials, lots: lots, fanout: fanout}
}

// CostOf стоимость quantity единиц материала. Неизвестный материал или отсутствие партий дают 0
func (c *FIFOCalculator) CostOf(ctx context.Context, tenantID, materialName string, quantity decimal.Decimal) (FIFOCost, error) {
	if !quantity.IsPositive() {
		return zeroFIFOCost(materialName, quantity), nil
	}

	material, err := findMaterial(ctx, c.materials, tenantID, materialName)
	if err != nil {
		return FIFOCost{}, fmt.Errorf("ошибка поиска материала %s: %w", materialName, err)
	}
	if material == nil {
		return zeroFIFOCost(materialName, quantity), nil
	}

	lots, err := c.lots.ListLots(ctx, tenantID, material.ID)
	if err != nil {
		return FIFOCost{}, fmt.Errorf("ошибка загрузки партий %s: %w", material.Name, err)
	}

	cost := CostOfLots(lots, quantity)
	cost.MaterialName = material.Name
	return cost, nil
}

// CostOfLots проходит партии (уже упорядоченные по дате) и списывает min(остаток, партия).
// Недостача оценивается по цене последней партии
func CostOfLots(lots []models.PurchaseLot, quantity decimal.Decimal) FIFOCost {
	result := zeroFIFOCost("", quantity)
	if !quantity.IsPositive() || len(lots) == 0 {
		return result
	}

	remaining := quantity
	total := decimal.Zero
	for _, lot := range lots {
		if !remaining.IsPositive() {
			break
		}
		if !lot.Quantity.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lot.Quantity)
		lineCost := take.Mul(lot.UnitPriceARS)
		total = total.Add(lineCost)
		remaining = remaining.Sub(take)
		result.LotsConsumed = append(result.LotsConsumed, LotConsumption{
			LotID:        lot.ID,
			PurchaseDate: lot.PurchaseDate,
			Quantity:     take,
			UnitPriceARS: lot.UnitPriceARS,
			Cost:         lineCost,
		})
	}

	if remaining.IsPositive() {
		last := lots[len(lots)-1]
		lineCost := remaining.Mul(last.UnitPriceARS)
		total = total.Add(lineCost)
		result.LotsConsumed = append(result.LotsConsumed, LotConsumption{
			LotID:        last.ID,
			PurchaseDate: last.PurchaseDate,
			Quantity:     remaining,
			UnitPriceARS: last.UnitPriceARS,
			Cost:         lineCost,
			Extrapolated: true,
		})
	}

	result.TotalCost = total
	result.UnitCost = total.Div(quantity)
	return result
}

func zeroFIFOCost(name string, quantity decimal.Decimal) FIFOCost {
	return FIFOCost{
		MaterialName: name,
		Quantity:     quantity,
		TotalCost:    decimal.Zero,
		UnitCost:     decimal.Zero,
		LotsConsumed: []LotConsumption{},
	}
}

// LatestUnitPrice цена следующей единицы: последняя по дате партия, в ARS
func (c *FIFOCalculator) LatestUnitPrice(ctx context.Context, tenantID, materialName string) (PriceQuote, bool, error) {
	material, err := findMaterial(ctx, c.materials, tenantID, materialName)
	if err != nil {
		return PriceQuote{}, false, fmt.Errorf("ошибка поиска материала %s: %w", materialName, err)
	}
	if material == nil {
		return PriceQuote{}, false, nil
	}
	return c.latestForMaterial(ctx, tenantID, *material)
}

func (c *FIFOCalculator) latestForMaterial(ctx context.Context, tenantID string, material models.Material) (PriceQuote, bool, error) {
	lot, err := c.lots.LatestLot(ctx, tenantID, material.ID)
	if err != nil {
		return PriceQuote{}, false, fmt.Errorf("ошибка загрузки последней партии %s: %w", material.Name, err)
	}
	if lot == nil {
		return PriceQuote{}, false, nil
	}
	return lotQuote(material.Name, *lot), true, nil
}

func lotQuote(name string, lot models.PurchaseLot) PriceQuote {
	currency := lot.Currency
	if currency == "" {
		currency = models.CurrencyARS
	}
	unit := lot.UnitPrice
	if !unit.IsPositive() {
		unit = lot.UnitPriceARS
	}
	rate := lot.FXRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	return PriceQuote{
		MaterialName: name,
		UnitPrice:    unit,
		UnitPriceARS: lot.UnitPriceARS,
		Currency:     currency,
		FXRate:       rate,
		Source:       PriceSourceFIFO,
	}
}

// LoadPriceCache параллельно запрашивает последнюю цену для каждого материала склада
// и собирает FIFOPriceCache по нормализованным имени и коду. Ошибка по одному материалу
// не прерывает прогрев: материал просто остается без FIFO цены
func (c *FIFOCalculator) LoadPriceCache(ctx context.Context, tenantID string, materials []models.Material) (FIFOPriceCache, error) {
	cache := make(FIFOPriceCache, len(materials)*2)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fanout)

	for _, m := range materials {
		material := m
		g.Go(func() error {
			quote, ok, err := c.latestForMaterial(gctx, tenantID, material)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.FromContext(ctx).Warn("⚠️ FIFO цена недоступна",
					zap.String("tenant_id", tenantID),
					zap.String("material", material.Name),
					zap.Error(err))
				return nil
			}
			if !ok {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if key := FoldText(material.Name); key != "" {
				cache[key] = quote
			}
			if key := FoldText(material.Code); key != "" {
				if _, taken := cache[key]; !taken {
					cache[key] = quote
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cache, nil
}
