package services

import (
	"context"
	"fmt"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/metrics"
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulationStores часть хранилища, нужная расчету себестоимости
type SimulationStores interface {
	MaterialStore
	LotStore
	SimulationStore
	EmployeeStore
}

// SimulationService собирает расчет себестоимости: снимок склада, FIFO кеш, резолвер,
// ставка труда и калькулятор. Кеши живут один вызов
type SimulationService struct {
	store      SimulationStores
	fifo       *FIFOCalculator
	calculator *CostBreakdownCalculator
}

// NewSimulationService создает сервис
func NewSimulationService(store SimulationStores, fifo *FIFOCalculator, calculator *CostBreakdownCalculator) *SimulationService {
	return &SimulationService{store: store, fifo: fifo, calculator: calculator}
}

// PricingSession кеши цен одного расчета
type PricingSession struct {
	Resolver  *MaterialPriceResolver
	LaborRate decimal.Decimal
}

// NewPricingSession загружает склад тенанта, прогревает FIFO кеш и ставку труда
func (s *SimulationService) NewPricingSession(ctx context.Context, tenantID string) (*PricingSession, error) {
	stock, err := s.store.ListMaterials(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки склада: %w", err)
	}
	cache, err := s.fifo.LoadPriceCache(ctx, tenantID, stock)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки FIFO цен: %w", err)
	}
	labor, err := LaborRate(ctx, s.store, tenantID)
	if err != nil {
		return nil, err
	}
	return &PricingSession{
		Resolver:  NewMaterialPriceResolver(stock, cache),
		LaborRate: labor,
	}, nil
}

// Quote цена одного материала
func (s *SimulationService) Quote(ctx context.Context, tenantID, materialName string) (PriceQuote, bool, error) {
	session, err := s.NewPricingSession(ctx, tenantID)
	if err != nil {
		return PriceQuote{}, false, err
	}
	q, ok := session.Resolver.Resolve(materialName)
	return q, ok, nil
}

// BreakdownForItem пересчитывает сохраненную позицию. Неизвестная позиция - ErrNotFound
func (s *SimulationService) BreakdownForItem(ctx context.Context, tenantID, itemID string) (models.CostBreakdown, error) {
	item, err := s.store.FindSimulationItem(ctx, tenantID, itemID)
	if err != nil {
		return models.CostBreakdown{}, fmt.Errorf("ошибка загрузки позиции: %w", err)
	}
	if item == nil {
		return models.CostBreakdown{}, ErrNotFound
	}
	return s.Breakdown(ctx, tenantID, *item)
}

// Breakdown считает произвольную (в том числе несохраненную) позицию
func (s *SimulationService) Breakdown(ctx context.Context, tenantID string, item models.SimulationItem) (models.CostBreakdown, error) {
	start := time.Now()
	defer func() {
		metrics.CostBreakdownDuration.Observe(time.Since(start).Seconds())
	}()

	session, err := s.NewPricingSession(ctx, tenantID)
	if err != nil {
		return models.CostBreakdown{}, err
	}
	return s.BreakdownWithSession(ctx, session, item), nil
}

// BreakdownWithSession считает позицию на уже загруженных кешах
func (s *SimulationService) BreakdownWithSession(ctx context.Context, session *PricingSession, item models.SimulationItem) models.CostBreakdown {
	prices := ResolveLinePrices(session.Resolver, item.Lines)
	breakdown := s.calculator.Compute(item, item.Lines, prices, session.LaborRate)

	if n := len(breakdown.PricingGaps); n > 0 {
		metrics.PricingGaps.Add(float64(n))
		logger.FromContext(ctx).Info("Материалы без цены посчитаны как 0",
			zap.String("item", item.Name),
			zap.Strings("materials", breakdown.PricingGaps))
	}
	return breakdown
}

// ResolveLinePrices цены для строк спецификации. Если резолвер промахнулся,
// используется цена из файла импорта
func ResolveLinePrices(resolver *MaterialPriceResolver, lines []models.BOMLine) map[string]PriceQuote {
	prices := make(map[string]PriceQuote, len(lines))
	for _, line := range lines {
		key := FoldText(line.MaterialName)
		if _, done := prices[key]; done {
			continue
		}
		if q, ok := resolver.Resolve(line.MaterialName); ok {
			prices[key] = q
			continue
		}
		if line.PriceHintARS.IsPositive() {
			prices[key] = PriceQuote{
				MaterialName: line.MaterialName,
				UnitPrice:    line.PriceHintARS,
				UnitPriceARS: line.PriceHintARS,
				Currency:     models.CurrencyARS,
				FXRate:       decimal.NewFromInt(1),
				Source:       PriceSourceHint,
			}
		}
	}
	return prices
}

// ItemBreakdown позиция вместе с расчетом
type ItemBreakdown struct {
	Item      models.SimulationItem `json:"item"`
	Breakdown models.CostBreakdown  `json:"breakdown"`
}

// BreakdownAll считает все позиции тенанта на одной сессии цен
func (s *SimulationService) BreakdownAll(ctx context.Context, tenantID string) ([]ItemBreakdown, error) {
	items, err := s.store.ListSimulationItems(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки позиций: %w", err)
	}
	if len(items) == 0 {
		return []ItemBreakdown{}, nil
	}

	session, err := s.NewPricingSession(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemBreakdown, 0, len(items))
	for _, item := range items {
		out = append(out, ItemBreakdown{Item: item, Breakdown: s.BreakdownWithSession(ctx, session, item)})
	}
	return out, nil
}

// DeleteItem удаляет позицию по явному запросу пользователя
func (s *SimulationService) DeleteItem(ctx context.Context, tenantID, itemID string) error {
	item, err := s.store.FindSimulationItem(ctx, tenantID, itemID)
	if err != nil {
		return fmt.Errorf("ошибка загрузки позиции: %w", err)
	}
	if item == nil {
		return ErrNotFound
	}
	return s.store.DeleteSimulationItem(ctx, tenantID, itemID)
}
