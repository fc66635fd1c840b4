package services

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

// Источник цены в PriceQuote
const (
	PriceSourceStock = "stock"
	PriceSourceFIFO  = "fifo"
	PriceSourceHint  = "bom_hint"
)

// PriceQuote найденная цена единицы материала
type PriceQuote struct {
	MaterialName string          `json:"material_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"` // В валюте Currency
	UnitPriceARS decimal.Decimal `json:"unit_price_ars"`
	Currency     models.Currency `json:"currency"`
	FXRate       decimal.Decimal `json:"fx_rate"`
	Source       string          `json:"source"`
}

// FIFOPriceCache последние цены закупок по нормализованному имени и коду материала.
// Живет в пределах одной сессии расчета
type FIFOPriceCache map[string]PriceQuote

// Lookup ищет цену по нормализованному ключу
func (c FIFOPriceCache) Lookup(key string) (PriceQuote, bool) {
	if c == nil {
		return PriceQuote{}, false
	}
	key = FoldText(key)
	if key == "" {
		return PriceQuote{}, false
	}
	q, ok := c[key]
	return q, ok
}

type stockEntry struct {
	material models.Material
	name     string // FoldText(Name)
	code     string // FoldText(Code)
	combined string // name + " " + code
}

// MaterialPriceResolver подбирает цену материала по складу и истории закупок.
// Кеши передаются снаружи и принадлежат сессии расчета
type MaterialPriceResolver struct {
	stock []stockEntry
	fifo  FIFOPriceCache
}

// NewMaterialPriceResolver создает резолвер над снимком склада и FIFO кешем
func NewMaterialPriceResolver(stock []models.Material, fifo FIFOPriceCache) *MaterialPriceResolver {
	entries := make([]stockEntry, 0, len(stock))
	for _, m := range stock {
		e := stockEntry{material: m, name: FoldText(m.Name), code: FoldText(m.Code)}
		e.combined = strings.TrimSpace(e.name + " " + e.code)
		entries = append(entries, e)
	}
	return &MaterialPriceResolver{stock: entries, fifo: fifo}
}

// Resolve возвращает цену материала: точное совпадение, все значимые слова, первое значимое
// слово, затем FIFO кеш по имени и коду найденной записи. Никогда не падает: промах - false
func (r *MaterialPriceResolver) Resolve(name string) (PriceQuote, bool) {
	query := FoldText(name)
	if query == "" {
		return PriceQuote{}, false
	}

	record := r.findRecord(query)
	if record != nil {
		if q, ok := stockQuote(record.material); ok {
			return q, true
		}
		if q, ok := r.fifo.Lookup(record.name); ok {
			return q, true
		}
		if q, ok := r.fifo.Lookup(record.code); ok {
			return q, true
		}
		return PriceQuote{}, false
	}
	return r.fifo.Lookup(query)
}

// findRecord ищет запись склада в три яруса. Внутри яруса предпочитается запись с ценой
func (r *MaterialPriceResolver) findRecord(query string) *stockEntry {
	if e := r.pick(func(e *stockEntry) bool {
		return e.name == query || (e.code != "" && e.code == query)
	}); e != nil {
		return e
	}

	tokens := SignificantTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	if e := r.pick(func(e *stockEntry) bool {
		for _, t := range tokens {
			if !strings.Contains(e.combined, t) {
				return false
			}
		}
		return true
	}); e != nil {
		return e
	}

	first := tokens[0]
	return r.pick(func(e *stockEntry) bool {
		return strings.Contains(e.name, first) || (e.code != "" && strings.Contains(e.code, first))
	})
}

func (r *MaterialPriceResolver) pick(match func(*stockEntry) bool) *stockEntry {
	var fallback *stockEntry
	for i := range r.stock {
		e := &r.stock[i]
		if !match(e) {
			continue
		}
		if _, priced := stockQuote(e.material); priced {
			return e
		}
		if fallback == nil {
			fallback = e
		}
	}
	return fallback
}

// SignificantTokens слова запроса длиннее двух символов
func SignificantTokens(folded string) []string {
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// stockQuote цена из записи склада, если она задана
func stockQuote(m models.Material) (PriceQuote, bool) {
	ars := MaterialUnitCostARS(m)
	if !ars.IsPositive() {
		return PriceQuote{}, false
	}
	currency := m.Currency
	if currency == "" {
		currency = models.CurrencyARS
	}
	unit := m.UnitCost
	if !unit.IsPositive() {
		unit = ars
	}
	rate := m.FXRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	return PriceQuote{
		MaterialName: m.Name,
		UnitPrice:    unit,
		UnitPriceARS: ars,
		Currency:     currency,
		FXRate:       rate,
		Source:       PriceSourceStock,
	}, true
}

// MaterialUnitCostARS цена единицы материала в ARS: сохраненная, либо пересчет по курсу записи
func MaterialUnitCostARS(m models.Material) decimal.Decimal {
	if m.UnitCostARS.IsPositive() {
		return m.UnitCostARS
	}
	if !m.UnitCost.IsPositive() {
		return decimal.Zero
	}
	if m.Currency == models.CurrencyUSD {
		if m.FXRate.IsPositive() {
			return m.UnitCost.Mul(m.FXRate)
		}
		return decimal.Zero
	}
	return m.UnitCost
}
