package services

import (
	"time"

	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CostBreakdownCalculator считает себестоимость и рентабельность позиции на единицу и на партию
type CostBreakdownCalculator struct {
	normalizer *CurrencyNormalizer
	now        func() time.Time
}

// NewCostBreakdownCalculator создает калькулятор
func NewCostBreakdownCalculator(normalizer *CurrencyNormalizer) *CostBreakdownCalculator {
	return &CostBreakdownCalculator{normalizer: normalizer, now: time.Now}
}

// Compute строит расчет. prices - цены по FoldText(имя материала); материал без цены
// дает вклад 0 и попадает в PricingGaps, расчет не прерывается.
//
//	turnoverTaxUnit  = salePrice × taxPct / 100
//	netPriceAfterTax = salePrice − turnoverTaxUnit
//	finalUnitPrice   = netPriceAfterTax × (1 − discountPct / 100)
//	netProfitUnit    = finalUnitPrice − baseUnitCost − turnoverTaxUnit
func (c *CostBreakdownCalculator) Compute(item models.SimulationItem, lines []models.BOMLine, prices map[string]PriceQuote, avgLaborHourValue decimal.Decimal) models.CostBreakdown {
	b := models.CostBreakdown{
		ItemID:      item.ID,
		Lines:       make([]models.CostLine, 0, len(lines)),
		PricingGaps: []string{},
		ComputedAt:  c.now().UTC(),
	}

	materialCost := decimal.Zero
	for _, line := range lines {
		qty := line.QuantityPerUnit
		if qty.IsNegative() {
			qty = decimal.Zero
		}
		cl := models.CostLine{
			MaterialName:    line.MaterialName,
			QuantityPerUnit: qty,
			UnitPriceARS:    decimal.Zero,
			CostPerUnit:     decimal.Zero,
		}
		if quote, ok := prices[FoldText(line.MaterialName)]; ok && quote.UnitPriceARS.IsPositive() {
			cl.UnitPriceARS = quote.UnitPriceARS
			cl.Currency = quote.Currency
			cl.Source = quote.Source
			cl.CostPerUnit = qty.Mul(quote.UnitPriceARS)
			materialCost = materialCost.Add(cl.CostPerUnit)
		} else {
			cl.Unpriced = true
			b.PricingGaps = append(b.PricingGaps, line.MaterialName)
		}
		b.Lines = append(b.Lines, cl)
	}

	laborCost := decimal.Zero
	if item.UnitsPerHour.IsPositive() {
		laborCost = avgLaborHourValue.Div(item.UnitsPerHour)
	}

	otherCosts := item.OtherCostsPerUnit
	if otherCosts.IsNegative() {
		otherCosts = decimal.Zero
	}
	salePrice := c.normalizer.ToARS(item.SalePrice, item.SaleCurrency, item.FXRate).ValueARS

	baseUnitCost := materialCost.Add(laborCost).Add(otherCosts)
	turnoverTax := salePrice.Mul(item.TaxPct).Div(hundred)
	netPriceAfterTax := salePrice.Sub(turnoverTax)
	finalUnitPrice := netPriceAfterTax.Mul(decimal.NewFromInt(1).Sub(item.DiscountPct.Div(hundred)))
	netProfit := finalUnitPrice.Sub(baseUnitCost).Sub(turnoverTax)

	margin := decimal.Zero
	if !finalUnitPrice.IsZero() {
		margin = netProfit.Div(finalUnitPrice).Mul(hundred)
	}

	b.MaterialCost = materialCost
	b.LaborCost = laborCost
	b.OtherCosts = otherCosts
	b.BaseUnitCost = baseUnitCost
	b.SalePriceARS = salePrice
	b.TurnoverTaxUnit = turnoverTax
	b.NetPriceAfterTax = netPriceAfterTax
	b.FinalUnitPrice = finalUnitPrice
	b.NetProfitUnit = netProfit
	b.MarginPct = margin

	qty := item.QuantityToManufacture
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	b.Quantity = qty
	b.BatchMaterial = materialCost.Mul(qty)
	b.BatchLabor = laborCost.Mul(qty)
	b.BatchOther = otherCosts.Mul(qty)
	b.BatchBaseCost = baseUnitCost.Mul(qty)
	b.BatchTax = turnoverTax.Mul(qty)
	b.BatchNetPrice = netPriceAfterTax.Mul(qty)
	b.BatchFinalPrice = finalUnitPrice.Mul(qty)
	b.BatchNetProfit = netProfit.Mul(qty)
	return b
}
