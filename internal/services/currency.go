package services

import (
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

// CurrencyNormalizer единственная точка перевода сумм в учетную валюту (ARS)
type CurrencyNormalizer struct {
	DefaultUSDRate decimal.Decimal
}

// NewCurrencyNormalizer создает нормализатор с курсом USD/ARS по умолчанию
func NewCurrencyNormalizer(defaultUSDRate float64) *CurrencyNormalizer {
	rate := decimal.NewFromFloat(defaultUSDRate)
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	return &CurrencyNormalizer{DefaultUSDRate: rate}
}

// ARSAmount сумма в ARS с эхом исходной валюты и примененным курсом
type ARSAmount struct {
	ValueARS decimal.Decimal `json:"value_ars"`
	Original decimal.Decimal `json:"original"`
	Currency models.Currency `json:"currency"`
	FXRate   decimal.Decimal `json:"fx_rate"`
}

// Rate возвращает курс для валюты: явный, если он положительный, иначе по умолчанию.
// Для ARS курс всегда 1
func (n *CurrencyNormalizer) Rate(currency models.Currency, explicitRate decimal.Decimal) decimal.Decimal {
	if currency != models.CurrencyUSD {
		return decimal.NewFromInt(1)
	}
	if explicitRate.IsPositive() {
		return explicitRate
	}
	return n.DefaultUSDRate
}

// ToARS переводит сумму в ARS
func (n *CurrencyNormalizer) ToARS(value decimal.Decimal, currency models.Currency, explicitRate decimal.Decimal) ARSAmount {
	if currency == "" {
		currency = models.CurrencyARS
	}
	rate := n.Rate(currency, explicitRate)
	return ARSAmount{
		ValueARS: value.Mul(rate),
		Original: value,
		Currency: currency,
		FXRate:   rate,
	}
}

// AmountToARS переводит разобранную сумму в ARS
func (n *CurrencyNormalizer) AmountToARS(a Amount, explicitRate decimal.Decimal) ARSAmount {
	return n.ToARS(a.Value, a.Currency, explicitRate)
}
