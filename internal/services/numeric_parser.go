package services

import (
	"math"
	"regexp"
	"strings"

	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

// Amount сумма, разобранная из текста ячейки
type Amount struct {
	Value    decimal.Decimal
	Currency models.Currency
}

// DecimalPointPolicy решает судьбу числа, в котором есть только точка ("30.66", "12.500").
// Если после последней точки не больше MaxFractionDigits цифр и точка одна, это десятичная
// точка и валюта Currency (мелкие долларовые цены). Иначе точки - разделители тысяч (ARS),
// но только если число похоже на группировку по 3 цифры; "0.125" остается десятичным
type DecimalPointPolicy struct {
	MaxFractionDigits int
	Currency          models.Currency
}

// DefaultDecimalPointPolicy эвристика по образцам прайсов: "30.66" - USD, "12.500" - ARS
var DefaultDecimalPointPolicy = DecimalPointPolicy{MaxFractionDigits: 2, Currency: models.CurrencyUSD}

// NumericParser толерантный разборщик сумм вида "1.075,60", "u$s 7.20", "30.66".
// Не валидатор: нераспознанный текст дает {0, ARS}
type NumericParser struct {
	Policy DecimalPointPolicy
}

// NewNumericParser создает разборщик с политикой десятичной точки.
// maxFractionDigits <= 0 - политика по умолчанию
func NewNumericParser(maxFractionDigits int) *NumericParser {
	policy := DefaultDecimalPointPolicy
	if maxFractionDigits > 0 {
		policy.MaxFractionDigits = maxFractionDigits
	}
	return &NumericParser{Policy: policy}
}

var (
	usdPrefixRe      = regexp.MustCompile(`(?i)^(u\$s|u\$d|us\$|u\$)\s*`)
	currencySuffixRe = regexp.MustCompile(`(?i)\s*(usd|ars)\.?$`)
	numberCharsRe    = regexp.MustCompile(`^[0-9.,]+$`)
)

// ParseAmount разбирает сумму. explicitCurrency (значение колонки "moneda") при
// наличии всегда заменяет выведенную валюту, сохраняя величину
func (p *NumericParser) ParseAmount(raw string, explicitCurrency string) Amount {
	amount := p.parse(raw)
	if c, ok := models.ParseCurrency(explicitCurrency); ok {
		amount.Currency = c
	}
	return amount
}

func (p *NumericParser) parse(raw string) Amount {
	zero := Amount{Value: decimal.Zero, Currency: models.CurrencyARS}

	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return zero
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}

	var currency models.Currency
	if loc := usdPrefixRe.FindStringIndex(s); loc != nil {
		currency = models.CurrencyUSD
		s = s[loc[1]:]
	} else if m := currencySuffixRe.FindStringSubmatch(s); m != nil {
		currency = models.Currency(strings.ToUpper(m[1]))
		s = s[:len(s)-len(m[0])]
	}

	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" || !numberCharsRe.MatchString(s) {
		return zero
	}

	digits, inferred := p.normalizeSeparators(s)
	digits = strings.TrimSuffix(digits, ".")
	if strings.HasPrefix(digits, ".") {
		digits = "0" + digits
	}
	value, err := decimal.NewFromString(digits)
	if err != nil {
		return zero
	}
	if negative {
		value = value.Neg()
	}
	if currency == "" {
		currency = inferred
	}
	return Amount{Value: value, Currency: currency}
}

// normalizeSeparators приводит число к виду "1234.56" и выводит валюту по разделителям
func (p *NumericParser) normalizeSeparators(s string) (string, models.Currency) {
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")

	switch {
	case hasDot && hasComma:
		// Точка - тысячи, запятая - десятичная часть
		s = strings.ReplaceAll(s, ".", "")
		return commaToPoint(s), models.CurrencyARS
	case hasComma:
		return commaToPoint(s), models.CurrencyARS
	case hasDot:
		fraction := s[strings.LastIndex(s, ".")+1:]
		if strings.Count(s, ".") == 1 && len(fraction) <= p.Policy.MaxFractionDigits {
			currency := p.Policy.Currency
			if currency == "" {
				currency = models.CurrencyUSD
			}
			return s, currency
		}
		if isThousandsGrouping(s) {
			return strings.ReplaceAll(s, ".", ""), models.CurrencyARS
		}
		// "0.125", "12.5000": точка десятичная
		return lastDotDecimal(s), models.CurrencyARS
	default:
		return s, models.CurrencyARS
	}
}

// isThousandsGrouping "12.500", "1.250.000": первая группа 1-3 цифры без ведущего нуля,
// остальные ровно по 3 цифры
func isThousandsGrouping(s string) bool {
	groups := strings.Split(s, ".")
	if len(groups) < 2 {
		return false
	}
	first := groups[0]
	if len(first) == 0 || len(first) > 3 || first[0] == '0' {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// lastDotDecimal оставляет последнюю точку десятичной, остальные выбрасывает
func lastDotDecimal(s string) string {
	idx := strings.LastIndex(s, ".")
	return strings.ReplaceAll(s[:idx], ".", "") + s[idx:]
}

// quantityPolicy одна точка всегда десятичная: количества и проценты не бывают "в долларах"
var quantityPolicy = DecimalPointPolicy{MaxFractionDigits: math.MaxInt32, Currency: models.CurrencyARS}

// ParseQuantity разбирает количество или процент без валютной эвристики:
// "0.125" - 0.125, "1.500" - 1.5, "1.250.000" и "1.500,5" - разделители тысяч. "%" отбрасывается
func (p *NumericParser) ParseQuantity(raw string) decimal.Decimal {
	q := NumericParser{Policy: quantityPolicy}
	return q.parse(strings.TrimSuffix(strings.TrimSpace(raw), "%")).Value
}

// commaToPoint оставляет последнюю запятую десятичной, остальные выбрасывает
func commaToPoint(s string) string {
	idx := strings.LastIndex(s, ",")
	intPart := strings.ReplaceAll(s[:idx], ",", "")
	return intPart + "." + s[idx+1:]
}
