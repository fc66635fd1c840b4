package services

import (
	"regexp"
	"strings"
)

// Канонические единицы измерения материалов
const (
	UnitKilogram = "kg"
	UnitGram     = "g"
	UnitLiter    = "l"
	UnitMeter    = "m"
	UnitSquareM  = "m2"
	UnitPiece    = "u"
)

var unitAliases = map[string]string{
	"kg": UnitKilogram, "kgs": UnitKilogram, "kilo": UnitKilogram, "kilos": UnitKilogram,
	"kilogramo": UnitKilogram, "kilogramos": UnitKilogram, "кг": UnitKilogram,
	"g": UnitGram, "gr": UnitGram, "grs": UnitGram, "gramo": UnitGram, "gramos": UnitGram, "г": UnitGram,
	"l": UnitLiter, "lt": UnitLiter, "lts": UnitLiter, "litro": UnitLiter, "litros": UnitLiter, "л": UnitLiter,
	"m": UnitMeter, "mt": UnitMeter, "mts": UnitMeter, "metro": UnitMeter, "metros": UnitMeter, "м": UnitMeter,
	"m2": UnitSquareM, "mt2": UnitSquareM, "metro cuadrado": UnitSquareM, "metros cuadrados": UnitSquareM,
	"u": UnitPiece, "un": UnitPiece, "und": UnitPiece, "unid": UnitPiece, "unidad": UnitPiece,
	"unidades": UnitPiece, "pza": UnitPiece, "pieza": UnitPiece, "piezas": UnitPiece, "шт": UnitPiece,
}

// "kg.", "(kg)", "m²"
var unitNoise = regexp.MustCompile(`[().\s]+`)

// NormalizeUnit приводит единицу из файла к канонической форме.
// Неизвестная единица возвращается как есть, в нижнем регистре
func NormalizeUnit(raw string) string {
	s := FoldText(strings.ReplaceAll(raw, "²", "2"))
	if s == "" {
		return ""
	}
	key := strings.TrimSpace(unitNoise.ReplaceAllString(s, " "))
	if unit, ok := unitAliases[key]; ok {
		return unit
	}
	if unit, ok := unitAliases[strings.ReplaceAll(key, " ", "")]; ok {
		return unit
	}
	return key
}
