package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// MaterialGroup материал из повторяющейся группы "material N" строки
type MaterialGroup struct {
	Index           int
	Name            string
	QuantityPerUnit decimal.Decimal
	Price           ARSAmount
	HasPrice        bool
}

// SimulationRecord строка файла симуляции, суммы уже в ARS
type SimulationRecord struct {
	Row          int
	Family       string
	Name         string
	SalePrice    ARSAmount
	DiscountPct  decimal.Decimal
	TaxPct       decimal.Decimal
	Quantity     decimal.Decimal
	OtherCosts   ARSAmount
	UnitsPerHour decimal.Decimal
	Materials    []MaterialGroup
}

// Key идентифицирующие поля строки для отчета
func (r SimulationRecord) Key() string {
	return fmt.Sprintf("familia=%s, nombre=%s", r.Family, r.Name)
}

// RawMaterialRecord строка файла остатков сырья
type RawMaterialRecord struct {
	Row          int
	Name         string
	Code         string
	UnitCost     ARSAmount
	HasUnitCost  bool
	OnHand       decimal.Decimal
	HasOnHand    bool
	Unit         string
	PurchaseDate *time.Time
}

// Key идентифицирующие поля строки для отчета
func (r RawMaterialRecord) Key() string {
	if r.Code != "" {
		return fmt.Sprintf("material=%s, codigo=%s", r.Name, r.Code)
	}
	return fmt.Sprintf("material=%s", r.Name)
}

// ResaleRecord строка файла товаров для перепродажи
type ResaleRecord struct {
	Row       int
	Name      string
	Code      string
	Family    string
	UnitCost  ARSAmount
	SalePrice ARSAmount
	Stock     decimal.Decimal
	HasStock  bool
}

// Key идентифицирующие поля строки для отчета
func (r ResaleRecord) Key() string {
	return fmt.Sprintf("producto=%s", r.Name)
}

// RowMapper переводит строки таблицы в доменные записи: разбор чисел и сразу перевод в ARS
type RowMapper struct {
	parser     *NumericParser
	normalizer *CurrencyNormalizer
	columns    ColumnResolution
	groups     []MaterialGroupColumns
}

// NewRowMapper создает маппер для уже сопоставленного заголовка
func NewRowMapper(parser *NumericParser, normalizer *CurrencyNormalizer, columns ColumnResolution, groups []MaterialGroupColumns) *RowMapper {
	return &RowMapper{parser: parser, normalizer: normalizer, columns: columns, groups: groups}
}

func (m *RowMapper) cell(row []string, field string) string {
	pos, ok := m.columns.Found[field]
	if !ok {
		return ""
	}
	return cellAt(row, pos)
}

func (m *RowMapper) has(row []string, field string) bool {
	return m.cell(row, field) != ""
}

func cellAt(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(row[pos], "\"'\t"))
}

// number разбирает количество или процент: одна точка - десятичная, "%" отбрасывается
func (m *RowMapper) number(raw string) decimal.Decimal {
	return m.parser.ParseQuantity(raw)
}

// money разбирает сумму с валютой строки и переводит в ARS по курсу строки или курсу по умолчанию
func (m *RowMapper) money(raw, explicitCurrency string, rate decimal.Decimal) ARSAmount {
	return m.normalizer.AmountToARS(m.parser.ParseAmount(raw, explicitCurrency), rate)
}

// rowRate курс строки. Курс - величина порядка тысяч, поэтому "1.050" читается как 1050
func (m *RowMapper) rowRate(row []string) decimal.Decimal {
	return m.parser.ParseAmount(m.cell(row, FieldFXRate), "").Value
}

// MapSimulationRow строит запись симуляции. Строка без семейства - *RowValidationError
func (m *RowMapper) MapSimulationRow(rowNum int, row []string) (SimulationRecord, error) {
	rec := SimulationRecord{
		Row:    rowNum,
		Family: m.cell(row, FieldFamily),
		Name:   m.cell(row, FieldName),
	}
	if rec.Family == "" {
		return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: "не указана familia"}
	}
	if rec.Name == "" {
		rec.Name = rec.Family
	}

	currency := m.cell(row, FieldCurrency)
	rate := m.rowRate(row)
	rec.SalePrice = m.money(m.cell(row, FieldSalePrice), currency, rate)
	rec.OtherCosts = m.money(m.cell(row, FieldOtherCosts), currency, rate)
	rec.DiscountPct = m.number(m.cell(row, FieldDiscount))
	rec.TaxPct = m.number(m.cell(row, FieldTax))
	rec.Quantity = m.number(m.cell(row, FieldQuantity))
	rec.UnitsPerHour = m.number(m.cell(row, FieldUnitsPerHour))

	if rec.Quantity.IsNegative() {
		return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: "cantidad a fabricar отрицательная"}
	}
	if rec.DiscountPct.IsNegative() || rec.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
		return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: fmt.Sprintf("descuento вне диапазона 0-100: %s", rec.DiscountPct)}
	}

	rec.Materials = m.mapMaterialGroups(row, currency, rate)
	return rec, nil
}

// mapMaterialGroups собирает группы "material N" по возрастанию N, пустые имена отбрасываются.
// Одиночная колонка "material N" - только имя, остальное по умолчанию (расход 0, без цены)
func (m *RowMapper) mapMaterialGroups(row []string, rowCurrency string, rate decimal.Decimal) []MaterialGroup {
	var out []MaterialGroup
	for _, g := range m.groups {
		name := cellAt(row, g.Name)
		if name == "" {
			continue
		}
		mg := MaterialGroup{Index: g.Index, Name: name, QuantityPerUnit: decimal.Zero}
		if g.Quantity >= 0 {
			mg.QuantityPerUnit = m.number(cellAt(row, g.Quantity))
			if mg.QuantityPerUnit.IsNegative() {
				mg.QuantityPerUnit = decimal.Zero
			}
		}
		if g.Price >= 0 {
			if raw := cellAt(row, g.Price); raw != "" {
				currency := rowCurrency
				if g.Currency >= 0 && cellAt(row, g.Currency) != "" {
					currency = cellAt(row, g.Currency)
				}
				mg.Price = m.money(raw, currency, rate)
				mg.HasPrice = mg.Price.ValueARS.IsPositive()
			}
		}
		out = append(out, mg)
	}
	return out
}

// MapRawMaterialRow строит запись сырья. Строка без названия - *RowValidationError
func (m *RowMapper) MapRawMaterialRow(rowNum int, row []string) (RawMaterialRecord, error) {
	rec := RawMaterialRecord{
		Row:  rowNum,
		Name: m.cell(row, FieldName),
		Code: m.cell(row, FieldCode),
		Unit: NormalizeUnit(m.cell(row, FieldUnit)),
	}
	if rec.Name == "" {
		return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: "не указано название материала"}
	}

	if m.has(row, FieldUnitCost) {
		rec.UnitCost = m.money(m.cell(row, FieldUnitCost), m.cell(row, FieldCurrency), m.rowRate(row))
		rec.HasUnitCost = true
		if rec.UnitCost.ValueARS.IsNegative() {
			return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: fmt.Sprintf("отрицательная цена: %s", rec.UnitCost.Original)}
		}
	}
	if m.has(row, FieldStock) {
		rec.OnHand = m.number(m.cell(row, FieldStock))
		rec.HasOnHand = true
	}
	if raw := m.cell(row, FieldPurchaseDate); raw != "" {
		date, err := ParseSheetDate(raw)
		if err != nil {
			return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: err.Error()}
		}
		rec.PurchaseDate = &date
	}
	return rec, nil
}

// MapResaleRow строит запись товара для перепродажи. Строка без названия - *RowValidationError
func (m *RowMapper) MapResaleRow(rowNum int, row []string) (ResaleRecord, error) {
	rec := ResaleRecord{
		Row:    rowNum,
		Name:   m.cell(row, FieldName),
		Code:   m.cell(row, FieldCode),
		Family: m.cell(row, FieldFamily),
	}
	if rec.Name == "" {
		return rec, &RowValidationError{Row: rowNum, Key: rec.Key(), Reason: "не указано название товара"}
	}

	currency := m.cell(row, FieldCurrency)
	rate := m.rowRate(row)
	rec.UnitCost = m.money(m.cell(row, FieldUnitCost), currency, rate)
	rec.SalePrice = m.money(m.cell(row, FieldSalePrice), currency, rate)
	if m.has(row, FieldStock) {
		rec.Stock = m.number(m.cell(row, FieldStock))
		rec.HasStock = true
	}
	return rec, nil
}

var sheetDateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"2006-01-02",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	time.RFC3339,
}

// ParseSheetDate разбирает дату ячейки: день/месяц/год, ISO или серийный номер Excel
func ParseSheetDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range sheetDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("неверный формат даты: %s", raw)
}

// currencyOf возвращает валюту суммы или ARS по умолчанию
func currencyOf(a ARSAmount) models.Currency {
	if a.Currency == "" {
		return models.CurrencyARS
	}
	return a.Currency
}
