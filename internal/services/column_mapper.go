package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Канонические поля импортируемых файлов
const (
	FieldFamily       = "familia"
	FieldName         = "nombre"
	FieldCode         = "codigo"
	FieldSalePrice    = "precio_venta"
	FieldUnitCost     = "costo_unitario"
	FieldCurrency     = "moneda"
	FieldFXRate       = "tipo_cambio"
	FieldDiscount     = "descuento"
	FieldTax          = "iibb"
	FieldQuantity     = "cantidad"
	FieldOtherCosts   = "otros_costos"
	FieldUnitsPerHour = "unidades_hora"
	FieldStock        = "stock"
	FieldUnit         = "unidad"
	FieldPurchaseDate = "fecha_compra"
)

// ColumnTable статическая таблица: каноническое поле → допустимые варианты заголовка
type ColumnTable struct {
	Required map[string][]string
	Optional map[string][]string
}

var (
	currencyVariants = []string{"moneda", "currency", "divisa", "moneda venta", "moneda precio"}
	fxRateVariants   = []string{"tipo de cambio", "tipo cambio", "tc", "cotizacion", "cotizacion dolar", "fx", "fx rate", "exchange rate"}
	codeVariants     = []string{"codigo", "cod", "code", "codigo material", "material code", "sku"}
)

// SimulationColumns колонки файла симуляции себестоимости
var SimulationColumns = ColumnTable{
	Required: map[string][]string{
		FieldFamily: {"familia", "family", "familia de producto", "product family", "rubro"},
	},
	Optional: map[string][]string{
		FieldName:         {"nombre", "name", "producto", "product", "nombre del producto", "descripcion", "description", "modelo"},
		FieldSalePrice:    {"precio venta", "precio de venta", "sale price", "selling price", "precio", "price", "pvp"},
		FieldCurrency:     currencyVariants,
		FieldFXRate:       fxRateVariants,
		FieldDiscount:     {"descuento", "descuento %", "% descuento", "discount", "discount %", "bonificacion"},
		FieldTax:          {"iibb", "iibb %", "% iibb", "ingresos brutos", "impuesto", "tax", "tax %", "turnover tax"},
		FieldQuantity:     {"cantidad a fabricar", "cantidad fabricar", "cantidad", "quantity", "qty", "quantity to manufacture", "lote"},
		FieldOtherCosts:   {"otros costos", "otros gastos", "other costs", "otros costos unitarios"},
		FieldUnitsPerHour: {"unidades por hora", "unidades hora", "unid/hora", "units per hour", "productividad", "throughput"},
	},
}

// RawMaterialColumns колонки файла остатков сырья
var RawMaterialColumns = ColumnTable{
	Required: map[string][]string{
		FieldName: {"material", "materia prima", "insumo", "nombre", "name", "descripcion", "raw material"},
	},
	Optional: map[string][]string{
		FieldCode:         codeVariants,
		FieldUnitCost:     {"costo unitario", "precio unitario", "costo", "precio", "unit cost", "unit price", "cost", "price", "precio compra"},
		FieldCurrency:     currencyVariants,
		FieldFXRate:       fxRateVariants,
		FieldStock:        {"stock", "cantidad", "quantity", "existencia", "on hand", "kg"},
		FieldUnit:         {"unidad", "unidad de medida", "um", "unit", "uom"},
		FieldPurchaseDate: {"fecha compra", "fecha de compra", "fecha", "purchase date", "date"},
	},
}

// ResaleColumns колонки файла товаров для перепродажи
var ResaleColumns = ColumnTable{
	Required: map[string][]string{
		FieldName: {"producto", "nombre", "name", "product", "articulo", "descripcion", "item"},
	},
	Optional: map[string][]string{
		FieldCode:      codeVariants,
		FieldFamily:    {"familia", "family", "rubro", "categoria", "category"},
		FieldUnitCost:  {"costo", "costo unitario", "precio compra", "precio de compra", "cost", "unit cost", "purchase price"},
		FieldSalePrice: {"precio venta", "precio de venta", "sale price", "pvp", "precio", "price"},
		FieldCurrency:  currencyVariants,
		FieldFXRate:    fxRateVariants,
		FieldStock:     {"stock", "cantidad", "quantity", "existencia", "on hand"},
	},
}

// ColumnResolution результат сопоставления заголовка с таблицей вариантов
type ColumnResolution struct {
	Found   map[string]int // Каноническое поле → индекс колонки
	Missing []string       // Отсутствующие обязательные поля, отсортированы
}

// Err возвращает одну агрегированную ошибку по всем отсутствующим полям
func (r ColumnResolution) Err() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return &StructuralImportError{Missing: r.Missing}
}

// ResolveColumns сопоставляет заголовок с вариантами без учета регистра и диакритики.
// Поле без единого найденного варианта попадает в Missing
func ResolveColumns(header []string, required map[string][]string) ColumnResolution {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := FoldHeader(h)
		if _, seen := index[key]; !seen && key != "" {
			index[key] = i
		}
	}

	res := ColumnResolution{Found: make(map[string]int)}
	for field, variants := range required {
		pos, ok := lookupVariants(index, variants)
		if !ok {
			res.Missing = append(res.Missing, field)
			continue
		}
		res.Found[field] = pos
	}
	sort.Strings(res.Missing)
	return res
}

// ResolveTable сопоставляет обязательные и необязательные колонки таблицы
func ResolveTable(header []string, table ColumnTable) ColumnResolution {
	res := ResolveColumns(header, table.Required)
	optional := ResolveColumns(header, table.Optional)
	for field, pos := range optional.Found {
		res.Found[field] = pos
	}
	return res
}

// lookupVariants возвращает позицию первого по порядку варианта, присутствующего в заголовке
func lookupVariants(index map[string]int, variants []string) (int, bool) {
	for _, v := range variants {
		if pos, ok := index[FoldHeader(v)]; ok {
			return pos, true
		}
	}
	return 0, false
}

// transform.Chain хранит состояние, поэтому создается на каждый вызов
func diacriticsFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// FoldText убирает диакритику, приводит к нижнему регистру и схлопывает пробелы
func FoldText(s string) string {
	folded, _, err := transform.String(diacriticsFolder(), s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// FoldHeader нормализует заголовок колонки: как FoldText, плюс "_" и "-" как пробелы,
// без завершающих ":" и "*"
func FoldHeader(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ", "\t", " ").Replace(s)
	s = strings.TrimRight(strings.TrimSpace(s), ":*")
	return FoldText(s)
}

// Роль колонки в повторяющейся группе "material N ..."
const (
	groupName = iota
	groupQuantity
	groupPrice
	groupCurrency
)

var (
	materialGroupRe = regexp.MustCompile(`^(?:material|materia prima|insumo|mp)\s*#?\s*(\d+)\s*(.*)$`)

	groupSuffixes = map[string]int{
		"":                groupName,
		"nombre":          groupName,
		"name":            groupName,
		"descripcion":     groupName,
		"cantidad":        groupQuantity,
		"cant":            groupQuantity,
		"cantidad kg":     groupQuantity,
		"kg":              groupQuantity,
		"quantity":        groupQuantity,
		"qty":             groupQuantity,
		"consumo":         groupQuantity,
		"precio":          groupPrice,
		"precio unitario": groupPrice,
		"costo":           groupPrice,
		"price":           groupPrice,
		"unit price":      groupPrice,
		"cost":            groupPrice,
		"moneda":          groupCurrency,
		"currency":        groupCurrency,
	}
)

// MaterialGroupColumns колонки одной группы "material N"; -1 - колонки нет
type MaterialGroupColumns struct {
	Index    int
	Name     int
	Quantity int
	Price    int
	Currency int
}

// CollectMaterialGroups находит в заголовке группы "<material><N><суффикс>", упорядоченные по N.
// Группа без колонки имени не используется
func CollectMaterialGroups(header []string) []MaterialGroupColumns {
	byIndex := make(map[int]*MaterialGroupColumns)
	for pos, h := range header {
		m := materialGroupRe.FindStringSubmatch(FoldHeader(h))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		role, ok := groupSuffixes[strings.Trim(m[2], " ()-")]
		if !ok {
			continue
		}
		g, exists := byIndex[n]
		if !exists {
			g = &MaterialGroupColumns{Index: n, Name: -1, Quantity: -1, Price: -1, Currency: -1}
			byIndex[n] = g
		}
		var slot *int
		switch role {
		case groupName:
			slot = &g.Name
		case groupQuantity:
			slot = &g.Quantity
		case groupPrice:
			slot = &g.Price
		default:
			slot = &g.Currency
		}
		if *slot == -1 {
			*slot = pos
		}
	}

	groups := make([]MaterialGroupColumns, 0, len(byIndex))
	for _, g := range byIndex {
		if g.Name >= 0 {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Index < groups[j].Index })
	return groups
}
