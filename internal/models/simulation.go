package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SimulationItem товар, поставленный на анализ себестоимости
// Удаляется только явным действием пользователя
type SimulationItem struct {
	ID                    string          `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID              string          `json:"tenant_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_simulation_natural"`
	Family                string          `json:"family" gorm:"type:varchar(255);not null"`
	FamilyKey             string          `json:"-" gorm:"type:varchar(255);not null;uniqueIndex:idx_simulation_natural"`
	Name                  string          `json:"name" gorm:"type:varchar(255);not null"`
	NameKey               string          `json:"-" gorm:"type:varchar(255);not null;uniqueIndex:idx_simulation_natural"`
	SalePrice             decimal.Decimal `json:"sale_price" gorm:"type:decimal(14,4);default:0"` // В валюте SaleCurrency
	SaleCurrency          Currency        `json:"sale_currency" gorm:"type:varchar(3);default:'ARS'"`
	FXRate                decimal.Decimal `json:"fx_rate" gorm:"type:decimal(14,4);default:0"` // 0 - курс по умолчанию
	DiscountPct           decimal.Decimal `json:"discount_pct" gorm:"type:decimal(6,2);default:0"`
	TaxPct                decimal.Decimal `json:"tax_pct" gorm:"type:decimal(6,2);default:0"` // IIBB
	QuantityToManufacture decimal.Decimal `json:"quantity_to_manufacture" gorm:"type:decimal(14,4);default:0"`
	OtherCostsPerUnit     decimal.Decimal `json:"other_costs_per_unit" gorm:"type:decimal(14,4);default:0"` // ARS
	UnitsPerHour          decimal.Decimal `json:"units_per_hour" gorm:"type:decimal(10,2);default:0"`
	IsManual              bool            `json:"is_manual" gorm:"not null"`
	ProductID             *string         `json:"product_id,omitempty" gorm:"type:uuid;index"`
	Lines                 []BOMLine       `json:"lines,omitempty" gorm:"polymorphic:Owner;"`
	CreatedAt             time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (SimulationItem) TableName() string {
	return "simulation_items"
}

// BeforeSave генерирует UUID и ключи естественной идентичности
func (s *SimulationItem) BeforeSave(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.FamilyKey = NormalizeKey(s.Family)
	s.NameKey = NormalizeKey(s.Name)
	return nil
}

// CostLine детализация одной строки спецификации в расчете
type CostLine struct {
	MaterialName    string          `json:"material_name"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
	UnitPriceARS    decimal.Decimal `json:"unit_price_ars"`
	Currency        Currency        `json:"currency"` // Валюта источника цены
	Source          string          `json:"source,omitempty"`
	CostPerUnit     decimal.Decimal `json:"cost_per_unit"`
	Unpriced        bool            `json:"unpriced"` // Цена не найдена, вклад 0
}

// CostBreakdown расчет себестоимости и рентабельности. Не сохраняется,
// пересчитывается при каждом чтении
type CostBreakdown struct {
	ItemID string `json:"item_id,omitempty"`

	MaterialCost     decimal.Decimal `json:"material_cost"`
	LaborCost        decimal.Decimal `json:"labor_cost"`
	OtherCosts       decimal.Decimal `json:"other_costs"`
	BaseUnitCost     decimal.Decimal `json:"base_unit_cost"`
	SalePriceARS     decimal.Decimal `json:"sale_price_ars"`
	TurnoverTaxUnit  decimal.Decimal `json:"turnover_tax_unit"`
	NetPriceAfterTax decimal.Decimal `json:"net_price_after_tax"`
	FinalUnitPrice   decimal.Decimal `json:"final_unit_price"`
	NetProfitUnit    decimal.Decimal `json:"net_profit_unit"`
	MarginPct        decimal.Decimal `json:"margin_pct"`

	Quantity         decimal.Decimal `json:"quantity"`
	BatchMaterial    decimal.Decimal `json:"batch_material_cost"`
	BatchLabor       decimal.Decimal `json:"batch_labor_cost"`
	BatchOther       decimal.Decimal `json:"batch_other_costs"`
	BatchBaseCost    decimal.Decimal `json:"batch_base_cost"`
	BatchTax         decimal.Decimal `json:"batch_tax"`
	BatchNetPrice    decimal.Decimal `json:"batch_net_price"`
	BatchFinalPrice  decimal.Decimal `json:"batch_final_price"`
	BatchNetProfit   decimal.Decimal `json:"batch_net_profit"`

	Lines       []CostLine `json:"lines"`
	PricingGaps []string   `json:"pricing_gaps"`
	ComputedAt  time.Time  `json:"computed_at"`
}

// NewSimulationItemID генерирует идентификатор для ручной позиции без сохранения
func NewSimulationItemID() string {
	return uuid.New().String()
}
