package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Currency валюта суммы. Учетная валюта всегда ARS
type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

// ParseCurrency приводит произвольную строку к Currency. Пустая строка и неизвестные
// значения дают ok=false
func ParseCurrency(raw string) (Currency, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ARS", "$", "PESOS", "PESO", "AR$":
		return CurrencyARS, true
	case "USD", "U$S", "U$", "US$", "DOLAR", "DOLARES", "DÓLAR", "DÓLARES":
		return CurrencyUSD, true
	}
	return "", false
}

// Material представляет сырье на складе тенанта
// Идентичность - имя без учета регистра и пробелов (NameKey)
type Material struct {
	ID          string          `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID    string          `json:"tenant_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_materials_tenant_name"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null"`
	NameKey     string          `json:"-" gorm:"type:varchar(255);not null;uniqueIndex:idx_materials_tenant_name"`
	Code        string          `json:"code" gorm:"type:varchar(100);index"` // Альтернативный "код материала"
	UnitCost    decimal.Decimal `json:"unit_cost" gorm:"type:decimal(14,4);default:0"` // В валюте Currency
	UnitCostARS decimal.Decimal `json:"unit_cost_ars" gorm:"type:decimal(14,4);default:0"`
	Currency    Currency        `json:"currency" gorm:"type:varchar(3);not null;default:'ARS'"`
	FXRate      decimal.Decimal `json:"fx_rate" gorm:"type:decimal(14,4);default:1"` // Курс на момент последней оценки
	OnHand      decimal.Decimal `json:"on_hand" gorm:"type:decimal(14,4);default:0"`
	Unit        string          `json:"unit" gorm:"type:varchar(20);default:'kg'"`
	IsDraft     bool            `json:"is_draft" gorm:"default:false"` // Создан импортом, еще не проверен
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Material) TableName() string {
	return "materials"
}

// BeforeSave генерирует UUID и поддерживает ключ естественной идентичности
func (m *Material) BeforeSave(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.NameKey = NormalizeKey(m.Name)
	if m.Currency == "" {
		m.Currency = CurrencyARS
	}
	return nil
}

// PurchaseLot неизменяемая запись одной закупки сырья
// Упорядочены по PurchaseDate по возрастанию, при равенстве - по порядку вставки
type PurchaseLot struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     string          `json:"tenant_id" gorm:"type:varchar(64);not null;index:idx_lots_tenant_material"`
	MaterialID   string          `json:"material_id" gorm:"type:uuid;not null;index:idx_lots_tenant_material"`
	Material     *Material       `json:"material,omitempty" gorm:"foreignKey:MaterialID"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:decimal(14,4);not null"`
	UnitPrice    decimal.Decimal `json:"unit_price" gorm:"type:decimal(14,4);not null"` // В валюте закупки
	UnitPriceARS decimal.Decimal `json:"unit_price_ars" gorm:"type:decimal(14,4);not null"`
	Currency     Currency        `json:"currency" gorm:"type:varchar(3);not null;default:'ARS'"`
	FXRate       decimal.Decimal `json:"fx_rate" gorm:"type:decimal(14,4);default:1"`
	PurchaseDate time.Time       `json:"purchase_date" gorm:"not null;index"`
	Source       string          `json:"source" gorm:"type:varchar(50)"` // 'purchase', 'import', 'kafka'
	Seq          int64           `json:"seq" gorm:"autoIncrement;index"` // Порядок вставки для равных дат
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (PurchaseLot) TableName() string {
	return "purchase_lots"
}

// BeforeCreate генерирует UUID
func (l *PurchaseLot) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Currency == "" {
		l.Currency = CurrencyARS
	}
	return nil
}

// NormalizeKey приводит имя к ключу естественной идентичности:
// нижний регистр, без крайних пробелов, внутренние пробелы схлопнуты
func NormalizeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
