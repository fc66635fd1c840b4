package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductKind тип товара в каталоге
type ProductKind string

const (
	ProductManufactured ProductKind = "manufactured" // Производится по спецификации
	ProductResale       ProductKind = "resale"       // Покупается и перепродается
)

// Product представляет товар каталога тенанта
// Идентичность - имя без учета регистра (NameKey) в пределах тенанта и типа
type Product struct {
	ID           string          `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     string          `json:"tenant_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_products_tenant_kind_name"`
	Kind         ProductKind     `json:"kind" gorm:"type:varchar(20);not null;uniqueIndex:idx_products_tenant_kind_name"`
	Name         string          `json:"name" gorm:"type:varchar(255);not null"`
	NameKey      string          `json:"-" gorm:"type:varchar(255);not null;uniqueIndex:idx_products_tenant_kind_name"`
	Code         string          `json:"code" gorm:"type:varchar(100);index"`
	Family       string          `json:"family" gorm:"type:varchar(255)"`
	Stock        decimal.Decimal `json:"stock" gorm:"type:decimal(14,4);default:0"`
	UnitCost     decimal.Decimal `json:"unit_cost" gorm:"type:decimal(14,4);default:0"` // ARS
	SalePrice    decimal.Decimal `json:"sale_price" gorm:"type:decimal(14,4);default:0"` // ARS
	Currency     Currency        `json:"currency" gorm:"type:varchar(3);default:'ARS'"` // Валюта исходного файла
	UnitsPerHour decimal.Decimal `json:"units_per_hour" gorm:"type:decimal(10,2);default:0"`
	BOM          []BOMLine       `json:"bom,omitempty" gorm:"polymorphic:Owner;"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Product) TableName() string {
	return "products"
}

// BeforeSave генерирует UUID и ключ имени
func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.NameKey = NormalizeKey(p.Name)
	return nil
}

// BOMLine строка спецификации: материал и расход на единицу продукции (кг или шт)
// Принадлежит Product или SimulationItem (OwnerType)
type BOMLine struct {
	ID              string          `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID         string          `json:"owner_id" gorm:"type:uuid;not null;index:idx_bom_owner"`
	OwnerType       string          `json:"owner_type" gorm:"type:varchar(40);not null;index:idx_bom_owner"`
	Position        int             `json:"position" gorm:"not null;default:0"`
	MaterialName    string          `json:"material_name" gorm:"type:varchar(255);not null"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit" gorm:"type:decimal(14,4);not null;default:0"`
	PriceHintARS    decimal.Decimal `json:"price_hint_ars" gorm:"type:decimal(14,4);default:0"` // Цена из файла импорта
	Currency        Currency        `json:"currency" gorm:"type:varchar(3);default:'ARS'"`  // Исходная валюта цены
}

// TableName указывает имя таблицы
func (BOMLine) TableName() string {
	return "bom_lines"
}

// BeforeCreate генерирует UUID и не допускает отрицательный расход
func (l *BOMLine) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.QuantityPerUnit.IsNegative() {
		l.QuantityPerUnit = decimal.Zero
	}
	return nil
}
