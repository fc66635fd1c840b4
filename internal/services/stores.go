package services

import (
	"context"
	"time"

	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

// Контракт с хранилищем. Find* возвращают (nil, nil), если сущность не найдена

// MaterialStore материалы тенанта
type MaterialStore interface {
	ListMaterials(ctx context.Context, tenantID string) ([]models.Material, error)
	FindMaterialByName(ctx context.Context, tenantID, name string) (*models.Material, error)
	FindMaterialByCode(ctx context.Context, tenantID, code string) (*models.Material, error)
	SaveMaterial(ctx context.Context, material *models.Material) error
}

// LotStore партии закупок. ListLots упорядочен по дате закупки, при равенстве - по порядку вставки
type LotStore interface {
	ListLots(ctx context.Context, tenantID, materialID string) ([]models.PurchaseLot, error)
	LatestLot(ctx context.Context, tenantID, materialID string) (*models.PurchaseLot, error)
	FindLot(ctx context.Context, tenantID, materialID string, purchaseDate time.Time, quantity, unitPriceARS decimal.Decimal) (*models.PurchaseLot, error)
	CreateLot(ctx context.Context, lot *models.PurchaseLot) error
}

// ProductStore товары каталога
type ProductStore interface {
	FindProductByName(ctx context.Context, tenantID string, kind models.ProductKind, name string) (*models.Product, error)
	SaveProduct(ctx context.Context, product *models.Product) error
}

// SimulationStore позиции симуляции вместе со строками спецификации
type SimulationStore interface {
	ListSimulationItems(ctx context.Context, tenantID string) ([]models.SimulationItem, error)
	FindSimulationItem(ctx context.Context, tenantID, id string) (*models.SimulationItem, error)
	FindSimulationByKey(ctx context.Context, tenantID, family, name string) (*models.SimulationItem, error)
	// SaveSimulationItem создает или обновляет позицию и заменяет ее строки спецификации
	SaveSimulationItem(ctx context.Context, item *models.SimulationItem) error
	// DeleteSimulationItem вызывается только явным действием пользователя
	DeleteSimulationItem(ctx context.Context, tenantID, id string) error
}

// EmployeeStore сотрудники тенанта
type EmployeeStore interface {
	ListEmployees(ctx context.Context, tenantID string) ([]models.Employee, error)
}

// Store полный контракт хранилища движка себестоимости
type Store interface {
	MaterialStore
	LotStore
	ProductStore
	SimulationStore
	EmployeeStore
}

// findMaterial ищет материал по имени, затем по коду
func findMaterial(ctx context.Context, store MaterialStore, tenantID, name string) (*models.Material, error) {
	m, err := store.FindMaterialByName(ctx, tenantID, name)
	if err != nil || m != nil {
		return m, err
	}
	return store.FindMaterialByCode(ctx, tenantID, name)
}
