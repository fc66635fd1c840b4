package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"fabrica/server/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStore хранилище движка себестоимости поверх PostgreSQL
type GormStore struct {
	db *gorm.DB
}

// NewGormStore создает хранилище
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB возвращает *gorm.DB (для /health)
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// first выполняет запрос First и переводит ErrRecordNotFound в (false, nil)
func first(q *gorm.DB, dest interface{}) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *GormStore) ListMaterials(ctx context.Context, tenantID string) ([]models.Material, error) {
	var materials []models.Material
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

func (s *GormStore) FindMaterialByName(ctx context.Context, tenantID, name string) (*models.Material, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return nil, nil
	}
	var m models.Material
	found, err := first(s.db.WithContext(ctx).Where("tenant_id = ? AND name_key = ?", tenantID, key), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) FindMaterialByCode(ctx context.Context, tenantID, code string) (*models.Material, error) {
	key := strings.ToLower(strings.TrimSpace(code))
	if key == "" {
		return nil, nil
	}
	var m models.Material
	found, err := first(s.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(TRIM(code)) = ?", tenantID, key).
		Order("created_at ASC"), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) SaveMaterial(ctx context.Context, material *models.Material) error {
	return s.db.WithContext(ctx).Save(material).Error
}

func (s *GormStore) ListLots(ctx context.Context, tenantID, materialID string) ([]models.PurchaseLot, error) {
	var lots []models.PurchaseLot
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND material_id = ?", tenantID, materialID).
		Order("purchase_date ASC, seq ASC").
		Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *GormStore) LatestLot(ctx context.Context, tenantID, materialID string) (*models.PurchaseLot, error) {
	var lot models.PurchaseLot
	found, err := first(s.db.WithContext(ctx).
		Where("tenant_id = ? AND material_id = ?", tenantID, materialID).
		Order("purchase_date DESC, seq DESC"), &lot)
	if err != nil || !found {
		return nil, err
	}
	return &lot, nil
}

func (s *GormStore) FindLot(ctx context.Context, tenantID, materialID string, purchaseDate time.Time, quantity, unitPriceARS decimal.Decimal) (*models.PurchaseLot, error) {
	var lot models.PurchaseLot
	found, err := first(s.db.WithContext(ctx).
		Where("tenant_id = ? AND material_id = ? AND purchase_date = ? AND quantity = ? AND unit_price_ars = ?",
			tenantID, materialID, purchaseDate.UTC(), quantity, unitPriceARS), &lot)
	if err != nil || !found {
		return nil, err
	}
	return &lot, nil
}

func (s *GormStore) CreateLot(ctx context.Context, lot *models.PurchaseLot) error {
	return s.db.WithContext(ctx).Create(lot).Error
}

func (s *GormStore) FindProductByName(ctx context.Context, tenantID string, kind models.ProductKind, name string) (*models.Product, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return nil, nil
	}
	var p models.Product
	found, err := first(s.db.WithContext(ctx).
		Preload("BOM", preloadLines).
		Where("tenant_id = ? AND kind = ? AND name_key = ?", tenantID, kind, key), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// SaveProduct сохраняет товар и заменяет его спецификацию
func (s *GormStore) SaveProduct(ctx context.Context, product *models.Product) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("BOM").Save(product).Error; err != nil {
			return err
		}
		lines, err := replaceLines(tx, product.ID, product.TableName(), product.BOM)
		if err != nil {
			return err
		}
		product.BOM = lines
		return nil
	})
}

// replaceLines удаляет строки спецификации владельца и записывает новые
func replaceLines(tx *gorm.DB, ownerID, ownerType string, lines []models.BOMLine) ([]models.BOMLine, error) {
	if err := tx.Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		Delete(&models.BOMLine{}).Error; err != nil {
		return nil, err
	}
	for i := range lines {
		lines[i].ID = ""
		lines[i].OwnerID = ownerID
		lines[i].OwnerType = ownerType
	}
	if len(lines) > 0 {
		if err := tx.Create(&lines).Error; err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (s *GormStore) ListSimulationItems(ctx context.Context, tenantID string) ([]models.SimulationItem, error) {
	var items []models.SimulationItem
	if err := s.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		Where("tenant_id = ?", tenantID).
		Order("family ASC, name ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *GormStore) FindSimulationItem(ctx context.Context, tenantID, id string) (*models.SimulationItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	var item models.SimulationItem
	found, err := first(s.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		Where("tenant_id = ? AND id = ?", tenantID, id), &item)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

func (s *GormStore) FindSimulationByKey(ctx context.Context, tenantID, family, name string) (*models.SimulationItem, error) {
	var item models.SimulationItem
	found, err := first(s.db.WithContext(ctx).
		Preload("Lines", preloadLines).
		Where("tenant_id = ? AND family_key = ? AND name_key = ?", tenantID, models.NormalizeKey(family), models.NormalizeKey(name)), &item)
	if err != nil || !found {
		return nil, err
	}
	return &item, nil
}

// SaveSimulationItem сохраняет позицию и полностью заменяет ее строки спецификации
func (s *GormStore) SaveSimulationItem(ctx context.Context, item *models.SimulationItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Save(item).Error; err != nil {
			return err
		}
		lines, err := replaceLines(tx, item.ID, item.TableName(), item.Lines)
		if err != nil {
			return err
		}
		item.Lines = lines
		return nil
	})
}

func (s *GormStore) ListEmployees(ctx context.Context, tenantID string) ([]models.Employee, error) {
	var employees []models.Employee
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&employees).Error; err != nil {
		return nil, err
	}
	return employees, nil
}

// DeleteSimulationItem удаляет позицию вместе со спецификацией
func (s *GormStore) DeleteSimulationItem(ctx context.Context, tenantID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND owner_type = ?", id, models.SimulationItem{}.TableName()).
			Delete(&models.BOMLine{}).Error; err != nil {
			return err
		}
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).Delete(&models.SimulationItem{}).Error
	})
}
