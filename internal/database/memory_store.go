package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fabrica/server/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore хранилище в памяти: режим без PostgreSQL и подмена в тестах
type MemoryStore struct {
	mu          sync.RWMutex
	materials   map[string]*models.Material
	lots        []models.PurchaseLot
	products    map[string]*models.Product
	simulations map[string]*models.SimulationItem
	employees   []models.Employee
	seq         int64

	// FailOn позволяет тестам сымитировать ошибку записи: op - "material", "lot",
	// "product", "simulation"; name - имя сущности
	FailOn func(op, name string) error
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		materials:   make(map[string]*models.Material),
		products:    make(map[string]*models.Product),
		simulations: make(map[string]*models.SimulationItem),
	}
}

func (s *MemoryStore) fail(op, name string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op, name)
}

func (s *MemoryStore) ListMaterials(ctx context.Context, tenantID string) ([]models.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Material
	for _, m := range s.materials {
		if m.TenantID == tenantID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) FindMaterialByName(ctx context.Context, tenantID, name string) (*models.Material, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.materials {
		if m.TenantID == tenantID && models.NormalizeKey(m.Name) == key {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindMaterialByCode(ctx context.Context, tenantID, code string) (*models.Material, error) {
	key := strings.ToLower(strings.TrimSpace(code))
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.materials {
		if m.TenantID == tenantID && strings.ToLower(strings.TrimSpace(m.Code)) == key {
			c := *m
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveMaterial(ctx context.Context, material *models.Material) error {
	if err := s.fail("material", material.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if material.ID == "" {
		material.ID = uuid.New().String()
		material.CreatedAt = time.Now().UTC()
	}
	if material.Currency == "" {
		material.Currency = models.CurrencyARS
	}
	material.NameKey = models.NormalizeKey(material.Name)
	material.UpdatedAt = time.Now().UTC()
	c := *material
	s.materials[material.ID] = &c
	return nil
}

func (s *MemoryStore) ListLots(ctx context.Context, tenantID, materialID string) ([]models.PurchaseLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PurchaseLot
	for _, l := range s.lots {
		if l.TenantID == tenantID && l.MaterialID == materialID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.Before(out[j].PurchaseDate)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *MemoryStore) LatestLot(ctx context.Context, tenantID, materialID string) (*models.PurchaseLot, error) {
	lots, _ := s.ListLots(ctx, tenantID, materialID)
	if len(lots) == 0 {
		return nil, nil
	}
	last := lots[len(lots)-1]
	return &last, nil
}

func (s *MemoryStore) FindLot(ctx context.Context, tenantID, materialID string, purchaseDate time.Time, quantity, unitPriceARS decimal.Decimal) (*models.PurchaseLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.lots {
		if l.TenantID == tenantID && l.MaterialID == materialID && l.PurchaseDate.Equal(purchaseDate) &&
			l.Quantity.Equal(quantity) && l.UnitPriceARS.Equal(unitPriceARS) {
			c := l
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CreateLot(ctx context.Context, lot *models.PurchaseLot) error {
	if err := s.fail("lot", lot.MaterialID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	if lot.Currency == "" {
		lot.Currency = models.CurrencyARS
	}
	s.seq++
	lot.Seq = s.seq
	lot.CreatedAt = time.Now().UTC()
	s.lots = append(s.lots, *lot)
	return nil
}

func (s *MemoryStore) FindProductByName(ctx context.Context, tenantID string, kind models.ProductKind, name string) (*models.Product, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.TenantID == tenantID && p.Kind == kind && models.NormalizeKey(p.Name) == key {
			c := cloneProduct(p)
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveProduct(ctx context.Context, product *models.Product) error {
	if err := s.fail("product", product.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.ID == "" {
		product.ID = uuid.New().String()
		product.CreatedAt = time.Now().UTC()
	}
	product.NameKey = models.NormalizeKey(product.Name)
	product.UpdatedAt = time.Now().UTC()
	for i := range product.BOM {
		if product.BOM[i].ID == "" {
			product.BOM[i].ID = uuid.New().String()
		}
		product.BOM[i].OwnerID = product.ID
		product.BOM[i].OwnerType = product.TableName()
	}
	c := cloneProduct(product)
	s.products[product.ID] = &c
	return nil
}

func cloneProduct(p *models.Product) models.Product {
	c := *p
	c.BOM = append([]models.BOMLine(nil), p.BOM...)
	return c
}

func cloneItem(item *models.SimulationItem) models.SimulationItem {
	c := *item
	c.Lines = append([]models.BOMLine(nil), item.Lines...)
	return c
}

func (s *MemoryStore) ListSimulationItems(ctx context.Context, tenantID string) ([]models.SimulationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SimulationItem
	for _, item := range s.simulations {
		if item.TenantID == tenantID {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) FindSimulationItem(ctx context.Context, tenantID, id string) (*models.SimulationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.simulations[id]
	if !ok || item.TenantID != tenantID {
		return nil, nil
	}
	c := cloneItem(item)
	return &c, nil
}

func (s *MemoryStore) FindSimulationByKey(ctx context.Context, tenantID, family, name string) (*models.SimulationItem, error) {
	familyKey, nameKey := models.NormalizeKey(family), models.NormalizeKey(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.simulations {
		if item.TenantID == tenantID && item.FamilyKey == familyKey && item.NameKey == nameKey {
			c := cloneItem(item)
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveSimulationItem(ctx context.Context, item *models.SimulationItem) error {
	if err := s.fail("simulation", item.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.New().String()
		item.CreatedAt = time.Now().UTC()
	}
	item.FamilyKey = models.NormalizeKey(item.Family)
	item.NameKey = models.NormalizeKey(item.Name)
	item.UpdatedAt = time.Now().UTC()
	for i := range item.Lines {
		if item.Lines[i].ID == "" {
			item.Lines[i].ID = uuid.New().String()
		}
		item.Lines[i].OwnerID = item.ID
		item.Lines[i].OwnerType = item.TableName()
	}
	c := cloneItem(item)
	s.simulations[item.ID] = &c
	return nil
}

// DeleteSimulationItem удаляет позицию (только явным действием пользователя)
func (s *MemoryStore) DeleteSimulationItem(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.simulations[id]; ok && item.TenantID == tenantID {
		delete(s.simulations, id)
	}
	return nil
}

func (s *MemoryStore) ListEmployees(ctx context.Context, tenantID string) ([]models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Employee
	for _, e := range s.employees {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AddEmployee добавляет сотрудника (ставки труда задаются вне движка)
func (s *MemoryStore) AddEmployee(employee models.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if employee.ID == "" {
		employee.ID = uuid.New().String()
	}
	s.employees = append(s.employees, employee)
}
