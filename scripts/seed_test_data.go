package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fabrica/server/internal/config"
	"fabrica/server/internal/database"
	"fabrica/server/internal/logger"
	"fabrica/server/internal/models"
	"fabrica/server/internal/services"
)

// Демо-данные тенанта: сотрудники, сырье с историей закупок, одна позиция симуляции
func main() {
	tenantID := flag.String("tenant", "demo", "tenant_id для тестовых данных")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if err := logger.InitLogger(&logger.LogConfig{Level: "info", Environment: "development", ServiceName: "seed"}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()

	db, err := database.ConnectPostgres(database.PostgresOptionsFromConfig(cfg))
	if err != nil {
		log.Fatal("❌ PostgreSQL недоступен", zap.Error(err))
	}
	defer database.ClosePostgres(db)
	if err := database.Migrate(db); err != nil {
		log.Fatal("❌ Migration failed", zap.Error(err))
	}

	ctx := logger.WithContext(context.Background(), log)
	store := database.NewGormStore(db)

	if err := seedEmployees(db, *tenantID); err != nil {
		log.Fatal("❌ Ошибка создания сотрудников", zap.Error(err))
	}

	purchases := services.NewPurchaseService(store, store, services.NewCurrencyNormalizer(cfg.DefaultUSDARSRate))
	base := time.Now().UTC().AddDate(0, -3, 0).Truncate(24 * time.Hour)
	receipts := []services.PurchaseReceipt{
		{MaterialName: "Acero SAE 1010", MaterialCode: "AC-1010", Quantity: decimal.NewFromInt(100), UnitPrice: decimal.NewFromInt(1200), Currency: models.CurrencyARS, PurchaseDate: base},
		{MaterialName: "Acero SAE 1010", MaterialCode: "AC-1010", Quantity: decimal.NewFromInt(50), UnitPrice: decimal.NewFromInt(1450), Currency: models.CurrencyARS, PurchaseDate: base.AddDate(0, 1, 0)},
		{MaterialName: "Pintura epoxi", Quantity: decimal.NewFromInt(20), UnitPrice: decimal.RequireFromString("8.5"), Currency: models.CurrencyUSD, FXRate: decimal.NewFromInt(1050), PurchaseDate: base},
		{MaterialName: "Tornillos 1/4", Quantity: decimal.NewFromInt(1000), UnitPrice: decimal.RequireFromString("35.5"), Currency: models.CurrencyARS, PurchaseDate: base.AddDate(0, 2, 0)},
	}
	for _, r := range receipts {
		r.TenantID = *tenantID
		r.Source = "seed"
		if _, err := purchases.RecordPurchase(ctx, r); err != nil {
			log.Fatal("❌ Ошибка записи поступления", zap.String("material", r.MaterialName), zap.Error(err))
		}
	}

	// Товар каталога: позиции без групп материалов получают его спецификацию при импорте
	bench, err := store.FindProductByName(ctx, *tenantID, models.ProductManufactured, "Banco de taller")
	if err != nil {
		log.Fatal("❌ Ошибка поиска товара", zap.Error(err))
	}
	if bench == nil {
		bench = &models.Product{TenantID: *tenantID, Kind: models.ProductManufactured, Name: "Banco de taller", Family: "Estructuras"}
	}
	bench.UnitsPerHour = decimal.RequireFromString("0.25")
	bench.BOM = []models.BOMLine{
		{Position: 0, MaterialName: "Acero SAE 1010", QuantityPerUnit: decimal.NewFromInt(18)},
		{Position: 1, MaterialName: "Pintura epoxi", QuantityPerUnit: decimal.RequireFromString("1.2")},
	}
	if err := store.SaveProduct(ctx, bench); err != nil {
		log.Fatal("❌ Ошибка сохранения товара", zap.Error(err))
	}

	item := models.SimulationItem{
		TenantID:              *tenantID,
		Family:                "Estructuras",
		Name:                  "Mesa de trabajo",
		SalePrice:             decimal.NewFromInt(185000),
		SaleCurrency:          models.CurrencyARS,
		TaxPct:                decimal.RequireFromString("3.5"),
		QuantityToManufacture: decimal.NewFromInt(10),
		UnitsPerHour:          decimal.RequireFromString("0.5"),
		IsManual:              true,
		Lines: []models.BOMLine{
			{Position: 0, MaterialName: "Acero SAE 1010", QuantityPerUnit: decimal.NewFromInt(12)},
			{Position: 1, MaterialName: "Pintura epoxi", QuantityPerUnit: decimal.RequireFromString("0.8")},
			{Position: 2, MaterialName: "Tornillos 1/4", QuantityPerUnit: decimal.NewFromInt(16)},
		},
	}
	existing, err := store.FindSimulationByKey(ctx, item.TenantID, item.Family, item.Name)
	if err != nil {
		log.Fatal("❌ Ошибка поиска позиции", zap.Error(err))
	}
	if existing != nil {
		item.ID = existing.ID
	}
	if err := store.SaveSimulationItem(ctx, &item); err != nil {
		log.Fatal("❌ Ошибка сохранения позиции", zap.Error(err))
	}

	log.Info("✅ Тестовые данные созданы", zap.String("tenant_id", *tenantID), zap.Int("purchases", len(receipts)))
}

func seedEmployees(db *gorm.DB, tenantID string) error {
	employees := []models.Employee{
		{Name: "Juan Pérez", RoleName: "soldador", HourlyRate: decimal.NewFromInt(4200)},
		{Name: "María Gómez", RoleName: "pintora", MonthlySalary: decimal.NewFromInt(720000), MonthlyHours: decimal.NewFromInt(176)},
		{Name: "Carlos Ruiz", RoleName: "operario", Status: models.EmployeeReserve, HourlyRate: decimal.NewFromInt(3500)},
	}
	for _, e := range employees {
		var count int64
		if err := db.Model(&models.Employee{}).Where("tenant_id = ? AND name = ?", tenantID, e.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		e.ID = uuid.New().String()
		e.TenantID = tenantID
		if e.Status == "" {
			e.Status = models.EmployeeActive
		}
		if err := db.Create(&e).Error; err != nil {
			return err
		}
	}
	return nil
}
