package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"fabrica/server/internal/database"
	"fabrica/server/internal/models"
)

type recordingObserver struct {
	mu     sync.Mutex
	states []models.ImportState
}

func (r *recordingObserver) ImportStateChanged(ctx context.Context, result models.ImportResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, result.State)
}

func newPipeline(store *database.MemoryStore, observers ...ImportObserver) *ImportPipeline {
	return NewImportPipeline(store, NewNumericParser(0), NewCurrencyNormalizer(1000), observers...)
}

func runImport(t *testing.T, p *ImportPipeline, kind models.ImportType, csv string) (*models.ImportResult, error) {
	t.Helper()
	return p.Run(context.Background(), ImportRequest{
		TenantID: testTenant,
		Type:     kind,
		FileName: "upload.csv",
		Body:     strings.NewReader(csv),
	})
}

const simulationCSV = `Familia;Nombre;Precio Venta;IIBB;Cantidad a fabricar;Material 1;Material 1 Cantidad;Material 1 Precio
Estructuras;Soporte;2000;3;10;Acero;2;500
;Sin familia;100;0;1;;;
Tornillos;Tornillo 8mm;150;3;5;Zinc;0,05;
`

func TestImportSimulationMissingFamilyColumn(t *testing.T) {
	store := database.NewMemoryStore()
	obs := &recordingObserver{}

	result, err := runImport(t, newPipeline(store, obs), models.ImportSimulation, "Nombre;Precio Venta\nSoporte;2000\n")

	var structural *StructuralImportError
	if !errors.As(err, &structural) {
		t.Fatalf("err = %v, want *StructuralImportError", err)
	}
	if len(structural.Missing) != 1 || structural.Missing[0] != FieldFamily {
		t.Errorf("missing = %v", structural.Missing)
	}
	if !strings.Contains(err.Error(), "familia") {
		t.Errorf("message %q does not name the column", err.Error())
	}
	if result.State != models.ImportFailed || result.ImportedCount != 0 {
		t.Errorf("result = %+v", result)
	}
	items, _ := store.ListSimulationItems(context.Background(), testTenant)
	if len(items) != 0 {
		t.Errorf("items persisted on structural failure: %d", len(items))
	}
	if len(obs.states) != 1 || obs.states[0] != models.ImportFailed {
		t.Errorf("observed states = %v", obs.states)
	}
}

func TestImportSimulationSkipsRowWithoutFamily(t *testing.T) {
	store := database.NewMemoryStore()
	obs := &recordingObserver{}

	result, err := runImport(t, newPipeline(store, obs), models.ImportSimulation, simulationCSV)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ImportedCount != 2 || result.ErrorCount != 1 || result.TotalRows != 3 {
		t.Fatalf("result = %+v", result)
	}
	if !strings.HasPrefix(result.ErrorDetails[0], "Строка 3") {
		t.Errorf("error detail = %q", result.ErrorDetails[0])
	}
	if result.State != models.ImportDone {
		t.Errorf("state = %s", result.State)
	}

	want := []models.ImportState{models.ImportValidated, models.ImportPersistedPartial, models.ImportDone}
	if len(obs.states) != len(want) {
		t.Fatalf("observed states = %v, want %v", obs.states, want)
	}
	for i := range want {
		if obs.states[i] != want[i] {
			t.Errorf("state[%d] = %s, want %s", i, obs.states[i], want[i])
		}
	}

	item, _ := store.FindSimulationByKey(context.Background(), testTenant, "estructuras", "SOPORTE")
	if item == nil {
		t.Fatal("Soporte not persisted")
	}
	if !item.IsManual || item.ProductID != nil {
		t.Errorf("item without catalog product must be manual: %+v", item)
	}
	if len(item.Lines) != 1 || item.Lines[0].MaterialName != "Acero" {
		t.Fatalf("lines = %+v", item.Lines)
	}
	assertDec(t, "hint", item.Lines[0].PriceHintARS, "500")

	acero, _ := store.FindMaterialByName(context.Background(), testTenant, "Acero")
	if acero == nil || !acero.IsDraft {
		t.Fatalf("draft material not created: %+v", acero)
	}
	assertDec(t, "draft price", acero.UnitCostARS, "500")
	if zinc, _ := store.FindMaterialByName(context.Background(), testTenant, "zinc"); zinc == nil {
		t.Error("unpriced draft material not created")
	}
}

func TestImportSimulationUpsertsByNaturalKey(t *testing.T) {
	store := database.NewMemoryStore()
	csv := "Familia;Nombre;Precio Venta\nEstructuras;Soporte;2000\n estructuras ; SOPORTE ;2500\n"

	result, err := runImport(t, newPipeline(store), models.ImportSimulation, csv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ImportedCount != 2 {
		t.Fatalf("result = %+v", result)
	}
	items, _ := store.ListSimulationItems(context.Background(), testTenant)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	assertDec(t, "sale price", items[0].SalePrice, "2500")
}

func TestImportSimulationLinksCatalogProduct(t *testing.T) {
	store := database.NewMemoryStore()
	product := models.Product{TenantID: testTenant, Kind: models.ProductManufactured, Name: "Soporte", UnitsPerHour: dec("12")}
	if err := store.SaveProduct(context.Background(), &product); err != nil {
		t.Fatal(err)
	}

	if _, err := runImport(t, newPipeline(store), models.ImportSimulation, "Familia;Nombre\nEstructuras;Soporte\n"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	item, _ := store.FindSimulationByKey(context.Background(), testTenant, "Estructuras", "Soporte")
	if item == nil || item.ProductID == nil || *item.ProductID != product.ID || item.IsManual {
		t.Fatalf("item not linked to product: %+v", item)
	}
	assertDec(t, "units per hour", item.UnitsPerHour, "12")
}

func TestImportSimulationTakesProductBOM(t *testing.T) {
	store := database.NewMemoryStore()
	product := models.Product{
		TenantID: testTenant,
		Kind:     models.ProductManufactured,
		Name:     "Soporte",
		BOM: []models.BOMLine{
			{Position: 1, MaterialName: "Acero", QuantityPerUnit: dec("2")},
			{Position: 2, MaterialName: "Pintura", QuantityPerUnit: dec("0.25")},
		},
	}
	if err := store.SaveProduct(context.Background(), &product); err != nil {
		t.Fatal(err)
	}

	csv := "Familia;Nombre;Material 1;Material 1 Cantidad\nEstructuras;Soporte;;\nEstructuras;Repisa;Zinc;3\n"
	if _, err := runImport(t, newPipeline(store), models.ImportSimulation, csv); err != nil {
		t.Fatalf("Run: %v", err)
	}

	item, _ := store.FindSimulationByKey(context.Background(), testTenant, "Estructuras", "Soporte")
	if item == nil || len(item.Lines) != 2 {
		t.Fatalf("item = %+v, want two lines from the product", item)
	}
	if item.Lines[0].MaterialName != "Acero" || item.Lines[1].Position != 2 {
		t.Errorf("lines = %+v", item.Lines)
	}
	assertDec(t, "pintura qty", item.Lines[1].QuantityPerUnit, "0.25")
	if item.Lines[0].ID == product.BOM[0].ID || item.Lines[0].OwnerID != item.ID {
		t.Errorf("line shares identity with the product BOM: %+v", item.Lines[0])
	}

	// Без товара в каталоге спецификация берется только из файла
	other, _ := store.FindSimulationByKey(context.Background(), testTenant, "Estructuras", "Repisa")
	if other == nil || len(other.Lines) != 1 || other.Lines[0].MaterialName != "Zinc" {
		t.Fatalf("repisa = %+v", other)
	}

	stored, _ := store.FindProductByName(context.Background(), testTenant, models.ProductManufactured, "soporte")
	if stored == nil || len(stored.BOM) != 2 || stored.BOM[0].OwnerID != product.ID {
		t.Errorf("product BOM changed: %+v", stored)
	}
}

func TestImportCountsPersistenceErrors(t *testing.T) {
	store := database.NewMemoryStore()
	store.FailOn = func(op, name string) error {
		if op == "simulation" && name == "Roto" {
			return errors.New("disk full")
		}
		return nil
	}

	result, err := runImport(t, newPipeline(store), models.ImportSimulation, "Familia;Nombre\nA;Roto\nA;Sano\n")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ImportedCount != 1 || result.ErrorCount != 1 {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.ErrorDetails[0], "ошибка сохранения") {
		t.Errorf("detail = %q", result.ErrorDetails[0])
	}
}

func TestImportRawMaterialIsIdempotent(t *testing.T) {
	store := database.NewMemoryStore()
	p := newPipeline(store)
	csv := "Material;Codigo;Costo;Moneda;Stock;Fecha\nAcero;AC-1;500;ARS;100;15/03/2024\n"

	for i := 0; i < 2; i++ {
		result, err := runImport(t, p, models.ImportRawMaterial, csv)
		if err != nil {
			t.Fatalf("Run #%d: %v", i, err)
		}
		if result.ImportedCount != 1 {
			t.Fatalf("Run #%d result = %+v", i, result)
		}
	}

	acero, _ := store.FindMaterialByCode(context.Background(), testTenant, "ac-1")
	if acero == nil {
		t.Fatal("material not persisted")
	}
	assertDec(t, "unit cost", acero.UnitCostARS, "500")
	assertDec(t, "on hand", acero.OnHand, "100")
	lots, _ := store.ListLots(context.Background(), testTenant, acero.ID)
	if len(lots) != 1 {
		t.Fatalf("lots = %d, want 1", len(lots))
	}
	if !lots[0].PurchaseDate.Equal(day(2024, 3, 15)) || lots[0].Source != "import" {
		t.Errorf("lot = %+v", lots[0])
	}
}

func TestImportResale(t *testing.T) {
	store := database.NewMemoryStore()
	csv := "Producto;Rubro;Costo;Precio Venta;Stock\nCasco;Seguridad;1.500;3.000,50;7\n;Seguridad;1;2;3\n"

	result, err := runImport(t, newPipeline(store), models.ImportResale, csv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ImportedCount != 1 || result.ErrorCount != 1 {
		t.Fatalf("result = %+v", result)
	}
	casco, _ := store.FindProductByName(context.Background(), testTenant, models.ProductResale, "casco")
	if casco == nil {
		t.Fatal("product not persisted")
	}
	assertDec(t, "cost", casco.UnitCost, "1500")
	assertDec(t, "sale", casco.SalePrice, "3000.5")
	assertDec(t, "stock", casco.Stock, "7")
	if casco.Family != "Seguridad" {
		t.Errorf("family = %q", casco.Family)
	}
}

func TestImportUnsupportedType(t *testing.T) {
	_, err := runImport(t, newPipeline(database.NewMemoryStore()), models.ImportType("pdf"), "a;b\n1;2\n")
	if !errors.Is(err, ErrUnsupportedImportType) {
		t.Fatalf("err = %v", err)
	}
}

func TestImportFindsHeaderBelowTitleRow(t *testing.T) {
	store := database.NewMemoryStore()
	csv := "Lista de precios marzo;;;\nFamilia;Nombre;Precio Venta;IIBB\nEstructuras;Soporte;2000;3\n"

	result, err := runImport(t, newPipeline(store), models.ImportSimulation, csv)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ImportedCount != 1 || result.ErrorCount != 0 {
		t.Fatalf("result = %+v", result)
	}
}
