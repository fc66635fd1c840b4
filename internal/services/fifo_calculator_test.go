package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fabrica/server/internal/database"
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

func fifoFixture(t *testing.T) (*FIFOCalculator, *database.MemoryStore, models.Material) {
	t.Helper()
	store := database.NewMemoryStore()
	acero := mustSaveMaterial(t, store, models.Material{Name: "Acero", Code: "AC-1"})
	// Вставка не по порядку дат: порядок задает дата закупки
	mustCreateLot(t, store, acero.ID, "10", "200", day(2024, 2, 1))
	mustCreateLot(t, store, acero.ID, "10", "100", day(2024, 1, 1))
	return NewFIFOCalculator(store, store, 4), store, acero
}

func TestCostOfConsumesOldestFirst(t *testing.T) {
	calc, _, _ := fifoFixture(t)

	cost, err := calc.CostOf(context.Background(), testTenant, "acero", dec("15"))
	if err != nil {
		t.Fatalf("CostOf: %v", err)
	}
	assertDec(t, "total", cost.TotalCost, "2000")
	assertDec(t, "unit", cost.UnitCost.Round(2), "133.33")
	if len(cost.LotsConsumed) != 2 {
		t.Fatalf("lots consumed = %+v", cost.LotsConsumed)
	}
	if !cost.LotsConsumed[0].PurchaseDate.Equal(day(2024, 1, 1)) {
		t.Errorf("first consumed lot dated %v, want the oldest", cost.LotsConsumed[0].PurchaseDate)
	}
	assertDec(t, "oldest lot qty", cost.LotsConsumed[0].Quantity, "10")
	assertDec(t, "newer lot qty", cost.LotsConsumed[1].Quantity, "5")
}

func TestCostOfZeroQuantity(t *testing.T) {
	calc, _, _ := fifoFixture(t)
	for _, q := range []string{"0", "-3"} {
		cost, err := calc.CostOf(context.Background(), testTenant, "Acero", dec(q))
		if err != nil {
			t.Fatalf("CostOf(%s): %v", q, err)
		}
		if !cost.TotalCost.IsZero() || !cost.UnitCost.IsZero() || len(cost.LotsConsumed) != 0 {
			t.Errorf("CostOf(%s) = %+v, want zero", q, cost)
		}
	}
}

func TestCostOfShortfallUsesLatestLotPrice(t *testing.T) {
	calc, _, _ := fifoFixture(t)

	cost, err := calc.CostOf(context.Background(), testTenant, "AC-1", dec("25"))
	if err != nil {
		t.Fatalf("CostOf: %v", err)
	}
	// 10×100 + 10×200 + 5×200
	assertDec(t, "total", cost.TotalCost, "4000")
	assertDec(t, "unit", cost.UnitCost, "160")
	last := cost.LotsConsumed[len(cost.LotsConsumed)-1]
	if !last.Extrapolated {
		t.Error("shortfall must be marked as extrapolated")
	}
	assertDec(t, "shortfall qty", last.Quantity, "5")
	assertDec(t, "shortfall price", last.UnitPriceARS, "200")
}

func TestCostOfWithoutLots(t *testing.T) {
	calc, store, _ := fifoFixture(t)
	mustSaveMaterial(t, store, models.Material{Name: "Zinc"})

	for _, name := range []string{"Zinc", "Desconocido"} {
		cost, err := calc.CostOf(context.Background(), testTenant, name, dec("5"))
		if err != nil {
			t.Fatalf("CostOf(%s): %v", name, err)
		}
		if !cost.TotalCost.IsZero() || !cost.UnitCost.IsZero() {
			t.Errorf("CostOf(%s) = %+v, want zero", name, cost)
		}
	}
}

func TestCostOfLotsNeverSkipsOlderLot(t *testing.T) {
	lots := []models.PurchaseLot{
		{ID: "a", Quantity: dec("3"), UnitPriceARS: dec("10"), PurchaseDate: day(2024, 1, 1)},
		{ID: "b", Quantity: dec("0"), UnitPriceARS: dec("999"), PurchaseDate: day(2024, 1, 2)},
		{ID: "c", Quantity: dec("4"), UnitPriceARS: dec("20"), PurchaseDate: day(2024, 1, 3)},
		{ID: "d", Quantity: dec("2"), UnitPriceARS: dec("30"), PurchaseDate: day(2024, 1, 4)},
	}
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.Quantity)
	}

	for q := int64(1); q <= total.IntPart(); q++ {
		cost := CostOfLots(lots, decimal.NewFromInt(q))
		consumed := map[string]decimal.Decimal{}
		for _, c := range cost.LotsConsumed {
			if c.Extrapolated {
				t.Fatalf("q=%d: unexpected extrapolation within available stock", q)
			}
			consumed[c.LotID] = c.Quantity
		}
		for i := 1; i < len(lots); i++ {
			if _, touched := consumed[lots[i].ID]; !touched {
				continue
			}
			for j := 0; j < i; j++ {
				if lots[j].Quantity.IsPositive() && !consumed[lots[j].ID].Equal(lots[j].Quantity) {
					t.Errorf("q=%d: lot %s touched while older lot %s not exhausted", q, lots[i].ID, lots[j].ID)
				}
			}
		}
	}
}

func TestCostOfTiesKeepInsertionOrder(t *testing.T) {
	store := database.NewMemoryStore()
	m := mustSaveMaterial(t, store, models.Material{Name: "Cobre"})
	same := day(2024, 5, 5)
	mustCreateLot(t, store, m.ID, "5", "10", same)
	mustCreateLot(t, store, m.ID, "5", "20", same)

	cost, err := NewFIFOCalculator(store, store, 1).CostOf(context.Background(), testTenant, "Cobre", dec("5"))
	if err != nil {
		t.Fatalf("CostOf: %v", err)
	}
	assertDec(t, "total", cost.TotalCost, "50")
}

func TestLatestUnitPrice(t *testing.T) {
	calc, _, _ := fifoFixture(t)

	q, ok, err := calc.LatestUnitPrice(context.Background(), testTenant, "Acero")
	if err != nil || !ok {
		t.Fatalf("LatestUnitPrice: ok=%v err=%v", ok, err)
	}
	assertDec(t, "latest", q.UnitPriceARS, "200")
	if q.Source != PriceSourceFIFO {
		t.Errorf("source = %s", q.Source)
	}

	if _, ok, err := calc.LatestUnitPrice(context.Background(), testTenant, "Nada"); ok || err != nil {
		t.Errorf("unknown material: ok=%v err=%v", ok, err)
	}
}

func TestLoadPriceCache(t *testing.T) {
	calc, store, _ := fifoFixture(t)
	zinc := mustSaveMaterial(t, store, models.Material{Name: "Zinc"})
	cobre := mustSaveMaterial(t, store, models.Material{Name: "Cobre", Code: "CU"})
	mustCreateLot(t, store, cobre.ID, "1", "900", day(2024, 3, 1))

	materials, _ := store.ListMaterials(context.Background(), testTenant)
	cache, err := calc.LoadPriceCache(context.Background(), testTenant, materials)
	if err != nil {
		t.Fatalf("LoadPriceCache: %v", err)
	}

	for key, want := range map[string]string{"acero": "200", "AC-1": "200", "cobre": "900", "cu": "900"} {
		q, ok := cache.Lookup(key)
		if !ok {
			t.Errorf("cache miss for %q", key)
			continue
		}
		assertDec(t, key, q.UnitPriceARS, want)
	}
	if _, ok := cache.Lookup(zinc.Name); ok {
		t.Error("material without lots must not be cached")
	}
}

type failingLots struct {
	*database.MemoryStore
	failFor string
}

func (f failingLots) LatestLot(ctx context.Context, tenantID, materialID string) (*models.PurchaseLot, error) {
	if materialID == f.failFor {
		return nil, errors.New("timeout")
	}
	return f.MemoryStore.LatestLot(ctx, tenantID, materialID)
}

func TestLoadPriceCacheSkipsFailedMaterial(t *testing.T) {
	store := database.NewMemoryStore()
	acero := mustSaveMaterial(t, store, models.Material{Name: "Acero"})
	zinc := mustSaveMaterial(t, store, models.Material{Name: "Zinc"})
	mustCreateLot(t, store, acero.ID, "1", "100", time.Now())
	mustCreateLot(t, store, zinc.ID, "1", "50", time.Now())

	calc := NewFIFOCalculator(store, failingLots{MemoryStore: store, failFor: zinc.ID}, 2)
	materials, _ := store.ListMaterials(context.Background(), testTenant)
	cache, err := calc.LoadPriceCache(context.Background(), testTenant, materials)
	if err != nil {
		t.Fatalf("LoadPriceCache: %v", err)
	}
	if _, ok := cache.Lookup("acero"); !ok {
		t.Error("healthy material must be cached")
	}
	if _, ok := cache.Lookup("zinc"); ok {
		t.Error("failed material must be skipped")
	}
}
