package services

import (
	"context"
	"errors"
	"testing"

	"fabrica/server/internal/database"
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

type purchaseRecorder struct {
	lots []models.PurchaseLot
}

func (r *purchaseRecorder) PurchaseRecorded(ctx context.Context, material models.Material, lot models.PurchaseLot) {
	r.lots = append(r.lots, lot)
}

func TestRecordPurchaseCreatesMaterialAndLot(t *testing.T) {
	store := database.NewMemoryStore()
	rec := &purchaseRecorder{}
	svc := NewPurchaseService(store, store, NewCurrencyNormalizer(1000), rec)

	lot, err := svc.RecordPurchase(context.Background(), PurchaseReceipt{
		TenantID:     testTenant,
		MaterialName: "Cobre",
		Quantity:     dec("10"),
		UnitPrice:    dec("2"),
		Currency:     models.CurrencyUSD,
		PurchaseDate: day(2024, 4, 1),
	})
	if err != nil {
		t.Fatalf("RecordPurchase: %v", err)
	}
	assertDec(t, "lot ARS", lot.UnitPriceARS, "2000")
	assertDec(t, "lot rate", lot.FXRate, "1000")
	if lot.Source != "purchase" {
		t.Errorf("source = %q", lot.Source)
	}

	cobre, _ := store.FindMaterialByName(context.Background(), testTenant, "cobre")
	if cobre == nil {
		t.Fatal("material not created")
	}
	assertDec(t, "material ARS", cobre.UnitCostARS, "2000")
	assertDec(t, "on hand", cobre.OnHand, "10")
	if len(rec.lots) != 1 || rec.lots[0].ID != lot.ID {
		t.Errorf("observer got %+v", rec.lots)
	}
}

func TestRecordPurchaseBackdatedKeepsLatestPrice(t *testing.T) {
	store := database.NewMemoryStore()
	svc := NewPurchaseService(store, store, NewCurrencyNormalizer(1000))
	ctx := context.Background()

	receipt := PurchaseReceipt{TenantID: testTenant, MaterialName: "Acero", Quantity: dec("5"), UnitPrice: dec("300"), PurchaseDate: day(2024, 6, 1)}
	if _, err := svc.RecordPurchase(ctx, receipt); err != nil {
		t.Fatal(err)
	}
	receipt.UnitPrice = dec("100")
	receipt.PurchaseDate = day(2024, 1, 1)
	if _, err := svc.RecordPurchase(ctx, receipt); err != nil {
		t.Fatal(err)
	}

	acero, _ := store.FindMaterialByName(ctx, testTenant, "Acero")
	assertDec(t, "price stays at newest lot", acero.UnitCostARS, "300")
	assertDec(t, "on hand", acero.OnHand, "10")

	cost, err := NewFIFOCalculator(store, store, 1).CostOf(ctx, testTenant, "Acero", dec("5"))
	if err != nil {
		t.Fatal(err)
	}
	assertDec(t, "fifo consumes backdated lot first", cost.TotalCost, "500")
}

func TestRecordPurchaseByCode(t *testing.T) {
	store := database.NewMemoryStore()
	existing := mustSaveMaterial(t, store, models.Material{Name: "Chapa", Code: "CH-1"})
	svc := NewPurchaseService(store, store, NewCurrencyNormalizer(1000))

	lot, err := svc.RecordPurchase(context.Background(), PurchaseReceipt{
		TenantID: testTenant, MaterialCode: "ch-1", Quantity: dec("1"), UnitPrice: dec("50"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if lot.MaterialID != existing.ID {
		t.Errorf("lot material = %s, want %s", lot.MaterialID, existing.ID)
	}
	if lot.PurchaseDate.IsZero() {
		t.Error("purchase date must default to now")
	}
}

func TestPurchaseReceiptValidate(t *testing.T) {
	valid := PurchaseReceipt{TenantID: testTenant, MaterialName: "Acero", Quantity: dec("1"), UnitPrice: dec("1")}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid receipt: %v", err)
	}

	tests := map[string]func(r *PurchaseReceipt){
		"no tenant":     func(r *PurchaseReceipt) { r.TenantID = "" },
		"no material":   func(r *PurchaseReceipt) { r.MaterialName = "" },
		"zero quantity": func(r *PurchaseReceipt) { r.Quantity = decimal.Zero },
		"negative price": func(r *PurchaseReceipt) {
			r.UnitPrice = dec("-1")
		},
		"bad currency": func(r *PurchaseReceipt) { r.Currency = "EUR" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			if err := r.Validate(); !errors.Is(err, ErrInvalidPurchase) {
				t.Errorf("err = %v, want ErrInvalidPurchase", err)
			}
		})
	}
}
