package services

import (
	"context"
	"testing"
	"time"

	"fabrica/server/internal/database"
	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

const testTenant = "tenant-1"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustSaveMaterial(t *testing.T, store *database.MemoryStore, m models.Material) models.Material {
	t.Helper()
	if m.TenantID == "" {
		m.TenantID = testTenant
	}
	if err := store.SaveMaterial(context.Background(), &m); err != nil {
		t.Fatalf("SaveMaterial: %v", err)
	}
	return m
}

func mustCreateLot(t *testing.T, store *database.MemoryStore, materialID string, qty, price string, date time.Time) models.PurchaseLot {
	t.Helper()
	lot := models.PurchaseLot{
		TenantID:     testTenant,
		MaterialID:   materialID,
		Quantity:     dec(qty),
		UnitPrice:    dec(price),
		UnitPriceARS: dec(price),
		Currency:     models.CurrencyARS,
		FXRate:       decimal.NewFromInt(1),
		PurchaseDate: date,
	}
	if err := store.CreateLot(context.Background(), &lot); err != nil {
		t.Fatalf("CreateLot: %v", err)
	}
	return lot
}

func assertDec(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}
