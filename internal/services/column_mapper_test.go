package services

import (
	"errors"
	"strings"
	"testing"
)

func TestFoldText(t *testing.T) {
	tests := map[string]string{
		"  Láminas   de ACERO ": "laminas de acero",
		"Código":                "codigo",
		"PIÑÓN":                 "pinon",
		"":                      "",
	}
	for in, want := range tests {
		if got := FoldText(in); got != want {
			t.Errorf("FoldText(%q) = %q, want %q", in, got, want)
		}
	}
	for _, h := range []string{"Precio_Venta:", "precio-venta", "PRECIO - VENTA*"} {
		if got := FoldHeader(h); got != "precio venta" {
			t.Errorf("FoldHeader(%q) = %q", h, got)
		}
	}
}

func TestCollectMaterialGroupsHyphenated(t *testing.T) {
	groups := CollectMaterialGroups([]string{"Familia", "Material-1", "Material-1 Cantidad", "Material-1-Precio"})
	if len(groups) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	g := groups[0]
	if g.Index != 1 || g.Name != 1 || g.Quantity != 2 || g.Price != 3 {
		t.Errorf("group = %+v", g)
	}
}

func TestResolveColumnsAccentAndCaseInsensitive(t *testing.T) {
	header := []string{"FAMÍLIA ", "Nombre", "Precio de Venta", "Descuento %", "Ingresos Brutos"}

	res := ResolveTable(header, SimulationColumns)
	if err := res.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]int{FieldFamily: 0, FieldName: 1, FieldSalePrice: 2, FieldDiscount: 3, FieldTax: 4}
	for field, pos := range want {
		if got, ok := res.Found[field]; !ok || got != pos {
			t.Errorf("Found[%s] = %d (%v), want %d", field, got, ok, pos)
		}
	}
	if _, ok := res.Found[FieldUnitsPerHour]; ok {
		t.Error("optional column without header must stay unresolved")
	}
}

func TestResolveColumnsAggregatesMissing(t *testing.T) {
	required := map[string][]string{
		"familia": {"familia", "family"},
		"nombre":  {"nombre", "name"},
		"precio":  {"precio"},
	}
	res := ResolveColumns([]string{"Precio", "Otra"}, required)

	if len(res.Missing) != 2 || res.Missing[0] != "familia" || res.Missing[1] != "nombre" {
		t.Fatalf("Missing = %v, want [familia nombre]", res.Missing)
	}

	var structural *StructuralImportError
	if !errors.As(res.Err(), &structural) {
		t.Fatalf("Err() = %T, want *StructuralImportError", res.Err())
	}
	msg := structural.Error()
	if !strings.Contains(msg, "familia") || !strings.Contains(msg, "nombre") {
		t.Errorf("message %q must list every missing field", msg)
	}
}

func TestCollectMaterialGroups(t *testing.T) {
	header := []string{
		"Familia",
		"Material 2",
		"Material 2 Cantidad",
		"material 1",
		"Material 1 Cantidad",
		"Material 1 Precio",
		"Material 1 Moneda",
		"Material 3 Precio",
		"Material 10 Quantity",
		"Material 10 Name",
	}

	groups := CollectMaterialGroups(header)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3: %+v", len(groups), groups)
	}

	if groups[0].Index != 1 || groups[1].Index != 2 || groups[2].Index != 10 {
		t.Errorf("groups not sorted by index: %+v", groups)
	}
	g1 := groups[0]
	if g1.Name != 3 || g1.Quantity != 4 || g1.Price != 5 || g1.Currency != 6 {
		t.Errorf("group 1 = %+v", g1)
	}
	g2 := groups[1]
	if g2.Name != 1 || g2.Quantity != 2 || g2.Price != -1 || g2.Currency != -1 {
		t.Errorf("group 2 = %+v", g2)
	}
	if groups[2].Name != 9 || groups[2].Quantity != 8 {
		t.Errorf("english group = %+v", groups[2])
	}
}
