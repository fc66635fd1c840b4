package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"fabrica/server/internal/database"
	"fabrica/server/internal/models"
	"fabrica/server/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const tenant = "tenant-1"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubJobs struct {
	results map[string]models.ImportResult
}

func (s stubJobs) Get(ctx context.Context, jobID string) (*models.ImportResult, error) {
	r, ok := s.results[jobID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &r, nil
}

type testEnv struct {
	store  *database.MemoryStore
	router *gin.Engine
	sims   *services.SimulationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := database.NewMemoryStore()
	normalizer := services.NewCurrencyNormalizer(1000)
	fifo := services.NewFIFOCalculator(store, store, 2)
	sims := services.NewSimulationService(store, fifo, services.NewCostBreakdownCalculator(normalizer))
	pipeline := services.NewImportPipeline(store, services.NewNumericParser(0), normalizer)
	jobs := stubJobs{results: map[string]models.ImportResult{
		"job-1": {JobID: "job-1", TenantID: tenant, State: models.ImportDone, ImportedCount: 3},
	}}

	router := SetupRouter(Controllers{
		Imports:     NewImportController(pipeline, jobs),
		Simulations: NewSimulationController(sims, normalizer),
		Materials:   NewMaterialController(sims, fifo),
		Purchases:   NewPurchaseController(services.NewPurchaseService(store, store, normalizer)),
	})
	return &testEnv{store: store, router: router, sims: sims}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) saveMaterial(t *testing.T, m models.Material) models.Material {
	t.Helper()
	m.TenantID = tenant
	if err := e.store.SaveMaterial(context.Background(), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func uploadRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if err := mw.WriteField("tenant_id", tenant); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, v interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestImportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	csv := "Familia;Nombre;Precio Venta\nEstructuras;Soporte;2000\n;Sin familia;10\n"

	w := env.do(uploadRequest(t, "/api/v1/imports/simulation", "costos.csv", csv))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var result models.ImportResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.ImportedCount != 1 || result.ErrorCount != 1 || result.State != models.ImportDone {
		t.Errorf("result = %+v", result)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestImportEndpointStructuralFailure(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(uploadRequest(t, "/api/v1/imports/simulation", "costos.csv", "Nombre;Precio\nSoporte;1\n"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "familia") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestImportEndpointRejectsUnknownTypeAndMissingFile(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(uploadRequest(t, "/api/v1/imports/pdf", "a.csv", "x")); w.Code != http.StatusBadRequest {
		t.Errorf("unknown type status = %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/raw-material?tenant_id="+tenant, nil)
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("missing file status = %d", w.Code)
	}
}

func TestGetImportJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/imports/jobs/job-1", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"imported_count":3`) {
		t.Errorf("found job = %d %s", w.Code, w.Body.String())
	}
	if w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/imports/jobs/missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d", w.Code)
	}
}

func TestAdHocBreakdown(t *testing.T) {
	env := newTestEnv(t)
	env.saveMaterial(t, models.Material{Name: "Acero", UnitCostARS: decimal.NewFromInt(500)})

	req := jsonRequest(t, http.MethodPost, "/api/v1/simulations/breakdown", map[string]interface{}{
		"tenant_id": tenant,
		"item": map[string]interface{}{
			"family":                  "Estructuras",
			"name":                    "Soporte",
			"sale_price":              2000,
			"tax_pct":                 3,
			"quantity_to_manufacture": 10,
			"lines": []map[string]interface{}{
				{"material_name": "Acero", "quantity_per_unit": 2},
			},
		},
	})
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var b models.CostBreakdown
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if !b.NetProfitUnit.Equal(decimal.NewFromInt(880)) || !b.BatchNetProfit.Equal(decimal.NewFromInt(8800)) {
		t.Errorf("profit = %s batch = %s", b.NetProfitUnit, b.BatchNetProfit)
	}
}

func TestAdHocBreakdownValidation(t *testing.T) {
	env := newTestEnv(t)

	for name, body := range map[string]map[string]interface{}{
		"no tenant":    {"item": map[string]interface{}{"family": "A"}},
		"no family":    {"tenant_id": tenant, "item": map[string]interface{}{"name": "A"}},
		"bad discount": {"tenant_id": tenant, "item": map[string]interface{}{"family": "A", "discount_pct": 150}},
	} {
		if w := env.do(jsonRequest(t, http.MethodPost, "/api/v1/simulations/breakdown", body)); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", name, w.Code)
		}
	}
}

func TestStoredItemBreakdownListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	item := models.SimulationItem{TenantID: tenant, Family: "A", Name: "Uno", SalePrice: decimal.NewFromInt(100)}
	if err := env.store.SaveSimulationItem(context.Background(), &item); err != nil {
		t.Fatal(err)
	}

	if w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/simulations/"+item.ID+"/breakdown?tenant_id="+tenant, nil)); w.Code != http.StatusOK {
		t.Errorf("breakdown status = %d", w.Code)
	}
	if w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/simulations/nope/breakdown?tenant_id="+tenant, nil)); w.Code != http.StatusNotFound {
		t.Errorf("unknown item status = %d", w.Code)
	}
	if w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/simulations?tenant_id="+tenant, nil)); !strings.Contains(w.Body.String(), `"count":1`) {
		t.Errorf("list = %s", w.Body.String())
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/simulations/"+item.ID, nil)
	del.Header.Set("X-Tenant-ID", tenant)
	if w := env.do(del); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	del = httptest.NewRequest(http.MethodDelete, "/api/v1/simulations/"+item.ID, nil)
	del.Header.Set("X-Tenant-ID", tenant)
	if w := env.do(del); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
}

func TestMaterialQuoteAndFIFOCost(t *testing.T) {
	env := newTestEnv(t)
	env.saveMaterial(t, models.Material{Name: "Acero SAE 1010", UnitCostARS: decimal.NewFromInt(700)})

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/materials/quote?tenant_id="+tenant+"&name=acero", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"source":"stock"`) {
		t.Errorf("quote = %d %s", w.Code, w.Body.String())
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/materials/quote?tenant_id="+tenant+"&name=titanio", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("gap status = %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/materials/fifo-cost?tenant_id="+tenant+"&name=acero&quantity=abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad quantity status = %d", w.Code)
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/materials/fifo-cost?tenant_id="+tenant+"&name=Acero%20SAE%201010&quantity=2,5", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"total_cost":"0"`) {
		t.Errorf("fifo without lots = %d %s", w.Code, w.Body.String())
	}
}

func TestRecordPurchaseEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := jsonRequest(t, http.MethodPost, "/api/v1/purchases", map[string]interface{}{
		"tenant_id":     tenant,
		"material_name": "Cobre",
		"quantity":      "10",
		"unit_price":    "2",
		"currency":      "USD",
	})
	w := env.do(req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var lot models.PurchaseLot
	if err := json.Unmarshal(w.Body.Bytes(), &lot); err != nil {
		t.Fatal(err)
	}
	if !lot.UnitPriceARS.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("lot ARS = %s", lot.UnitPriceARS)
	}

	bad := jsonRequest(t, http.MethodPost, "/api/v1/purchases", map[string]interface{}{
		"tenant_id": tenant, "material_name": "Cobre", "quantity": "0", "unit_price": "2",
	})
	if w := env.do(bad); w.Code != http.StatusBadRequest {
		t.Errorf("invalid purchase status = %d", w.Code)
	}
}
