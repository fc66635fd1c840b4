package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fabrica/server/internal/logger"
	"fabrica/server/internal/metrics"
	"fabrica/server/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ImportObserver получает снимок итогов при каждой смене состояния импорта
type ImportObserver interface {
	ImportStateChanged(ctx context.Context, result models.ImportResult)
}

// ImportRequest загруженный файл
type ImportRequest struct {
	TenantID string
	Type     models.ImportType
	FileName string
	Body     io.Reader
}

// ImportStore часть хранилища, нужная импорту
type ImportStore interface {
	MaterialStore
	LotStore
	ProductStore
	SimulationStore
}

// ImportPipeline разбор файла и upsert строк по естественному ключу.
// Строки обрабатываются строго последовательно: следующая строка видит результат предыдущей
type ImportPipeline struct {
	store      ImportStore
	parser     *NumericParser
	normalizer *CurrencyNormalizer
	observers  []ImportObserver
}

// NewImportPipeline создает конвейер импорта
func NewImportPipeline(store ImportStore, parser *NumericParser, normalizer *CurrencyNormalizer, observers ...ImportObserver) *ImportPipeline {
	return &ImportPipeline{store: store, parser: parser, normalizer: normalizer, observers: observers}
}

// AddObserver подписывает наблюдателя на смену состояний
func (p *ImportPipeline) AddObserver(o ImportObserver) {
	if o != nil {
		p.observers = append(p.observers, o)
	}
}

// TableFor таблица колонок для типа импорта
func TableFor(t models.ImportType) (ColumnTable, error) {
	switch t {
	case models.ImportSimulation:
		return SimulationColumns, nil
	case models.ImportRawMaterial:
		return RawMaterialColumns, nil
	case models.ImportResale:
		return ResaleColumns, nil
	}
	return ColumnTable{}, fmt.Errorf("%w: %s", ErrUnsupportedImportType, t)
}

// Run импортирует файл. Структурная ошибка возвращается вместе с итогом в состоянии Failed;
// ошибки строк только попадают в итог
func (p *ImportPipeline) Run(ctx context.Context, req ImportRequest) (*models.ImportResult, error) {
	table, err := TableFor(req.Type)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(
		zap.String("tenant_id", req.TenantID),
		zap.String("import_type", string(req.Type)),
		zap.String("file", req.FileName),
	)

	result := &models.ImportResult{
		JobID:        uuid.New().String(),
		TenantID:     req.TenantID,
		Type:         req.Type,
		FileName:     req.FileName,
		ErrorDetails: []string{},
		StartedAt:    time.Now().UTC(),
	}

	sheet, err := ReadSpreadsheet(req.Body, req.FileName, table)
	result.State = models.ImportParsed
	if err != nil {
		return p.fail(ctx, log, result, err)
	}
	result.TotalRows = len(sheet.Rows)

	columns := ResolveTable(sheet.Header, table)
	if err := columns.Err(); err != nil {
		return p.fail(ctx, log, result, err)
	}

	result.State = models.ImportValidated
	p.notify(ctx, result)

	var groups []MaterialGroupColumns
	if req.Type == models.ImportSimulation {
		groups = CollectMaterialGroups(sheet.Header)
	}
	mapper := NewRowMapper(p.parser, p.normalizer, columns, groups)

	result.State = models.ImportPersistedPartial
	p.notify(ctx, result)

	for _, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := p.importRow(ctx, req, mapper, row)
		metrics.ObserveImportRow(string(req.Type), outcome.Outcome())
		if outcome.OK() {
			result.ImportedCount++
			continue
		}
		result.ErrorCount++
		result.ErrorDetails = append(result.ErrorDetails, outcome.Err.Error())
		log.Warn("⚠️ Строка импорта пропущена", zap.Int("row", outcome.Row), zap.Error(outcome.Err))
	}

	result.State = models.ImportDone
	result.FinishedAt = time.Now().UTC()
	metrics.ObserveImportFile(string(req.Type), string(result.State))
	p.notify(ctx, result)

	log.Info("✅ Импорт завершен",
		zap.String("job_id", result.JobID),
		zap.Int("imported", result.ImportedCount),
		zap.Int("errors", result.ErrorCount))
	return result, nil
}

func (p *ImportPipeline) fail(ctx context.Context, log *zap.Logger, result *models.ImportResult, err error) (*models.ImportResult, error) {
	result.State = models.ImportFailed
	result.FailureReason = err.Error()
	result.FinishedAt = time.Now().UTC()
	metrics.ObserveImportFile(string(result.Type), string(result.State))
	p.notify(ctx, result)
	log.Error("❌ Импорт отклонен", zap.String("job_id", result.JobID), zap.Error(err))
	return result, err
}

func (p *ImportPipeline) notify(ctx context.Context, result *models.ImportResult) {
	snapshot := *result
	snapshot.ErrorDetails = append([]string(nil), result.ErrorDetails...)
	for _, o := range p.observers {
		o.ImportStateChanged(ctx, snapshot)
	}
}

func (p *ImportPipeline) importRow(ctx context.Context, req ImportRequest, mapper *RowMapper, row SheetRow) RowOutcome {
	switch req.Type {
	case models.ImportSimulation:
		rec, err := mapper.MapSimulationRow(row.Number, row.Cells)
		if err != nil {
			return RowOutcome{Row: row.Number, Key: rec.Key(), Err: err}
		}
		created, err := p.upsertSimulation(ctx, req.TenantID, rec)
		return persistOutcome(row.Number, rec.Key(), created, err)
	case models.ImportRawMaterial:
		rec, err := mapper.MapRawMaterialRow(row.Number, row.Cells)
		if err != nil {
			return RowOutcome{Row: row.Number, Key: rec.Key(), Err: err}
		}
		created, err := p.upsertRawMaterial(ctx, req.TenantID, rec)
		return persistOutcome(row.Number, rec.Key(), created, err)
	default:
		rec, err := mapper.MapResaleRow(row.Number, row.Cells)
		if err != nil {
			return RowOutcome{Row: row.Number, Key: rec.Key(), Err: err}
		}
		created, err := p.upsertResale(ctx, req.TenantID, rec)
		return persistOutcome(row.Number, rec.Key(), created, err)
	}
}

func persistOutcome(row int, key string, created bool, err error) RowOutcome {
	if err != nil {
		var rowErr *RowValidationError
		if !errors.As(err, &rowErr) {
			err = &PersistenceError{Row: row, Key: key, Err: err}
		}
		return RowOutcome{Row: row, Key: key, Err: err}
	}
	return RowOutcome{Row: row, Key: key, Created: created}
}

// upsertSimulation находит позицию по (семейство, имя) или создает новую, заменяя спецификацию.
// Неизвестные материалы из групп создаются черновиками с ценой из файла.
// Строка без групп материалов берет спецификацию связанного товара каталога
func (p *ImportPipeline) upsertSimulation(ctx context.Context, tenantID string, rec SimulationRecord) (bool, error) {
	lines := make([]models.BOMLine, 0, len(rec.Materials))
	for _, mg := range rec.Materials {
		if err := p.ensureDraftMaterial(ctx, tenantID, mg); err != nil {
			return false, err
		}
		line := models.BOMLine{
			Position:        mg.Index,
			MaterialName:    mg.Name,
			QuantityPerUnit: mg.QuantityPerUnit,
			PriceHintARS:    decimal.Zero,
			Currency:        models.CurrencyARS,
		}
		if mg.HasPrice {
			line.PriceHintARS = mg.Price.ValueARS
			line.Currency = currencyOf(mg.Price)
		}
		lines = append(lines, line)
	}

	item, err := p.store.FindSimulationByKey(ctx, tenantID, rec.Family, rec.Name)
	if err != nil {
		return false, err
	}
	created := item == nil
	if created {
		item = &models.SimulationItem{TenantID: tenantID}
	}

	item.Family = rec.Family
	item.Name = rec.Name
	item.SalePrice = rec.SalePrice.Original
	item.SaleCurrency = currencyOf(rec.SalePrice)
	item.FXRate = rec.SalePrice.FXRate
	item.DiscountPct = rec.DiscountPct
	item.TaxPct = rec.TaxPct
	item.QuantityToManufacture = rec.Quantity
	item.OtherCostsPerUnit = rec.OtherCosts.ValueARS
	item.UnitsPerHour = rec.UnitsPerHour
	item.Lines = lines

	product, err := p.store.FindProductByName(ctx, tenantID, models.ProductManufactured, rec.Name)
	if err != nil {
		return false, err
	}
	if product != nil {
		item.ProductID = &product.ID
		item.IsManual = false
		if !item.UnitsPerHour.IsPositive() {
			item.UnitsPerHour = product.UnitsPerHour
		}
		if len(lines) == 0 {
			item.Lines = productLines(product.BOM)
		}
	} else {
		item.ProductID = nil
		item.IsManual = true
	}

	if err := p.store.SaveSimulationItem(ctx, item); err != nil {
		return false, err
	}
	return created, nil
}

// productLines копирует спецификацию каталога для позиции без групп материалов
func productLines(bom []models.BOMLine) []models.BOMLine {
	lines := make([]models.BOMLine, 0, len(bom))
	for _, l := range bom {
		lines = append(lines, models.BOMLine{
			Position:        l.Position,
			MaterialName:    l.MaterialName,
			QuantityPerUnit: l.QuantityPerUnit,
			PriceHintARS:    l.PriceHintARS,
			Currency:        l.Currency,
		})
	}
	return lines
}

func (p *ImportPipeline) ensureDraftMaterial(ctx context.Context, tenantID string, mg MaterialGroup) error {
	material, err := findMaterial(ctx, p.store, tenantID, mg.Name)
	if err != nil {
		return err
	}
	if material != nil {
		if !mg.HasPrice || MaterialUnitCostARS(*material).IsPositive() {
			return nil
		}
	} else {
		material = &models.Material{TenantID: tenantID, Name: mg.Name, IsDraft: true, Unit: "kg"}
	}
	if mg.HasPrice {
		applyMaterialPrice(material, mg.Price)
	}
	return p.store.SaveMaterial(ctx, material)
}

func applyMaterialPrice(m *models.Material, price ARSAmount) {
	m.UnitCost = price.Original
	m.UnitCostARS = price.ValueARS
	m.Currency = currencyOf(price)
	m.FXRate = price.FXRate
}

// upsertRawMaterial обновляет материал по имени (или коду) и, если указана дата закупки,
// создает партию по естественному ключу (материал, дата, количество, цена)
func (p *ImportPipeline) upsertRawMaterial(ctx context.Context, tenantID string, rec RawMaterialRecord) (bool, error) {
	material, err := p.store.FindMaterialByName(ctx, tenantID, rec.Name)
	if err != nil {
		return false, err
	}
	if material == nil && rec.Code != "" {
		if material, err = p.store.FindMaterialByCode(ctx, tenantID, rec.Code); err != nil {
			return false, err
		}
	}
	created := material == nil
	if created {
		material = &models.Material{TenantID: tenantID, Name: rec.Name, Unit: "kg"}
	}

	if rec.Code != "" {
		material.Code = rec.Code
	}
	if rec.Unit != "" {
		material.Unit = rec.Unit
	}
	if rec.HasUnitCost {
		applyMaterialPrice(material, rec.UnitCost)
	}
	if rec.HasOnHand {
		material.OnHand = rec.OnHand
	}
	material.IsDraft = false

	if err := p.store.SaveMaterial(ctx, material); err != nil {
		return false, err
	}

	if rec.PurchaseDate == nil || !rec.HasUnitCost || !rec.HasOnHand || !rec.OnHand.IsPositive() {
		return created, nil
	}

	existing, err := p.store.FindLot(ctx, tenantID, material.ID, *rec.PurchaseDate, rec.OnHand, rec.UnitCost.ValueARS)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return created, nil
	}
	lot := &models.PurchaseLot{
		TenantID:     tenantID,
		MaterialID:   material.ID,
		Quantity:     rec.OnHand,
		UnitPrice:    rec.UnitCost.Original,
		UnitPriceARS: rec.UnitCost.ValueARS,
		Currency:     currencyOf(rec.UnitCost),
		FXRate:       rec.UnitCost.FXRate,
		PurchaseDate: *rec.PurchaseDate,
		Source:       "import",
	}
	if err := p.store.CreateLot(ctx, lot); err != nil {
		return false, err
	}
	return created, nil
}

// upsertResale обновляет товар для перепродажи по имени
func (p *ImportPipeline) upsertResale(ctx context.Context, tenantID string, rec ResaleRecord) (bool, error) {
	product, err := p.store.FindProductByName(ctx, tenantID, models.ProductResale, rec.Name)
	if err != nil {
		return false, err
	}
	created := product == nil
	if created {
		product = &models.Product{TenantID: tenantID, Kind: models.ProductResale, Name: rec.Name}
	}

	if rec.Code != "" {
		product.Code = rec.Code
	}
	if rec.Family != "" {
		product.Family = rec.Family
	}
	if rec.UnitCost.ValueARS.IsPositive() {
		product.UnitCost = rec.UnitCost.ValueARS
		product.Currency = currencyOf(rec.UnitCost)
	}
	if rec.SalePrice.ValueARS.IsPositive() {
		product.SalePrice = rec.SalePrice.ValueARS
	}
	if rec.HasStock {
		product.Stock = rec.Stock
	}

	if err := p.store.SaveProduct(ctx, product); err != nil {
		return false, err
	}
	return created, nil
}
