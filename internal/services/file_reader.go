package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// headerScanRows сколько первых строк просматривается в поиске строки заголовка
const headerScanRows = 10

// SheetRow строка данных с номером строки в файле (с 1)
type SheetRow struct {
	Number int
	Cells  []string
}

// Sheet таблица файла: заголовок и непустые строки данных
type Sheet struct {
	Header    []string
	HeaderRow int // Номер строки заголовка в файле (с 1)
	Rows      []SheetRow
}

// ReadSpreadsheet читает CSV или XLSX. Нечитаемый или пустой файл - *StructuralImportError
func ReadSpreadsheet(r io.Reader, filename string, table ColumnTable) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &StructuralImportError{Reason: "ошибка чтения файла", Err: err}
	}

	var rows [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", "":
		rows, err = readCSVRows(data)
	case ".xlsx", ".xlsm":
		rows, err = readXLSXRows(data)
	default:
		return nil, &StructuralImportError{Reason: fmt.Sprintf("неподдерживаемый формат файла: %s", filename)}
	}
	if err != nil {
		return nil, &StructuralImportError{Reason: "файл не читается", Err: err}
	}

	return buildSheet(rows, table)
}

func buildSheet(rows [][]string, table ColumnTable) (*Sheet, error) {
	if len(rows) == 0 {
		return nil, &StructuralImportError{Reason: "файл пуст"}
	}

	headerIdx := detectHeaderRow(rows, table)
	header := make([]string, len(rows[headerIdx]))
	for i, h := range rows[headerIdx] {
		header[i] = strings.TrimSpace(strings.Trim(h, "\"'\t"))
	}

	sheet := &Sheet{Header: header, HeaderRow: headerIdx + 1}
	for i := headerIdx + 1; i < len(rows); i++ {
		if isBlankRow(rows[i]) {
			continue
		}
		sheet.Rows = append(sheet.Rows, SheetRow{Number: i + 1, Cells: rows[i]})
	}
	if len(sheet.Rows) == 0 {
		return nil, &StructuralImportError{Reason: "в файле нет строк данных"}
	}
	return sheet, nil
}

// detectHeaderRow ищет строку с наибольшим числом известных заголовков
// (над таблицей часто бывают строки с названием прайса или датой)
func detectHeaderRow(rows [][]string, table ColumnTable) int {
	known := make(map[string]bool)
	for _, variants := range table.Required {
		for _, v := range variants {
			known[FoldHeader(v)] = true
		}
	}
	for _, variants := range table.Optional {
		for _, v := range variants {
			known[FoldHeader(v)] = true
		}
	}

	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}

	best, bestMatches := 0, 0
	for i := 0; i < limit; i++ {
		matches := 0
		for _, cell := range rows[i] {
			folded := FoldHeader(cell)
			if known[folded] || materialGroupRe.MatchString(folded) {
				matches++
			}
		}
		if matches > bestMatches {
			best, bestMatches = i, matches
		}
	}
	return best
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// readCSVRows декодирует CSV: UTF-8 (с BOM или без), иначе Windows-1252
func readCSVRows(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err == nil {
			data = decoded
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения CSV: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// detectDelimiter определяет разделитель CSV по первой тысяче байт
func detectDelimiter(data []byte) rune {
	sample := string(data)
	if len(sample) > 1000 {
		sample = sample[:1000]
	}

	delimiter := ','
	maxCount := strings.Count(sample, ",")
	for _, candidate := range []rune{';', '\t', '|'} {
		if n := strings.Count(sample, string(candidate)); n > maxCount {
			maxCount = n
			delimiter = candidate
		}
	}
	return delimiter
}

// readXLSXRows читает первый лист книги
func readXLSXRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия XLSX файла: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("файл не содержит листов")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения листа %s: %w", sheetName, err)
	}
	return rows, nil
}
