package models

import "time"

// ImportType тип импортируемого файла
type ImportType string

const (
	ImportSimulation  ImportType = "simulation"
	ImportRawMaterial ImportType = "raw_material"
	ImportResale      ImportType = "resale"
)

// ImportState состояние обработки файла
// Parsed → Validated → PersistedPartial → Done; Failed только из Parsed
type ImportState string

const (
	ImportParsed           ImportState = "parsed"
	ImportValidated        ImportState = "validated"
	ImportPersistedPartial ImportState = "persisted_partial"
	ImportDone             ImportState = "done"
	ImportFailed           ImportState = "failed"
)

// ImportResult итог импорта
type ImportResult struct {
	JobID         string      `json:"job_id"`
	TenantID      string      `json:"tenant_id"`
	Type          ImportType  `json:"type"`
	FileName      string      `json:"file_name,omitempty"`
	State         ImportState `json:"state"`
	TotalRows     int         `json:"total_rows"`
	ImportedCount int         `json:"imported_count"`
	ErrorCount    int         `json:"error_count"`
	ErrorDetails  []string    `json:"error_details"`
	FailureReason string      `json:"failure_reason,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at,omitempty"`
}
