package services

import (
	"errors"
	"fmt"
	"strings"
)

// StructuralImportError файл нельзя импортировать целиком: нет обязательных колонок,
// файл не читается или пуст. Ни одна строка не обрабатывается
type StructuralImportError struct {
	Missing []string // Канонические имена отсутствующих колонок
	Reason  string
	Err     error
}

func (e *StructuralImportError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("отсутствуют обязательные колонки: %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StructuralImportError) Unwrap() error {
	return e.Err
}

// RowValidationError строка непригодна (например, нет ключевого поля) и пропущена
type RowValidationError struct {
	Row    int    // Номер строки в файле (1 - заголовок)
	Key    string // Идентифицирующие поля строки для итогового отчета
	Reason string
}

func (e *RowValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("Строка %d (%s): %s", e.Row, e.Key, e.Reason)
	}
	return fmt.Sprintf("Строка %d: %s", e.Row, e.Reason)
}

// PersistenceError запись строки в хранилище не удалась
type PersistenceError struct {
	Row int
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("Строка %d (%s): ошибка сохранения: %v", e.Row, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedImportType неизвестный тип импорта
var ErrUnsupportedImportType = errors.New("неподдерживаемый тип импорта")

// ErrNotFound сущность не найдена
var ErrNotFound = errors.New("не найдено")

// RowOutcome результат обработки одной строки импорта
type RowOutcome struct {
	Row     int
	Key     string
	Created bool  // Создана новая сущность (иначе обновлена существующая)
	Err     error // *RowValidationError или *PersistenceError
}

// OK сообщает, успешно ли обработана строка
func (o RowOutcome) OK() bool {
	return o.Err == nil
}

// Outcome метка исхода для метрик
func (o RowOutcome) Outcome() string {
	var rowErr *RowValidationError
	var persistErr *PersistenceError
	switch {
	case o.Err == nil:
		return "imported"
	case errors.As(o.Err, &rowErr):
		return "row_error"
	case errors.As(o.Err, &persistErr):
		return "persistence_error"
	default:
		return "error"
	}
}
