package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EmployeeStatus представляет статус сотрудника
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "Active"
	EmployeeReserve  EmployeeStatus = "Reserve"
	EmployeeInactive EmployeeStatus = "Inactive"
)

// Employee представляет сотрудника производства в БД
// Источник стоимости часа труда для себестоимости
type Employee struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	TenantID      string          `gorm:"type:varchar(64);not null;index" json:"tenant_id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	RoleName      string          `gorm:"type:varchar(100);default:'operario'" json:"role_name"`
	Status        EmployeeStatus  `gorm:"type:varchar(20);default:'Active';index" json:"status"`
	HourlyRate    decimal.Decimal `gorm:"type:decimal(14,4);default:0" json:"hourly_rate"`    // ARS за час, если задан
	MonthlySalary decimal.Decimal `gorm:"type:decimal(14,4);default:0" json:"monthly_salary"` // ARS в месяц
	MonthlyHours  decimal.Decimal `gorm:"type:decimal(8,2);default:0" json:"monthly_hours"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName возвращает имя таблицы
func (Employee) TableName() string {
	return "employees"
}

// BeforeCreate генерирует UUID
func (e *Employee) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// IsActive сообщает, участвует ли сотрудник в расчете стоимости часа
func (e *Employee) IsActive() bool {
	return e.Status == "" || e.Status == EmployeeActive
}

// EffectiveHourlyRate возвращает ставку за час: явную, иначе оклад / часы в месяц.
// Без данных для расчета возвращает 0
func (e *Employee) EffectiveHourlyRate() decimal.Decimal {
	if e.HourlyRate.IsPositive() {
		return e.HourlyRate
	}
	if e.MonthlySalary.IsPositive() && e.MonthlyHours.IsPositive() {
		return e.MonthlySalary.Div(e.MonthlyHours)
	}
	return decimal.Zero
}
