package services

import (
	"context"
	"fmt"

	"fabrica/server/internal/models"
	"github.com/shopspring/decimal"
)

// AverageLaborHourValue средняя эффективная ставка за час активных сотрудников.
// Сотрудники без ставки и оклада не учитываются; пустой список дает 0
func AverageLaborHourValue(employees []models.Employee) decimal.Decimal {
	sum := decimal.Zero
	count := 0
	for i := range employees {
		e := &employees[i]
		if !e.IsActive() {
			continue
		}
		rate := e.EffectiveHourlyRate()
		if !rate.IsPositive() {
			continue
		}
		sum = sum.Add(rate)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

// LaborRate загружает сотрудников тенанта и считает среднюю ставку часа
func LaborRate(ctx context.Context, store EmployeeStore, tenantID string) (decimal.Decimal, error) {
	employees, err := store.ListEmployees(ctx, tenantID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка загрузки сотрудников: %w", err)
	}
	return AverageLaborHourValue(employees), nil
}
