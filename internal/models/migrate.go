package models

import "gorm.io/gorm"

// AutoMigrate создает/обновляет таблицы движка себестоимости
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Material{},
		&PurchaseLot{},
		&Product{},
		&SimulationItem{},
		&BOMLine{},
		&Employee{},
	)
}
