package entity

import "gorm.io/gorm"

// AutoMigrate migrates every MES table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// reference data
		&ItemCategory{},
		&Item{},

		// warehouse requests and orders
		&WarehouseRequest{},
		&WarehouseRequestItem{},
		&Order{},

		// production workflow
		&RouteCard{},
		&Task{},
		&ChangeRequestApproval{},

		// side effects
		&Notification{},
		&AuditLog{},
	)
}
