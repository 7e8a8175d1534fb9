package models

import (
	"log"

	"github.com/dukaanhq/sales_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&InventoryItem{},
		&PendingDeduction{},
		&CreditAccount{},
		&Sale{},
		&SaleEventRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
