package models

import (
	"log"

	"bitbucket.org/craftworks/bizmate_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Customer{},
		&Job{},
		&Invoice{}, &InvoiceItem{},
		&SiteDraft{},
		&BookingIntakeRecord{},
		&User{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
