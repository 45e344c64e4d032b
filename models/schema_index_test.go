package models_test

import (
	"sync"
	"testing"

	"bitbucket.org/craftworks/bizmate_backend/models"
	"gorm.io/gorm/schema"
)

// MySQL cannot index a longtext column, which is what gorm maps an unsized
// string to. Every string column inside a unique index needs an explicit
// size or AutoMigrate fails with error 1170 at startup.
func TestUniqueIndexStringColumnsAreSized(t *testing.T) {
	for _, model := range []interface{}{
		&models.Job{},
		&models.Invoice{},
		&models.SiteDraft{},
		&models.Customer{},
		&models.Business{},
		&models.User{},
		&models.BookingIntakeRecord{},
	} {
		sch, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
		if err != nil {
			t.Fatalf("parse schema: %v", err)
		}
		for name, index := range sch.ParseIndexes() {
			if index.Class != "UNIQUE" {
				continue
			}
			for _, opt := range index.Fields {
				if opt.Field.DataType == schema.String && opt.Field.Size <= 0 {
					t.Errorf("%s: unique index %s includes unsized string column %s",
						sch.Name, name, opt.Field.DBName)
				}
			}
		}
	}
}
