package migrations

import (
	"github.com/trakkie-id/paynow/model"
	"gorm.io/gorm"
)

// MigrateDatabase creates the tables owned by this service. Offers belong to
// the enclosing course system and are not migrated here.
func MigrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(&model.Transaction{}, &model.EnrolmentRecord{})
}
