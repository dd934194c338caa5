// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/trakkie-id/paynow/config/migrations"
	"github.com/trakkie-id/paynow/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the service schema and
// the read-only offers table. A single connection serialises access the same
// way row locks would on MySQL.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:paynow_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migrations.MigrateDatabase(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := db.AutoMigrate(&model.EnrolmentOffer{}); err != nil {
		t.Fatalf("Failed to migrate offers: %v", err)
	}

	return db
}
