package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pathakanu/mealremind/internal/database"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDatabase opens a private in-memory SQLite database with the full schema.
func NewTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_fk=1", name, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite memory: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Logger returns a logger that discards output.
func Logger() zerolog.Logger {
	return zerolog.Nop()
}
