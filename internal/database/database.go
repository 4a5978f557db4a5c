package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/scheduler"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New creates a GORM database connection and migrates the schema.
// When databaseURL is provided PostgreSQL is used, otherwise SQLite at sqlitePath.
func New(databaseURL, sqlitePath string, log zerolog.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	if databaseURL != "" {
		db, err = gorm.Open(postgres.Open(databaseURL), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logBackend(db, sqlitePath, log)
	return db, nil
}

// Migrate creates or updates every table the service owns, including the task store.
func Migrate(db *gorm.DB) error {
	models := append(model.All(), &scheduler.Task{})
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func logBackend(db *gorm.DB, sqlitePath string, log zerolog.Logger) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		log.Info().Msg("database: connected to PostgreSQL")
	case "sqlite":
		log.Info().Str("path", sqlitePath).Msg("database: using SQLite")
	default:
		log.Info().Str("dialector", dialector).Msg("database: connected")
	}
}
