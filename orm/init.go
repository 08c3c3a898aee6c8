package orm

import (
	"fmt"
	"strings"

	"image-registry/config"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the gorm handle. It is constructed once at process start and
// passed explicitly into the components that need it.
type DB struct {
	dbGorm *gorm.DB
}

// Open connects to postgres using the process configuration and runs the
// schema migrations.
func Open() (*DB, error) {
	dsn := fmt.Sprintf(
		"host='%s' port='%d' user='%s' password='%s' dbname='%s' sslmode='%s'",
		config.Cfg.Database.Host,
		config.Cfg.Database.Port,
		config.Cfg.Database.Username,
		config.Cfg.Database.Password,
		config.Cfg.Database.Database,
		config.Cfg.Database.SSLMode,
	)

	dsnRedacted := strings.ReplaceAll(dsn, config.Cfg.Database.Password, "*****")
	log.Debug().
		Msgf("Connecting to postgres using the following information: %s", dsnRedacted)

	dbGorm, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	log.Debug().Msg("Successfully connected to the database")

	return migrate(dbGorm)
}

// OpenMemory opens an in-memory sqlite database. Used only for testing.
func OpenMemory() (*DB, error) {
	dbGorm, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	return migrate(dbGorm)
}

func migrate(dbGorm *gorm.DB) (*DB, error) {
	err := dbGorm.AutoMigrate(
		&Image{},
		&ImageVariant{},
		&ImageLabel{},
		&EntityImage{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{dbGorm: dbGorm}, nil
}

// UseTransaction returns a DB bound to the given transaction handle.
func (db *DB) UseTransaction(tx *gorm.DB) *DB {
	return &DB{dbGorm: tx}
}
