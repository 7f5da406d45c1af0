// Package v2 manages the relational target store: connection setup, schema
// creation, the migration state machine and the legacy store archive.
package v2

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// slowStatementThreshold marks gorm statements worth a warning.
const slowStatementThreshold = 500 * time.Millisecond

// Manager defines the target store operations shared by SQLite and MySQL.
type Manager interface {
	// Initialize creates the schema and the migration state singleton.
	Initialize() error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the store location (file path for SQLite, host:port/db for MySQL).
	Path() string
	// Close closes the database connection.
	Close() error
	// Delete removes the target store (file for SQLite, tables for MySQL).
	Delete() error
	// Exists checks if the target store exists.
	Exists() bool
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
}

// Config holds configuration for the SQLite target store.
type Config struct {
	// Path is the target store file.
	Path string
	// Debug logs every statement at trace level.
	Debug bool
	// Logger receives gorm output; defaults to the "datastore" module logger.
	Logger logger.Logger
}

// SQLiteManager handles a SQLite target store.
type SQLiteManager struct {
	db     *gorm.DB
	dbPath string
}

// NewSQLiteManager opens (creating if needed) the SQLite target store at cfg.Path.
func NewSQLiteManager(cfg Config) (*SQLiteManager, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("target store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create target store directory: %w", err)
	}

	// WAL, a busy timeout and enforced foreign keys
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger(cfg.Logger, cfg.Debug),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open target store: %w", err)
	}

	return &SQLiteManager{
		db:     db,
		dbPath: cfg.Path,
	}, nil
}

// gormLogger routes gorm output through the module logger when debug is on
// and silences it otherwise.
func gormLogger(log logger.Logger, debug bool) gormlogger.Interface {
	if !debug {
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return logger.NewGormLogger(log, slowStatementThreshold)
}

func (m *SQLiteManager) Initialize() error {
	if err := m.db.AutoMigrate(entities.AllModels()...); err != nil {
		return fmt.Errorf("create target schema: %w", err)
	}
	// SQLite ignores ON DELETE actions that AutoMigrate adds after the fact.
	for _, stmt := range sqliteTriggers {
		if err := m.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("install delete triggers: %w", err)
		}
	}
	return initMigrationState(m.db)
}

// initMigrationState creates the state row once; later calls keep it.
func initMigrationState(db *gorm.DB) error {
	state := entities.MigrationState{ID: 1, State: entities.MigrationStatusNotStarted}
	if err := db.FirstOrCreate(&state, entities.MigrationState{ID: 1}).Error; err != nil {
		return fmt.Errorf("initialize migration state: %w", err)
	}
	return nil
}

// sqliteTriggers emulate ON DELETE SET NULL and CASCADE. They are idempotent
// and harmless where the constraint already applies.
var sqliteTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_home_delete_set_null
		BEFORE DELETE ON homes
		FOR EACH ROW
		BEGIN
			UPDATE inventory_locations SET home_id = NULL WHERE home_id = OLD.id;
			UPDATE inventory_items SET home_id = NULL WHERE home_id = OLD.id;
			DELETE FROM home_policies WHERE home_id = OLD.id;
			DELETE FROM home_photos WHERE owner_id = OLD.id;
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_location_delete_set_null
		BEFORE DELETE ON inventory_locations
		FOR EACH ROW
		BEGIN
			UPDATE inventory_items SET location_id = NULL WHERE location_id = OLD.id;
			DELETE FROM inventory_location_photos WHERE owner_id = OLD.id;
		END`,
	`CREATE TRIGGER IF NOT EXISTS trg_item_delete_cascade
		BEFORE DELETE ON inventory_items
		FOR EACH ROW
		BEGIN
			DELETE FROM item_labels WHERE item_id = OLD.id;
			DELETE FROM inventory_item_photos WHERE owner_id = OLD.id;
		END`,
}

func (m *SQLiteManager) DB() *gorm.DB { return m.db }

func (m *SQLiteManager) Path() string { return m.dbPath }

func (m *SQLiteManager) IsMySQL() bool { return false }

func (m *SQLiteManager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Delete closes the store and removes the file with its -wal and -shm
// siblings.
func (m *SQLiteManager) Delete() error {
	if err := m.Close(); err != nil {
		return fmt.Errorf("close target store: %w", err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(m.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete target store: %w", err)
		}
	}
	return nil
}

func (m *SQLiteManager) Exists() bool {
	_, err := os.Stat(m.dbPath)
	return err == nil
}
