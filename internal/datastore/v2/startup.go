package v2

import (
	"errors"
	"fmt"
	"os"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/movingbox/storemigrate/internal/conf"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// dbStartupTimeout is the timeout for MySQL startup checks.
const dbStartupTimeout = "5s"

// ErrTargetCorrupted indicates the target store exists but its state cannot be read.
var ErrTargetCorrupted = errors.New("target store corrupted or unreadable")

// StartupState is the result of checking migration state at startup.
type StartupState struct {
	// MigrationStatus is the persisted state, not_started when no target exists.
	MigrationStatus entities.MigrationStatus
	// Flags is the full persistent flags view; zero when no target exists.
	Flags Flags
	// TargetAvailable is true when the target store exists with a readable state row.
	TargetAvailable bool
	// LegacyExists is true when the legacy store file exists.
	LegacyExists bool
	// LegacyRequired is true while the schema migration has not committed.
	LegacyRequired bool
	// FreshInstall is true when neither store exists.
	FreshInstall bool
	// Error is set when the target store exists but could not be read.
	Error error
}

// CheckMigrationStateBeforeStartup determines the migration state without
// opening the legacy store. The target store is opened read-only for SQLite.
func CheckMigrationStateBeforeStartup(settings *conf.Settings) StartupState {
	var state StartupState
	if settings.IsMySQL() {
		state = checkMySQLMigrationState(settings)
	} else {
		state = checkSQLiteMigrationState(settings)
	}

	if _, err := os.Stat(settings.Data.LegacyPath); err == nil {
		state.LegacyExists = true
	}
	state.LegacyRequired = state.MigrationStatus != entities.MigrationStatusComplete
	state.FreshInstall = !state.LegacyExists && !state.TargetAvailable && state.Error == nil
	return state
}

func notStarted(available bool, err error) StartupState {
	return StartupState{
		MigrationStatus: entities.MigrationStatusNotStarted,
		TargetAvailable: available,
		Error:           err,
	}
}

// checkSQLiteMigrationState checks migration state for a SQLite target.
func checkSQLiteMigrationState(settings *conf.Settings) StartupState {
	path := settings.Data.TargetPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return notStarted(false, nil)
	}

	db, err := gorm.Open(sqlite.Open(path+"?mode=ro"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return notStarted(false, fmt.Errorf("%w: %w", ErrTargetCorrupted, err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return notStarted(false, fmt.Errorf("%w: failed to get underlying DB: %w", ErrTargetCorrupted, err))
	}
	defer func() { _ = sqlDB.Close() }()

	// HasTable swallows errors, so probe the file first
	var tables int64
	if err := db.Raw("SELECT COUNT(*) FROM sqlite_master").Scan(&tables).Error; err != nil {
		return notStarted(false, fmt.Errorf("%w: %w", ErrTargetCorrupted, err))
	}

	return readStartupState(db)
}

// checkMySQLMigrationState checks migration state for a MySQL target.
func checkMySQLMigrationState(settings *conf.Settings) StartupState {
	my := settings.Target.MySQL
	dsn := mysqlDSN(&MySQLConfig{
		Host:     my.Host,
		Port:     my.Port,
		Username: my.Username,
		Password: my.Password,
		Database: my.Database,
		Timeout:  dbStartupTimeout,
	})

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return notStarted(false, fmt.Errorf("%w: %w", ErrTargetCorrupted, err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return notStarted(false, fmt.Errorf("%w: failed to get underlying DB: %w", ErrTargetCorrupted, err))
	}
	defer func() { _ = sqlDB.Close() }()

	return readStartupState(db)
}

func readStartupState(db *gorm.DB) StartupState {
	if !db.Migrator().HasTable(&entities.MigrationState{}) {
		return notStarted(false, nil)
	}

	var row entities.MigrationState
	if err := db.First(&row, 1).Error; err != nil {
		return notStarted(true, fmt.Errorf("%w: %w", ErrTargetCorrupted, err))
	}

	return StartupState{
		MigrationStatus: row.State,
		Flags:           FlagsFromState(&row),
		TargetAvailable: true,
	}
}

// OpenTarget opens and initializes the configured target store.
func OpenTarget(settings *conf.Settings, log logger.Logger) (Manager, error) {
	var (
		mgr Manager
		err error
	)
	if settings.IsMySQL() {
		my := settings.Target.MySQL
		mgr, err = NewMySQLManager(&MySQLConfig{
			Host:     my.Host,
			Port:     my.Port,
			Username: my.Username,
			Password: my.Password,
			Database: my.Database,
			Debug:    settings.Debug,
			Logger:   log,
		})
	} else {
		mgr, err = NewSQLiteManager(Config{
			Path:   settings.Data.TargetPath,
			Debug:  settings.Debug,
			Logger: log,
		})
	}
	if err != nil {
		return nil, err
	}

	if err := mgr.Initialize(); err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return mgr, nil
}
