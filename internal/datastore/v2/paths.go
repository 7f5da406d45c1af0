package v2

import (
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/movingbox/storemigrate/internal/conf"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
)

// Paths are the resolved, absolute file locations of one install.
type Paths struct {
	Legacy   string // legacy store file
	Target   string // SQLite target store file; empty for MySQL
	Photos   string // base directory for relative photo paths
	Backup   string // archive root
	StateDir string // where the archive state file lives
}

// ResolvePaths makes every configured path absolute.
func ResolvePaths(settings *conf.Settings) (Paths, error) {
	var p Paths
	var err error

	if p.Legacy, err = filepath.Abs(settings.Data.LegacyPath); err != nil {
		return Paths{}, fmt.Errorf("resolve legacy path: %w", err)
	}
	if !settings.IsMySQL() {
		if p.Target, err = filepath.Abs(settings.Data.TargetPath); err != nil {
			return Paths{}, fmt.Errorf("resolve target path: %w", err)
		}
	}
	if p.Photos, err = filepath.Abs(settings.Data.PhotosDir); err != nil {
		return Paths{}, fmt.Errorf("resolve photos dir: %w", err)
	}
	if p.Backup, err = filepath.Abs(settings.Data.BackupDir); err != nil {
		return Paths{}, fmt.Errorf("resolve backup dir: %w", err)
	}
	p.StateDir = filepath.Dir(p.Legacy)
	return p, nil
}

// ValidateTargetPathAvailable checks that the SQLite target store path is
// usable: it must differ from the legacy store and, if it already exists,
// must hold a target schema.
func (p Paths) ValidateTargetPathAvailable() error {
	if p.Target == "" {
		return nil
	}
	if p.Target == p.Legacy {
		return fmt.Errorf("target store path %s is the legacy store path", p.Target)
	}

	exists, err := fileExists(p.Target)
	if err != nil {
		return fmt.Errorf("stat target store: %w", err)
	}
	if !exists || CheckSQLiteHasTargetSchema(p.Target) {
		return nil
	}
	return fmt.Errorf("path %s already exists and is not a target store; please remove or rename it", p.Target)
}

// CheckSQLiteHasTargetSchema reports whether path is a SQLite file holding a
// migration_state table.
func CheckSQLiteHasTargetSchema(path string) bool {
	db, err := gorm.Open(sqlite.Open(path+"?mode=ro"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	defer func() { _ = sqlDB.Close() }()

	return db.Migrator().HasTable(&entities.MigrationState{})
}
