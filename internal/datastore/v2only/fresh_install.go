// Package v2only sets up a target store on installs that never had a legacy
// store, so there is nothing to migrate.
package v2only

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/conf"
	v2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// ErrNotFreshInstall is returned by InitializeFreshInstall when either store
// already exists.
var ErrNotFreshInstall = errors.New("not a fresh install")

// DetectFreshInstall reports whether neither the legacy store nor a target
// store exists. An unreadable target store is an error, never a fresh install.
func DetectFreshInstall(settings *conf.Settings) (bool, error) {
	state := v2.CheckMigrationStateBeforeStartup(settings)
	if state.Error != nil {
		return false, state.Error
	}
	return state.FreshInstall, nil
}

// InitializeFreshInstall creates the target store, seeds one primary home and
// marks every migration flag complete. The seed and the state change commit
// together. It refuses to run unless DetectFreshInstall is true, so seeding
// never happens on top of data or after a failed migration.
func InitializeFreshInstall(settings *conf.Settings, log logger.Logger) (v2.Manager, error) {
	if log == nil {
		log = logger.Global().Module("v2only")
	}

	fresh, err := DetectFreshInstall(settings)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrNotFreshInstall
	}

	log.Info("initializing fresh installation")

	if !settings.IsMySQL() {
		if settings.Data.TargetPath == "" {
			return nil, fmt.Errorf("sqlite target path is empty")
		}
		if err := os.MkdirAll(filepath.Dir(settings.Data.TargetPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create target store directory: %w", err)
		}
	}

	manager, err := v2.OpenTarget(settings, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create target store: %w", err)
	}

	home := seedHome(settings)
	if err := seedAndComplete(manager.DB(), home); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("failed to seed fresh install: %w", err)
	}

	log.Info("fresh installation initialized",
		logger.String("target", manager.Path()),
		logger.String("home_id", home.ID),
		logger.String("home_name", home.Name))

	return manager, nil
}

// seedHome builds the default primary home. LegacyID 0 marks a row that
// never existed in a legacy store.
func seedHome(settings *conf.Settings) *entities.Home {
	name := conf.DefaultHomeNames[0]
	if names := settings.Canonicalize.DefaultHomeNames; len(names) > 0 && names[0] != "" {
		name = names[0]
	}
	return &entities.Home{
		ID:        uuid.NewString(),
		LegacyID:  0,
		Name:      name,
		IsPrimary: true,
		CreatedAt: time.Now().UTC(),
	}
}

func seedAndComplete(db *gorm.DB, home *entities.Home) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(home).Error; err != nil {
			return fmt.Errorf("create default home: %w", err)
		}
		state := v2.NewStateManager(tx)
		if err := state.BeginAttempt(0); err != nil {
			return err
		}
		if err := state.MarkComplete(); err != nil {
			return err
		}
		if err := state.MarkPhotoMigrationComplete(); err != nil {
			return err
		}
		return state.MarkHomeCullingComplete()
	})
}
