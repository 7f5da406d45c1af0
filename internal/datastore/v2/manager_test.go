package v2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
)

func setupSQLiteManager(t *testing.T) (mgr *SQLiteManager, cleanup func()) {
	t.Helper()
	mgr, err := NewSQLiteManager(Config{Path: filepath.Join(t.TempDir(), "nested", "inventory.db")})
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	return mgr, func() { _ = mgr.Close() }
}

func ptr(s string) *string { return &s }

func TestSQLiteManager_InitializeIsIdempotent(t *testing.T) {
	mgr, cleanup := setupSQLiteManager(t)
	defer cleanup()

	require.NoError(t, mgr.Initialize())

	var count int64
	require.NoError(t, mgr.DB().Model(&entities.MigrationState{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.True(t, mgr.Exists())
}

func TestSQLiteManager_DeletingHomeOrphansChildren(t *testing.T) {
	mgr, cleanup := setupSQLiteManager(t)
	defer cleanup()
	db := mgr.DB()

	require.NoError(t, db.Create(&entities.Home{ID: "h1", LegacyID: 1, Name: "Lake House"}).Error)
	require.NoError(t, db.Create(&entities.InventoryLocation{ID: "l1", LegacyID: 1, Name: "Kitchen", HomeID: ptr("h1")}).Error)
	require.NoError(t, db.Create(&entities.InventoryItem{ID: "i1", LegacyID: 1, Title: "Kettle", LocationID: ptr("l1"), HomeID: ptr("h1")}).Error)
	require.NoError(t, db.Create(&entities.HomePhoto{ID: "p1", OwnerID: "h1", Data: []byte{1}, ContentHash: "x", ByteSize: 1}).Error)

	require.NoError(t, db.Delete(&entities.Home{ID: "h1"}).Error)

	var loc entities.InventoryLocation
	require.NoError(t, db.First(&loc, "id = ?", "l1").Error)
	assert.Nil(t, loc.HomeID)

	var item entities.InventoryItem
	require.NoError(t, db.First(&item, "id = ?", "i1").Error)
	assert.Nil(t, item.HomeID)
	require.NotNil(t, item.LocationID)

	var photos int64
	require.NoError(t, db.Model(&entities.HomePhoto{}).Count(&photos).Error)
	assert.Zero(t, photos)
}

func TestSQLiteManager_DeletingItemCascades(t *testing.T) {
	mgr, cleanup := setupSQLiteManager(t)
	defer cleanup()
	db := mgr.DB()

	require.NoError(t, db.Create(&entities.InventoryItem{ID: "i1", LegacyID: 1, Title: "Drill"}).Error)
	require.NoError(t, db.Create(&entities.InventoryLabel{ID: "lb1", LegacyID: 1, Name: "Tools"}).Error)
	require.NoError(t, db.Create(&entities.ItemLabel{ItemID: "i1", LabelID: "lb1"}).Error)

	require.NoError(t, db.Delete(&entities.InventoryItem{ID: "i1"}).Error)

	var links int64
	require.NoError(t, db.Model(&entities.ItemLabel{}).Count(&links).Error)
	assert.Zero(t, links)
}

func TestSQLiteManager_Delete(t *testing.T) {
	mgr, err := NewSQLiteManager(Config{Path: filepath.Join(t.TempDir(), "inventory.db")})
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())

	require.NoError(t, mgr.Delete())
	_, err = os.Stat(mgr.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(mgr.Path() + "-wal")
	assert.True(t, os.IsNotExist(err))
}
