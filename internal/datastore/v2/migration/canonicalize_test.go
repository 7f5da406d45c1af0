package migration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/datastore/v2/migration/testutil"
)

func canonicalizer(db *gorm.DB, tieBreak string) *HomeCanonicalizer {
	return NewHomeCanonicalizer(HomeCanonicalizerConfig{DB: db, TieBreak: tieBreak, Logger: testLogger()})
}

// ownership renders every ownership fact so two snapshots can be compared.
func ownership(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var out []string

	var homes []entities.Home
	require.NoError(t, db.Order("id").Find(&homes).Error)
	for _, h := range homes {
		out = append(out, fmt.Sprintf("home %s primary=%t", h.ID, h.IsPrimary))
	}

	var locs []entities.InventoryLocation
	require.NoError(t, db.Order("id").Find(&locs).Error)
	for _, l := range locs {
		out = append(out, fmt.Sprintf("location %s home=%v pending=%t", l.ID, deref(l.HomeID), l.PendingHome))
	}

	var items []entities.InventoryItem
	require.NoError(t, db.Order("id").Find(&items).Error)
	for _, it := range items {
		out = append(out, fmt.Sprintf("item %s home=%v pending=%t", it.ID, deref(it.HomeID), it.PendingHome))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func homeOf(t *testing.T, db *gorm.DB, itemID string) string {
	t.Helper()
	var it entities.InventoryItem
	require.NoError(t, db.First(&it, "id = ?", itemID).Error)
	require.NotNil(t, it.HomeID, "item %s has no home", itemID)
	assert.False(t, it.PendingHome)
	return *it.HomeID
}

func TestHomeCanonicalizer_SeededInventory(t *testing.T) {
	s := testutil.NewLegacySeeder(t, 3)
	lake := testutil.SeedInventory(s)
	mgr, st := commitLegacy(t, s)
	db := mgr.DB()
	lakeID := st.IDs.ID(entities.KindHome, lake)

	result, err := canonicalizer(db, "").Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, lakeID, result.CanonicalHomeID)
	assert.Zero(t, result.PrimaryUpdates, "the sole primary was already written at commit")
	assert.Empty(t, result.PhantomsDeleted)
	assert.Zero(t, result.LocationsReassigned)
	assert.Equal(t, 3, result.ItemsInherited, "Kettle, Drill and Desk take their location's home")
	assert.Equal(t, 1, result.ItemsReassigned, "Bike has no location")
	assert.True(t, result.Changed())

	var items []entities.InventoryItem
	require.NoError(t, db.Find(&items).Error)
	byTitle := make(map[string]string, len(items))
	for _, it := range items {
		byTitle[it.Title] = homeOf(t, db, it.ID)
	}
	assert.Equal(t, lakeID, byTitle["Kettle"])
	assert.Equal(t, lakeID, byTitle["Bike"])
	assert.NotEqual(t, lakeID, byTitle["Desk"], "Desk stays with the Study's home")

	flags, err := datastoreV2.NewStateManager(db).Flags()
	require.NoError(t, err)
	assert.True(t, flags.HomeCullingComplete)

	before := ownership(t, db)
	again, err := canonicalizer(db, "").Run(context.Background())
	require.NoError(t, err)
	assert.False(t, again.Changed(), "a second run must be a no-op")
	assert.Equal(t, lakeID, again.CanonicalHomeID)
	assert.Equal(t, before, ownership(t, db))
}

func TestHomeCanonicalizer_DeletesPhantoms(t *testing.T) {
	photosDir := t.TempDir()
	photo := testutil.WritePhoto(t, photosDir, "door.jpg", []byte("door"))

	s := testutil.NewLegacySeeder(t, 3)
	lake := s.Home("Lake House").Address("1 Shore Rd").Primary().Insert()
	phantom := s.Home("My Home").Insert()
	used := s.Home("  my   HOME ").Insert()
	s.Location("Shed").Home(used).Insert()
	withPhoto := s.Home("Home").Photos(photo).Insert()
	withPolicy := s.Home("New Home").Insert()
	policy := s.Policy("Acme").Insert()
	s.LinkHomePolicy(withPolicy, policy)

	mgr, st := commitLegacy(t, s)
	db := mgr.DB()

	result, err := canonicalizer(db, "").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st.IDs.ID(entities.KindHome, lake), result.CanonicalHomeID)
	assert.Equal(t, []string{st.IDs.ID(entities.KindHome, phantom)}, result.PhantomsDeleted)

	var remaining []string
	require.NoError(t, db.Model(&entities.Home{}).Order("id").Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []string{
		st.IDs.ID(entities.KindHome, lake),
		st.IDs.ID(entities.KindHome, used),
		st.IDs.ID(entities.KindHome, withPhoto),
		st.IDs.ID(entities.KindHome, withPolicy),
	}, remaining)
}

func TestHomeCanonicalizer_TieBreaks(t *testing.T) {
	older := time.Date(2019, time.May, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		tieBreak string
		want     string
	}{
		{"oldest", conf.TieBreakOldest, "Alpine"},
		{"newest", conf.TieBreakNewest, "Bayside"},
		{"most contents", conf.TieBreakMostContents, "Bayside"},
		{"default is oldest", "", "Alpine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.NewLegacySeeder(t, 3)
			pks := map[string]int64{
				"Alpine":  s.Home("Alpine").CreatedAt(older).Insert(),
				"Bayside": s.Home("Bayside").CreatedAt(newer).Insert(),
			}
			s.Location("Loft").Home(pks["Alpine"]).Insert()
			s.Location("Porch").Home(pks["Bayside"]).Insert()
			s.Location("Dock").Home(pks["Bayside"]).Insert()

			mgr, st := commitLegacy(t, s)
			result, err := canonicalizer(mgr.DB(), tt.tieBreak).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, st.IDs.ID(entities.KindHome, pks[tt.want]), result.CanonicalHomeID)
			assert.Equal(t, 1, result.PrimaryUpdates)
		})
	}
}

func TestHomeCanonicalizer_MetadataOutranksTieBreak(t *testing.T) {
	s := testutil.NewLegacySeeder(t, 3)
	placeholder := s.Home("Home").Primary().CreatedAt(time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)).Insert()
	s.Location("Closet").Home(placeholder).Insert()
	cabin := s.Home("Beach Cabin").Primary().CreatedAt(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)).Insert()

	mgr, st := commitLegacy(t, s)
	db := mgr.DB()

	var primaries int64
	require.NoError(t, db.Model(&entities.Home{}).Where("is_primary = ?", true).Count(&primaries).Error)
	require.Zero(t, primaries, "two legacy primaries are left for the canonicalizer")

	result, err := canonicalizer(db, conf.TieBreakOldest).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, st.IDs.ID(entities.KindHome, cabin), result.CanonicalHomeID)

	require.NoError(t, db.Model(&entities.Home{}).Where("is_primary = ?", true).Count(&primaries).Error)
	assert.Equal(t, int64(1), primaries)
}

func TestHomeCanonicalizer_OrphansWithoutHomes(t *testing.T) {
	s := testutil.NewLegacySeeder(t, 3)
	home := s.Home("Cabin").Insert()
	shed := s.Location("Shed").Home(home).Insert()
	s.Item("Rake").Location(shed).Insert()
	mgr, _ := commitLegacy(t, s)
	db := mgr.DB()

	require.NoError(t, db.Where("1 = 1").Delete(&entities.Home{}).Error)

	_, err := canonicalizer(db, "").Run(context.Background())
	var cerr *CanonicalizationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Orphans)

	flags, err := datastoreV2.NewStateManager(db).Flags()
	require.NoError(t, err)
	assert.False(t, flags.HomeCullingComplete)
}

func TestHomeCanonicalizer_RequiresCommittedSchema(t *testing.T) {
	mgr := setupTarget(t)
	_, err := canonicalizer(mgr.DB(), "").Run(context.Background())
	assert.ErrorIs(t, err, ErrSchemaNotCommitted)
}

func TestHomeNameMatcher(t *testing.T) {
	m := newHomeNameMatcher(conf.DefaultHomeNames)
	tests := []struct {
		name string
		want bool
	}{
		{"My Home", true},
		{"  my   HOME ", true},
		{"ＨＯＭＥ", true},
		{"", true},
		{"Lake House", false},
		{"Homestead", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.IsDefault(tt.name), "name %q", tt.name)
	}
}
