package legacy_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/datastore/legacy"
	"github.com/movingbox/storemigrate/internal/datastore/v2/migration/testutil"
	"github.com/movingbox/storemigrate/internal/logger"
)

func openStore(t *testing.T, path string) *legacy.Store {
	t.Helper()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	store, err := legacy.Open(context.Background(), path, legacy.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// collect drains a sequence, splitting decode failures from values.
func collect[T any](t *testing.T, seq iter.Seq2[T, error]) (values []T, decodeErrs []*legacy.DecodeError) {
	t.Helper()
	for v, err := range seq {
		if err != nil {
			var de *legacy.DecodeError
			require.ErrorAs(t, err, &de, "unexpected fatal error")
			decodeErrs = append(decodeErrs, de)
			continue
		}
		values = append(values, v)
	}
	return values, decodeErrs
}

func TestOpen_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := legacy.Open(context.Background(), filepath.Join(t.TempDir(), "nope.sqlite"))
	var se *legacy.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, legacy.KindUnreadable, se.Kind)
}

func TestOpen_NotALegacyStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o600))

	_, err := legacy.Open(context.Background(), path)
	var se *legacy.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, legacy.KindUnreadable, se.Kind)
}

func TestOpen_Directory(t *testing.T) {
	t.Parallel()

	_, err := legacy.Open(context.Background(), t.TempDir())
	var se *legacy.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, legacy.KindUnreadable, se.Kind)
}

func TestOpen_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 7)
	seeder.Close()

	_, err := legacy.Open(context.Background(), seeder.Path())
	var se *legacy.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, legacy.KindUnsupportedVersion, se.Kind)
	assert.Equal(t, 7, se.Version)
	assert.Contains(t, se.Error(), "unsupported schema version 7")
}

func TestOpen_SupportedVersions(t *testing.T) {
	t.Parallel()

	for _, version := range legacy.SupportedVersions {
		seeder := testutil.NewLegacySeeder(t, version)
		seeder.Close()

		store := openStore(t, seeder.Path())
		assert.Equal(t, version, store.Version())
		assert.Equal(t, seeder.UUID(), store.UUID())
		assert.Equal(t, seeder.Path(), store.Path())
	}
}

func TestOpen_DoesNotModifyFile(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	testutil.SeedInventory(seeder)
	seeder.Close()
	before := testutil.FileSHA256(t, seeder.Path())

	store := openStore(t, seeder.Path())
	_, err := store.CountEntities(context.Background())
	require.NoError(t, err)
	homes, _ := collect(t, store.Homes(context.Background()))
	require.Len(t, homes, 2)
	require.NoError(t, store.Close())

	assert.Equal(t, before, testutil.FileSHA256(t, seeder.Path()))
}

// A WAL-mode store keeps recent rows in the -wal file; the read-only
// handle must see them.
func TestOpen_ReadsRowsStillInWAL(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	seeder.UseWAL()
	home := seeder.Home("Lake House").Insert()
	seeder.Item("Kayak").Home(home).Insert()
	require.FileExists(t, seeder.Path()+"-wal")

	store := openStore(t, seeder.Path())
	counts, err := store.CountEntities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Homes)
	assert.Equal(t, 1, counts.Items)

	items, decodeErrs := collect(t, store.Items(context.Background()))
	require.Empty(t, decodeErrs)
	require.Len(t, items, 1)
	assert.Equal(t, "Kayak", items[0].Title)
}

func TestCountEntities(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 2)
	testutil.SeedInventory(seeder)
	seeder.Item("").NullTitle().Insert()
	seeder.Close()

	counts, err := openStore(t, seeder.Path()).CountEntities(context.Background())
	require.NoError(t, err)

	// rows that fail to decode are still counted
	assert.Equal(t, legacy.EntityCounts{
		Homes: 2, Locations: 3, Items: 5, Labels: 2, Policies: 1, ItemLabels: 2, HomePolicies: 1,
	}, counts)
}

func TestHomes_DecodesFields(t *testing.T) {
	t.Parallel()

	created := time.Date(2019, time.July, 4, 12, 30, 0, 0, time.UTC)
	seeder := testutil.NewLegacySeeder(t, 3)
	seeder.Home("Lake House").Address("1 Shore Rd").City("Tahoe").Primary().CreatedAt(created).
		Photos("homes/front.jpg", "homes/back.jpg", "", "homes/side.jpg").Insert()
	seeder.Home("Cabin").CreatedRaw(nil).Insert()
	seeder.Close()

	homes, decodeErrs := collect(t, openStore(t, seeder.Path()).Homes(context.Background()))
	require.Empty(t, decodeErrs)
	require.Len(t, homes, 2)

	h := homes[0]
	assert.Equal(t, int64(1), h.PK)
	assert.Equal(t, "Lake House", h.Name)
	assert.Equal(t, "1 Shore Rd", h.Address1)
	assert.Equal(t, "Tahoe", h.City)
	assert.True(t, h.IsPrimary)
	assert.True(t, created.Equal(h.CreatedAt), "created %v", h.CreatedAt)
	assert.Equal(t, []legacy.PhotoPath{
		{SortOrder: 0, Path: "homes/front.jpg"},
		{SortOrder: 1, Path: "homes/back.jpg"},
		{SortOrder: 3, Path: "homes/side.jpg"},
	}, h.Photos.Paths())

	assert.False(t, homes[1].IsPrimary)
	assert.True(t, testutil.ReferenceDate.Equal(homes[1].CreatedAt), "NULL timestamp maps to the reference date")
	assert.Empty(t, homes[1].Photos.Paths())
}

func TestHomes_DecodeFailuresAreSkipsNotFatal(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	seeder.Home("First").Insert()
	seeder.Home("").NullName().Insert()
	seeder.Home("   ").Insert()
	seeder.Home("Bad Date").CreatedRaw("yesterday").Insert()
	seeder.Home("Last").Insert()
	seeder.Close()

	homes, decodeErrs := collect(t, openStore(t, seeder.Path()).Homes(context.Background()))
	require.Len(t, homes, 2)
	assert.Equal(t, "First", homes[0].Name)
	assert.Equal(t, "Last", homes[1].Name)

	require.Len(t, decodeErrs, 3)
	assert.Equal(t, int64(2), decodeErrs[0].LegacyID)
	assert.Equal(t, "ZNAME", decodeErrs[0].Field)
	assert.Equal(t, "ZNAME", decodeErrs[1].Field)
	assert.Equal(t, "ZCREATEDAT", decodeErrs[2].Field)
	assert.Equal(t, "home", decodeErrs[2].Kind)
}

func TestHomes_MalformedSecondaryJSONKeepsRow(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	seeder.Home("Broken").Photos("a.jpg").SecondaryRaw(`["b.jpg",`).Insert()
	seeder.Home("Object").SecondaryRaw(`{"a":"b.jpg"}`).Insert()
	seeder.Home("Numbers").SecondaryRaw(`[1,2]`).Insert()
	seeder.Home("Fine").Photos("c.jpg", "d.jpg").Insert()
	seeder.Close()

	homes, decodeErrs := collect(t, openStore(t, seeder.Path()).Homes(context.Background()))
	require.Empty(t, decodeErrs)
	require.Len(t, homes, 4)
	assert.Equal(t, []legacy.PhotoPath{{SortOrder: 0, Path: "a.jpg"}}, homes[0].Photos.Paths())
	assert.Empty(t, homes[1].Photos.Secondary)
	assert.Empty(t, homes[2].Photos.Secondary)

	assert.Contains(t, homes[0].Photos.SecondaryError, "invalid JSON")
	assert.Contains(t, homes[1].Photos.SecondaryError, "not a JSON array")
	assert.Contains(t, homes[2].Photos.SecondaryError, "element 0 is not a string")
	assert.Empty(t, homes[3].Photos.SecondaryError)
	assert.Equal(t, []string{"d.jpg"}, homes[3].Photos.Secondary)
}

func TestItems_VersionDifferences(t *testing.T) {
	t.Parallel()

	t.Run("v1 has no item home", func(t *testing.T) {
		t.Parallel()
		seeder := testutil.NewLegacySeeder(t, 1)
		loc := seeder.Location("Shed").Insert()
		seeder.Item("Rake").Location(loc).Photos("rake.jpg").Insert()
		seeder.Close()

		items, decodeErrs := collect(t, openStore(t, seeder.Path()).Items(context.Background()))
		require.Empty(t, decodeErrs)
		require.Len(t, items, 1)
		assert.Nil(t, items[0].HomePK)
		require.NotNil(t, items[0].LocationPK)
		assert.Equal(t, loc, *items[0].LocationPK)
		assert.Equal(t, "rake.jpg", items[0].Photos.Primary)
		assert.Empty(t, items[0].Photos.Secondary)
	})

	t.Run("v2 adds item home", func(t *testing.T) {
		t.Parallel()
		seeder := testutil.NewLegacySeeder(t, 2)
		home := seeder.Home("Flat").Insert()
		seeder.Item("Lamp").Home(home).Insert()
		seeder.Close()

		items, _ := collect(t, openStore(t, seeder.Path()).Items(context.Background()))
		require.Len(t, items, 1)
		require.NotNil(t, items[0].HomePK)
		assert.Equal(t, home, *items[0].HomePK)
	})

	t.Run("v3 adds secondary photos", func(t *testing.T) {
		t.Parallel()
		seeder := testutil.NewLegacySeeder(t, 3)
		seeder.Item("Camera").Photos("c0.jpg", "c1.jpg", "c2.jpg").Insert()
		seeder.Close()

		items, _ := collect(t, openStore(t, seeder.Path()).Items(context.Background()))
		require.Len(t, items, 1)
		assert.Equal(t, []string{"c1.jpg", "c2.jpg"}, items[0].Photos.Secondary)
	})
}

func TestItems_DecodesNumbers(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 2)
	seeder.Item("Chairs").Quantity(4).Price(19.99).Notes("oak").Insert()
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY, ZPRICE) VALUES ('Defaults', NULL, NULL)")
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZPRICE) VALUES ('Bad Price', 'cheap')")
	seeder.Close()

	items, decodeErrs := collect(t, openStore(t, seeder.Path()).Items(context.Background()))
	require.Len(t, items, 2)
	assert.Equal(t, 4, items[0].Quantity)
	assert.InDelta(t, 19.99, items[0].Price, 0.0001)
	assert.Equal(t, "oak", items[0].Notes)
	assert.Equal(t, 1, items[1].Quantity, "NULL quantity defaults to 1")
	assert.Zero(t, items[1].Price)

	require.Len(t, decodeErrs, 1)
	assert.Equal(t, "ZPRICE", decodeErrs[0].Field)
}

func TestItems_QuantityIsNeverTruncated(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 2)
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY) VALUES ('Text Three', '3')")
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY) VALUES ('Real Two', 2.0)")
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY) VALUES ('Half', 2.5)")
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY) VALUES ('Not A Number', 'NaN')")
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY) VALUES ('Infinite', 9e999)")
	seeder.Exec("INSERT INTO ZITEM (ZTITLE, ZQUANTITY) VALUES ('Huge', 1e12)")
	seeder.Close()

	items, decodeErrs := collect(t, openStore(t, seeder.Path()).Items(context.Background()))
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 2, items[1].Quantity)

	require.Len(t, decodeErrs, 4)
	for i, want := range []string{"fractional", "non-finite", "non-finite", "out of range"} {
		assert.Equal(t, "ZQUANTITY", decodeErrs[i].Field)
		assert.Contains(t, decodeErrs[i].Reason, want)
		assert.Equal(t, int64(i+3), decodeErrs[i].LegacyID)
	}
}

func TestLabels_ColorValidation(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	seeder.Label("Red").Color("#ff0000").Insert()
	seeder.Label("Plain").Insert()
	seeder.Label("Named").Color("blue").Insert()
	seeder.Close()

	labels, decodeErrs := collect(t, openStore(t, seeder.Path()).Labels(context.Background()))
	require.Len(t, labels, 2)
	assert.Equal(t, "#FF0000", labels[0].ColorHex)
	assert.Empty(t, labels[1].ColorHex)

	require.Len(t, decodeErrs, 1)
	assert.Equal(t, "ZCOLOR", decodeErrs[0].Field)
	assert.Equal(t, int64(3), decodeErrs[0].LegacyID)
}

func TestPolicies_OptionalPeriod(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	seeder := testutil.NewLegacySeeder(t, 3)
	seeder.Policy("Acme").Number("A-1").Deductible(250).Period(start, end).Insert()
	seeder.Policy("Open Ended").Insert()
	seeder.Close()

	policies, decodeErrs := collect(t, openStore(t, seeder.Path()).Policies(context.Background()))
	require.Empty(t, decodeErrs)
	require.Len(t, policies, 2)
	require.NotNil(t, policies[0].Start)
	assert.True(t, start.Equal(*policies[0].Start))
	assert.True(t, end.Equal(*policies[0].End))
	assert.InDelta(t, 250.0, policies[0].Deductible, 0.0001)
	assert.Nil(t, policies[1].Start)
	assert.Nil(t, policies[1].End)
}

func TestEnumeration_RestartableInPrimaryKeyOrder(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	testutil.SeedInventory(seeder)
	seeder.Close()

	read := func() []int64 {
		store := openStore(t, seeder.Path())
		var pks []int64
		for it, err := range store.Items(context.Background()) {
			require.NoError(t, err)
			pks = append(pks, it.PK)
		}
		return pks
	}

	first := read()
	assert.Equal(t, []int64{1, 2, 3, 4}, first)
	assert.Equal(t, first, read())
}

func TestEnumeration_EarlyBreak(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	testutil.SeedInventory(seeder)
	seeder.Close()

	store := openStore(t, seeder.Path())
	seen := 0
	for _, err := range store.Locations(context.Background()) {
		require.NoError(t, err)
		seen++
		if seen == 1 {
			break
		}
	}
	assert.Equal(t, 1, seen)

	// the connection is released after an early break
	locations, _ := collect(t, store.Locations(context.Background()))
	assert.Len(t, locations, 3)
}

func TestEnumeration_CanceledContextIsFatal(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	testutil.SeedInventory(seeder)
	seeder.Close()

	store := openStore(t, seeder.Path())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var fatal error
	for _, err := range store.Homes(ctx) {
		if err != nil {
			fatal = err
		}
	}
	require.Error(t, fatal)
	var de *legacy.DecodeError
	assert.False(t, errors.As(fatal, &de))
}

func TestJoinTables(t *testing.T) {
	t.Parallel()

	seeder := testutil.NewLegacySeeder(t, 3)
	testutil.SeedInventory(seeder)
	seeder.LinkItemLabel(99, 1)
	seeder.Close()

	store := openStore(t, seeder.Path())
	itemLabels, _ := collect(t, store.ItemLabels(context.Background()))
	assert.Equal(t, []legacy.ItemLabel{{ItemPK: 1, LabelPK: 2}, {ItemPK: 2, LabelPK: 1}, {ItemPK: 99, LabelPK: 1}}, itemLabels)

	homePolicies, _ := collect(t, store.HomePolicies(context.Background()))
	assert.Equal(t, []legacy.HomePolicy{{HomePK: 1, PolicyPK: 1}}, homePolicies)
}

func TestPhotoRefsPaths(t *testing.T) {
	t.Parallel()

	refs := legacy.PhotoRefs{Secondary: []string{"", "b.jpg"}}
	assert.Equal(t, []legacy.PhotoPath{{SortOrder: 2, Path: "b.jpg"}}, refs.Paths())
}
