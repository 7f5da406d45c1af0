package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// ReferenceDate is the epoch legacy timestamps count from.
var ReferenceDate = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// LegacyFileName is the file name used for seeded legacy stores.
const LegacyFileName = "Inventory.sqlite"

// LegacySeeder writes a legacy store file through plain SQL. Columns are
// declared loosely so tests can plant values the reader must reject.
type LegacySeeder struct {
	t       testing.TB
	db      *sql.DB
	path    string
	version int
	uuid    string
}

// NewLegacySeeder creates an empty legacy store of the given schema version in
// a fresh temporary directory.
func NewLegacySeeder(t testing.TB, version int) *LegacySeeder {
	t.Helper()
	return NewLegacySeederAt(t, filepath.Join(t.TempDir(), LegacyFileName), version)
}

// NewLegacySeederAt creates an empty legacy store at path.
func NewLegacySeederAt(t testing.TB, path string, version int) *LegacySeeder {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err, "open legacy store")

	s := &LegacySeeder{
		t:       t,
		db:      db,
		path:    path,
		version: version,
		uuid:    uuid.NewString(),
	}
	t.Cleanup(s.Close)

	for _, stmt := range legacySchema(version) {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "create legacy schema: %s", stmt)
	}
	_, err = db.Exec("INSERT INTO Z_METADATA (Z_VERSION, Z_UUID) VALUES (?, ?)", version, s.uuid)
	require.NoError(t, err, "write Z_METADATA")

	return s
}

// legacySchema returns the DDL for a schema version. Versions outside 1..3
// get the version 3 layout so unsupported-version tests have real tables.
func legacySchema(version int) []string {
	itemHome := ", ZHOME"
	secondary := ", ZSECONDARYPHOTOURLS"
	if version < 2 {
		itemHome = ""
	}
	if version >= 1 && version < 3 {
		secondary = ""
	}

	return []string{
		"CREATE TABLE Z_METADATA (Z_VERSION INTEGER, Z_UUID TEXT)",
		"CREATE TABLE ZHOME (Z_PK INTEGER PRIMARY KEY, ZNAME, ZADDRESS1, ZCITY, ZISPRIMARY, ZCREATEDAT REAL, ZIMAGEURL" + secondary + ")",
		"CREATE TABLE ZLOCATION (Z_PK INTEGER PRIMARY KEY, ZNAME, ZDESC, ZHOME, ZIMAGEURL" + secondary + ")",
		"CREATE TABLE ZLABEL (Z_PK INTEGER PRIMARY KEY, ZNAME, ZCOLOR, ZEMOJI)",
		"CREATE TABLE ZITEM (Z_PK INTEGER PRIMARY KEY, ZTITLE, ZQUANTITY, ZPRICE, ZNOTES, ZLOCATION" + itemHome + ", ZCREATEDAT REAL, ZIMAGEURL" + secondary + ")",
		"CREATE TABLE ZPOLICY (Z_PK INTEGER PRIMARY KEY, ZPROVIDER, ZPOLICYNUMBER, ZDEDUCTIBLE, ZSTART REAL, ZEND REAL)",
		"CREATE TABLE Z_ITEMLABELS (Z_ITEM INTEGER, Z_LABEL INTEGER)",
		"CREATE TABLE Z_HOMEPOLICIES (Z_HOME INTEGER, Z_POLICY INTEGER)",
	}
}

// Path returns the legacy store file path.
func (s *LegacySeeder) Path() string {
	return s.path
}

// Dir returns the directory holding the legacy store.
func (s *LegacySeeder) Dir() string {
	return filepath.Dir(s.path)
}

// Version returns the seeded schema version.
func (s *LegacySeeder) Version() int {
	return s.version
}

// UUID returns the seeded Z_UUID.
func (s *LegacySeeder) UUID() string {
	return s.uuid
}

// Close closes the seeding connection. Tests that checksum the legacy file
// close the seeder first so no journal is left behind.
func (s *LegacySeeder) Close() {
	if s.db == nil {
		return
	}
	_ = s.db.Close()
	s.db = nil
}

// UseWAL switches the store to WAL mode on a single connection with
// automatic checkpoints off, so later writes stay in the -wal file until
// Close.
func (s *LegacySeeder) UseWAL() {
	s.t.Helper()
	s.db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA wal_autocheckpoint=0"} {
		_, err := s.db.Exec(pragma)
		require.NoError(s.t, err, pragma)
	}
}

// Exec runs a raw statement against the legacy store.
func (s *LegacySeeder) Exec(query string, args ...any) {
	s.t.Helper()
	require.NotNil(s.t, s.db, "seeder already closed")
	_, err := s.db.Exec(query, args...)
	require.NoError(s.t, err, "exec %s", query)
}

// LinkItemLabel inserts a Z_ITEMLABELS row.
func (s *LegacySeeder) LinkItemLabel(itemPK, labelPK int64) {
	s.t.Helper()
	s.Exec("INSERT INTO Z_ITEMLABELS (Z_ITEM, Z_LABEL) VALUES (?, ?)", itemPK, labelPK)
}

// LinkHomePolicy inserts a Z_HOMEPOLICIES row.
func (s *LegacySeeder) LinkHomePolicy(homePK, policyPK int64) {
	s.t.Helper()
	s.Exec("INSERT INTO Z_HOMEPOLICIES (Z_HOME, Z_POLICY) VALUES (?, ?)", homePK, policyPK)
}

// insert writes one row and returns its Z_PK.
func (s *LegacySeeder) insert(table string, cols []string, vals []any) int64 {
	s.t.Helper()
	require.NotNil(s.t, s.db, "seeder already closed")

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	res, err := s.db.Exec(query, vals...)
	require.NoError(s.t, err, "insert into %s", table)
	pk, err := res.LastInsertId()
	require.NoError(s.t, err)
	return pk
}

// CoreDataSeconds converts t to seconds since the legacy reference date.
func CoreDataSeconds(t time.Time) float64 {
	return t.Sub(ReferenceDate).Seconds()
}
