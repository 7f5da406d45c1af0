// Package legacy reads the legacy object-graph store (a Core Data style
// SQLite file) without ever writing to it.
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"

	// Pure-Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/movingbox/storemigrate/internal/logger"
)

// Store is an open, read-only legacy store.
type Store struct {
	db      *sql.DB
	path    string
	version int
	uuid    string
	log     logger.Logger
}

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger used for per-row warnings.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Open opens the store at path read-only and checks its schema version.
// Failures are *StoreError.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("legacy")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &StoreError{Kind: KindUnreadable, Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &StoreError{Kind: KindUnreadable, Path: path, Err: fmt.Errorf("is a directory")}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, &StoreError{Kind: KindUnreadable, Path: path, Err: err}
	}
	// a read-only handle gains nothing from more connections
	db.SetMaxOpenConns(1)

	var version sql.NullInt64
	var storeUUID sql.NullString
	err = db.QueryRowContext(ctx, "SELECT Z_VERSION, Z_UUID FROM Z_METADATA LIMIT 1").Scan(&version, &storeUUID)
	if err != nil {
		_ = db.Close()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &StoreError{Kind: KindUnreadable, Path: path, Err: fmt.Errorf("read metadata: %w", err)}
	}

	if !version.Valid || !slices.Contains(SupportedVersions, int(version.Int64)) {
		_ = db.Close()
		return nil, &StoreError{Kind: KindUnsupportedVersion, Path: path, Version: int(version.Int64)}
	}

	s.db = db
	s.version = int(version.Int64)
	s.uuid = storeUUID.String

	s.log.Debug("opened legacy store",
		logger.String("path", path),
		logger.Int("version", s.version))

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Version returns the legacy schema version.
func (s *Store) Version() int {
	return s.version
}

// UUID returns the store identifier from Z_METADATA. It seeds deterministic
// target IDs, so two migrations of the same store produce the same rows.
func (s *Store) UUID() string {
	if s.uuid == "" {
		return s.path
	}
	return s.uuid
}

// CountEntities counts rows per kind, including rows that will fail to decode.
func (s *Store) CountEntities(ctx context.Context) (EntityCounts, error) {
	var c EntityCounts
	targets := []struct {
		table string
		dst   *int
	}{
		{"ZHOME", &c.Homes},
		{"ZLOCATION", &c.Locations},
		{"ZITEM", &c.Items},
		{"ZLABEL", &c.Labels},
		{"ZPOLICY", &c.Policies},
		{"Z_ITEMLABELS", &c.ItemLabels},
		{"Z_HOMEPOLICIES", &c.HomePolicies},
	}
	for _, t := range targets {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return EntityCounts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}
