package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// Photo pass defaults.
const (
	DefaultPhotoConcurrency = 4
	DefaultMaxSkipDetails   = 50
)

var (
	// ErrSchemaNotCommitted is returned by the post-commit passes when the
	// schema migration has not reached complete.
	ErrSchemaNotCommitted = errors.New("schema migration not committed")
	// ErrSourceFileMissing marks a legacy photo file that could not be read.
	ErrSourceFileMissing = errors.New("photo source file missing")
)

// PhotoSkip is a photo that could not be migrated.
type PhotoSkip struct {
	OwnerKind string     `yaml:"owner_kind"`
	OwnerID   string     `yaml:"owner_id"`
	SortOrder int        `yaml:"sort_order"`
	Path      string     `yaml:"path"`
	Reason    SkipReason `yaml:"reason"`
	Err       error      `yaml:"-"`
}

// PhotoSummary reports one photo pass.
type PhotoSummary struct {
	Owners         int         `yaml:"owners"`          // owners with at least one legacy photo
	Expected       int         `yaml:"expected"`        // legacy photo references
	AlreadyPresent int         `yaml:"already_present"` // rows written by an earlier pass
	Migrated       int         `yaml:"migrated"`        // rows written by this pass
	Skipped        int         `yaml:"skipped"`
	Bytes          int64       `yaml:"bytes"`
	Skips          []PhotoSkip `yaml:"skips,omitempty"` // first MaxSkipDetails skips

	// UnreadableLists counts secondary photo lists dropped while staging in
	// the same run; their photos never reach legacy_photo_refs.
	UnreadableLists int `yaml:"unreadable_lists,omitempty"`
}

// PhotoMigratorConfig configures a PhotoMigrator.
type PhotoMigratorConfig struct {
	DB *gorm.DB
	// PhotosDir resolves relative legacy photo paths.
	PhotosDir string
	// Concurrency bounds concurrent file reads.
	Concurrency int
	// Rate limits file reads per second; zero disables pacing.
	Rate           float64
	MaxSkipDetails int
	Logger         logger.Logger
}

// PhotoMigrator copies legacy photo files into the photo tables. It reads
// only legacy_photo_refs, so it can run long after the legacy store was
// archived, and it only writes rows that are still missing.
type PhotoMigrator struct {
	db          *gorm.DB
	state       *datastoreV2.StateManager
	photosDir   string
	concurrency int
	limiter     *rate.Limiter
	maxDetails  int
	log         logger.Logger
	readFile    func(string) ([]byte, error)

	writeMu sync.Mutex
}

// NewPhotoMigrator creates a PhotoMigrator.
func NewPhotoMigrator(cfg PhotoMigratorConfig) *PhotoMigrator {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("migration")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultPhotoConcurrency
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), max(1, concurrency))
	}
	maxDetails := cfg.MaxSkipDetails
	if maxDetails == 0 {
		maxDetails = DefaultMaxSkipDetails
	}

	return &PhotoMigrator{
		db:          cfg.DB,
		state:       datastoreV2.NewStateManager(cfg.DB),
		photosDir:   cfg.PhotosDir,
		concurrency: concurrency,
		limiter:     limiter,
		maxDetails:  maxDetails,
		log:         log,
		readFile:    os.ReadFile,
	}
}

// photoOwner groups the legacy refs of one owner.
type photoOwner struct {
	kind    string
	id      string
	missing []entities.LegacyPhotoRef
}

// Run migrates every photo that does not have a row yet. Unreadable files
// are skipped and reported; only database failures are returned.
func (p *PhotoMigrator) Run(ctx context.Context) (*PhotoSummary, error) {
	state, err := p.state.GetState()
	if err != nil {
		return nil, err
	}
	if !state.IsComplete() {
		return nil, ErrSchemaNotCommitted
	}

	start := time.Now()
	p.log.Info("photo migration started",
		logger.String("phase", "photos"),
		logger.String("status", "started"))

	owners, summary, err := p.plan(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	record := func(migrated int, bytes int64, skipped []PhotoSkip) {
		mu.Lock()
		defer mu.Unlock()
		summary.Migrated += migrated
		summary.Bytes += bytes
		summary.Skipped += len(skipped)
		for _, s := range skipped {
			if p.maxDetails < 0 || len(summary.Skips) < p.maxDetails {
				summary.Skips = append(summary.Skips, s)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			migrated, bytes, skipped, err := p.migrateOwner(gctx, owner)
			if err != nil {
				return err
			}
			record(migrated, bytes, skipped)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.state.MarkPhotoMigrationComplete(); err != nil {
		return nil, err
	}

	p.log.Info("photo migration finished",
		logger.String("phase", "photos"),
		logger.String("status", "complete"),
		logger.Int("migrated", summary.Migrated),
		logger.Int("already_present", summary.AlreadyPresent),
		logger.Int("skipped", summary.Skipped),
		logger.Int64("bytes", summary.Bytes),
		logger.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// plan loads the legacy refs and returns the owners that still miss rows.
func (p *PhotoMigrator) plan(ctx context.Context) ([]photoOwner, *PhotoSummary, error) {
	db := p.db.WithContext(ctx)

	var refs []entities.LegacyPhotoRef
	if err := db.Order("owner_kind, owner_id, sort_order").Find(&refs).Error; err != nil {
		return nil, nil, fmt.Errorf("load legacy photo refs: %w", err)
	}

	summary := &PhotoSummary{Expected: len(refs)}
	present := make(map[string]map[string]map[int]bool) // kind -> owner -> sort order
	for _, kind := range []string{entities.KindHome, entities.KindLocation, entities.KindItem} {
		var existing []struct {
			OwnerID   string
			SortOrder int
		}
		if err := db.Table(entities.PhotoTable(kind)).Select("owner_id, sort_order").Find(&existing).Error; err != nil {
			return nil, nil, fmt.Errorf("load existing %s photos: %w", kind, err)
		}
		byOwner := make(map[string]map[int]bool)
		for _, e := range existing {
			if byOwner[e.OwnerID] == nil {
				byOwner[e.OwnerID] = make(map[int]bool)
			}
			byOwner[e.OwnerID][e.SortOrder] = true
		}
		present[kind] = byOwner
	}

	var owners []photoOwner
	for i := 0; i < len(refs); {
		j := i
		for j < len(refs) && refs[j].OwnerKind == refs[i].OwnerKind && refs[j].OwnerID == refs[i].OwnerID {
			j++
		}
		summary.Owners++

		owner := photoOwner{kind: refs[i].OwnerKind, id: refs[i].OwnerID}
		for _, ref := range refs[i:j] {
			if present[ref.OwnerKind][ref.OwnerID][ref.SortOrder] {
				summary.AlreadyPresent++
				continue
			}
			owner.missing = append(owner.missing, ref)
		}
		if len(owner.missing) > 0 {
			owners = append(owners, owner)
		}
		i = j
	}
	return owners, summary, nil
}

// migrateOwner reads the owner's missing files and inserts them in one
// small transaction.
func (p *PhotoMigrator) migrateOwner(ctx context.Context, owner photoOwner) (migrated int, bytes int64, skipped []PhotoSkip, err error) {
	table := entities.PhotoTable(owner.kind)
	if table == "" {
		return 0, 0, nil, fmt.Errorf("photo ref with unknown owner kind %q", owner.kind)
	}

	var photoRows []entities.PhotoRow
	for _, ref := range owner.missing {
		if err := p.limiter.Wait(ctx); err != nil {
			return 0, 0, nil, err
		}

		data, readErr := p.readFile(p.resolve(ref.Path))
		if readErr != nil {
			skip := PhotoSkip{
				OwnerKind: owner.kind,
				OwnerID:   owner.id,
				SortOrder: ref.SortOrder,
				Path:      ref.Path,
				Reason:    SkipSourceFileMissing,
				Err:       fmt.Errorf("%w: %w", ErrSourceFileMissing, readErr),
			}
			p.log.Warn("photo source file missing",
				logger.String("owner_kind", owner.kind),
				logger.String("owner_id", owner.id),
				logger.Int("sort_order", ref.SortOrder),
				logger.String("path", ref.Path),
				logger.Error(readErr))
			skipped = append(skipped, skip)
			continue
		}

		sum := sha256.Sum256(data)
		photoRows = append(photoRows, entities.PhotoRow{
			ID:          photoID(owner.kind, owner.id, ref.SortOrder),
			OwnerID:     owner.id,
			SortOrder:   ref.SortOrder,
			Data:        data,
			ContentHash: hex.EncodeToString(sum[:]),
			ByteSize:    int64(len(data)),
			CreatedAt:   time.Now().UTC(),
		})
		bytes += int64(len(data))
	}

	if len(photoRows) == 0 {
		return 0, 0, skipped, nil
	}

	// readers run concurrently, writes go one owner at a time
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var inserted int64
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(table).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "owner_id"}, {Name: "sort_order"}},
				DoNothing: true,
			}).
			Create(&photoRows)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, 0, nil, fmt.Errorf("insert photos for %s %s: %w", owner.kind, owner.id, err)
	}
	return int(inserted), bytes, skipped, nil
}

// resolve maps a legacy photo path to a file path.
func (p *PhotoMigrator) resolve(path string) string {
	path = strings.TrimPrefix(path, "file://")
	if filepath.IsAbs(path) || p.photosDir == "" {
		return path
	}
	return filepath.Join(p.photosDir, path)
}

// photoID derives a stable row ID from the owner and position.
func photoID(kind, ownerID string, sortOrder int) string {
	return uuid.NewSHA1(idNamespace, []byte(kind+"/"+ownerID+"/"+strconv.Itoa(sortOrder))).String()
}
