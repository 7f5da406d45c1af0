package migration

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// CanonicalizationError means the canonicalizer found ownership it cannot
// repair. It signals a bug upstream, not bad user data.
type CanonicalizationError struct {
	Reason  string
	Orphans int
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalization failed: %s (%d orphans)", e.Reason, e.Orphans)
}

// CanonicalizationResult reports what one canonicalizer run changed.
type CanonicalizationResult struct {
	CanonicalHomeID     string   `yaml:"canonical_home_id"`
	PrimaryUpdates      int      `yaml:"primary_updates"`
	PhantomsDeleted     []string `yaml:"phantoms_deleted,omitempty"`
	LocationsReassigned int      `yaml:"locations_reassigned"`
	ItemsInherited      int      `yaml:"items_inherited"` // took their location's home
	ItemsReassigned     int      `yaml:"items_reassigned"`
	PendingCleared      int      `yaml:"pending_cleared"`
}

// Changed reports whether the run modified anything.
func (r *CanonicalizationResult) Changed() bool {
	return r.PrimaryUpdates > 0 || len(r.PhantomsDeleted) > 0 || r.LocationsReassigned > 0 ||
		r.ItemsInherited > 0 || r.ItemsReassigned > 0 || r.PendingCleared > 0
}

// HomeCanonicalizerConfig configures a HomeCanonicalizer.
type HomeCanonicalizerConfig struct {
	DB *gorm.DB
	// TieBreak ranks otherwise equal primary candidates: oldest, newest or
	// most_contents. Empty means oldest.
	TieBreak         string
	DefaultHomeNames []string
	Logger           logger.Logger
}

// HomeCanonicalizer settles which home is primary, removes placeholder homes
// nobody used and gives every location and item a home.
type HomeCanonicalizer struct {
	db       *gorm.DB
	state    *datastoreV2.StateManager
	tieBreak string
	names    *homeNameMatcher
	log      logger.Logger
}

// NewHomeCanonicalizer creates a HomeCanonicalizer.
func NewHomeCanonicalizer(cfg HomeCanonicalizerConfig) *HomeCanonicalizer {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("canonicalize")
	}
	tieBreak := cfg.TieBreak
	if tieBreak == "" {
		tieBreak = conf.TieBreakOldest
	}
	names := cfg.DefaultHomeNames
	if names == nil {
		names = conf.DefaultHomeNames
	}
	return &HomeCanonicalizer{
		db:       cfg.DB,
		state:    datastoreV2.NewStateManager(cfg.DB),
		tieBreak: tieBreak,
		names:    newHomeNameMatcher(names),
		log:      log,
	}
}

// homeCandidate is a home with the facts ranking and culling need.
type homeCandidate struct {
	entities.Home
	locations int64
	items     int64
	policies  int64
	photos    int64
}

func (h *homeCandidate) contents() int64 {
	return h.locations + h.items
}

// Run canonicalizes home ownership. A second run changes nothing.
func (c *HomeCanonicalizer) Run(ctx context.Context) (*CanonicalizationResult, error) {
	state, err := c.state.GetState()
	if err != nil {
		return nil, err
	}
	if !state.IsComplete() {
		return nil, ErrSchemaNotCommitted
	}

	start := time.Now()
	db := c.db.WithContext(ctx)

	homes, err := c.loadHomes(db)
	if err != nil {
		return nil, err
	}

	result := &CanonicalizationResult{}
	if len(homes) == 0 {
		orphans, err := c.countOrphans(db)
		if err != nil {
			return nil, err
		}
		if orphans > 0 {
			return nil, &CanonicalizationError{Reason: "no home to assign orphans to", Orphans: orphans}
		}
		return result, c.state.MarkHomeCullingComplete()
	}

	canonical := c.selectCanonical(homes)
	result.CanonicalHomeID = canonical.ID

	if result.PrimaryUpdates, err = c.writePrimary(db, canonical.ID); err != nil {
		return nil, err
	}
	if result.PhantomsDeleted, err = c.deletePhantoms(db, homes, canonical.ID); err != nil {
		return nil, err
	}
	if err := c.reassignOrphans(db, canonical.ID, result); err != nil {
		return nil, err
	}

	if err := c.state.MarkHomeCullingComplete(); err != nil {
		return nil, err
	}

	c.log.Info("home canonicalization finished",
		logger.String("phase", "canonicalize"),
		logger.String("status", "complete"),
		logger.String("canonical_home_id", canonical.ID),
		logger.Int("primary_updates", result.PrimaryUpdates),
		logger.Int("phantoms_deleted", len(result.PhantomsDeleted)),
		logger.Int("locations_reassigned", result.LocationsReassigned),
		logger.Int("items_inherited", result.ItemsInherited),
		logger.Int("items_reassigned", result.ItemsReassigned),
		logger.Bool("changed", result.Changed()),
		logger.Duration("elapsed", time.Since(start)))

	return result, nil
}

// ownerCounts counts rows per owning home in table.
func ownerCounts(db *gorm.DB, table, column, where string, args ...any) (map[string]int64, error) {
	var counts []struct {
		Owner string
		N     int64
	}
	q := db.Table(table).Select(column + " AS owner, COUNT(*) AS n").Where(column + " IS NOT NULL")
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Group(column).Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count %s per home: %w", table, err)
	}
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Owner] = c.N
	}
	return out, nil
}

func (c *HomeCanonicalizer) loadHomes(db *gorm.DB) ([]*homeCandidate, error) {
	var rows []entities.Home
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load homes: %w", err)
	}

	locations, err := ownerCounts(db, entities.InventoryLocation{}.TableName(), "home_id", "")
	if err != nil {
		return nil, err
	}
	items, err := ownerCounts(db, entities.InventoryItem{}.TableName(), "home_id", "")
	if err != nil {
		return nil, err
	}
	policies, err := ownerCounts(db, entities.HomePolicy{}.TableName(), "home_id", "")
	if err != nil {
		return nil, err
	}
	photos, err := ownerCounts(db, entities.HomePhoto{}.TableName(), "owner_id", "")
	if err != nil {
		return nil, err
	}
	refs, err := ownerCounts(db, entities.LegacyPhotoRef{}.TableName(), "owner_id", "owner_kind = ?", entities.KindHome)
	if err != nil {
		return nil, err
	}

	homes := make([]*homeCandidate, 0, len(rows))
	for _, h := range rows {
		homes = append(homes, &homeCandidate{
			Home:      h,
			locations: locations[h.ID],
			items:     items[h.ID],
			policies:  policies[h.ID],
			// a pending photo counts as much as a migrated one
			photos: max(photos[h.ID], refs[h.ID]),
		})
	}
	return homes, nil
}

// hasMetadata reports whether the user ever edited the home.
func (c *HomeCanonicalizer) hasMetadata(h *homeCandidate) bool {
	return !c.names.IsDefault(h.Name) || strings.TrimSpace(h.Address1) != "" || strings.TrimSpace(h.City) != ""
}

// selectCanonical keeps a sole primary, otherwise ranks the legacy primaries
// (or all homes when there are none).
func (c *HomeCanonicalizer) selectCanonical(homes []*homeCandidate) *homeCandidate {
	var primaries, legacyPrimaries []*homeCandidate
	for _, h := range homes {
		if h.IsPrimary {
			primaries = append(primaries, h)
		}
		if h.LegacyPrimary {
			legacyPrimaries = append(legacyPrimaries, h)
		}
	}
	if len(primaries) == 1 {
		return primaries[0]
	}

	candidates := legacyPrimaries
	if len(candidates) == 0 {
		candidates = homes
	}
	candidates = slices.Clone(candidates)
	slices.SortStableFunc(candidates, c.compare)
	return candidates[0]
}

// compare orders a before b when a is the better canonical home.
func (c *HomeCanonicalizer) compare(a, b *homeCandidate) int {
	am, bm := c.hasMetadata(a), c.hasMetadata(b)
	if am != bm {
		if am {
			return -1
		}
		return 1
	}

	var byTie int
	switch c.tieBreak {
	case conf.TieBreakNewest:
		byTie = b.CreatedAt.Compare(a.CreatedAt)
	case conf.TieBreakMostContents:
		byTie = cmp.Compare(b.contents(), a.contents())
	default:
		byTie = a.CreatedAt.Compare(b.CreatedAt)
	}
	if byTie != 0 {
		return byTie
	}
	return cmp.Compare(a.ID, b.ID)
}

// writePrimary makes canonicalID the only primary home in one transaction.
func (c *HomeCanonicalizer) writePrimary(db *gorm.DB, canonicalID string) (int, error) {
	var changed int64
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entities.Home{}).
			Where("id <> ? AND is_primary = ?", canonicalID, true).
			Update("is_primary", false)
		if res.Error != nil {
			return res.Error
		}
		changed += res.RowsAffected

		res = tx.Model(&entities.Home{}).
			Where("id = ? AND is_primary = ?", canonicalID, false).
			Update("is_primary", true)
		if res.Error != nil {
			return res.Error
		}
		changed += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write primary home: %w", err)
	}
	return int(changed), nil
}

// deletePhantoms removes placeholder homes that own nothing.
func (c *HomeCanonicalizer) deletePhantoms(db *gorm.DB, homes []*homeCandidate, canonicalID string) ([]string, error) {
	var phantoms []string
	for _, h := range homes {
		if h.ID == canonicalID || c.hasMetadata(h) {
			continue
		}
		if h.locations > 0 || h.items > 0 || h.policies > 0 || h.photos > 0 {
			continue
		}
		phantoms = append(phantoms, h.ID)
	}
	if len(phantoms) == 0 {
		return nil, nil
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_kind = ? AND owner_id IN ?", entities.KindHome, phantoms).
			Delete(&entities.LegacyPhotoRef{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", phantoms).Delete(&entities.Home{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("delete phantom homes: %w", err)
	}

	c.log.Info("deleted phantom homes",
		logger.String("phase", "canonicalize"),
		logger.Int("count", len(phantoms)),
		logger.Any("ids", phantoms))
	return phantoms, nil
}

// orphanCondition matches rows in table whose home is unset or gone.
func orphanCondition(table string) string {
	return "(" + table + ".home_id IS NULL OR NOT EXISTS (SELECT 1 FROM homes h WHERE h.id = " + table + ".home_id))"
}

func (c *HomeCanonicalizer) countOrphans(db *gorm.DB) (int, error) {
	var locs, items int64
	locTable := entities.InventoryLocation{}.TableName()
	itemTable := entities.InventoryItem{}.TableName()
	if err := db.Table(locTable).Where(orphanCondition(locTable)).Count(&locs).Error; err != nil {
		return 0, fmt.Errorf("count orphan locations: %w", err)
	}
	if err := db.Table(itemTable).Where(orphanCondition(itemTable)).Count(&items).Error; err != nil {
		return 0, fmt.Errorf("count orphan items: %w", err)
	}
	return int(locs + items), nil
}

// reassignOrphans gives every location and item a home in one transaction.
// Items inherit their location's home before falling back to canonicalID.
func (c *HomeCanonicalizer) reassignOrphans(db *gorm.DB, canonicalID string, result *CanonicalizationResult) error {
	locTable := entities.InventoryLocation{}.TableName()
	itemTable := entities.InventoryItem{}.TableName()

	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Table(locTable).
			Where(orphanCondition(locTable)).
			Updates(map[string]any{"home_id": canonicalID, "pending_home": false})
		if res.Error != nil {
			return res.Error
		}
		result.LocationsReassigned = int(res.RowsAffected)

		res = tx.Table(itemTable).
			Where(orphanCondition(itemTable)).
			Where("location_id IS NOT NULL AND EXISTS (SELECT 1 FROM inventory_locations l JOIN homes h ON h.id = l.home_id WHERE l.id = " + itemTable + ".location_id)").
			Updates(map[string]any{
				"home_id":      gorm.Expr("(SELECT l.home_id FROM inventory_locations l WHERE l.id = " + itemTable + ".location_id)"),
				"pending_home": false,
			})
		if res.Error != nil {
			return res.Error
		}
		result.ItemsInherited = int(res.RowsAffected)

		res = tx.Table(itemTable).
			Where(orphanCondition(itemTable)).
			Updates(map[string]any{"home_id": canonicalID, "pending_home": false})
		if res.Error != nil {
			return res.Error
		}
		result.ItemsReassigned = int(res.RowsAffected)

		for _, table := range []string{locTable, itemTable} {
			res = tx.Table(table).
				Where("pending_home = ? AND home_id IS NOT NULL", true).
				Update("pending_home", false)
			if res.Error != nil {
				return res.Error
			}
			result.PendingCleared += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reassign orphans: %w", err)
	}
	return nil
}
