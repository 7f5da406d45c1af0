package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

var (
	// ErrImplausibleEmptyResult means staging produced no homes from a store
	// that clearly had data.
	ErrImplausibleEmptyResult = errors.New("implausible empty migration result")
	// ErrCountMismatch means the staged rows do not add up to the source
	// minus the logged skips, or violate an ownership rule.
	ErrCountMismatch = errors.New("migrated counts do not match source")
)

// ValidationError describes the first check the gate rejected.
type ValidationError struct {
	Check    string // anchor, count, ownership, reference, primary
	Kind     string // entity kind, if the check is per kind
	Expected int
	Actual   int
	Err      error // ErrImplausibleEmptyResult or ErrCountMismatch
}

func (e *ValidationError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("validation %s check failed for %s: expected %d, got %d: %v", e.Check, e.Kind, e.Expected, e.Actual, e.Err)
	}
	return fmt.Sprintf("validation %s check failed: expected %d, got %d: %v", e.Check, e.Expected, e.Actual, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Approval is the gate's permission to commit one staged transaction. Its
// zero value commits nothing.
type Approval struct {
	token     uuid.UUID
	checkedAt time.Time
}

// CheckedAt returns when the gate approved.
func (a Approval) CheckedAt() time.Time {
	return a.checkedAt
}

// ValidationGate inspects a staged transaction before it may commit.
type ValidationGate struct {
	log logger.Logger
	now func() time.Time
}

// NewValidationGate creates a gate.
func NewValidationGate(log logger.Logger) *ValidationGate {
	if log == nil {
		log = logger.Global().Module("migration")
	}
	return &ValidationGate{log: log, now: time.Now}
}

// Evaluate counts rows through the uncommitted transaction and returns an
// Approval bound to st, or a *ValidationError.
func (g *ValidationGate) Evaluate(ctx context.Context, st *StagedTransaction) (Approval, error) {
	if st.Finished() {
		return Approval{}, ErrAlreadyFinished
	}
	tx := st.tx.WithContext(ctx)

	staged := make(map[string]int, len(entities.CountedKinds))
	for _, kind := range entities.CountedKinds {
		n, err := countKind(tx, kind)
		if err != nil {
			return Approval{}, err
		}
		staged[kind] = n
	}

	checks := []func() error{
		func() error { return checkAnchor(st, staged) },
		func() error { return checkCounts(st, staged) },
		func() error { return checkOwnership(tx) },
		func() error { return checkReferences(tx) },
		func() error { return checkSinglePrimary(tx) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			g.log.Warn("staged migration rejected",
				logger.String("phase", "validate"),
				logger.String("status", "rejected"),
				logger.Error(err))
			return Approval{}, err
		}
	}

	g.log.Info("staged migration approved",
		logger.String("phase", "validate"),
		logger.String("status", "approved"),
		logger.Int("homes", staged[entities.KindHome]),
		logger.Int("locations", staged[entities.KindLocation]),
		logger.Int("items", staged[entities.KindItem]))

	return Approval{token: st.token, checkedAt: g.now()}, nil
}

func countKind(tx *gorm.DB, kind string) (int, error) {
	var model any
	switch kind {
	case entities.KindHome:
		model = &entities.Home{}
	case entities.KindLocation:
		model = &entities.InventoryLocation{}
	case entities.KindLabel:
		model = &entities.InventoryLabel{}
	case entities.KindItem:
		model = &entities.InventoryItem{}
	case entities.KindPolicy:
		model = &entities.InsurancePolicy{}
	case entities.KindItemLabel:
		model = &entities.ItemLabel{}
	case entities.KindHomePolicy:
		model = &entities.HomePolicy{}
	default:
		return 0, fmt.Errorf("no table for kind %q", kind)
	}

	var n int64
	if err := tx.Model(model).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return int(n), nil
}

// checkAnchor rejects an empty home set when the source has homes or
// anything that should have belonged to one.
func checkAnchor(st *StagedTransaction, staged map[string]int) error {
	if staged[entities.KindHome] > 0 {
		return nil
	}
	src := st.Source
	if src.Homes > 0 || src.Locations > 0 || src.Items > 0 {
		return &ValidationError{
			Check:    "anchor",
			Kind:     entities.KindHome,
			Expected: src.Homes - st.Skips.Removed(entities.KindHome),
			Actual:   0,
			Err:      ErrImplausibleEmptyResult,
		}
	}
	return nil
}

// checkCounts requires staged == source - skipped for every kind, both as
// counted in the database and as tallied by the stager.
func checkCounts(st *StagedTransaction, staged map[string]int) error {
	for _, kind := range entities.CountedKinds {
		want := st.Source.ByKind(kind) - st.Skips.Removed(kind)
		got := staged[kind]
		if got != want || st.Staged[kind] != got {
			return &ValidationError{Check: "count", Kind: kind, Expected: want, Actual: got, Err: ErrCountMismatch}
		}
	}
	return nil
}

func checkOwnership(tx *gorm.DB) error {
	for _, model := range []any{&entities.InventoryLocation{}, &entities.InventoryItem{}} {
		var n int64
		if err := tx.Model(model).Where("home_id IS NULL AND pending_home = ?", false).Count(&n).Error; err != nil {
			return fmt.Errorf("check ownership: %w", err)
		}
		if n > 0 {
			return &ValidationError{Check: "ownership", Kind: tableKind(model), Expected: 0, Actual: int(n), Err: ErrCountMismatch}
		}
	}
	return nil
}

// checkReferences looks for foreign keys pointing at missing rows. The
// schema enforces them, but not on every driver inside an open transaction.
func checkReferences(tx *gorm.DB) error {
	queries := []struct {
		kind  string
		query string
	}{
		{entities.KindLocation, "SELECT COUNT(*) FROM inventory_locations l WHERE l.home_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM homes h WHERE h.id = l.home_id)"},
		{entities.KindItem, "SELECT COUNT(*) FROM inventory_items i WHERE i.home_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM homes h WHERE h.id = i.home_id)"},
		{entities.KindItem, "SELECT COUNT(*) FROM inventory_items i WHERE i.location_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM inventory_locations l WHERE l.id = i.location_id)"},
	}
	for _, q := range queries {
		var n int64
		if err := tx.Raw(q.query).Scan(&n).Error; err != nil {
			return fmt.Errorf("check references: %w", err)
		}
		if n > 0 {
			return &ValidationError{Check: "reference", Kind: q.kind, Expected: 0, Actual: int(n), Err: ErrCountMismatch}
		}
	}
	return nil
}

func checkSinglePrimary(tx *gorm.DB) error {
	var n int64
	if err := tx.Model(&entities.Home{}).Where("is_primary = ?", true).Count(&n).Error; err != nil {
		return fmt.Errorf("check primary home: %w", err)
	}
	if n > 1 {
		return &ValidationError{Check: "primary", Kind: entities.KindHome, Expected: 1, Actual: int(n), Err: ErrCountMismatch}
	}
	return nil
}

func tableKind(model any) string {
	switch model.(type) {
	case *entities.InventoryLocation:
		return entities.KindLocation
	case *entities.InventoryItem:
		return entities.KindItem
	default:
		return ""
	}
}
