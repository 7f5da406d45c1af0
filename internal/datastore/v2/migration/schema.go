// Package migration converts a legacy object-graph store into the relational
// target schema, then runs the photo and home canonicalization passes.
//
// A migration attempt stages every row inside one transaction
// (SchemaMigrator.Stage), has the ValidationGate inspect the uncommitted
// state, and commits only with the Approval the gate returns.
package migration

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/datastore/legacy"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

// insertBatchSize bounds rows per INSERT statement.
const insertBatchSize = 200

// ErrAlreadyFinished is returned when a staged transaction is committed after
// it was already committed or rolled back.
var ErrAlreadyFinished = errors.New("staged transaction already finished")

// LegacyReader is the part of *legacy.Store the schema migration reads.
type LegacyReader interface {
	UUID() string
	CountEntities(ctx context.Context) (legacy.EntityCounts, error)
	Homes(ctx context.Context) iter.Seq2[legacy.Home, error]
	Locations(ctx context.Context) iter.Seq2[legacy.Location, error]
	Labels(ctx context.Context) iter.Seq2[legacy.Label, error]
	Items(ctx context.Context) iter.Seq2[legacy.Item, error]
	Policies(ctx context.Context) iter.Seq2[legacy.Policy, error]
	ItemLabels(ctx context.Context) iter.Seq2[legacy.ItemLabel, error]
	HomePolicies(ctx context.Context) iter.Seq2[legacy.HomePolicy, error]
}

// SchemaMigratorConfig configures a SchemaMigrator.
type SchemaMigratorConfig struct {
	DB     *gorm.DB
	Logger logger.Logger
	// MaxSkipDetails bounds per-entity skips kept in detail; negative keeps all.
	MaxSkipDetails int
}

// SchemaMigrator stages a legacy store into the target schema.
type SchemaMigrator struct {
	db         *gorm.DB
	log        logger.Logger
	maxDetails int
}

// NewSchemaMigrator creates a SchemaMigrator.
func NewSchemaMigrator(cfg SchemaMigratorConfig) *SchemaMigrator {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("migration")
	}
	return &SchemaMigrator{db: cfg.DB, log: log, maxDetails: cfg.MaxSkipDetails}
}

// StagedTransaction is an open target transaction holding a complete staged
// migration. Nothing in it is visible until Commit.
type StagedTransaction struct {
	tx    *gorm.DB
	token uuid.UUID

	// Source holds the legacy row counts read before staging.
	Source legacy.EntityCounts
	// Staged holds rows written per kind.
	Staged map[string]int
	// Skips holds every per-entity skip logged while staging.
	Skips *SkipLog
	// IDs maps legacy primary keys to target IDs.
	IDs *IDMap

	mu       sync.Mutex
	finished bool
}

// Commit commits the staged rows. The approval must come from the gate's
// evaluation of this transaction.
func (st *StagedTransaction) Commit(a Approval) error {
	return st.commit(a, nil)
}

// commit runs beforeCommit inside the transaction, then commits. If
// beforeCommit fails the transaction is rolled back.
func (st *StagedTransaction) commit(a Approval, beforeCommit func(tx *gorm.DB) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return ErrAlreadyFinished
	}
	if a.token == uuid.Nil || a.token != st.token {
		return fmt.Errorf("commit refused: approval was not issued for this transaction")
	}
	st.finished = true
	if beforeCommit != nil {
		if err := beforeCommit(st.tx); err != nil {
			_ = st.tx.Rollback().Error
			return err
		}
	}
	if err := st.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit staged migration: %w", err)
	}
	return nil
}

// Rollback discards the staged rows. It is safe to call at any time and more
// than once.
func (st *StagedTransaction) Rollback() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.finished {
		return nil
	}
	st.finished = true
	if err := st.tx.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		return fmt.Errorf("rollback staged migration: %w", err)
	}
	return nil
}

// Finished reports whether the transaction was committed or rolled back.
func (st *StagedTransaction) Finished() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.finished
}

// stager holds the state of one Stage call.
type stager struct {
	ctx    context.Context
	tx     *gorm.DB
	log    logger.Logger
	st     *StagedTransaction
	photos []entities.LegacyPhotoRef
}

// Stage reads every legacy row and writes it into a new transaction in
// dependency order. On error the transaction is rolled back before return.
func (m *SchemaMigrator) Stage(ctx context.Context, r LegacyReader) (*StagedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts, err := r.CountEntities(ctx)
	if err != nil {
		return nil, err
	}

	tx := m.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin staging transaction: %w", tx.Error)
	}

	st := &StagedTransaction{
		tx:     tx,
		token:  uuid.New(),
		Source: counts,
		Staged: make(map[string]int, len(entities.CountedKinds)),
		Skips:  NewSkipLog(m.maxDetails),
		IDs:    NewIDMap(r.UUID()),
	}
	s := &stager{ctx: ctx, tx: tx, log: m.log, st: st}

	steps := []struct {
		kind string
		run  func(LegacyReader) error
	}{
		{entities.KindHome, s.stageHomes},
		{entities.KindLocation, s.stageLocations},
		{entities.KindLabel, s.stageLabels},
		{entities.KindItem, s.stageItems},
		{entities.KindPolicy, s.stagePolicies},
		{entities.KindItemLabel, s.stageItemLabels},
		{entities.KindHomePolicy, s.stageHomePolicies},
		{entities.KindPhoto, func(LegacyReader) error { return s.stagePhotoRefs() }},
	}
	for _, step := range steps {
		if err := step.run(r); err != nil {
			_ = st.Rollback()
			return nil, fmt.Errorf("stage %s: %w", step.kind, err)
		}
	}

	m.log.Info("schema migration staged",
		logger.String("phase", "schema"),
		logger.String("status", "staged"),
		logger.Int("homes", st.Staged[entities.KindHome]),
		logger.Int("locations", st.Staged[entities.KindLocation]),
		logger.Int("items", st.Staged[entities.KindItem]),
		logger.Int("labels", st.Staged[entities.KindLabel]),
		logger.Int("policies", st.Staged[entities.KindPolicy]),
		logger.Int("skipped", st.Skips.Total()))

	return st, nil
}

// rows drains seq, handing decoded values to fn. Per-row decode errors are
// logged as skips; any other error ends staging.
func rows[T any](s *stager, kind string, seq iter.Seq2[T, error], fn func(T) error) error {
	for v, err := range seq {
		if err != nil {
			var de *legacy.DecodeError
			if errors.As(err, &de) {
				s.skip(Skip{Kind: kind, LegacyID: de.LegacyID, Reason: SkipDecodeFailure, Detail: de.Field + ": " + de.Reason})
				continue
			}
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return s.ctx.Err()
}

func (s *stager) skip(sk Skip) {
	s.st.Skips.Add(sk)
	s.log.Debug("legacy row skipped",
		logger.String("kind", sk.Kind),
		logger.Int64("legacy_id", sk.LegacyID),
		logger.String("reason", string(sk.Reason)),
		logger.String("detail", sk.Detail))
}

func (s *stager) insert(kind string, batch any, n int) error {
	if n == 0 {
		return nil
	}
	if err := s.tx.CreateInBatches(batch, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert %s rows: %w", kind, err)
	}
	s.st.Staged[kind] += n
	return nil
}

// addPhotoRefs queues the owner's photo paths. A dropped secondary list is
// a photo skip so the photo count still adds up.
func (s *stager) addPhotoRefs(kind string, legacyID int64, ownerID string, refs legacy.PhotoRefs) {
	if refs.SecondaryError != "" {
		s.skip(Skip{Kind: entities.KindPhoto, LegacyID: legacyID, Reason: SkipDecodeFailure,
			Detail: kind + " ZSECONDARYPHOTOURLS: " + refs.SecondaryError})
	}
	for _, p := range refs.Paths() {
		s.photos = append(s.photos, entities.LegacyPhotoRef{
			OwnerKind: kind,
			OwnerID:   ownerID,
			SortOrder: p.SortOrder,
			Path:      p.Path,
		})
	}
}

func (s *stager) stageHomes(r LegacyReader) error {
	var homes []entities.Home
	legacyPrimaries := 0
	err := rows(s, entities.KindHome, r.Homes(s.ctx), func(h legacy.Home) error {
		id := s.st.IDs.Assign(entities.KindHome, h.PK)
		if h.IsPrimary {
			legacyPrimaries++
		}
		homes = append(homes, entities.Home{
			ID:            id,
			LegacyID:      h.PK,
			Name:          h.Name,
			Address1:      h.Address1,
			City:          h.City,
			LegacyPrimary: h.IsPrimary,
			CreatedAt:     h.CreatedAt,
		})
		s.addPhotoRefs(entities.KindHome, h.PK, id, h.Photos)
		return nil
	})
	if err != nil {
		return err
	}

	// an unambiguous legacy primary carries over; the canonicalizer settles the rest
	if legacyPrimaries == 1 {
		for i := range homes {
			homes[i].IsPrimary = homes[i].LegacyPrimary
		}
	}
	return s.insert(entities.KindHome, &homes, len(homes))
}

func (s *stager) stageLocations(r LegacyReader) error {
	var locs []entities.InventoryLocation
	err := rows(s, entities.KindLocation, r.Locations(s.ctx), func(l legacy.Location) error {
		id := s.st.IDs.Assign(entities.KindLocation, l.PK)
		homeID, dangling := s.st.IDs.Resolve(entities.KindHome, l.HomePK)
		if dangling {
			s.skip(Skip{Kind: entities.KindLocation, LegacyID: l.PK, Reason: SkipDanglingReference,
				Detail: fmt.Sprintf("home %d", *l.HomePK)})
		}
		locs = append(locs, entities.InventoryLocation{
			ID:          id,
			LegacyID:    l.PK,
			Name:        l.Name,
			Description: l.Description,
			HomeID:      homeID,
			PendingHome: homeID == nil,
		})
		s.addPhotoRefs(entities.KindLocation, l.PK, id, l.Photos)
		return nil
	})
	if err != nil {
		return err
	}
	return s.insert(entities.KindLocation, &locs, len(locs))
}

func (s *stager) stageLabels(r LegacyReader) error {
	var labels []entities.InventoryLabel
	err := rows(s, entities.KindLabel, r.Labels(s.ctx), func(l legacy.Label) error {
		labels = append(labels, entities.InventoryLabel{
			ID:       s.st.IDs.Assign(entities.KindLabel, l.PK),
			LegacyID: l.PK,
			Name:     l.Name,
			ColorHex: l.ColorHex,
			Emoji:    l.Emoji,
		})
		return nil
	})
	if err != nil {
		return err
	}
	return s.insert(entities.KindLabel, &labels, len(labels))
}

func (s *stager) stageItems(r LegacyReader) error {
	var items []entities.InventoryItem
	err := rows(s, entities.KindItem, r.Items(s.ctx), func(it legacy.Item) error {
		id := s.st.IDs.Assign(entities.KindItem, it.PK)

		locationID, danglingLoc := s.st.IDs.Resolve(entities.KindLocation, it.LocationPK)
		if danglingLoc {
			s.skip(Skip{Kind: entities.KindItem, LegacyID: it.PK, Reason: SkipDanglingReference,
				Detail: fmt.Sprintf("location %d", *it.LocationPK)})
		}
		homeID, danglingHome := s.st.IDs.Resolve(entities.KindHome, it.HomePK)
		if danglingHome {
			s.skip(Skip{Kind: entities.KindItem, LegacyID: it.PK, Reason: SkipDanglingReference,
				Detail: fmt.Sprintf("home %d", *it.HomePK)})
		}

		items = append(items, entities.InventoryItem{
			ID:          id,
			LegacyID:    it.PK,
			Title:       it.Title,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Notes:       it.Notes,
			LocationID:  locationID,
			HomeID:      homeID,
			PendingHome: homeID == nil,
			CreatedAt:   it.CreatedAt,
		})
		s.addPhotoRefs(entities.KindItem, it.PK, id, it.Photos)
		return nil
	})
	if err != nil {
		return err
	}
	return s.insert(entities.KindItem, &items, len(items))
}

func (s *stager) stagePolicies(r LegacyReader) error {
	var policies []entities.InsurancePolicy
	err := rows(s, entities.KindPolicy, r.Policies(s.ctx), func(p legacy.Policy) error {
		policies = append(policies, entities.InsurancePolicy{
			ID:           s.st.IDs.Assign(entities.KindPolicy, p.PK),
			LegacyID:     p.PK,
			Provider:     p.Provider,
			PolicyNumber: p.PolicyNumber,
			Deductible:   p.Deductible,
			StartDate:    p.Start,
			EndDate:      p.End,
		})
		return nil
	})
	if err != nil {
		return err
	}
	return s.insert(entities.KindPolicy, &policies, len(policies))
}

func (s *stager) stageItemLabels(r LegacyReader) error {
	var links []entities.ItemLabel
	seen := make(map[[2]string]struct{})
	err := rows(s, entities.KindItemLabel, r.ItemLabels(s.ctx), func(j legacy.ItemLabel) error {
		itemID, okItem := s.st.IDs.Lookup(entities.KindItem, j.ItemPK)
		labelID, okLabel := s.st.IDs.Lookup(entities.KindLabel, j.LabelPK)
		if !okItem || !okLabel {
			s.skip(Skip{Kind: entities.KindItemLabel, LegacyID: j.ItemPK, Reason: SkipDanglingJoin,
				Detail: fmt.Sprintf("item %d label %d", j.ItemPK, j.LabelPK)})
			return nil
		}
		key := [2]string{itemID, labelID}
		if _, dup := seen[key]; dup {
			s.skip(Skip{Kind: entities.KindItemLabel, LegacyID: j.ItemPK, Reason: SkipDuplicateJoin})
			return nil
		}
		seen[key] = struct{}{}
		links = append(links, entities.ItemLabel{ItemID: itemID, LabelID: labelID})
		return nil
	})
	if err != nil {
		return err
	}
	return s.insert(entities.KindItemLabel, &links, len(links))
}

func (s *stager) stageHomePolicies(r LegacyReader) error {
	var links []entities.HomePolicy
	seen := make(map[[2]string]struct{})
	err := rows(s, entities.KindHomePolicy, r.HomePolicies(s.ctx), func(j legacy.HomePolicy) error {
		homeID, okHome := s.st.IDs.Lookup(entities.KindHome, j.HomePK)
		policyID, okPolicy := s.st.IDs.Lookup(entities.KindPolicy, j.PolicyPK)
		if !okHome || !okPolicy {
			s.skip(Skip{Kind: entities.KindHomePolicy, LegacyID: j.HomePK, Reason: SkipDanglingJoin,
				Detail: fmt.Sprintf("home %d policy %d", j.HomePK, j.PolicyPK)})
			return nil
		}
		key := [2]string{homeID, policyID}
		if _, dup := seen[key]; dup {
			s.skip(Skip{Kind: entities.KindHomePolicy, LegacyID: j.HomePK, Reason: SkipDuplicateJoin})
			return nil
		}
		seen[key] = struct{}{}
		links = append(links, entities.HomePolicy{HomeID: homeID, PolicyID: policyID})
		return nil
	})
	if err != nil {
		return err
	}
	return s.insert(entities.KindHomePolicy, &links, len(links))
}

// stagePhotoRefs writes the photo paths collected from homes, locations and
// items so the photo pass can run without the legacy store.
func (s *stager) stagePhotoRefs() error {
	if len(s.photos) == 0 {
		return nil
	}
	if err := s.tx.CreateInBatches(&s.photos, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert legacy photo refs: %w", err)
	}
	return nil
}
