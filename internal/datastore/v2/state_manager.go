package v2

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
)

// ReasonInterrupted is recorded when an attempt was found in progress at startup.
const ReasonInterrupted = "interrupted"

// RetryExhaustedError is returned by BeginAttempt once the failed attempt
// count has reached the retry bound. The migration will not run again until
// ResetRetries is called.
type RetryExhaustedError struct {
	Attempts          int
	MaxRetries        int
	LastFailureReason string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("migration retry limit reached: %d failed attempts (max %d), last failure: %s",
		e.Attempts, e.MaxRetries, e.LastFailureReason)
}

// Flags is the persistent view of migration progress.
type Flags struct {
	State                   entities.MigrationStatus
	SchemaMigrationComplete bool
	PhotoMigrationComplete  bool
	HomeCullingComplete     bool
	AttemptCount            int
	LastFailureReason       string
}

// FlagsFromState derives Flags from a state row.
func FlagsFromState(s *entities.MigrationState) Flags {
	return Flags{
		State:                   s.State,
		SchemaMigrationComplete: s.IsComplete(),
		PhotoMigrationComplete:  s.PhotoMigrationComplete,
		HomeCullingComplete:     s.HomeCullingComplete,
		AttemptCount:            s.AttemptCount,
		LastFailureReason:       s.LastFailureReason,
	}
}

// StateManager manages the migration state machine.
// State transitions are single guarded UPDATE statements, so two processes
// racing on the same store cannot both win a transition.
type StateManager struct {
	db  *gorm.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewStateManager creates a new migration state manager.
func NewStateManager(db *gorm.DB) *StateManager {
	return &StateManager{
		db:  db,
		now: time.Now,
	}
}

// GetState returns the current migration state.
func (m *StateManager) GetState() (*entities.MigrationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentLocked()
}

func (m *StateManager) currentLocked() (*entities.MigrationState, error) {
	var state entities.MigrationState
	if err := m.db.First(&state, 1).Error; err != nil {
		return nil, fmt.Errorf("failed to get migration state: %w", err)
	}
	return &state, nil
}

// Flags returns the persistent flags view.
func (m *StateManager) Flags() (Flags, error) {
	state, err := m.GetState()
	if err != nil {
		return Flags{}, err
	}
	return FlagsFromState(state), nil
}

// BeginAttempt transitions from not_started or failed to in_progress. From
// failed with attempt_count >= maxRetries it returns *RetryExhaustedError and
// leaves the row untouched. maxRetries <= 0 disables the bound.
func (m *StateManager) BeginAttempt(maxRetries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bound := maxRetries
	if bound <= 0 {
		bound = math.MaxInt32
	}

	now := m.now()
	result := m.db.Model(&entities.MigrationState{}).
		Where("id = 1 AND (state = ? OR (state = ? AND attempt_count < ?))",
			entities.MigrationStatusNotStarted, entities.MigrationStatusFailed, bound).
		Updates(map[string]any{
			"state":        entities.MigrationStatusInProgress,
			"started_at":   &now,
			"completed_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to begin migration attempt: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := m.currentLocked()
	if err != nil {
		return err
	}
	if current.State == entities.MigrationStatusFailed && current.AttemptCount >= bound {
		return &RetryExhaustedError{
			Attempts:          current.AttemptCount,
			MaxRetries:        maxRetries,
			LastFailureReason: current.LastFailureReason,
		}
	}
	return fmt.Errorf("cannot begin migration attempt: current state is %s, expected %s or %s",
		current.State, entities.MigrationStatusNotStarted, entities.MigrationStatusFailed)
}

// RecordFailure transitions from in_progress to failed and counts the attempt.
func (m *StateManager) RecordFailure(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failLocked(reason, "record failure")
}

// RecoverInterrupted turns an in_progress row left by a crashed process into
// a failed attempt. It reports whether a row was recovered.
func (m *StateManager) RecoverInterrupted() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.currentLocked()
	if err != nil {
		return false, err
	}
	if current.State != entities.MigrationStatusInProgress {
		return false, nil
	}
	if err := m.failLocked(ReasonInterrupted, "recover interrupted attempt"); err != nil {
		return false, err
	}
	return true, nil
}

func (m *StateManager) failLocked(reason, action string) error {
	result := m.db.Model(&entities.MigrationState{}).
		Where("id = 1 AND state = ?", entities.MigrationStatusInProgress).
		Updates(map[string]any{
			"state":               entities.MigrationStatusFailed,
			"attempt_count":       gorm.Expr("attempt_count + 1"),
			"last_failure_reason": reason,
		})
	return m.checkTransition(result, action, entities.MigrationStatusInProgress)
}

// MarkComplete transitions from in_progress to complete and resets the
// attempt count in the same statement.
func (m *StateManager) MarkComplete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	result := m.db.Model(&entities.MigrationState{}).
		Where("id = 1 AND state = ?", entities.MigrationStatusInProgress).
		Updates(map[string]any{
			"state":               entities.MigrationStatusComplete,
			"attempt_count":       0,
			"last_failure_reason": "",
			"completed_at":        &now,
		})
	return m.checkTransition(result, "mark complete", entities.MigrationStatusInProgress)
}

// MarkPhotoMigrationComplete sets photo_migration_complete. Only valid after
// the schema migration committed.
func (m *StateManager) MarkPhotoMigrationComplete() error {
	return m.setCompleteFlag("photo_migration_complete")
}

// MarkHomeCullingComplete sets home_culling_complete. Only valid after the
// schema migration committed.
func (m *StateManager) MarkHomeCullingComplete() error {
	return m.setCompleteFlag("home_culling_complete")
}

func (m *StateManager) setCompleteFlag(column string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.db.Model(&entities.MigrationState{}).
		Where("id = 1 AND state = ?", entities.MigrationStatusComplete).
		Update(column, true)
	return m.checkTransition(result, "set "+column, entities.MigrationStatusComplete)
}

// ResetRetries moves a failed migration back to not_started and clears the
// attempt count. It is the manual recovery path once the retry bound trips.
func (m *StateManager) ResetRetries() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := m.db.Model(&entities.MigrationState{}).
		Where("id = 1 AND state = ?", entities.MigrationStatusFailed).
		Updates(map[string]any{
			"state":               entities.MigrationStatusNotStarted,
			"attempt_count":       0,
			"last_failure_reason": "",
			"started_at":          nil,
		})
	return m.checkTransition(result, "reset retries", entities.MigrationStatusFailed)
}

// checkTransition turns a guarded update that matched nothing into an error
// naming the state actually found.
func (m *StateManager) checkTransition(result *gorm.DB, action string, expected entities.MigrationStatus) error {
	if result.Error != nil {
		return fmt.Errorf("failed to %s: %w", action, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := m.currentLocked()
	if err != nil {
		return fmt.Errorf("failed to get current state: %w", err)
	}
	return fmt.Errorf("cannot %s: current state is %s, expected %s", action, current.State, expected)
}
