package entities

import "time"

// MigrationStatus represents the state of the legacy store migration.
type MigrationStatus string

const (
	MigrationStatusNotStarted MigrationStatus = "not_started"
	MigrationStatusInProgress MigrationStatus = "in_progress"
	MigrationStatusFailed     MigrationStatus = "failed"
	MigrationStatusComplete   MigrationStatus = "complete"
)

// MigrationState tracks the migration state machine.
// This is a singleton table (only one row with ID=1).
type MigrationState struct {
	ID                     uint            `gorm:"primaryKey;check:id = 1"` // Singleton constraint
	State                  MigrationStatus `gorm:"type:varchar(20);not null;default:'not_started'"`
	AttemptCount           int             `gorm:"not null;default:0"`
	LastFailureReason      string          `gorm:"type:text"`
	PhotoMigrationComplete bool            `gorm:"not null;default:false"`
	HomeCullingComplete    bool            `gorm:"not null;default:false"`
	StartedAt              *time.Time
	CompletedAt            *time.Time
	UpdatedAt              time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for GORM.
func (MigrationState) TableName() string {
	return "migration_state"
}

// IsComplete reports whether the schema migration has committed.
func (m *MigrationState) IsComplete() bool {
	return m.State == MigrationStatusComplete
}

// CanBegin reports whether a new attempt may start from this state,
// ignoring the retry bound.
func (m *MigrationState) CanBegin() bool {
	return m.State == MigrationStatusNotStarted || m.State == MigrationStatusFailed
}
