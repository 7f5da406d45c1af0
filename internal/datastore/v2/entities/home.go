package entities

import "time"

// Home is a property that owns locations, items and policies.
type Home struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"`
	LegacyID      int64     `gorm:"uniqueIndex;not null"`
	Name          string    `gorm:"type:varchar(255);not null"`
	Address1      string    `gorm:"type:varchar(255)"`
	City          string    `gorm:"type:varchar(255)"`
	IsPrimary     bool      `gorm:"not null;default:false;index"`
	LegacyPrimary bool      `gorm:"not null;default:false"` // primary flag as found in the legacy store
	CreatedAt     time.Time `gorm:"autoCreateTime:false"`
}

// TableName returns the table name for GORM.
func (Home) TableName() string {
	return "homes"
}

// HomePolicy links a home to an insurance policy.
type HomePolicy struct {
	HomeID   string           `gorm:"primaryKey;type:varchar(36)"`
	PolicyID string           `gorm:"primaryKey;type:varchar(36)"`
	Home     *Home            `gorm:"foreignKey:HomeID;constraint:OnDelete:CASCADE"`
	Policy   *InsurancePolicy `gorm:"foreignKey:PolicyID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (HomePolicy) TableName() string {
	return "home_policies"
}
