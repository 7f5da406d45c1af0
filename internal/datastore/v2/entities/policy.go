package entities

import "time"

// InsurancePolicy covers one or more homes.
type InsurancePolicy struct {
	ID           string  `gorm:"primaryKey;type:varchar(36)"`
	LegacyID     int64   `gorm:"uniqueIndex;not null"`
	Provider     string  `gorm:"type:varchar(255)"`
	PolicyNumber string  `gorm:"type:varchar(255)"`
	Deductible   float64 `gorm:"not null;default:0"`
	StartDate    *time.Time
	EndDate      *time.Time
}

// TableName returns the table name for GORM.
func (InsurancePolicy) TableName() string {
	return "insurance_policies"
}
