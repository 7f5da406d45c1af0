package entities

// InventoryLocation is a room or storage place inside a home.
type InventoryLocation struct {
	ID          string  `gorm:"primaryKey;type:varchar(36)"`
	LegacyID    int64   `gorm:"uniqueIndex;not null"`
	Name        string  `gorm:"type:varchar(255);not null"`
	Description string  `gorm:"type:text"`
	HomeID      *string `gorm:"type:varchar(36);index"`
	Home        *Home   `gorm:"foreignKey:HomeID;constraint:OnDelete:SET NULL"`
	PendingHome bool    `gorm:"not null;default:false"` // true while HomeID awaits canonicalization
}

// TableName returns the table name for GORM.
func (InventoryLocation) TableName() string {
	return "inventory_locations"
}
