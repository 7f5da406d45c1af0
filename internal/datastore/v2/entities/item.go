package entities

import "time"

// InventoryItem is a single possession.
type InventoryItem struct {
	ID          string             `gorm:"primaryKey;type:varchar(36)"`
	LegacyID    int64              `gorm:"uniqueIndex;not null"`
	Title       string             `gorm:"type:varchar(255);not null"`
	Quantity    int                `gorm:"not null"`
	Price       float64            `gorm:"not null;default:0"`
	Notes       string             `gorm:"type:text"`
	LocationID  *string            `gorm:"type:varchar(36);index"`
	Location    *InventoryLocation `gorm:"foreignKey:LocationID;constraint:OnDelete:SET NULL"`
	HomeID      *string            `gorm:"type:varchar(36);index"`
	Home        *Home              `gorm:"foreignKey:HomeID;constraint:OnDelete:SET NULL"`
	PendingHome bool               `gorm:"not null;default:false"`
	CreatedAt   time.Time          `gorm:"autoCreateTime:false"`
}

// TableName returns the table name for GORM.
func (InventoryItem) TableName() string {
	return "inventory_items"
}
