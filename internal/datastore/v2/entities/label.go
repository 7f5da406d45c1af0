package entities

// InventoryLabel is a global tag that can be attached to any item.
type InventoryLabel struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	LegacyID int64  `gorm:"uniqueIndex;not null"`
	Name     string `gorm:"type:varchar(255);not null"`
	ColorHex string `gorm:"type:varchar(7)"` // #RRGGBB
	Emoji    string `gorm:"type:varchar(16)"`
}

// TableName returns the table name for GORM.
func (InventoryLabel) TableName() string {
	return "inventory_labels"
}

// ItemLabel links an item to a label.
type ItemLabel struct {
	ItemID  string          `gorm:"primaryKey;type:varchar(36)"`
	LabelID string          `gorm:"primaryKey;type:varchar(36)"`
	Item    *InventoryItem  `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	Label   *InventoryLabel `gorm:"foreignKey:LabelID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (ItemLabel) TableName() string {
	return "item_labels"
}
