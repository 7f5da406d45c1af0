package entities

import "time"

// Photo tables share one column set. Rows are immutable once written and
// (owner_id, sort_order) is unique per table; sort order 0 is the primary photo.
// ContentHash is the hex SHA-256 of Data.

// HomePhoto is a photo of a home.
type HomePhoto struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_home_photos_owner_sort,priority:1"`
	SortOrder   int       `gorm:"not null;uniqueIndex:idx_home_photos_owner_sort,priority:2"`
	Data        []byte    `gorm:"not null"`
	ContentHash string    `gorm:"type:char(64);not null"`
	ByteSize    int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	Owner       *Home     `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (HomePhoto) TableName() string {
	return "home_photos"
}

// InventoryLocationPhoto is a photo of a location.
type InventoryLocationPhoto struct {
	ID          string             `gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string             `gorm:"type:varchar(36);not null;uniqueIndex:idx_location_photos_owner_sort,priority:1"`
	SortOrder   int                `gorm:"not null;uniqueIndex:idx_location_photos_owner_sort,priority:2"`
	Data        []byte             `gorm:"not null"`
	ContentHash string             `gorm:"type:char(64);not null"`
	ByteSize    int64              `gorm:"not null"`
	CreatedAt   time.Time          `gorm:"autoCreateTime"`
	Owner       *InventoryLocation `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (InventoryLocationPhoto) TableName() string {
	return "inventory_location_photos"
}

// InventoryItemPhoto is a photo of an item.
type InventoryItemPhoto struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string         `gorm:"type:varchar(36);not null;uniqueIndex:idx_item_photos_owner_sort,priority:1"`
	SortOrder   int            `gorm:"not null;uniqueIndex:idx_item_photos_owner_sort,priority:2"`
	Data        []byte         `gorm:"not null"`
	ContentHash string         `gorm:"type:char(64);not null"`
	ByteSize    int64          `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	Owner       *InventoryItem `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (InventoryItemPhoto) TableName() string {
	return "inventory_item_photos"
}

// PhotoRow is the insert shape used by the photo pass for any photo table.
type PhotoRow struct {
	ID          string
	OwnerID     string
	SortOrder   int
	Data        []byte
	ContentHash string
	ByteSize    int64
	CreatedAt   time.Time
}

// PhotoTable returns the photo table name for an owner kind, or "" if the
// kind has no photos.
func PhotoTable(ownerKind string) string {
	switch ownerKind {
	case KindHome:
		return HomePhoto{}.TableName()
	case KindLocation:
		return InventoryLocationPhoto{}.TableName()
	case KindItem:
		return InventoryItemPhoto{}.TableName()
	default:
		return ""
	}
}

// LegacyPhotoRef is a legacy photo path staged during schema migration.
// The photo pass reads these instead of the legacy store.
type LegacyPhotoRef struct {
	OwnerKind string `gorm:"primaryKey;type:varchar(16)"`
	OwnerID   string `gorm:"primaryKey;type:varchar(36)"`
	SortOrder int    `gorm:"primaryKey"`
	Path      string `gorm:"type:text;not null"`
}

// TableName returns the table name for GORM.
func (LegacyPhotoRef) TableName() string {
	return "legacy_photo_refs"
}
