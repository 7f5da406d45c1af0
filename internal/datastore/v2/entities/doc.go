// Package entities defines the GORM models of the relational inventory schema
// that legacy object-graph stores are migrated into.
//
// # Ownership
//
//   - Home: top-level owner; at most one row has IsPrimary set
//   - InventoryLocation: optionally owned by a Home
//   - InventoryItem: optionally owned by a Location and/or directly by a Home
//   - InventoryLabel: global, many-to-many with items through ItemLabel
//   - InsurancePolicy: many-to-many with homes through HomePolicy
//
// Locations and items that could not be given a home during migration carry
// PendingHome = true until the home canonicalizer assigns one.
//
// # Photos
//
// HomePhoto, InventoryLocationPhoto and InventoryItemPhoto hold image bytes
// keyed by (owner_id, sort_order), where sort order 0 is the primary photo.
// LegacyPhotoRef keeps the legacy file paths the photo pass reads from.
//
// # Migration
//
//   - MigrationState: persistent migration state machine (singleton table)
package entities
