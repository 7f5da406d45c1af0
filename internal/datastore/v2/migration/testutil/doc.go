// Package testutil provides test helpers for migration tests.
//
// Key components:
//   - LegacySeeder: writes real legacy store files at a chosen schema version
//   - Builders: fluent API for legacy rows with sensible defaults
//   - File helpers: photo fixtures and content checksums
//
//nolint:dupl // Builders intentionally share a shape
package testutil
