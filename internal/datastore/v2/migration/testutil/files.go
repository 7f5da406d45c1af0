package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WritePhoto writes content to dir/name and returns the absolute path.
func WritePhoto(t testing.TB, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// FileSHA256 returns the hex SHA-256 of the file at path.
func FileSHA256(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test fixture path
	require.NoError(t, err)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SeedInventory writes a small, fully linked inventory: two homes (the
// first primary), three locations, four items, two labels and one policy.
// It returns the Z_PK of the primary home.
func SeedInventory(s *LegacySeeder) int64 {
	s.t.Helper()

	home := s.Home("Lake House").Address("1 Shore Rd").City("Tahoe").Primary().Insert()
	flat := s.Home("City Flat").Address("22 Main St").City("Reno").Insert()

	kitchen := s.Location("Kitchen").Home(home).Insert()
	garage := s.Location("Garage").Home(home).Insert()
	study := s.Location("Study").Home(flat).Insert()

	kettle := s.Item("Kettle").Location(kitchen).Price(39.5).Insert()
	drill := s.Item("Drill").Location(garage).Quantity(2).Insert()
	s.Item("Desk").Location(study).Price(220).Insert()
	s.Item("Bike").Notes("blue").Insert()

	tools := s.Label("Tools").Color("#aa3300").Insert()
	fragile := s.Label("Fragile").Emoji("🥚").Insert()
	s.LinkItemLabel(drill, tools)
	s.LinkItemLabel(kettle, fragile)

	policy := s.Policy("Acme Mutual").Number("P-100").Deductible(500).Insert()
	s.LinkHomePolicy(home, policy)

	return home
}
