package v2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientDiskSpace is returned when a preflight check finds too
// little free space.
var ErrInsufficientDiskSpace = errors.New("insufficient disk space")

// FreeSpaceFunc reports free bytes on the filesystem holding path.
type FreeSpaceFunc func(path string) (uint64, error)

// FreeSpace reports free bytes on the filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(existingDir(path))
	if err != nil {
		return 0, fmt.Errorf("failed to check disk space on %s: %w", path, err)
	}
	return usage.Free, nil
}

// EnsureFreeSpace fails with ErrInsufficientDiskSpace unless the filesystem
// holding dir has at least need bytes free.
func EnsureFreeSpace(free FreeSpaceFunc, dir string, need uint64) error {
	if free == nil {
		free = FreeSpace
	}
	avail, err := free(dir)
	if err != nil {
		return err
	}
	if avail < need {
		return fmt.Errorf("%w on %s: %d bytes free, need %d", ErrInsufficientDiskSpace, dir, avail, need)
	}
	return nil
}

// MigrationSpaceNeeded is the free space a migration attempt requires: twice
// the legacy store size plus a fixed headroom in MiB.
func MigrationSpaceNeeded(legacySize int64, headroomMB uint64) uint64 {
	if legacySize < 0 {
		legacySize = 0
	}
	return uint64(legacySize)*2 + headroomMB<<20
}

// existingDir walks up from path to the nearest directory that exists, so a
// target store that has not been created yet can still be checked.
func existingDir(path string) string {
	dir := path
	for {
		if info, err := os.Stat(dir); err == nil {
			if info.IsDir() {
				return dir
			}
			return filepath.Dir(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
