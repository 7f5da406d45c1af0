package v2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/movingbox/storemigrate/internal/archive"
	"github.com/movingbox/storemigrate/internal/errors"
	"github.com/movingbox/storemigrate/internal/logger"
)

const (
	// ArchiveStateFileName marks an archive in progress.
	ArchiveStateFileName = ".legacy_archive_state"
	// ManifestFileName is written into every completed archive directory.
	ManifestFileName = "manifest.json"
	// archiveDirPrefix prefixes timestamped archive directories.
	archiveDirPrefix = "legacy-"
	// archiveTimeLayout formats the archive directory timestamp.
	archiveTimeLayout = "20060102-150405"
)

// legacySiblingSuffixes are the SQLite side files moved along with the store.
var legacySiblingSuffixes = []string{"", "-wal", "-shm", "-journal"}

// ArchiveState is persisted while an archive is in progress.
type ArchiveState struct {
	LegacyPath string    `json:"legacy_path"`
	ArchiveDir string    `json:"archive_dir"`
	StartedAt  time.Time `json:"started_at"`
}

// ManifestFile describes one archived file.
type ManifestFile struct {
	Name         string `json:"name"`
	OriginalPath string `json:"original_path"`
	SHA256       string `json:"sha256"`
	Size         int64  `json:"size"`
}

// Manifest records what an archive contains. Its presence distinguishes
// "archived" from "never ran".
type Manifest struct {
	LegacyPath string         `json:"legacy_path"`
	ArchivedAt time.Time      `json:"archived_at"`
	Files      []ManifestFile `json:"files"`
	Offsite    []string       `json:"offsite,omitempty"` // uploaded object locations
}

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	// BackupDir receives legacy-<timestamp>/ directories.
	BackupDir string
	// StateDir holds the archive state file; usually the legacy store's directory.
	StateDir string
	// HeadroomMB is extra free space required before a cross-device copy.
	HeadroomMB uint64
	// Offsite, if set, receives a copy of every archived file.
	Offsite archive.Target
	Logger  logger.Logger
	// FreeSpace overrides the disk usage probe.
	FreeSpace FreeSpaceFunc
}

// Archiver moves the legacy store out of the way after a committed migration.
type Archiver struct {
	cfg    ArchiverConfig
	log    logger.Logger
	now    func() time.Time
	rename func(oldpath, newpath string) error
}

// NewArchiver creates an Archiver.
func NewArchiver(cfg ArchiverConfig) *Archiver {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("archive")
	}
	if cfg.FreeSpace == nil {
		cfg.FreeSpace = FreeSpace
	}
	return &Archiver{
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		rename: os.Rename,
	}
}

// Archive moves legacyPath and its -wal, -shm and -journal siblings into a
// new timestamped directory under the backup directory and writes a
// manifest. The caller must only call it after the migration committed.
func (a *Archiver) Archive(ctx context.Context, legacyPath string) (*Manifest, error) {
	if _, err := os.Stat(legacyPath); err != nil {
		return nil, a.archiveError(err, "stat_legacy", legacyPath)
	}

	state := &ArchiveState{
		LegacyPath: legacyPath,
		ArchiveDir: filepath.Join(a.cfg.BackupDir, archiveDirPrefix+a.now().UTC().Format(archiveTimeLayout)),
		StartedAt:  a.now().UTC(),
	}
	if err := WriteArchiveState(a.cfg.StateDir, state); err != nil {
		return nil, a.archiveError(err, "write_state", legacyPath)
	}

	a.log.Info("archiving legacy store",
		logger.String("phase", "archive"),
		logger.String("status", "started"),
		logger.String("legacy_path", legacyPath),
		logger.String("archive_dir", state.ArchiveDir))

	return a.finish(ctx, state)
}

// ResumeArchive completes an archive interrupted by a crash. It reports
// whether there was one to resume.
func (a *Archiver) ResumeArchive(ctx context.Context) (bool, *Manifest, error) {
	state, err := ReadArchiveState(a.cfg.StateDir)
	if err != nil {
		return false, nil, a.archiveError(err, "read_state", "")
	}
	if state == nil {
		return false, nil, nil
	}

	a.log.Info("resuming interrupted archive",
		logger.String("phase", "archive"),
		logger.String("status", "resumed"),
		logger.String("legacy_path", state.LegacyPath),
		logger.String("archive_dir", state.ArchiveDir))

	manifest, err := a.finish(ctx, state)
	if err != nil {
		return true, nil, err
	}
	return true, manifest, nil
}

// finish moves whatever is still in place, then writes the manifest and
// clears the state file. Every step tolerates having already run.
func (a *Archiver) finish(ctx context.Context, state *ArchiveState) (*Manifest, error) {
	if err := os.MkdirAll(state.ArchiveDir, 0o750); err != nil {
		return nil, a.archiveError(err, "create_archive_dir", state.LegacyPath)
	}

	manifest := &Manifest{LegacyPath: state.LegacyPath}
	for _, suffix := range legacySiblingSuffixes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src := state.LegacyPath + suffix
		dst := filepath.Join(state.ArchiveDir, filepath.Base(src))

		entry, err := a.moveOne(src, dst)
		if err != nil {
			return nil, a.archiveError(err, "move", src)
		}
		if entry != nil {
			manifest.Files = append(manifest.Files, *entry)
		}
	}
	if !slices.ContainsFunc(manifest.Files, func(f ManifestFile) bool { return f.OriginalPath == state.LegacyPath }) {
		return nil, a.archiveError(fmt.Errorf("legacy store missing from both source and archive"), "move", state.LegacyPath)
	}

	if a.cfg.Offsite != nil {
		manifest.Offsite = a.uploadOffsite(ctx, state.ArchiveDir, manifest.Files)
	}

	manifest.ArchivedAt = a.now().UTC()
	if err := writeJSONAtomic(filepath.Join(state.ArchiveDir, ManifestFileName), manifest); err != nil {
		return nil, a.archiveError(err, "write_manifest", state.LegacyPath)
	}

	if err := DeleteArchiveState(a.cfg.StateDir); err != nil {
		// a stale state file only causes a no-op resume
		a.log.Warn("failed to delete archive state file", logger.Error(err))
	}

	a.log.Info("legacy store archived",
		logger.String("phase", "archive"),
		logger.String("status", "complete"),
		logger.String("archive_dir", state.ArchiveDir),
		logger.Int("files", len(manifest.Files)))

	return manifest, nil
}

// moveOne moves src to dst. It returns nil when neither exists (an absent
// sibling), and the archived entry when dst already holds the file.
func (a *Archiver) moveOne(src, dst string) (*ManifestFile, error) {
	srcExists, err := fileExists(src)
	if err != nil {
		return nil, err
	}
	if !srcExists {
		dstExists, err := fileExists(dst)
		if err != nil || !dstExists {
			return nil, err
		}
		return describeFile(dst, src)
	}

	sum, size, err := fileSHA256(src)
	if err != nil {
		return nil, err
	}

	err = a.rename(src, dst)
	switch {
	case err == nil:
	case errors.Is(err, syscall.EXDEV):
		a.log.Debug("cross-device archive, copying", logger.String("from", src), logger.String("to", dst))
		if err := EnsureFreeSpace(a.cfg.FreeSpace, filepath.Dir(dst), uint64(size)+a.cfg.HeadroomMB<<20); err != nil {
			return nil, err
		}
		if err := copyVerified(src, dst, sum); err != nil {
			return nil, err
		}
		if err := os.Remove(src); err != nil {
			return nil, fmt.Errorf("remove source after verified copy: %w", err)
		}
	default:
		return nil, err
	}

	return &ManifestFile{Name: filepath.Base(dst), OriginalPath: src, SHA256: sum, Size: size}, nil
}

// copyVerified copies src to dst through a temporary file, fsyncs it and
// checks its SHA-256 against want before renaming it into place.
func copyVerified(src, dst, want string) error {
	in, err := os.Open(src) //nolint:gosec // path comes from configuration
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // archive dir we created
	if err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("fsync %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	// re-read from disk rather than trusting the write path
	got, _, err := fileSHA256(tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if got != want || hex.EncodeToString(h.Sum(nil)) != want {
		_ = os.Remove(tmp)
		return fmt.Errorf("checksum mismatch copying %s: got %s, want %s", src, got, want)
	}

	return os.Rename(tmp, dst)
}

// uploadOffsite uploads each archived file and returns the locations that
// succeeded. Failures are logged; the local archive is already complete.
func (a *Archiver) uploadOffsite(ctx context.Context, archiveDir string, files []ManifestFile) []string {
	var uploaded []string
	base := filepath.Base(archiveDir)
	for _, f := range files {
		key := base + "/" + f.Name
		if err := a.uploadFile(ctx, filepath.Join(archiveDir, f.Name), key, f); err != nil {
			a.log.Warn("offsite upload failed",
				logger.String("target", a.cfg.Offsite.Name()),
				logger.String("key", key),
				logger.Error(err))
			continue
		}
		uploaded = append(uploaded, a.cfg.Offsite.Name()+"/"+key)
	}
	return uploaded
}

func (a *Archiver) uploadFile(ctx context.Context, path, key string, f ManifestFile) error {
	file, err := os.Open(path) //nolint:gosec // archive dir we created
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return a.cfg.Offsite.Upload(ctx, key, file, f.Size, f.SHA256)
}

func (a *Archiver) archiveError(err error, operation, path string) error {
	b := errors.New(err).
		Component("archive").
		Category(errors.CategoryArchive).
		Context("operation", operation)
	if path != "" {
		b = b.Context("path", path)
	}
	return b.Build()
}

// LatestManifest returns the newest manifest under backupDir, or nil if no
// archive was ever completed.
func LatestManifest(backupDir string) (*Manifest, error) {
	matches, err := filepath.Glob(filepath.Join(backupDir, archiveDirPrefix+"*", ManifestFileName))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil //nolint:nilnil // nil manifest means never archived
	}
	slices.Sort(matches)

	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// WriteArchiveState writes the archive state file atomically.
func WriteArchiveState(dir string, state *ArchiveState) error {
	return writeJSONAtomic(filepath.Join(dir, ArchiveStateFileName), state)
}

// ReadArchiveState reads the archive state file. It returns nil, nil when
// no archive is in progress.
func ReadArchiveState(dir string) (*ArchiveState, error) {
	data, err := os.ReadFile(filepath.Join(dir, ArchiveStateFileName)) //nolint:gosec // trusted dir
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // nil state means nothing to resume
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive state file: %w", err)
	}

	var state ArchiveState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive state: %w", err)
	}
	return &state, nil
}

// DeleteArchiveState removes the archive state file if present.
func DeleteArchiveState(dir string) error {
	if err := os.Remove(filepath.Join(dir, ArchiveStateFileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive state file: %w", err)
	}
	return nil
}

// writeJSONAtomic writes v as indented JSON through a temp file and rename.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

func describeFile(path, originalPath string) (*ManifestFile, error) {
	sum, size, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}
	return &ManifestFile{Name: filepath.Base(path), OriginalPath: originalPath, SHA256: sum, Size: size}, nil
}

func fileSHA256(path string) (sum string, size int64, err error) {
	f, err := os.Open(path) //nolint:gosec // caller-controlled path
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	size, err = io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// fileExists distinguishes not-found from I/O errors.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
