package migration

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/remote"
)

// Run outcomes.
const (
	OutcomeMigrated        = "migrated"
	OutcomeAlreadyComplete = "already_complete"
	OutcomeFreshInstall    = "fresh_install"
	OutcomeFailed          = "failed"
	OutcomeRetryExhausted  = "retry_exhausted"
)

// Report describes one pipeline run. It is written as YAML when a report
// path is configured and rendered as text by the CLI.
type Report struct {
	RunID                string    `yaml:"run_id"`
	StartedAt            time.Time `yaml:"started_at"`
	FinishedAt           time.Time `yaml:"finished_at"`
	Outcome              string    `yaml:"outcome"`
	Error                string    `yaml:"error,omitempty"`
	RecoveredInterrupted bool      `yaml:"recovered_interrupted,omitempty"`
	Attempts             int       `yaml:"attempts"`

	Schema               *SchemaReport           `yaml:"schema,omitempty"`
	Archive              *ArchiveReport          `yaml:"archive,omitempty"`
	Photos               *PhotoSummary           `yaml:"photos,omitempty"`
	PhotoError           string                  `yaml:"photo_error,omitempty"`
	Canonicalize         *CanonicalizationResult `yaml:"canonicalize,omitempty"`
	CanonicalizeError    string                  `yaml:"canonicalize_error,omitempty"`
	CanonicalizeDeferred bool                    `yaml:"canonicalize_deferred,omitempty"` // photo pass did not complete
	Remote               *remote.Outcome         `yaml:"remote,omitempty"`
}

// SchemaReport is the schema migration part of a report.
type SchemaReport struct {
	Source         map[string]int                `yaml:"source"`
	Migrated       map[string]int                `yaml:"migrated"`
	Skipped        map[string]map[SkipReason]int `yaml:"skipped,omitempty"`
	SkipDetails    []Skip                        `yaml:"skip_details,omitempty"`
	DroppedDetails int                           `yaml:"dropped_details,omitempty"`
}

func newSchemaReport(st *StagedTransaction) *SchemaReport {
	source := make(map[string]int, len(entities.CountedKinds))
	for _, kind := range entities.CountedKinds {
		source[kind] = st.Source.ByKind(kind)
	}
	details, dropped := st.Skips.Details()
	return &SchemaReport{
		Source:         source,
		Migrated:       maps.Clone(st.Staged),
		Skipped:        st.Skips.Counts(),
		SkipDetails:    details,
		DroppedDetails: dropped,
	}
}

// SkippedTotal sums every skip, including kept rows with cleared references.
func (s *SchemaReport) SkippedTotal() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, reasons := range s.Skipped {
		for _, n := range reasons {
			total += n
		}
	}
	return total
}

// ArchiveReport is the archive part of a report.
type ArchiveReport struct {
	Resumed    bool     `yaml:"resumed,omitempty"`
	LegacyPath string   `yaml:"legacy_path,omitempty"`
	Files      []string `yaml:"files,omitempty"`
	Offsite    []string `yaml:"offsite,omitempty"`
	Error      string   `yaml:"error,omitempty"`
}

func newArchiveReport(m *datastoreV2.Manifest, resumed bool) *ArchiveReport {
	r := &ArchiveReport{Resumed: resumed}
	if m == nil {
		return r
	}
	r.LegacyPath = m.LegacyPath
	for _, f := range m.Files {
		r.Files = append(r.Files, f.Name)
	}
	r.Offsite = m.Offsite
	return r
}

// WriteFile writes the report as YAML to path through a temp file and rename.
func (r *Report) WriteFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}

// Render writes a human-readable summary. Durations and timestamps are
// left out so the output is stable.
func (r *Report) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(tw, format, args...)
	}

	p("outcome:\t%s\n", r.Outcome)
	if r.Error != "" {
		p("error:\t%s\n", r.Error)
	}
	if r.RecoveredInterrupted {
		p("recovered:\tinterrupted attempt counted as failed\n")
	}
	p("failed attempts:\t%d\n", r.Attempts)

	if s := r.Schema; s != nil {
		p("\nschema\tsource\tmigrated\tskipped\n")
		for _, kind := range entities.CountedKinds {
			skipped := 0
			for _, n := range s.Skipped[kind] {
				skipped += n
			}
			p("  %s\t%d\t%d\t%d\n", kind, s.Source[kind], s.Migrated[kind], skipped)
		}
		for _, kind := range slices.Sorted(maps.Keys(s.Skipped)) {
			reasons := s.Skipped[kind]
			for _, reason := range slices.Sorted(maps.Keys(reasons)) {
				p("  skip %s\t%s\t%d\n", kind, reason, reasons[reason])
			}
		}
	}

	if a := r.Archive; a != nil {
		if a.Error != "" {
			p("\narchive:\tfailed: %s\n", a.Error)
		} else {
			p("\narchive:\t%s\n", strings.Join(a.Files, ", "))
			for _, o := range a.Offsite {
				p("  offsite:\t%s\n", o)
			}
		}
	}

	switch {
	case r.PhotoError != "":
		p("\nphotos:\tfailed: %s\n", r.PhotoError)
	case r.Photos != nil:
		ph := r.Photos
		p("\nphotos:\t%d migrated, %d already present, %d skipped of %d\n",
			ph.Migrated, ph.AlreadyPresent, ph.Skipped, ph.Expected)
		if ph.UnreadableLists > 0 {
			p("  unreadable photo lists:\t%d\n", ph.UnreadableLists)
		}
		for _, s := range ph.Skips {
			p("  skip %s %s #%d\t%s\t%s\n", s.OwnerKind, s.OwnerID, s.SortOrder, s.Reason, s.Path)
		}
	}

	switch {
	case r.CanonicalizeDeferred:
		p("\ncanonicalize:\tdeferred until photos complete\n")
	case r.CanonicalizeError != "":
		p("\ncanonicalize:\tfailed: %s\n", r.CanonicalizeError)
	case r.Canonicalize != nil:
		c := r.Canonicalize
		p("\ncanonical home:\t%s\n", c.CanonicalHomeID)
		p("  phantoms deleted:\t%d\n", len(c.PhantomsDeleted))
		p("  locations reassigned:\t%d\n", c.LocationsReassigned)
		p("  items inherited:\t%d\n", c.ItemsInherited)
		p("  items reassigned:\t%d\n", c.ItemsReassigned)
	}

	if rm := r.Remote; rm != nil {
		if rm.Error != "" {
			p("\nremote:\tprobe failed: %s\n", rm.Error)
		} else {
			p("\nremote:\t%s\n", rm.Kind)
		}
	}

	return tw.Flush()
}
