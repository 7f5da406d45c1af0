package migration

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// SkipReason classifies why a legacy row, or a relationship on it, did not
// migrate as-is.
type SkipReason string

const (
	// SkipDecodeFailure drops a row whose required fields could not be decoded.
	SkipDecodeFailure SkipReason = "decode_failure"
	// SkipDanglingReference clears a foreign key to a row that does not exist.
	// The row itself is kept.
	SkipDanglingReference SkipReason = "dangling_reference"
	// SkipDanglingJoin drops a join row with a missing endpoint.
	SkipDanglingJoin SkipReason = "dangling_join"
	// SkipDuplicateJoin drops a repeated join row.
	SkipDuplicateJoin SkipReason = "duplicate_join"
	// SkipSourceFileMissing drops a photo whose file could not be read.
	SkipSourceFileMissing SkipReason = "source_file_missing"
)

// removesRow reports whether the reason means the row was not written.
func (r SkipReason) removesRow() bool {
	return r != SkipDanglingReference
}

// Skip is one logged per-entity skip.
type Skip struct {
	Kind     string     `yaml:"kind"`
	LegacyID int64      `yaml:"legacy_id"`
	Reason   SkipReason `yaml:"reason"`
	Detail   string     `yaml:"detail,omitempty"`
}

func (s Skip) String() string {
	return fmt.Sprintf("%s %d: %s (%s)", s.Kind, s.LegacyID, s.Reason, s.Detail)
}

// SkipLog counts skips per kind and reason and keeps the first few in detail.
type SkipLog struct {
	mu         sync.Mutex
	counts     map[string]map[SkipReason]int
	details    []Skip
	maxDetails int
	dropped    int
}

// NewSkipLog creates a log that keeps up to maxDetails skips in detail.
// A negative maxDetails keeps all of them.
func NewSkipLog(maxDetails int) *SkipLog {
	return &SkipLog{
		counts:     make(map[string]map[SkipReason]int),
		maxDetails: maxDetails,
	}
}

// Add records a skip.
func (l *SkipLog) Add(s Skip) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byReason, ok := l.counts[s.Kind]
	if !ok {
		byReason = make(map[SkipReason]int)
		l.counts[s.Kind] = byReason
	}
	byReason[s.Reason]++

	if l.maxDetails < 0 || len(l.details) < l.maxDetails {
		l.details = append(l.details, s)
	} else {
		l.dropped++
	}
}

// Removed returns how many rows of kind were not written.
func (l *SkipLog) Removed(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for reason, c := range l.counts[kind] {
		if reason.removesRow() {
			n += c
		}
	}
	return n
}

// Count returns the number of skips of kind with reason.
func (l *SkipLog) Count(kind string, reason SkipReason) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[kind][reason]
}

// Total returns the number of skips of every kind and reason.
func (l *SkipLog) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, byReason := range l.counts {
		for _, c := range byReason {
			n += c
		}
	}
	return n
}

// Counts returns a copy of the per-kind, per-reason counts.
func (l *SkipLog) Counts() map[string]map[SkipReason]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]map[SkipReason]int, len(l.counts))
	for kind, byReason := range l.counts {
		out[kind] = maps.Clone(byReason)
	}
	return out
}

// Details returns the skips kept in detail and how many more were dropped.
func (l *SkipLog) Details() ([]Skip, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.details), l.dropped
}
