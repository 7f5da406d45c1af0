// Package remote probes the sync service for state left behind by an
// earlier install (a "stranded" zone) so it can be recovered. The probe runs
// beside the local migration and never affects its outcome.
package remote

import "context"

// StrandedKind classifies what the remote side still holds.
type StrandedKind string

const (
	// StrandedNone means nothing is left on the remote side.
	StrandedNone StrandedKind = "none"
	// StrandedRecoverable means records exist that can be pulled back.
	StrandedRecoverable StrandedKind = "recoverable"
	// StrandedOrphanedZoneOnly means an empty zone exists without records.
	StrandedOrphanedZoneOnly StrandedKind = "orphaned_zone_only"
)

// Valid reports whether k is a known kind.
func (k StrandedKind) Valid() bool {
	switch k {
	case StrandedNone, StrandedRecoverable, StrandedOrphanedZoneOnly:
		return true
	default:
		return false
	}
}

// RemoteRecord summarizes stranded records of one type in one zone.
type RemoteRecord struct {
	ZoneID     string `json:"zone_id" yaml:"zone_id"`
	RecordType string `json:"record_type" yaml:"record_type"`
	Count      int    `json:"count" yaml:"count"`
}

// StrandedState is the probe result.
type StrandedState struct {
	Kind    StrandedKind   `json:"kind" yaml:"kind"`
	Records []RemoteRecord `json:"records,omitempty" yaml:"records,omitempty"`
}

// Prober looks for stranded remote state.
type Prober interface {
	ProbeForStrandedRemoteState(ctx context.Context) (StrandedState, error)
}

// NopProber always reports nothing stranded. It is used when the remote
// probe is disabled.
type NopProber struct{}

// ProbeForStrandedRemoteState implements Prober.
func (NopProber) ProbeForStrandedRemoteState(context.Context) (StrandedState, error) {
	return StrandedState{Kind: StrandedNone}, nil
}

// UnavailableProber fails every probe with Err. It stands in for a prober
// that could not be configured.
type UnavailableProber struct {
	Err error
}

// ProbeForStrandedRemoteState implements Prober.
func (p UnavailableProber) ProbeForStrandedRemoteState(context.Context) (StrandedState, error) {
	return StrandedState{}, p.Err
}
