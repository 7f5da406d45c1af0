package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	state StrandedState
	err   error
}

func (s stubProber) ProbeForStrandedRemoteState(context.Context) (StrandedState, error) {
	return s.state, s.err
}

func TestCoordinator_Run(t *testing.T) {
	tests := []struct {
		name     string
		prober   Prober
		wantKind StrandedKind
		wantErr  string
	}{
		{name: "nil prober", prober: nil, wantKind: StrandedNone},
		{name: "nop prober", prober: NopProber{}, wantKind: StrandedNone},
		{
			name:     "recoverable",
			prober:   stubProber{state: StrandedState{Kind: StrandedRecoverable, Records: []RemoteRecord{{ZoneID: "z", Count: 3}}}},
			wantKind: StrandedRecoverable,
		},
		{name: "failure is reported, not returned", prober: stubProber{err: fmt.Errorf("dial tcp: refused")}, wantErr: "dial tcp: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(tt.prober, testLogger())
			out := c.Run(context.Background())
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantErr, out.Error)
		})
	}
}

// blockingProber waits for release or cancellation.
type blockingProber struct {
	release  chan struct{}
	canceled chan struct{}
}

func (b blockingProber) ProbeForStrandedRemoteState(ctx context.Context) (StrandedState, error) {
	select {
	case <-b.release:
		return StrandedState{Kind: StrandedNone}, nil
	case <-ctx.Done():
		close(b.canceled)
		return StrandedState{}, ctx.Err()
	}
}

func TestProbe_CollectFinished(t *testing.T) {
	c := NewCoordinator(stubProber{state: StrandedState{Kind: StrandedOrphanedZoneOnly}}, testLogger())
	out := c.Start(context.Background()).Collect(time.Second)
	assert.Equal(t, StrandedOrphanedZoneOnly, out.Kind)
	assert.Empty(t, out.Error)
}

func TestProbe_CollectWithinGrace(t *testing.T) {
	b := blockingProber{release: make(chan struct{}), canceled: make(chan struct{})}
	probe := NewCoordinator(b, testLogger()).Start(context.Background())

	time.AfterFunc(10*time.Millisecond, func() { close(b.release) })
	out := probe.Collect(5 * time.Second)
	assert.Equal(t, StrandedNone, out.Kind)
	assert.Empty(t, out.Error)
}

func TestProbe_CollectAbandonsSlowProbe(t *testing.T) {
	for _, grace := range []time.Duration{0, 20 * time.Millisecond} {
		t.Run(grace.String(), func(t *testing.T) {
			b := blockingProber{release: make(chan struct{}), canceled: make(chan struct{})}
			probe := NewCoordinator(b, testLogger()).Start(context.Background())

			start := time.Now()
			out := probe.Collect(grace)
			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, ErrProbeAbandoned.Error(), out.Error)
			assert.Empty(t, out.Kind)

			select {
			case <-b.canceled:
			case <-time.After(5 * time.Second):
				require.Fail(t, "abandoned probe was not cancelled")
			}
		})
	}
}
