package remote

import (
	"context"
	"errors"
	"time"

	"github.com/movingbox/storemigrate/internal/logger"
)

// Outcome is what a coordinator run reports. It is informational only.
type Outcome struct {
	Kind     StrandedKind   `yaml:"kind"`
	Records  []RemoteRecord `yaml:"records,omitempty"`
	Error    string         `yaml:"error,omitempty"`
	Duration time.Duration  `yaml:"duration"`
}

// Coordinator runs the stranded-state probe beside local migration.
type Coordinator struct {
	prober Prober
	log    logger.Logger
}

// NewCoordinator creates a Coordinator. A nil prober behaves like NopProber.
func NewCoordinator(prober Prober, log logger.Logger) *Coordinator {
	if prober == nil {
		prober = NopProber{}
	}
	if log == nil {
		log = logger.Global().Module("remote")
	}
	return &Coordinator{prober: prober, log: log}
}

// Run probes once and logs the result. Errors end up in the Outcome and
// the log, never in the caller's control flow.
func (c *Coordinator) Run(ctx context.Context) Outcome {
	start := time.Now()
	state, err := c.prober.ProbeForStrandedRemoteState(ctx)
	out := Outcome{Kind: state.Kind, Records: state.Records, Duration: time.Since(start)}

	if err != nil {
		out.Kind = ""
		out.Error = err.Error()
		c.log.Warn("remote probe failed",
			logger.String("phase", "remote_probe"),
			logger.String("status", "failed"),
			logger.Error(err))
		return out
	}

	total := 0
	for _, r := range state.Records {
		total += r.Count
	}
	c.log.Info("remote probe finished",
		logger.String("phase", "remote_probe"),
		logger.String("status", "complete"),
		logger.String("kind", string(state.Kind)),
		logger.Int("records", total))
	return out
}

// ErrProbeAbandoned is the outcome error of a probe still running when the
// caller stopped waiting for it.
var ErrProbeAbandoned = errors.New("remote probe still running when local work finished; abandoned")

// Probe is a probe running in the background.
type Probe struct {
	cancel context.CancelFunc
	done   chan Outcome
}

// Start runs the probe on its own goroutine.
func (c *Coordinator) Start(ctx context.Context) *Probe {
	ctx, cancel := context.WithCancel(ctx)
	p := &Probe{cancel: cancel, done: make(chan Outcome, 1)}
	go func() {
		p.done <- c.Run(ctx)
	}()
	return p
}

// Collect waits at most grace for the outcome. A probe that has not
// finished by then is cancelled and left to exit on its own; the returned
// outcome carries ErrProbeAbandoned.
func (p *Probe) Collect(grace time.Duration) Outcome {
	defer p.cancel()

	select {
	case out := <-p.done:
		return out
	default:
	}
	if grace <= 0 {
		return Outcome{Error: ErrProbeAbandoned.Error()}
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case out := <-p.done:
		return out
	case <-timer.C:
		return Outcome{Error: ErrProbeAbandoned.Error(), Duration: grace}
	}
}
