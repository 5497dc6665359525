// Package reliability runs the background watchdog that detects a stalled
// link from receiver-side chunk inactivity, drives reconnection, and
// preserves partial transfers rather than losing them outright.
package reliability

import (
	"context"
	"time"

	"github.com/meshxfer/meshxfer/internal/config"
	"github.com/meshxfer/meshxfer/internal/meshlink"
	"github.com/meshxfer/meshxfer/internal/observability"
	"github.com/meshxfer/meshxfer/internal/session"
)

// transferTracker is the subset of *receiver.Engine the supervisor needs.
// Defined as an interface here (rather than importing internal/receiver
// directly) to avoid a reliability<->receiver import cycle while both
// depend on internal/session.
type transferTracker interface {
	Transfers() map[string]*session.IncomingTransfer
	FlushPartial(filename string) error
}

// Supervisor polls tracked transfers for chunk inactivity and reconnects the
// link when one has gone quiet longer than the configured idle timeout.
type Supervisor struct {
	cfg       *config.Config
	adapter   *meshlink.Adapter
	tracker   transferTracker
	logger    *observability.Logger
	metrics   *observability.Metrics
	pollEvery time.Duration
}

// New builds a supervisor watching tracker's transfers over adapter.
func New(cfg *config.Config, adapter *meshlink.Adapter, tracker transferTracker, logger *observability.Logger, metrics *observability.Metrics) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		adapter:   adapter,
		tracker:   tracker,
		logger:    logger,
		metrics:   metrics,
		pollEvery: 5 * time.Second,
	}
}

// Run blocks, sweeping for idle transfers every pollEvery until ctx is
// canceled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep checks every tracked transfer for chunk inactivity past
// cfg.ChunkIdleTimeout. An idle transfer triggers a reconnect attempt first;
// only once reconnect fails does the sweep checkpoint and abandon the idle
// transfers, since a transient stall that reconnects cleanly should resume
// without ever touching disk. A link failure affects every in-flight
// transfer at once, so one reconnect attempt per sweep covers all of them.
func (s *Supervisor) sweep(ctx context.Context) {
	var idle []string
	for filename, transfer := range s.tracker.Transfers() {
		if transfer.State() != session.StateActive {
			continue
		}
		if transfer.IdleSince() < s.cfg.ChunkIdleTimeout {
			continue
		}
		idle = append(idle, filename)
	}

	if len(idle) == 0 {
		return
	}

	s.logger.Warn("transfer(s) idle past chunk timeout, attempting reconnect")
	err := s.adapter.Reconnect(ctx)
	if err == nil {
		if s.metrics != nil {
			s.metrics.RecordReconnect(true)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordReconnect(false)
	}
	s.logger.Error(err, "reconnect after idle timeout failed, checkpointing idle transfers")

	for filename, transfer := range s.tracker.Transfers() {
		if !contains(idle, filename) || transfer.State() != session.StateActive {
			continue
		}
		if err := s.tracker.FlushPartial(filename); err != nil {
			s.logger.Error(err, "failed to checkpoint idle transfer")
		}
		transfer.TransitionTo(session.StateAbandoned, "chunk idle timeout exceeded, reconnect failed")
	}
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

// Shutdown flushes every currently active or abandoned transfer's buffer to
// a partial_ file, so a graceful exit never silently discards bytes already
// received.
func (s *Supervisor) Shutdown() {
	for filename, transfer := range s.tracker.Transfers() {
		if transfer.State() != session.StateActive && transfer.State() != session.StateAbandoned {
			continue
		}
		if err := s.tracker.FlushPartial(filename); err != nil {
			s.logger.Error(err, "failed to flush partial transfer on shutdown")
		}
	}
}
