package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collabhub/internal/logging"
)

// pingable is the liveness contract a ClientSession exposes to the
// scheduler: has it been heard from since the last sweep, and if not,
// tear it down; otherwise ping it and wait for the next sweep to find
// out whether that ping (or any other traffic) landed.
type pingable interface {
	Alive() bool
	ClearAlive()
	Ping() error
	Terminate()
}

// HeartbeatScheduler owns one ticker shared by every registered
// session, rather than the teacher's per-connection ticker plus read
// deadline: a session that misses one whole interval without any
// activity — including the scheduler's own ping — is considered dead.
type HeartbeatScheduler struct {
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	targets map[pingable]struct{}
}

// NewHeartbeatScheduler builds a scheduler that sweeps every interval.
func NewHeartbeatScheduler(interval time.Duration) *HeartbeatScheduler {
	return &HeartbeatScheduler{
		interval: interval,
		log:      logging.Named("heartbeat"),
		targets:  make(map[pingable]struct{}),
	}
}

// Register adds t to the next sweep.
func (h *HeartbeatScheduler) Register(t pingable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets[t] = struct{}{}
}

// Unregister removes t, e.g. once its connection has already closed.
func (h *HeartbeatScheduler) Unregister(t pingable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.targets, t)
}

// Run ticks until ctx is canceled.
func (h *HeartbeatScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *HeartbeatScheduler) sweep() {
	h.mu.Lock()
	targets := make([]pingable, 0, len(h.targets))
	for t := range h.targets {
		targets = append(targets, t)
	}
	h.mu.Unlock()

	for _, t := range targets {
		if !t.Alive() {
			h.log.Debug().Msg("session missed heartbeat, terminating")
			h.Unregister(t)
			t.Terminate()
			continue
		}
		t.ClearAlive()
		if err := t.Ping(); err != nil {
			h.log.Debug().Err(err).Msg("ping failed, terminating")
			h.Unregister(t)
			t.Terminate()
		}
	}
}
