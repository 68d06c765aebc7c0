package hub

import (
	"context"
	"sync"
	"time"

	"github.com/widyatma/loratag/internal/observability"
)

const (
	// DefaultSweepInterval is how often the liveness sweep runs.
	DefaultSweepInterval = 60 * time.Second
	// DefaultIdleTimeout is how long a connection may go without a heartbeat
	// before it is evicted.
	DefaultIdleTimeout = 300 * time.Second
)

// Sweeper periodically evicts connections whose last heartbeat exceeds the
// idle threshold. This is a cooperative liveness protocol; it does not rely
// on transport-level keepalive.
type Sweeper struct {
	hub         *Hub
	interval    time.Duration
	idleTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewSweeper creates a sweeper for the hub. Non-positive durations fall back
// to the defaults.
func NewSweeper(h *Hub, interval, idleTimeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		hub:         h,
		interval:    interval,
		idleTimeout: idleTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()

	s.hub.logger.Info().
		Dur("interval", s.interval).
		Dur("idleTimeout", s.idleTimeout).
		Msg("Stale connection sweeper started")
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep evicts every connection idle beyond the threshold. Exposed for
// tests and for forced sweeps on demand.
func (s *Sweeper) Sweep() {
	now := time.Now()
	for _, client := range s.hub.registry.GetAll() {
		idle := now.Sub(client.LastHeartbeat())
		if idle <= s.idleTimeout {
			continue
		}

		s.hub.logger.Warn().
			Str("clientId", client.ID).
			Dur("idle", idle).
			Msg("Evicting stale connection")
		observability.RecordEviction("idle_timeout")
		s.hub.Disconnect(client.ID)
	}
}
