package lease

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const sweepConcurrency = 8

// Sweeper tears down clusters whose lease has run out.
type Sweeper struct {
	logger   zerolog.Logger
	manager  *Manager
	interval time.Duration
}

// NewSweeper returns a Sweeper that runs every interval. A zero interval
// disables the loop; Sweep can still be called directly.
func NewSweeper(logger zerolog.Logger, m *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{
		logger:   logger.With().Str("component", "sweeper").Logger(),
		manager:  m,
		interval: interval,
	}
}

// Sweep tears down every expired cluster concurrently, then reconciles
// once. A failed teardown is logged and does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) error {
	m := s.manager
	now := m.clock.Now()

	var expired []string
	for _, c := range m.registry.All() {
		if !c.Expired(now) || c.IsTerminating() || c.IsGone() {
			continue
		}
		if !m.limits.Allowed(c.Name) {
			continue
		}
		expired = append(expired, c.Name)
	}

	if len(expired) > 0 {
		s.logger.Info().Strs("clusters", expired).Msg("tearing down expired clusters")
	}

	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, name := range expired {
		name := name
		g.Go(func() error {
			if err := m.teardownNow(ctx, name); err != nil {
				s.logger.Warn().Err(err).Str("cluster", name).Msg("teardown of expired cluster failed")
			}
			return nil
		})
	}
	g.Wait()

	return m.reconciler.Reconcile(ctx)
}

// Run sweeps immediately and then on every interval tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("no sweep interval set; skipping sweeper")
		return
	}

	s.logger.Info().Dur("interval", s.interval).Msg("starting sweeper")
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.Sweep(ctx); err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
	}
}
