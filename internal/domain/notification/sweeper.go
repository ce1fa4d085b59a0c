package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper drives the escalation pass on a timer. Safe to run alongside
// delivery callbacks: both paths go through first-write-wins updates.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		log:      log.With().Str("component", "escalation_sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled. One pass runs immediately on start so a
// restart does not wait a full interval with breached SLAs outstanding.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("escalation sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	escalated, failed, err := s.svc.Sweep(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("escalation sweep failed")
		return
	}
	if escalated > 0 || failed > 0 {
		s.log.Info().
			Int("escalated", escalated).
			Int("failed", failed).
			Msg("escalation sweep complete")
	}
}
