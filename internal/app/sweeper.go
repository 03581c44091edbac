package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically reclaims rooms that never reached an active session.
// It runs on its own timer task and only ever touches room state through the
// registry's atomic operations.
type Sweeper struct {
	Coord    *Coordinator
	Interval time.Duration
	MaxIdle  time.Duration
}

func (s *Sweeper) Run(ctx context.Context) {
	if s.MaxIdle <= 0 {
		log.Info().Str("module", "app.sweeper").Msg("idle sweep disabled")
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return
		case <-ticker.C:
			if n := s.Coord.SweepIdle(s.MaxIdle); n > 0 {
				log.Info().Str("module", "app.sweeper").Int("rooms", n).Msg("swept idle rooms")
			}
		}
	}
}
