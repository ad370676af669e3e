// Package jobs hosts background maintenance loops.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper removes sessions that outlived their TTL and reports how many it
// reaped. The session manager satisfies this.
type Reaper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Sweeper periodically reaps expired sessions so abandoned pairings do not
// pin codes or supervisor goroutines forever.
type Sweeper struct {
	reaper   Reaper
	interval time.Duration
	done     chan struct{}
}

func NewSweeper(reaper Reaper, interval time.Duration) *Sweeper {
	return &Sweeper{
		reaper:   reaper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("expiration sweeper started")
}

func (s *Sweeper) Stop() {
	close(s.done)
	log.Info().Msg("expiration sweeper stopped")
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.reaper.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("swept expired sessions")
	}
}
