package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/model"
)

// errSupervisorDone aborts the claim mutation when the session is terminal or
// this supervisor's generation was superseded.
var errSupervisorDone = errors.New("supervisor done")

// supervise drives one session's connection attempts until a terminal outcome.
// It is the only writer of Generation and AttemptCount, so a generation
// mismatch at claim time can only mean the session was expired, closed or
// superseded out from under it.
func (m *Manager) supervise(sessionID, identityHint string) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	m.register(sessionID, cancel)
	defer m.unregister(sessionID)

	lastGen := 0
	reconnect := false
	for {
		gen := lastGen
		snap, err := m.store.Update(sessionID, func(s *model.Session) error {
			if s.Status.Terminal() || s.Generation != lastGen {
				return errSupervisorDone
			}
			if reconnect {
				if s.AttemptCount+1 > m.cfg.MaxConnectAttempts {
					s.Status = model.StatusError
					s.LastError = "connection retry limit exceeded"
					return nil
				}
				s.Generation++
				s.AttemptCount++
			}
			s.Status = model.StatusConnecting
			s.QRPayload = ""
			gen = s.Generation
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("sessionId", sessionID).Msg("supervisor stopping")
			return
		}
		if snap.Status == model.StatusError {
			log.Warn().
				Str("sessionId", sessionID).
				Int("attempts", snap.AttemptCount).
				Msg("retry limit reached")
			m.publish(ctx, snap)
			return
		}

		lastGen = gen
		m.publish(ctx, snap)

		if !m.runAttempt(ctx, sessionID, gen, identityHint) {
			return
		}
		reconnect = true

		delay := nextBackoffDelay(m.cfg.Backoff, snap.AttemptCount+1)
		log.Info().
			Str("sessionId", sessionID).
			Int("attempt", snap.AttemptCount+1).
			Dur("delay", delay).
			Msg("reconnect scheduled")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runAttempt opens one connection through the provider and drains its events.
// The return value reports whether a retry should be scheduled.
func (m *Manager) runAttempt(ctx context.Context, sessionID string, gen int, identityHint string) bool {
	events, cancelConn, err := m.provider.Open(ctx, identityHint)
	if err != nil {
		// Absorbed by the backoff loop, surfaced only as attempt count.
		log.Warn().Err(err).Str("sessionId", sessionID).Int("generation", gen).Msg("provider open failed")
		return true
	}
	defer cancelConn()

	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				// Stream ended without an explicit close: transport drop.
				return true
			}
			switch m.disp.handleEvent(ctx, sessionID, gen, ev) {
			case dirContinue:
			case dirRetry:
				return true
			case dirStop:
				return false
			}
		}
	}
}
