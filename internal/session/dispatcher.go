package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/delivery"
	"github.com/gdtech/pairgate/internal/model"
	"github.com/gdtech/pairgate/internal/provider"
	"github.com/gdtech/pairgate/internal/store"
)

// directive tells the supervisor what to do after an event was dispatched.
type directive int

const (
	dirContinue directive = iota // keep consuming this attempt's events
	dirRetry                     // retryable close: reconnect with backoff
	dirStop                      // terminal outcome or superseded attempt
)

// errStaleGeneration aborts a store mutation whose event belongs to a
// superseded connection attempt.
var errStaleGeneration = errors.New("stale generation")

// dispatcher maps provider events onto session state transitions and fires the
// post-verification collaborators. Generation filtering happens inside the
// store's per-record critical section, so a stale event can never interleave
// with a current-generation write.
type dispatcher struct {
	store      *store.Store
	sink       delivery.CredentialSink
	subscriber delivery.ChannelSubscriber
	notifier   Notifier
}

func (d *dispatcher) handleEvent(ctx context.Context, sessionID string, generation int, ev provider.Event) directive {
	switch e := ev.(type) {
	case provider.QR:
		return d.onQR(ctx, sessionID, generation, e)
	case provider.Opened:
		return d.onOpened(ctx, sessionID, generation, e)
	case provider.CredentialsReady:
		return d.onCredentialsReady(ctx, sessionID, generation, e)
	case provider.Closed:
		return d.onClosed(ctx, sessionID, generation, e)
	default:
		log.Warn().Str("sessionId", sessionID).Msgf("unknown provider event %T", ev)
		return dirContinue
	}
}

func (d *dispatcher) onQR(ctx context.Context, sessionID string, generation int, e provider.QR) directive {
	snap, err := d.store.Update(sessionID, func(s *model.Session) error {
		if s.Generation != generation {
			return errStaleGeneration
		}
		if s.Status != model.StatusConnecting {
			return nil
		}
		s.QRPayload = e.Payload
		return nil
	})
	if err != nil {
		return d.discard(sessionID, generation, "qr", err)
	}

	d.publish(ctx, snap)
	return dirContinue
}

func (d *dispatcher) onOpened(ctx context.Context, sessionID string, generation int, e provider.Opened) directive {
	var transitioned bool
	snap, err := d.store.Update(sessionID, func(s *model.Session) error {
		if s.Generation != generation {
			return errStaleGeneration
		}
		if s.Status != model.StatusConnecting {
			// duplicate opened, or an out-of-order event: no-op
			return nil
		}
		s.Status = model.StatusOpen
		s.QRPayload = ""
		if s.PhoneNumber == "" && e.PhoneNumber != "" {
			s.PhoneNumber = e.PhoneNumber
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return d.discard(sessionID, generation, "opened", err)
	}

	if transitioned {
		log.Info().
			Str("sessionId", sessionID).
			Int("generation", generation).
			Str("phoneNumber", snap.PhoneNumber).
			Msg("connection open")
		d.publish(ctx, snap)
	}
	return dirContinue
}

func (d *dispatcher) onCredentialsReady(ctx context.Context, sessionID string, generation int, e provider.CredentialsReady) directive {
	var fire bool
	snap, err := d.store.Update(sessionID, func(s *model.Session) error {
		if s.Generation != generation {
			return errStaleGeneration
		}
		if s.VerifiedAt != nil {
			// duplicate verification event; collaborators already fired
			return nil
		}
		if s.Status != model.StatusOpen {
			return nil
		}
		now := time.Now()
		s.Status = model.StatusVerified
		s.VerifiedAt = &now
		fire = true
		return nil
	})
	if err != nil {
		return d.discard(sessionID, generation, "credentialsReady", err)
	}

	if fire {
		log.Info().
			Str("sessionId", sessionID).
			Str("phoneNumber", snap.PhoneNumber).
			Msg("session verified")
		d.fireSideEffects(ctx, snap, e.Blob)
		d.publish(ctx, snap)
	}
	if snap.Status == model.StatusVerified {
		return dirStop
	}
	return dirContinue
}

func (d *dispatcher) onClosed(ctx context.Context, sessionID string, generation int, e provider.Closed) directive {
	if e.Retryable {
		log.Warn().
			Str("sessionId", sessionID).
			Int("generation", generation).
			Str("reason", e.Reason).
			Msg("connection dropped, will retry")
		return dirRetry
	}

	snap, err := d.store.Update(sessionID, func(s *model.Session) error {
		if s.Generation != generation {
			return errStaleGeneration
		}
		if s.Status.Terminal() {
			return nil
		}
		s.Status = model.StatusError
		s.LastError = e.Reason
		return nil
	})
	if err != nil {
		return d.discard(sessionID, generation, "closed", err)
	}

	log.Error().
		Str("sessionId", sessionID).
		Str("reason", e.Reason).
		Msg("connection rejected")
	d.publish(ctx, snap)
	return dirStop
}

// fireSideEffects invokes the credential-delivery and channel-subscription
// collaborators. Both are best-effort: a failure is recorded against the
// session, never reverted into the verified transition.
func (d *dispatcher) fireSideEffects(ctx context.Context, sess model.Session, blob []byte) {
	if d.sink != nil {
		if err := d.sink.Deliver(ctx, sess.PhoneNumber, blob); err != nil {
			log.Error().Err(err).Str("sessionId", sess.ID).Msg("credential delivery failed")
			d.recordCollaboratorError(sess.ID, "credential delivery: "+err.Error())
		} else {
			log.Info().Str("sessionId", sess.ID).Msg("credentials delivered")
		}
	}

	if d.subscriber != nil {
		if err := d.subscriber.Subscribe(ctx, sess.PhoneNumber); err != nil {
			log.Error().Err(err).Str("sessionId", sess.ID).Msg("channel subscription failed")
			d.recordCollaboratorError(sess.ID, "channel subscription: "+err.Error())
		} else {
			log.Info().Str("sessionId", sess.ID).Msg("channel subscribed")
		}
	}
}

func (d *dispatcher) recordCollaboratorError(sessionID, msg string) {
	// The session may already be reaped; losing the annotation is acceptable.
	_, _ = d.store.Update(sessionID, func(s *model.Session) error {
		s.LastError = msg
		return nil
	})
}

func (d *dispatcher) publish(ctx context.Context, sess model.Session) {
	if d.notifier == nil {
		return
	}
	ev := StatusEvent{
		Status:      sess.Status,
		PhoneNumber: sess.PhoneNumber,
		QRPayload:   sess.QRPayload,
		Error:       sess.LastError,
	}
	if err := d.notifier.PublishStatus(ctx, sess.ID, ev); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.ID).Msg("status publish failed")
	}
}

func (d *dispatcher) discard(sessionID string, generation int, kind string, err error) directive {
	log.Debug().
		Err(err).
		Str("sessionId", sessionID).
		Int("generation", generation).
		Str("event", kind).
		Msg("event discarded")
	return dirStop
}
