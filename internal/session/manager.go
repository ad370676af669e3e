// Package session implements the pairing session lifecycle: code allocation,
// per-session connection supervision with bounded reconnects, event dispatch
// onto the state machine, and exactly-once post-verification side effects.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gdtech/pairgate/internal/apperrors"
	"github.com/gdtech/pairgate/internal/config"
	"github.com/gdtech/pairgate/internal/delivery"
	"github.com/gdtech/pairgate/internal/model"
	"github.com/gdtech/pairgate/internal/provider"
	"github.com/gdtech/pairgate/internal/store"
	"github.com/gdtech/pairgate/internal/util"
)

// StatusEvent is the real-time notification payload published on every status
// transition. Notifier failures never affect session state.
type StatusEvent struct {
	Status      model.SessionStatus `json:"status"`
	PhoneNumber string              `json:"phoneNumber,omitempty"`
	QRPayload   string              `json:"qrPayload,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Notifier pushes status events to interested observers (e.g. browsers polling
// a pairing page). Optional; a nil Notifier disables publishing.
type Notifier interface {
	PublishStatus(ctx context.Context, sessionID string, event StatusEvent) error
}

// Config tunes the lifecycle manager. Zero fields fall back to defaults.
type Config struct {
	TTL                time.Duration
	MaxConnectAttempts int
	CodeAttempts       int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		TTL:                5 * time.Minute,
		MaxConnectAttempts: 5,
		CodeAttempts:       config.CodeGenerationAttempts,
		Backoff: BackoffConfig{
			InitialDelay: config.BackoffInitialDelay,
			Multiplier:   config.BackoffMultiplier,
			MaxDelay:     config.BackoffMaxDelay,
			Jitter:       true,
		},
	}
}

// Manager owns all pairing sessions and their supervisor goroutines. The store
// is the only shared mutable structure; supervisors, the dispatcher and the
// sweeper all funnel writes through it.
type Manager struct {
	store    *store.Store
	provider provider.Provider
	disp     *dispatcher
	notifier Notifier
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	aborts map[string]context.CancelFunc
}

func NewManager(
	st *store.Store,
	prov provider.Provider,
	sink delivery.CredentialSink,
	subscriber delivery.ChannelSubscriber,
	notifier Notifier,
	cfg Config,
) *Manager {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxConnectAttempts <= 0 {
		cfg.MaxConnectAttempts = def.MaxConnectAttempts
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = def.CodeAttempts
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = def.Backoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    st,
		provider: prov,
		disp: &dispatcher{
			store:      st,
			sink:       sink,
			subscriber: subscriber,
			notifier:   notifier,
		},
		notifier: notifier,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		aborts:   make(map[string]context.CancelFunc),
	}
}

// Close stops every supervisor and waits for them to release their provider
// connections. Creates arriving after Close are rejected; the closed flag and
// the WaitGroup Add share a critical section so Wait never races an Add.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// TTL returns the configured session time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

type CreateResult struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

type StatusResult struct {
	SessionID   string              `json:"sessionId"`
	Status      model.SessionStatus `json:"status"`
	Code        string              `json:"code"`
	PhoneNumber string              `json:"phoneNumber,omitempty"`
	QRPayload   string              `json:"qrPayload,omitempty"`
	LastError   string              `json:"lastError,omitempty"`
}

// Create allocates a session with a fresh pairing code and starts its
// connection supervisor. An empty phoneNumber starts a QR-initiated flow; the
// number is filled in once the provider reports the linked identity.
func (m *Manager) Create(ctx context.Context, phoneNumber string) (*CreateResult, error) {
	normalized := ""
	if phoneNumber != "" {
		n, ok := util.NormalizePhoneNumber(phoneNumber)
		if !ok {
			return nil, apperrors.InvalidPhoneNumber(
				"Phone number must be a full international number, e.g. +15551234567")
		}
		normalized = n
	}

	var sess model.Session
	var err error
	for i := 0; i < m.cfg.CodeAttempts; i++ {
		sess, err = m.store.Create(normalized, GenerateCode())
		if err == nil {
			break
		}
		if !apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists) {
			return nil, err
		}
	}
	if err != nil {
		log.Error().Int("attempts", m.cfg.CodeAttempts).Msg("pairing code space exhausted")
		return nil, apperrors.CodeSpaceExhausted()
	}

	log.Info().
		Str("sessionId", sess.ID).
		Str("code", sess.Code).
		Str("phoneNumber", normalized).
		Msg("session created")

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.store.Remove(sess.ID)
		return nil, apperrors.Internal("session manager is shut down")
	}
	m.wg.Add(1)
	m.mu.Unlock()
	go m.supervise(sess.ID, normalized)

	return &CreateResult{SessionID: sess.ID, Code: sess.Code}, nil
}

// GetStatus returns the session snapshot, lazily reaping sessions the sweeper
// has not reached yet.
func (m *Manager) GetStatus(ctx context.Context, sessionID string) (*StatusResult, error) {
	sess, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Age(time.Now()) > m.cfg.TTL {
		m.expire(ctx, sess.ID)
		return nil, apperrors.NotFound("session")
	}
	return statusResult(sess), nil
}

// GetByCode is the code-entry symmetric lookup. Only live sessions resolve.
func (m *Manager) GetByCode(ctx context.Context, code string) (*StatusResult, error) {
	sess, err := m.store.FindByCode(code)
	if err != nil {
		return nil, err
	}
	if sess.Age(time.Now()) > m.cfg.TTL {
		m.expire(ctx, sess.ID)
		return nil, apperrors.NotFound("session")
	}
	return statusResult(sess), nil
}

// Cancel forces a live session to closed and stops its supervisor. Cancelling
// an already-terminal session fails with SESSION_TERMINAL.
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	snap, err := m.store.Update(sessionID, func(s *model.Session) error {
		if s.Status.Terminal() {
			return apperrors.SessionTerminal()
		}
		s.Status = model.StatusClosed
		return nil
	})
	if err != nil {
		return err
	}

	m.abort(sessionID)
	m.publish(ctx, snap)
	log.Info().Str("sessionId", sessionID).Msg("session cancelled")
	return nil
}

// ExpireStale reaps every session older than the TTL, regardless of status,
// and returns how many were removed. Called by the sweeper.
func (m *Manager) ExpireStale(ctx context.Context) (int64, error) {
	ids := m.store.ListExpirable(time.Now(), m.cfg.TTL)
	for _, id := range ids {
		m.expire(ctx, id)
	}
	return int64(len(ids)), nil
}

func (m *Manager) expire(ctx context.Context, sessionID string) {
	snap, err := m.store.Update(sessionID, func(s *model.Session) error {
		if s.Status.Terminal() {
			return nil
		}
		s.Status = model.StatusExpired
		return nil
	})
	m.store.Remove(sessionID)
	m.abort(sessionID)

	if err == nil && snap.Status == model.StatusExpired {
		m.publish(ctx, snap)
		log.Info().Str("sessionId", sessionID).Msg("session expired")
	}
}

func (m *Manager) publish(ctx context.Context, sess model.Session) {
	if m.notifier == nil {
		return
	}
	ev := StatusEvent{
		Status:      sess.Status,
		PhoneNumber: sess.PhoneNumber,
		QRPayload:   sess.QRPayload,
		Error:       sess.LastError,
	}
	if err := m.notifier.PublishStatus(ctx, sess.ID, ev); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.ID).Msg("status publish failed")
	}
}

func (m *Manager) register(sessionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts[sessionID] = cancel
}

func (m *Manager) unregister(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aborts, sessionID)
}

// abort wakes the session's supervisor out of its event or backoff wait so it
// observes the cancellation immediately instead of on its next cycle.
func (m *Manager) abort(sessionID string) {
	m.mu.Lock()
	cancel := m.aborts[sessionID]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func statusResult(sess model.Session) *StatusResult {
	return &StatusResult{
		SessionID:   sess.ID,
		Status:      sess.Status,
		Code:        sess.Code,
		PhoneNumber: sess.PhoneNumber,
		QRPayload:   sess.QRPayload,
		LastError:   sess.LastError,
	}
}
