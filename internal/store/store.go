package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gdtech/pairgate/internal/apperrors"
	"github.com/gdtech/pairgate/internal/model"
)

// record pairs a session with its own mutex so concurrent Update calls on
// different sessions never contend with each other.
type record struct {
	mu      sync.Mutex
	removed bool
	sess    model.Session
}

// Store is an in-memory registry of pairing sessions. It keeps a secondary
// index from live pairing code to session id; the index entry is dropped as
// soon as the session leaves a live status, which is what allows codes to be
// reused by later sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
	codes    map[string]string // live code -> session id
}

func New() *Store {
	return &Store{
		sessions: make(map[string]*record),
		codes:    make(map[string]string),
	}
}

// Create inserts a new pending session under the given code. It returns
// ALREADY_EXISTS when another live session currently holds the code; the
// caller regenerates and retries.
func (s *Store) Create(phoneNumber, code string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[code]; taken {
		return model.Session{}, apperrors.AlreadyExists("pairing code")
	}

	sess := model.Session{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		Code:        code,
		Status:      model.StatusPending,
		CreatedAt:   time.Now(),
	}
	s.sessions[sess.ID] = &record{sess: sess}
	s.codes[code] = sess.ID
	return sess, nil
}

// Get returns a snapshot of the session, or NOT_FOUND.
func (s *Store) Get(id string) (model.Session, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return model.Session{}, apperrors.NotFound("session")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return model.Session{}, apperrors.NotFound("session")
	}
	return rec.sess, nil
}

// FindByCode resolves a live pairing code to its session. Codes of terminal
// sessions are not resolvable. The status recheck covers the window between a
// session going terminal under its record lock and Update releasing the code
// from the index.
func (s *Store) FindByCode(code string) (model.Session, error) {
	s.mu.RLock()
	id, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return model.Session{}, apperrors.NotFound("session")
	}

	sess, err := s.Get(id)
	if err != nil {
		return model.Session{}, err
	}
	if !sess.Status.Live() {
		return model.Session{}, apperrors.NotFound("session")
	}
	return sess, nil
}

// Update applies fn to the session under its record lock and returns the
// resulting snapshot. When fn returns an error the session is left untouched
// and the error is propagated. Returns NOT_FOUND if the record was removed
// concurrently (e.g. by the sweeper); callers treat that as "session gone".
func (s *Store) Update(id string, fn func(*model.Session) error) (model.Session, error) {
	rec, ok := s.lookup(id)
	if !ok {
		return model.Session{}, apperrors.NotFound("session")
	}

	rec.mu.Lock()
	if rec.removed {
		rec.mu.Unlock()
		return model.Session{}, apperrors.NotFound("session")
	}

	wasLive := rec.sess.Status.Live()
	if err := fn(&rec.sess); err != nil {
		rec.mu.Unlock()
		return model.Session{}, err
	}
	snap := rec.sess
	rec.mu.Unlock()

	// The code is released outside the record lock to keep lock ordering
	// one-way (store lock is never acquired under a record lock's critical
	// section together with another record).
	if wasLive && !snap.Status.Live() {
		s.releaseCode(snap.Code, id)
	}
	return snap, nil
}

// Remove deletes the session and releases its code. Removing an unknown id is
// a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	rec.mu.Lock()
	rec.removed = true
	code := rec.sess.Code
	rec.mu.Unlock()

	s.releaseCode(code, id)
}

// ListExpirable returns the ids of all sessions older than ttl at the given
// instant, regardless of status.
func (s *Store) ListExpirable(now time.Time, ttl time.Duration) []string {
	s.mu.RLock()
	candidates := make([]*record, 0, len(s.sessions))
	for _, rec := range s.sessions {
		candidates = append(candidates, rec)
	}
	s.mu.RUnlock()

	var ids []string
	for _, rec := range candidates {
		rec.mu.Lock()
		if !rec.removed && rec.sess.Age(now) > ttl {
			ids = append(ids, rec.sess.ID)
		}
		rec.mu.Unlock()
	}
	return ids
}

// Len returns the number of sessions currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) lookup(id string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	return rec, ok
}

func (s *Store) releaseCode(code, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes[code] == id {
		delete(s.codes, code)
	}
}
