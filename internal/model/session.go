package model

import "time"

// Session is one pairing attempt linking a (possibly unknown) phone number to a
// device-link handshake. All mutation goes through the store's Update so that
// supervisor, dispatcher and sweeper writes never interleave destructively.
type Session struct {
	ID           string        `json:"id"`
	PhoneNumber  string        `json:"phoneNumber,omitempty"`
	Code         string        `json:"code"`
	Status       SessionStatus `json:"status"`
	Generation   int           `json:"generation"`
	AttemptCount int           `json:"attemptCount"`
	QRPayload    string        `json:"qrPayload,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	VerifiedAt   *time.Time    `json:"verifiedAt,omitempty"`
}

// Age returns how long the session has existed at the given instant.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
