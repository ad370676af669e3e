// Package provider defines the narrow interface the session lifecycle manager
// consumes from the underlying device-link transport. The real implementation
// lives in the whatsapp subpackage; tests script their own.
package provider

import "context"

// Event is one occurrence on a connection attempt. Exactly one of the concrete
// types below is emitted per channel receive.
type Event interface {
	isEvent()
}

// QR is emitted while the provider is mid-handshake and wants the user to scan
// a payload (or type a provider-issued link code) instead of the session code.
type QR struct {
	Payload string
}

// Opened is emitted when the raw transport reports the device link as
// established. PhoneNumber carries the identity the provider derived from the
// handshake; it may be empty when the provider cannot tell yet.
type Opened struct {
	PhoneNumber string
}

// CredentialsReady is emitted once the supplementary credential material for
// the linked device is available.
type CredentialsReady struct {
	Blob []byte
}

// Closed is emitted when the connection attempt ends. Retryable distinguishes
// transport drops (reconnect with backoff) from explicit rejection such as a
// logged-out device (terminal).
type Closed struct {
	Retryable bool
	Reason    string
}

func (QR) isEvent()               {}
func (Opened) isEvent()           {}
func (CredentialsReady) isEvent() {}
func (Closed) isEvent()           {}

// CancelFunc releases the underlying connection. Safe to call more than once.
type CancelFunc func()

// Provider opens logical connection attempts. identityHint is the E.164 phone
// number for code-initiated flows and empty for QR-initiated ones. The returned
// channel is closed when the attempt ends; the caller must invoke cancel before
// abandoning it.
type Provider interface {
	Open(ctx context.Context, identityHint string) (<-chan Event, CancelFunc, error)
}
