package model

type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusConnecting SessionStatus = "connecting"
	StatusOpen       SessionStatus = "open"
	StatusVerified   SessionStatus = "verified"
	StatusError      SessionStatus = "error"
	StatusExpired    SessionStatus = "expired"
	StatusClosed     SessionStatus = "closed"
)

// Live reports whether the session still owns its pairing code and may accept
// connection events. Terminal sessions release the code for reuse.
func (s SessionStatus) Live() bool {
	switch s {
	case StatusPending, StatusConnecting, StatusOpen:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusVerified, StatusError, StatusExpired, StatusClosed:
		return true
	}
	return false
}
