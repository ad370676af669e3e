package config

import "time"

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for startup checks
const DBPingTimeout = 5 * time.Second

// Reconnect backoff shape for connection supervisors
const (
	BackoffInitialDelay = 2 * time.Second
	BackoffMultiplier   = 2.0
	BackoffMaxDelay     = 60 * time.Second
)

// Bounded regeneration attempts before code allocation is treated as a
// configuration error
const CodeGenerationAttempts = 10
