package demoserver

import "time"

// Config holds configuration for the demo server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// ResolveDelay is added to every resolve call, to exercise switching
	// banners and timeouts.
	ResolveDelay time.Duration

	// ResolveFailing makes the resolve endpoint answer 503.
	ResolveFailing bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port: 9999,
	}
}
