package server

import "github.com/raysh454/replaydesk/internal/logging"

type Config struct {
	// ListenAddr is the HTTP listen address for pages, the session API and
	// the websocket relay.
	ListenAddr string

	// AllowedOrigins may open session websockets and call the API
	// cross-origin. Same-host requests are always allowed.
	AllowedOrigins []string

	Logger logging.Logger
}
