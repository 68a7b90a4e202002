package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config selects and tunes a WebClient backend.
type Config struct {
	Client Client `yaml:"client"`

	// Timeout bounds a single request. Zero means 30s.
	Timeout time.Duration `yaml:"timeout"`

	// IdleAfter is how long the chromedp backend waits for network silence
	// before reading the DOM. Zero means 2s.
	IdleAfter time.Duration `yaml:"idle_after"`

	// Headful shows the browser window (chromedp only).
	Headful bool `yaml:"headful"`

	UserAgent string `yaml:"user_agent"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c Config) idleAfter() time.Duration {
	if c.IdleAfter <= 0 {
		return 2 * time.Second
	}
	return c.IdleAfter
}
