package replay

import (
	"encoding/json"

	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/metrics"
	"github.com/raysh454/replaydesk/internal/replayurl"
)

// NavigationMessageType is the discriminator the replay viewer puts on its
// navigation events.
const NavigationMessageType = "haReplayNavigation"

// NavigationUpdate holds the usable fields of one navigation message. A nil
// field was absent or invalid and must leave state untouched.
type NavigationUpdate struct {
	LogicalURL *string
	Timestamp  *string
	ViewerURL  *string
	EditionID  *int64
}

func (u NavigationUpdate) empty() bool {
	return u.LogicalURL == nil && u.Timestamp == nil && u.ViewerURL == nil && u.EditionID == nil
}

// DecodeNavigation validates a raw message payload. It returns false for
// anything that is not a JSON object carrying the navigation discriminator.
// Each field is validated on its own, so one bad field does not discard the
// others.
func DecodeNavigation(data json.RawMessage) (NavigationUpdate, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NavigationUpdate{}, false
	}
	if typ, ok := stringField(raw, "type"); !ok || typ != NavigationMessageType {
		return NavigationUpdate{}, false
	}

	var u NavigationUpdate
	if s, ok := stringField(raw, "url"); ok && s != "" {
		stripped := replayurl.StripFragment(s)
		u.LogicalURL = &stripped
	}
	if s, ok := stringField(raw, "timestamp"); ok && replayurl.IsTimestamp14(s) {
		u.Timestamp = &s
	}
	if s, ok := stringField(raw, "topUrl"); ok && s != "" {
		u.ViewerURL = &s
	}
	if s, ok := stringField(raw, "coll"); ok {
		if id, ok := replayurl.ParseEditionIDFromTag(s); ok {
			u.EditionID = &id
		}
	}
	return u, true
}

func stringField(raw map[string]json.RawMessage, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// Listener turns envelopes from one replay origin (and optionally one frame)
// into NavigationUpdates. Everything else is dropped without error.
type Listener struct {
	origin string
	source string
	apply  func(NavigationUpdate)
	logger logging.Logger
}

// NewListener accepts messages from origin. When source is non-empty only
// envelopes tagged with that frame id are accepted.
func NewListener(origin, source string, apply func(NavigationUpdate), logger logging.Logger) *Listener {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Listener{origin: origin, source: source, apply: apply, logger: logger}
}

func (l *Listener) Origin() string { return l.origin }

// Subscribe attaches the listener to bus under its origin.
func (l *Listener) Subscribe(bus *Bus) (unsubscribe func()) {
	return bus.Subscribe(l.origin, func(env Envelope) { l.Handle(env) })
}

// Handle processes one envelope. It reports whether an update was applied.
func (l *Listener) Handle(env Envelope) bool {
	if env.Origin != l.origin {
		metrics.NavigationMessage(metrics.VerdictWrongOrigin)
		l.logger.Debug("dropping message from foreign origin", logging.Field{Key: "origin", Value: env.Origin})
		return false
	}
	if l.source != "" && env.Source != l.source {
		metrics.NavigationMessage(metrics.VerdictWrongSource)
		return false
	}
	u, ok := DecodeNavigation(env.Data)
	if !ok {
		metrics.NavigationMessage(metrics.VerdictUnrecognized)
		return false
	}
	if u.empty() {
		metrics.NavigationMessage(metrics.VerdictNoFieldsKnown)
		return false
	}
	metrics.NavigationMessage(metrics.VerdictApplied)
	l.apply(u)
	return true
}
