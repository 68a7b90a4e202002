package replay

import (
	"encoding/json"
	"sync"

	"github.com/raysh454/replaydesk/internal/metrics"
)

// Envelope is one cross-document message as seen by the host page: the
// browser-reported sender origin, an optional id of the frame that sent it,
// and the raw payload.
type Envelope struct {
	Origin string          `json:"origin"`
	Source string          `json:"source,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// Bus fans envelopes out to subscribers. Each subscription fixes the one
// origin it accepts when it is created; envelopes from any other origin are
// never delivered to it.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]busSub
}

type busSub struct {
	origin string
	fn     func(Envelope)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]busSub)}
}

// Subscribe registers fn for envelopes whose Origin equals origin. The
// returned func removes the subscription and is safe to call more than once.
func (b *Bus) Subscribe(origin string, fn func(Envelope)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = busSub{origin: origin, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers env to every matching subscriber and reports how many
// received it. Handlers run on the caller's goroutine, outside the bus lock.
// An envelope that only reaches subscribers of other origins is counted as a
// wrong-origin navigation message.
func (b *Bus) Publish(env Envelope) int {
	b.mu.RLock()
	var targets []func(Envelope)
	for _, s := range b.subs {
		if s.origin == env.Origin {
			targets = append(targets, s.fn)
		}
	}
	listening := len(b.subs) > 0
	b.mu.RUnlock()

	if len(targets) == 0 && listening {
		metrics.NavigationMessage(metrics.VerdictWrongOrigin)
	}

	for _, fn := range targets {
		fn(env)
	}
	return len(targets)
}

// Len is the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
