package replay_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/testutil"
)

func navMessage(fields map[string]any) json.RawMessage {
	m := map[string]any{"type": replay.NavigationMessageType}
	for k, v := range fields {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}

// ─── DecodeNavigation ──────────────────────────────────────────────────

func TestDecodeNavigation(t *testing.T) {
	t.Parallel()

	u, ok := replay.DecodeNavigation(navMessage(map[string]any{
		"url":       "https://example.com/a#frag",
		"timestamp": "20230102030405",
		"coll":      "job-7",
		"topUrl":    "https://replay.example.org/job-7/20230102030405/https://example.com/a",
	}))
	require.True(t, ok)
	require.NotNil(t, u.LogicalURL)
	assert.Equal(t, "https://example.com/a", *u.LogicalURL)
	require.NotNil(t, u.Timestamp)
	assert.Equal(t, "20230102030405", *u.Timestamp)
	require.NotNil(t, u.EditionID)
	assert.Equal(t, int64(7), *u.EditionID)
	require.NotNil(t, u.ViewerURL)
}

func TestDecodeNavigation_InvalidFieldsAreDroppedIndividually(t *testing.T) {
	t.Parallel()

	u, ok := replay.DecodeNavigation(navMessage(map[string]any{
		"url":       "https://example.com/b",
		"timestamp": "2023-01-02",
		"coll":      "collection-7",
		"topUrl":    42,
	}))
	require.True(t, ok)
	require.NotNil(t, u.LogicalURL)
	assert.Nil(t, u.Timestamp)
	assert.Nil(t, u.EditionID)
	assert.Nil(t, u.ViewerURL)
}

func TestDecodeNavigation_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"not json":     `nope`,
		"array":        `[1,2]`,
		"string":       `"haReplayNavigation"`,
		"no type":      `{"url":"https://example.com"}`,
		"wrong type":   `{"type":"somethingElse","url":"https://example.com"}`,
		"numeric type": `{"type":5}`,
		"null":         `null`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := replay.DecodeNavigation(json.RawMessage(raw))
			assert.False(t, ok)
		})
	}
}

// ─── Listener via Controller ───────────────────────────────────────────

func attached(t *testing.T, opts ...replay.Option) (*replay.Controller, *replay.Bus) {
	t.Helper()
	c := newController(t, &testutil.StubResolver{}, opts...)
	bus := replay.NewBus()
	require.NoError(t, c.Attach(bus))
	return c, bus
}

func TestListener_AppliesNavigationFromReplayOrigin(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)

	n := bus.Publish(replay.Envelope{
		Origin: replayOrigin,
		Data: navMessage(map[string]any{
			"url":       "https://www.canada.ca/fr/sante-canada.html",
			"timestamp": "20240401000000",
			"coll":      "job-2",
			"topUrl":    replayOrigin + "/job-2/20240401000000/https://www.canada.ca/fr/sante-canada.html",
		}),
	})
	assert.Equal(t, 1, n)

	s := c.State()
	assert.Equal(t, "https://www.canada.ca/fr/sante-canada.html", s.LogicalURL)
	assert.Equal(t, "20240401000000", s.Timestamp)
	assert.Equal(t, int64(2), s.EditionID)
	assert.Equal(t, replayOrigin+"/job-2/20240401000000/https://www.canada.ca/fr/sante-canada.html", s.ViewerURL)
}

func TestListener_ForeignOriginNeverMutates(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)
	before := c.State()

	for _, origin := range []string{
		"https://evil.example",
		"http://replay.example.org",
		"https://replay.example.org:8443",
		"",
	} {
		bus.Publish(replay.Envelope{Origin: origin, Data: navMessage(map[string]any{
			"url": "https://evil.example/phish", "coll": "job-2",
		})})
	}
	assert.Equal(t, before, c.State())
}

func TestListener_MissingTimestampKeepsPrevious(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)
	before := c.State()

	bus.Publish(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{
		"url":       "https://www.canada.ca/en/services.html",
		"timestamp": "not-a-timestamp",
	})})

	s := c.State()
	assert.Equal(t, "https://www.canada.ca/en/services.html", s.LogicalURL)
	assert.Equal(t, before.Timestamp, s.Timestamp)
	assert.Equal(t, before.EditionID, s.EditionID)
}

func TestListener_UnknownEditionIgnored(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)

	bus.Publish(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/x.html", "coll": "job-999",
	})})

	s := c.State()
	assert.Equal(t, int64(1), s.EditionID)
	assert.Equal(t, "https://www.canada.ca/en/x.html", s.LogicalURL)
}

func TestListener_EmptyFieldsIgnored(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)
	before := c.State()

	bus.Publish(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{
		"url": "", "topUrl": "",
	})})
	assert.Equal(t, before, c.State())
}

func TestListener_DoesNotTouchSwitching(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)

	bus.Publish(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/y.html",
	})})
	assert.False(t, c.State().Switching)
}

func TestListener_FrameSourcePinning(t *testing.T) {
	t.Parallel()
	c, bus := attached(t, replay.WithFrameSource("frame-a"))
	before := c.State()

	bus.Publish(replay.Envelope{Origin: replayOrigin, Source: "frame-b", Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/other.html",
	})})
	assert.Equal(t, before, c.State())

	bus.Publish(replay.Envelope{Origin: replayOrigin, Source: "frame-a", Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/mine.html",
	})})
	assert.Equal(t, "https://www.canada.ca/en/mine.html", c.State().LogicalURL)
}

func TestListener_NotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	calls := 0
	c, bus := attached(t, replay.WithOnChange(func(replay.NavigationState, replay.Outcome) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	msg := replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/z.html",
	})}
	bus.Publish(msg)
	bus.Publish(msg)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "https://www.canada.ca/en/z.html", c.State().LogicalURL)
}

func TestListener_AttachWithoutOrigin(t *testing.T) {
	t.Parallel()
	meta := testMeta()
	meta.BrowseURL = ""
	c := replay.NewController(meta, nil, nil)

	bus := replay.NewBus()
	assert.ErrorIs(t, c.Attach(bus), replay.ErrNoReplayOrigin)
	assert.Zero(t, bus.Len())
}

func TestListener_ReattachDropsOldOrigin(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)
	require.Equal(t, 1, bus.Len())

	const newOrigin = "https://replay2.example.org"
	require.NoError(t, c.Reattach(bus, newOrigin+"/job-1/20240305102030/"+pageURL))
	assert.Equal(t, 1, bus.Len())
	assert.Equal(t, newOrigin, c.ReplayOrigin())

	before := c.State()
	assert.Zero(t, bus.Publish(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/stale.html",
	})}))
	assert.Equal(t, before, c.State())

	bus.Publish(replay.Envelope{Origin: newOrigin, Data: navMessage(map[string]any{
		"url": "https://www.canada.ca/en/fresh.html",
	})})
	assert.Equal(t, "https://www.canada.ca/en/fresh.html", c.State().LogicalURL)
}

func TestListener_DetachStopsDelivery(t *testing.T) {
	t.Parallel()
	c, bus := attached(t)
	c.Detach()
	assert.Zero(t, bus.Len())
	c.Detach()

	before := c.State()
	bus.Publish(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{"url": "https://x.example/"})})
	assert.Equal(t, before, c.State())
}

func TestListener_HandleDirect(t *testing.T) {
	t.Parallel()
	var got []replay.NavigationUpdate
	l := replay.NewListener(replayOrigin, "", func(u replay.NavigationUpdate) { got = append(got, u) }, nil)

	assert.False(t, l.Handle(replay.Envelope{Origin: "https://other.example", Data: navMessage(map[string]any{"url": "https://a/"})}))
	assert.False(t, l.Handle(replay.Envelope{Origin: replayOrigin, Data: json.RawMessage(`{"type":"other"}`)}))
	assert.False(t, l.Handle(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{"timestamp": "bad"})}))
	assert.True(t, l.Handle(replay.Envelope{Origin: replayOrigin, Data: navMessage(map[string]any{"url": "https://a/"})}))
	assert.Len(t, got, 1)
	assert.Equal(t, replayOrigin, l.Origin())
}
