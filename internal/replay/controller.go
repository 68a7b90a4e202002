// Package replay keeps a replay view's navigation state in sync with the
// embedded archive viewer and switches it between editions.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/locale"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/metrics"
	"github.com/raysh454/replaydesk/internal/replayurl"
)

// DefaultResolveTimeout bounds a single resolution call.
const DefaultResolveTimeout = 20 * time.Second

var (
	ErrSwitchInFlight = errors.New("an edition switch is already in progress")
	ErrSameEdition    = errors.New("already viewing this edition")
	ErrNoLogicalURL   = errors.New("current page is unknown")
	ErrUnknownEdition = errors.New("edition is not available for this source")
	ErrNoReplayOrigin = errors.New("view has no replay viewer")
	errEmptyResponse  = errors.New("empty resolution response")
)

// Resolver finds the capture of a URL inside an edition.
type Resolver interface {
	ResolveEdition(ctx context.Context, req archiveapi.ResolveRequest) (*archiveapi.Resolution, error)
}

// ChangeFunc is called after every state change, outside the state lock but
// one call at a time, in the order the states were taken. It must not call
// back into the controller. outcome is nil unless the change finished an
// edition switch.
type ChangeFunc func(state NavigationState, outcome Outcome)

type Option func(*Controller)

func WithLocale(loc string) Option {
	return func(c *Controller) { c.loc = locale.New(loc) }
}

func WithResolveTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.resolveTimeout = d
		}
	}
}

func WithOnChange(fn ChangeFunc) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithFrameSource pins navigation messages to one frame id.
func WithFrameSource(source string) Option {
	return func(c *Controller) { c.frameSource = source }
}

func WithContext(rc RenderContext) Option {
	return func(c *Controller) { c.renderCtx = rc }
}

// Controller owns one view's NavigationState. It is shared by the switch path
// (RequestSwitch) and the passive path (navigation messages through Attach).
type Controller struct {
	resolver       Resolver
	logger         logging.Logger
	loc            *locale.Localizer
	resolveTimeout time.Duration
	onChange       ChangeFunc
	frameSource    string
	renderCtx      RenderContext

	meta     InitialMetadata
	editions map[int64]Edition
	ordered  []Edition

	// notifyMu is held from taking a state snapshot until onChange returns,
	// so observers see snapshots in the order they were taken.
	notifyMu sync.Mutex

	mu           sync.Mutex
	state        NavigationState
	replayOrigin string
	initialURL   string
	unsubscribe  func()
}

// NewController seeds state from the page metadata.
func NewController(meta InitialMetadata, resolver Resolver, logger logging.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Controller{
		resolver:       resolver,
		logger:         logger.With(logging.Field{Key: "component", Value: "replay"}),
		loc:            locale.New(""),
		resolveTimeout: DefaultResolveTimeout,
		renderCtx:      ContextBrowse,
		meta:           meta,
		editions:       make(map[int64]Edition, len(meta.Editions)),
	}
	for _, o := range opts {
		o(c)
	}

	for _, e := range meta.Editions {
		if _, dup := c.editions[e.ID]; dup {
			continue
		}
		c.editions[e.ID] = e
		c.ordered = append(c.ordered, e)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })

	c.state.LogicalURL = replayurl.StripFragment(meta.OriginalURL)
	if ts, ok := replayurl.ISOTimestampTo14Digit(meta.CaptureTimestamp); ok {
		c.state.Timestamp = ts
	}
	c.state.EditionID = meta.EditionID
	c.setViewerLocked(meta.BrowseURL)
	return c
}

func (c *Controller) setViewerLocked(browseURL string) {
	c.initialURL = browseURL
	c.state.ViewerURL = browseURL
	c.replayOrigin, _ = replayurl.Origin(browseURL)
}

// State returns a copy of the current navigation state.
func (c *Controller) State() NavigationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Metadata() InitialMetadata { return c.meta }

func (c *Controller) Context() RenderContext { return c.renderCtx }

func (c *Controller) Localizer() *locale.Localizer { return c.loc }

// Editions lists the switchable editions ordered by id.
func (c *Controller) Editions() []Edition {
	return append([]Edition(nil), c.ordered...)
}

// ReplayOrigin is the origin navigation messages must come from. Empty when
// the view has no replay viewer.
func (c *Controller) ReplayOrigin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replayOrigin
}

// InitialViewerURL is the URL the frame was first loaded with.
func (c *Controller) InitialViewerURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialURL
}

// CanSwitch reports whether the edition selector should be enabled.
func (c *Controller) CanSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ordered) > 1 && !c.state.Switching
}

// knownEdition reports whether id may become currentEditionId.
func (c *Controller) knownEdition(id int64) bool {
	if id == c.meta.EditionID {
		return true
	}
	_, ok := c.editions[id]
	return ok
}

// ─── Navigation listener ───────────────────────────────────────────────

// Attach subscribes the controller to navigation messages on bus. Any
// previous subscription is dropped first.
func (c *Controller) Attach(bus *Bus) error {
	c.mu.Lock()
	origin := c.replayOrigin
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if origin == "" {
		c.mu.Unlock()
		return ErrNoReplayOrigin
	}
	l := NewListener(origin, c.frameSource, c.ApplyNavigation, c.logger)
	c.unsubscribe = l.Subscribe(bus)
	c.mu.Unlock()

	c.logger.Debug("attached navigation listener", logging.Field{Key: "origin", Value: origin})
	return nil
}

// Detach removes the navigation subscription, if any.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// Reattach points the view at a new replay URL (for example after the page
// data was reloaded) and re-subscribes under the origin derived from it, so
// no subscription for the old origin survives.
func (c *Controller) Reattach(bus *Bus, browseURL string) error {
	c.mu.Lock()
	c.setViewerLocked(browseURL)
	c.mu.Unlock()
	return c.Attach(bus)
}

// ApplyNavigation folds one validated navigation update into state. Each
// field is applied independently; an edition id outside the known set is
// ignored. It never touches Switching.
func (c *Controller) ApplyNavigation(u NavigationUpdate) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	changed := false
	if u.LogicalURL != nil && *u.LogicalURL != c.state.LogicalURL {
		c.state.LogicalURL = *u.LogicalURL
		changed = true
	}
	if u.Timestamp != nil && replayurl.IsTimestamp14(*u.Timestamp) && *u.Timestamp != c.state.Timestamp {
		c.state.Timestamp = *u.Timestamp
		changed = true
	}
	if u.ViewerURL != nil && *u.ViewerURL != c.state.ViewerURL {
		c.state.ViewerURL = *u.ViewerURL
		changed = true
	}
	if u.EditionID != nil && c.knownEdition(*u.EditionID) && *u.EditionID != c.state.EditionID {
		c.state.EditionID = *u.EditionID
		changed = true
	}
	snapshot := c.state
	c.mu.Unlock()

	if changed {
		c.notify(snapshot, nil)
	}
}

// ─── Edition switch ────────────────────────────────────────────────────

// RequestSwitch moves the view to editionID, keeping the current page when
// the target edition has it. Precondition failures return a sentinel error
// and change nothing. Once started, a switch always ends in one of the
// Outcome states with Switching cleared; ctx cancellation does not abort it,
// the resolve timeout does.
func (c *Controller) RequestSwitch(ctx context.Context, editionID int64) (Outcome, error) {
	c.notifyMu.Lock()
	c.mu.Lock()
	var reason error
	target, known := c.editions[editionID]
	switch {
	case c.state.Switching:
		reason = ErrSwitchInFlight
	case c.state.LogicalURL == "":
		reason = ErrNoLogicalURL
	case editionID == c.state.EditionID:
		reason = ErrSameEdition
	case !known:
		reason = ErrUnknownEdition
	}
	if reason != nil {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		metrics.SwitchRejected(rejectLabel(reason))
		return nil, reason
	}

	c.state.Switching = true
	logical, ts, origin := c.state.LogicalURL, c.state.Timestamp, c.replayOrigin
	started := c.state
	c.mu.Unlock()

	c.logger.Info("edition switch started",
		logging.Field{Key: "from", Value: started.EditionID},
		logging.Field{Key: "to", Value: editionID},
		logging.Field{Key: "url", Value: logical})
	c.notify(started, nil)
	c.notifyMu.Unlock()

	outcome := c.decide(ctx, target, logical, ts, origin)

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	c.applyOutcomeLocked(outcome)
	final := c.state
	c.mu.Unlock()

	metrics.SwitchOutcome(string(outcome.State()))
	c.logger.Info("edition switch finished",
		logging.Field{Key: "to", Value: editionID},
		logging.Field{Key: "state", Value: string(outcome.State())},
		logging.Field{Key: "viewer_url", Value: final.ViewerURL})
	c.notify(final, outcome)
	return outcome, nil
}

// decide runs the fallback tiers: exact match, entry page, timegate.
func (c *Controller) decide(ctx context.Context, target Edition, logical, ts, origin string) Outcome {
	res, err := c.resolve(ctx, target.ID, logical, ts)
	if err == nil && res.Found && res.BrowseURL != "" {
		r := Resolved{
			EditionID:  target.ID,
			ViewerURL:  res.BrowseURL,
			SnapshotID: res.SnapshotID,
			MimeType:   res.MimeType,
		}
		if res.ResolvedURL != "" {
			r.LogicalURL = replayurl.StripFragment(res.ResolvedURL)
		}
		if t, ok := replayurl.ISOTimestampTo14Digit(res.CaptureTimestamp); ok {
			r.Timestamp = t
		}
		return r
	}

	if err != nil {
		c.logger.Warn("edition resolution failed",
			logging.Field{Key: "edition_id", Value: target.ID},
			logging.Field{Key: "url", Value: logical},
			logging.Field{Key: "error", Value: err.Error()})
	} else if target.EntryURL != "" {
		return FallbackEntry{EditionID: target.ID, ViewerURL: target.EntryURL}
	}

	if origin == "" {
		return Failed{EditionID: target.ID, Unconfirmed: err != nil, Cause: err}
	}
	return FallbackTimegate{
		EditionID:   target.ID,
		ViewerURL:   replayurl.BuildDirectReplayURL(origin, target.ID, "", logical),
		Unconfirmed: err != nil,
		Cause:       err,
	}
}

// resolve calls the resolver detached from the caller's cancellation and
// waits at most resolveTimeout. A resolver that panics, or answers after the
// deadline, counts as a failed call.
func (c *Controller) resolve(ctx context.Context, editionID int64, logical, ts string) (*archiveapi.Resolution, error) {
	if c.resolver == nil {
		return nil, errors.New("no resolver configured")
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.resolveTimeout)
	defer cancel()

	type answer struct {
		res *archiveapi.Resolution
		err error
	}
	ch := make(chan answer, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- answer{err: fmt.Errorf("resolver panic: %v", p)}
			}
		}()
		res, err := c.resolver.ResolveEdition(rctx, archiveapi.ResolveRequest{
			EditionID:   editionID,
			URL:         logical,
			Timestamp14: ts,
		})
		ch <- answer{res: res, err: err}
	}()

	var a answer
	select {
	case a = <-ch:
	case <-rctx.Done():
		a.err = fmt.Errorf("edition resolution timed out after %s: %w", c.resolveTimeout, rctx.Err())
	}
	if a.err == nil && a.res == nil {
		a.err = errEmptyResponse
	}

	result := "error"
	if a.err == nil {
		result = "absent"
		if a.res.Found {
			result = "found"
		}
	}
	metrics.ResolveObserved(result, time.Since(start))
	return a.res, a.err
}

func (c *Controller) applyOutcomeLocked(o Outcome) {
	c.state.Switching = false
	switch t := o.(type) {
	case Resolved:
		c.state.ViewerURL = t.ViewerURL
		if t.LogicalURL != "" {
			c.state.LogicalURL = t.LogicalURL
		}
		if t.Timestamp != "" {
			c.state.Timestamp = t.Timestamp
		}
		c.state.EditionID = t.EditionID
		c.state.Notice = nil
	case FallbackEntry:
		c.state.ViewerURL = t.ViewerURL
		c.state.EditionID = t.EditionID
		c.state.Notice = c.notice(NoticeEntryPage)
	case FallbackTimegate:
		c.state.ViewerURL = t.ViewerURL
		c.state.EditionID = t.EditionID
		if t.Unconfirmed {
			c.state.Notice = c.notice(NoticeUnconfirmed)
		} else {
			c.state.Notice = c.notice(NoticeClosestCapture)
		}
	case Failed:
		c.state.Notice = c.notice(NoticeUnavailable)
	}
}

var noticeKeys = map[NoticeKind]string{
	NoticeEntryPage:      locale.KeyNoticeEntryPage,
	NoticeClosestCapture: locale.KeyNoticeClosestCapture,
	NoticeUnconfirmed:    locale.KeyNoticeUnconfirmed,
	NoticeUnavailable:    locale.KeyNoticeUnavailable,
}

func (c *Controller) notice(kind NoticeKind) *Notice {
	return &Notice{Kind: kind, Text: c.loc.T(noticeKeys[kind])}
}

func (c *Controller) notify(state NavigationState, o Outcome) {
	if c.onChange != nil {
		c.onChange(state, o)
	}
}

func rejectLabel(err error) string {
	switch {
	case errors.Is(err, ErrSwitchInFlight):
		return "in_flight"
	case errors.Is(err, ErrSameEdition):
		return "same_edition"
	case errors.Is(err, ErrNoLogicalURL):
		return "no_logical_url"
	default:
		return "unknown_edition"
	}
}
