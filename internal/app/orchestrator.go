package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/metrics"
	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/session"
	"github.com/raysh454/replaydesk/internal/surface"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrInvalidContext   = errors.New("invalid render context")
	ErrReportDisabled   = errors.New("report intake is not configured")
)

// Backend is what sessions need from the archive backend.
type Backend interface {
	replay.Resolver
	Snapshot(ctx context.Context, id string) (*archiveapi.SnapshotDetail, error)
	Editions(ctx context.Context, sourceCode string) ([]archiveapi.Edition, error)
	FetchTitle(ctx context.Context, rawURL string) (string, error)
}

type EventType string

const (
	EventState  EventType = "state"
	EventSwitch EventType = "switch"
	EventClosed EventType = "closed"
)

// Event is pushed to websocket subscribers of a session.
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"sessionId"`
	State     replay.NavigationState `json:"state"`
	Outcome   *replay.OutcomeView    `json:"outcome,omitempty"`
}

// Session is one live replay view: a controller plus the message bus its
// page relays into.
type Session struct {
	ID         string
	SnapshotID string
	CreatedAt  time.Time
	Controller *replay.Controller

	bus *replay.Bus

	mu       sync.Mutex
	closed   bool
	attached bool
	nextSub  int
	subs     map[int]chan Event
}

// Subscribe returns a channel of this session's events and a func that
// stops delivery. The channel is closed when the session closes. A session
// that has had a subscriber is never reaped as unattached.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.attached = true

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// emit is a non-blocking fan-out; slow subscribers miss events.
func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	ev := Event{Type: EventClosed, SessionID: s.ID, State: s.Controller.State()}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
		delete(s.subs, id)
	}
}

// Orchestrator owns the live sessions.
type Orchestrator struct {
	cfg     *Config
	backend Backend
	store   *session.Store
	logger  logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewOrchestrator ties together config, backend, store and logger. store may
// be nil, in which case nothing is persisted.
func NewOrchestrator(cfg *Config, backend Backend, store *session.Store, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		logger:   logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		sessions: make(map[string]*Session),
	}
}

// OpenSession loads snapshot metadata and the source's edition list, then
// starts a controller for it. lang may be empty to use the default locale.
func (o *Orchestrator) OpenSession(ctx context.Context, snapshotID string, rc replay.RenderContext, lang string) (*Session, error) {
	if !rc.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContext, rc)
	}

	detail, err := o.backend.Snapshot(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, archiveapi.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", snapshotID, err)
	}

	var editions []archiveapi.Edition
	if detail.SourceCode != "" {
		editions, err = o.backend.Editions(ctx, detail.SourceCode)
		if err != nil {
			// The view still works without a selector.
			o.logger.Warn("edition list unavailable",
				logging.Field{Key: "source", Value: detail.SourceCode},
				logging.Field{Key: "error", Value: err.Error()})
			editions = nil
		}
	}

	if detail.Title == "" && detail.RawSnapshotURL != "" {
		if title, err := o.backend.FetchTitle(ctx, detail.RawSnapshotURL); err == nil {
			detail.Title = title
		} else {
			o.logger.Debug("title fallback failed",
				logging.Field{Key: "snapshot_id", Value: snapshotID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if lang == "" {
		lang = o.cfg.DefaultLocale
	}

	s := &Session{
		ID:         uuid.New().String(),
		SnapshotID: snapshotID,
		CreatedAt:  time.Now().UTC(),
		bus:        replay.NewBus(),
		subs:       make(map[int]chan Event),
	}
	s.Controller = replay.NewController(
		replay.MetadataFromAPI(detail, editions),
		o.backend,
		o.logger.With(logging.Field{Key: "session_id", Value: s.ID}),
		replay.WithLocale(lang),
		replay.WithResolveTimeout(o.cfg.ResolveTimeout),
		replay.WithContext(rc),
		replay.WithFrameSource(surface.FrameID),
		replay.WithOnChange(o.onChange(s)),
	)

	if err := s.Controller.Attach(s.bus); err != nil {
		if !errors.Is(err, replay.ErrNoReplayOrigin) {
			return nil, fmt.Errorf("attach listener: %w", err)
		}
		o.logger.Info("session has no replay viewer", logging.Field{Key: "snapshot_id", Value: snapshotID})
	}

	if o.store != nil {
		st := s.Controller.State()
		err := o.store.Create(ctx, session.Record{
			ID:         s.ID,
			SnapshotID: snapshotID,
			Context:    rc,
			Locale:     s.Controller.Localizer().Lang(),
			LogicalURL: st.LogicalURL,
			Timestamp:  st.Timestamp,
			EditionID:  st.EditionID,
			ViewerURL:  st.ViewerURL,
			CreatedAt:  s.CreatedAt.Unix(),
		})
		if err != nil {
			s.Controller.Detach()
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()
	metrics.SessionOpened()

	o.logger.Info("session opened",
		logging.Field{Key: "session_id", Value: s.ID},
		logging.Field{Key: "snapshot_id", Value: snapshotID},
		logging.Field{Key: "context", Value: string(rc)},
		logging.Field{Key: "editions", Value: len(editions)})
	return s, nil
}

func (o *Orchestrator) onChange(s *Session) replay.ChangeFunc {
	return func(st replay.NavigationState, outcome replay.Outcome) {
		ev := Event{Type: EventState, SessionID: s.ID, State: st}
		var last replay.SwitchState
		if outcome != nil {
			v := replay.View(outcome)
			ev.Type = EventSwitch
			ev.Outcome = &v
			last = outcome.State()
		}
		s.emit(ev)

		if o.store == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.SaveState(ctx, s.ID, st, last); err != nil {
			o.logger.Warn("persist session state failed",
				logging.Field{Key: "session_id", Value: s.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}

// Session returns the live session id.
func (o *Orchestrator) Session(id string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Switch requests an edition switch on session id and waits for its outcome.
func (o *Orchestrator) Switch(ctx context.Context, id string, editionID int64) (replay.Outcome, replay.NavigationState, error) {
	s, err := o.Session(id)
	if err != nil {
		return nil, replay.NavigationState{}, err
	}
	outcome, err := s.Controller.RequestSwitch(ctx, editionID)
	return outcome, s.Controller.State(), err
}

// Deliver relays one page message into session id and reports how many
// listeners received it.
func (o *Orchestrator) Deliver(id string, env replay.Envelope) (int, error) {
	s, err := o.Session(id)
	if err != nil {
		return 0, err
	}
	return s.bus.Publish(env), nil
}

// CloseSession detaches and drops session id. The persisted record stays
// for the report flow until it is purged.
func (o *Orchestrator) CloseSession(ctx context.Context, id string) error {
	o.mu.Lock()
	s, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.Controller.Detach()
	s.shutdown()
	metrics.SessionClosed()

	if o.store != nil {
		if err := o.store.MarkClosed(ctx, id, time.Now()); err != nil {
			o.logger.Warn("mark session closed failed",
				logging.Field{Key: "session_id", Value: id},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	o.logger.Info("session closed", logging.Field{Key: "session_id", Value: id})
	return nil
}

// ReportURL builds the issue-report link for session id from its current
// state, or from the persisted record once the session is gone.
func (o *Orchestrator) ReportURL(ctx context.Context, id string) (string, error) {
	if o.cfg.ReportIntakeURL == "" {
		return "", ErrReportDisabled
	}

	var page, ts, snapshotID string
	var edition int64
	if s, err := o.Session(id); err == nil {
		st := s.Controller.State()
		page, ts, edition, snapshotID = st.LogicalURL, st.Timestamp, st.EditionID, s.SnapshotID
	} else if o.store != nil {
		rec, err := o.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
			return "", err
		}
		page, ts, edition, snapshotID = rec.LogicalURL, rec.Timestamp, rec.EditionID, rec.SnapshotID
	} else {
		return "", err
	}

	u, err := url.Parse(o.cfg.ReportIntakeURL)
	if err != nil {
		return "", fmt.Errorf("parse report intake url: %w", err)
	}
	q := u.Query()
	q.Set("snapshot", snapshotID)
	if page != "" {
		q.Set("url", page)
	}
	if edition != 0 {
		q.Set("edition", strconv.FormatInt(edition, 10))
	}
	if ts != "" {
		q.Set("timestamp", ts)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SessionCount is the number of live sessions.
func (o *Orchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// PurgeClosed drops persisted sessions closed longer than the retention.
func (o *Orchestrator) PurgeClosed(ctx context.Context) (int64, error) {
	if o.store == nil || o.cfg.SessionRetention <= 0 {
		return 0, nil
	}
	return o.store.PurgeClosed(ctx, time.Now().Add(-o.cfg.SessionRetention))
}

// ReapUnattached closes live sessions that nobody subscribed to within the
// attach timeout and reports how many it closed.
func (o *Orchestrator) ReapUnattached(ctx context.Context) int {
	if o.cfg.SessionAttachTimeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-o.cfg.SessionAttachTimeout)

	o.mu.Lock()
	var stale []string
	for id, s := range o.sessions {
		s.mu.Lock()
		if !s.attached && s.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	o.mu.Unlock()

	n := 0
	for _, id := range stale {
		if err := o.CloseSession(ctx, id); err == nil {
			n++
		}
	}
	if n > 0 {
		o.logger.Info("closed unattached sessions", logging.Field{Key: "count", Value: n})
	}
	return n
}

// Close closes every live session.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		_ = o.CloseSession(context.Background(), id)
	}
}
