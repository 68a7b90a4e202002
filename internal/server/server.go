package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/replaydesk/internal/app"
	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/locale"
	"github.com/raysh454/replaydesk/internal/logging"
	"github.com/raysh454/replaydesk/internal/metrics"
	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/surface"
)

// Server is the HTTP + WebSocket surface for replay sessions.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer wires routes on top of an existing orchestrator. The caller
// keeps ownership of the orchestrator's lifecycle.
func NewServer(cfg Config, orch *app.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: nil orchestrator")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       r,
		logger:       logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/sessions/{id}", s.optionsHandler("GET, DELETE"))
	r.Options("/sessions/{id}/switch", s.optionsHandler("POST"))

	// Pages
	r.Get("/browse/{snapshotID}", s.handlePage(replay.ContextBrowse))
	r.Get("/snapshot/{snapshotID}", s.handlePage(replay.ContextSnapshot))

	// Sessions
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Delete("/sessions/{id}", s.handleCloseSession)
	r.Post("/sessions/{id}/switch", s.handleSwitch)
	r.Get("/sessions/{id}/report", s.handleReport)

	// WebSocket relay for navigation messages and state events
	r.Get("/ws/sessions/{id}", s.handleSessionWS)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
}

func (s *Server) allowedOrigin(origin string) bool {
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

// checkOrigin admits same-host pages and configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host) || s.allowedOrigin(origin)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.AllowedOrigins) == 0 {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin := r.Header.Get("Origin"); s.allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // switch requests wait on the resolver; websockets stream
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps orchestrator and controller errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrSessionNotFound),
		errors.Is(err, app.ErrSnapshotNotFound),
		errors.Is(err, app.ErrReportDisabled):
		return http.StatusNotFound
	case errors.Is(err, replay.ErrSwitchInFlight):
		return http.StatusConflict
	case errors.Is(err, replay.ErrSameEdition),
		errors.Is(err, replay.ErrNoLogicalURL),
		errors.Is(err, replay.ErrUnknownEdition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, app.ErrInvalidContext):
		return http.StatusBadRequest
	case errors.Is(err, archiveapi.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// requestLang picks the page language from ?lang= and Accept-Language. An
// empty result leaves the choice to the configured default.
func requestLang(r *http.Request) string {
	var prefs []string
	if q := strings.TrimSpace(r.URL.Query().Get("lang")); q != "" {
		prefs = append(prefs, q)
	}
	if al := strings.TrimSpace(r.Header.Get("Accept-Language")); al != "" {
		prefs = append(prefs, al)
	}
	if len(prefs) == 0 {
		return ""
	}
	return locale.Match(prefs...).String()
}

// --- Pages ---

func (s *Server) handlePage(rc replay.RenderContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshotID := chi.URLParam(r, "snapshotID")

		sess, err := s.orchestrator.OpenSession(r.Context(), snapshotID, rc, requestLang(r))
		if err != nil {
			s.logger.Warn("opening session",
				logging.Field{Key: "snapshot_id", Value: snapshotID},
				logging.Field{Key: "error", Value: err.Error()})
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		var buf bytes.Buffer
		if err := surface.Render(&buf, surface.NewView(sess.ID, sess.Controller)); err != nil {
			s.logger.Error("rendering page",
				logging.Field{Key: "session_id", Value: sess.ID},
				logging.Field{Key: "error", Value: err.Error()})
			_ = s.orchestrator.CloseSession(context.Background(), sess.ID)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = buf.WriteTo(w)
	}
}

// --- Sessions ---

func sessionResponse(sess *app.Session) SessionResponse {
	c := sess.Controller
	st := c.State()
	resp := SessionResponse{
		ID:         sess.ID,
		SnapshotID: sess.SnapshotID,
		Context:    c.Context(),
		Locale:     c.Localizer().Lang(),
		CreatedAt:  sess.CreatedAt.Format(time.RFC3339),
		CanSwitch:  c.CanSwitch(),
		State:      st,
		Editions:   []EditionResponse{},
	}
	for _, e := range c.Editions() {
		resp.Editions = append(resp.Editions, EditionResponse{
			ID:          e.ID,
			Label:       e.Label(),
			RecordCount: e.RecordCount,
			Current:     e.ID == st.EditionID,
		})
	}
	return resp
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.orchestrator.Session(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orchestrator.CloseSession(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.logger.Info("closed session", logging.Field{Key: "session_id", Value: id})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body SwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decoding switch body", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	outcome, st, err := s.orchestrator.Switch(r.Context(), id, body.EditionID)
	if err != nil {
		s.logger.Info("switch rejected",
			logging.Field{Key: "session_id", Value: id},
			logging.Field{Key: "edition_id", Value: body.EditionID},
			logging.Field{Key: "reason", Value: err.Error()})
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SwitchResponse{Outcome: replay.View(outcome), State: st})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, err := s.orchestrator.ReportURL(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: s.orchestrator.SessionCount()})
}

// --- WebSocket ---

// handleSessionWS relays the page's message events into the session and
// streams session events back. The session closes when the socket does.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.orchestrator.Session(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	events, stop := sess.Subscribe()
	defer stop()

	initial := app.Event{Type: app.EventState, SessionID: id, State: sess.Controller.State()}
	if err := conn.WriteJSON(initial); err != nil {
		_ = s.orchestrator.CloseSession(context.Background(), id)
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("websocket read ended", logging.Field{Key: "error", Value: err.Error()})
				}
				return
			}
			var env replay.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				s.logger.Debug("dropping malformed relay message",
					logging.Field{Key: "session_id", Value: id},
					logging.Field{Key: "error", Value: err.Error()})
				continue
			}
			if _, err := s.orchestrator.Deliver(id, env); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				_ = s.orchestrator.CloseSession(context.Background(), id)
				return
			}
		case <-gone:
			// Client disconnected; the session cannot receive navigation
			// messages any more.
			if err := s.orchestrator.CloseSession(context.Background(), id); err != nil && !errors.Is(err, app.ErrSessionNotFound) {
				s.logger.Warn("closing session", logging.Field{Key: "error", Value: err.Error()})
			}
			return
		}
	}
}
