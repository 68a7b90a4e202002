package demoserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/replayurl"
)

// DemoServer is a stand-in archive backend: snapshot metadata, edition
// lists, edition resolution, raw content and a replay viewer that posts
// navigation messages to its parent frame.
type DemoServer struct {
	cfg      Config
	editions []EditionDefinition
	pages    []PageDefinition

	// snapshot id -> capture reference
	snapshots map[string]captureRef
	// edition id -> logical URL -> snapshot id
	byURL map[int64]map[string]string

	mu             sync.RWMutex
	resolveDelay   time.Duration
	resolveFailing bool
}

type captureRef struct {
	page    PageDefinition
	edition int64
}

func (c captureRef) capture() Capture { return c.page.Captures[c.edition] }

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	s := &DemoServer{
		cfg:            cfg,
		editions:       GetAllEditions(),
		pages:          GetAllPages(),
		snapshots:      make(map[string]captureRef),
		byURL:          make(map[int64]map[string]string),
		resolveDelay:   cfg.ResolveDelay,
		resolveFailing: cfg.ResolveFailing,
	}
	for i, p := range s.pages {
		for ed := range p.Captures {
			id := SnapshotID(ed, i)
			s.snapshots[id] = captureRef{page: p, edition: ed}
			if s.byURL[ed] == nil {
				s.byURL[ed] = make(map[string]string)
			}
			s.byURL[ed][p.URL()] = id
		}
	}
	return s
}

// SnapshotID is the id of page index pageIdx in edition ed: "101" is the
// first page of edition 1.
func SnapshotID(ed int64, pageIdx int) string {
	return fmt.Sprintf("%d%02d", ed, pageIdx+1)
}

// SetResolveFailing toggles 503 answers from the resolve endpoint.
func (s *DemoServer) SetResolveFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveFailing = v
}

// SetResolveDelay sets the artificial resolve latency.
func (s *DemoServer) SetResolveDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveDelay = d
}

// Handler returns the demo server's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/snapshots/raw/{id}", s.rawHandler)
	mux.HandleFunc("GET /api/snapshots/{id}", s.snapshotHandler)
	mux.HandleFunc("GET /api/sources/{code}/editions", s.editionsHandler)
	mux.HandleFunc("GET /api/replay/resolve", s.resolveHandler)

	// Control panel for resolve behaviour
	mux.HandleFunc("GET /demo/control", s.controlPanelHandler)
	mux.HandleFunc("POST /demo/resolve-mode", s.setResolveModeHandler)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Replay paths embed absolute URLs ("//" included), which ServeMux
		// would clean and redirect.
		if strings.HasPrefix(r.URL.Path, "/"+replayurl.CollectionPrefix) {
			s.replayHandler(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo archive starting on http://localhost%s\n", addr)
	fmt.Printf("Control panel at http://localhost%s/demo/control\n", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isoTime(ts string) string {
	return captureTime(ts).UTC().Format(time.RFC3339)
}

func (s *DemoServer) browseURL(base string, ed int64, c Capture, target string) string {
	return replayurl.BuildDirectReplayURL(base, ed, c.Timestamp, target)
}

func (s *DemoServer) detail(base, id string, ref captureRef) archiveapi.SnapshotDetail {
	c := ref.capture()
	return archiveapi.SnapshotDetail{
		ID:               id,
		Title:            titleOf(c.HTML),
		SourceName:       SourceName,
		SourceCode:       SourceCode,
		CaptureDate:      captureTime(c.Timestamp).Format("2006-01-02"),
		CaptureTimestamp: isoTime(c.Timestamp),
		JobID:            ref.edition,
		OriginalURL:      ref.page.URL(),
		BrowseURL:        s.browseURL(base, ref.edition, c, ref.page.URL()),
		RawSnapshotURL:   base + "/api/snapshots/raw/" + id,
		APIURL:           base + "/api/snapshots/" + id,
		MimeType:         mimeOf(c),
	}
}

// titleOf is a naive <title> scrape. The demo metadata leaves the title
// empty when a capture has none, like the real backend.
func titleOf(html string) string {
	start := strings.Index(html, "<title>")
	end := strings.Index(html, "</title>")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(html[start+len("<title>") : end])
}

func mimeOf(c Capture) string {
	if c.MimeType != "" {
		return c.MimeType
	}
	return "text/html"
}

// snapshotHandler serves GET /api/snapshots/{id}.
func (s *DemoServer) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ref, ok := s.snapshots[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "snapshot not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.detail(baseURL(r), id, ref))
}

// rawHandler serves the captured document as-is.
func (s *DemoServer) rawHandler(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.snapshots[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	c := ref.capture()
	w.Header().Set("Content-Type", mimeOf(c))
	_, _ = w.Write([]byte(c.HTML))
}

// editionsHandler serves GET /api/sources/{code}/editions.
func (s *DemoServer) editionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("code") != SourceCode {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "source not found"})
		return
	}
	base := baseURL(r)
	out := make([]archiveapi.Edition, 0, len(s.editions))
	for _, ed := range s.editions {
		e := archiveapi.Edition{JobID: ed.ID, Name: ed.Name}
		var stamps []string
		for _, p := range s.pages {
			if c, ok := p.Captures[ed.ID]; ok {
				e.RecordCount++
				stamps = append(stamps, c.Timestamp)
				if ed.Entry != "" && p.Path == ed.Entry {
					e.EntryBrowseURL = s.browseURL(base, ed.ID, c, p.URL())
				}
			}
		}
		if len(stamps) > 0 {
			sort.Strings(stamps)
			e.FirstCapture = isoTime(stamps[0])
			e.LastCapture = isoTime(stamps[len(stamps)-1])
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// resolveHandler serves GET /api/replay/resolve?editionId=&url=&timestamp=.
func (s *DemoServer) resolveHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	delay, failing := s.resolveDelay, s.resolveFailing
	s.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failing {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "resolver unavailable"})
		return
	}

	q := r.URL.Query()
	ed, err := strconv.ParseInt(q.Get("editionId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid editionId"})
		return
	}
	target := q.Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing url"})
		return
	}

	id, ok := s.lookup(ed, target)
	if !ok {
		writeJSON(w, http.StatusOK, archiveapi.Resolution{Found: false})
		return
	}
	ref := s.snapshots[id]
	c := ref.capture()
	base := baseURL(r)
	writeJSON(w, http.StatusOK, archiveapi.Resolution{
		Found:            true,
		BrowseURL:        s.browseURL(base, ed, c, ref.page.URL()),
		ResolvedURL:      ref.page.URL(),
		CaptureTimestamp: isoTime(c.Timestamp),
		SnapshotID:       id,
		MimeType:         mimeOf(c),
	})
}

// lookup finds target in edition ed, tolerating a missing root slash.
func (s *DemoServer) lookup(ed int64, target string) (string, bool) {
	urls := s.byURL[ed]
	if urls == nil {
		return "", false
	}
	target = replayurl.StripFragment(target)
	if id, ok := urls[target]; ok {
		return id, true
	}
	if target == SiteOrigin {
		id, ok := urls[SiteOrigin+"/"]
		return id, ok
	}
	return "", false
}

// replayHandler serves /job-{id}/{ts}/{url} and the timegate form
// /job-{id}/{url}, which redirects to the capture it picks.
func (s *DemoServer) replayHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/")
	coll, rest, _ := strings.Cut(rest, "/")
	ed, ok := replayurl.ParseEditionIDFromTag(coll)
	if !ok {
		http.NotFound(w, r)
		return
	}

	ts := ""
	if head, tail, found := strings.Cut(rest, "/"); found && replayurl.IsTimestamp14(head) {
		ts, rest = head, tail
	}
	target := rest
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	id, ok := s.lookup(ed, target)
	if !ok {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_ = notArchivedTemplate.Execute(w, struct {
			URL     string
			Edition string
		}{URL: target, Edition: coll})
		return
	}
	ref := s.snapshots[id]
	c := ref.capture()
	if ts != c.Timestamp {
		// Set Location directly: http.Redirect would path.Clean the
		// embedded "https://".
		w.Header().Set("Location", s.browseURL("", ed, c, ref.page.URL()))
		w.WriteHeader(http.StatusFound)
		return
	}

	nav, _ := json.Marshal(map[string]string{
		"type":      replay.NavigationMessageType,
		"coll":      coll,
		"timestamp": c.Timestamp,
		"url":       ref.page.URL(),
	})
	script := `<script>(function(){var m=` + string(nav) +
		`;m.topUrl=location.href;if(window.parent!==window){window.parent.postMessage(m,"*");}})();</script>`

	html := strings.ReplaceAll(c.HTML, `href="`+SiteOrigin, `href="/`+coll+"/"+SiteOrigin)
	if i := strings.LastIndex(html, "</body>"); i >= 0 {
		html = html[:i] + script + html[i:]
	} else {
		html += script
	}
	w.Header().Set("Content-Type", mimeOf(c))
	_, _ = w.Write([]byte(html))
}

var notArchivedTemplate = template.Must(template.New("notarchived").Parse(`<!DOCTYPE html>
<html>
<head><title>Not in archive</title></head>
<body>
    <h1>Not in archive</h1>
    <p>{{.URL}} was not captured in {{.Edition}}.</p>
</body>
</html>`))

// controlPanelHandler serves the control panel.
func (s *DemoServer) controlPanelHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		ID      string
		Path    string
		Edition int64
		Browse  string
	}
	base := baseURL(r)
	var rows []row
	for id, ref := range s.snapshots {
		rows = append(rows, row{
			ID:      id,
			Path:    ref.page.Path,
			Edition: ref.edition,
			Browse:  s.browseURL(base, ref.edition, ref.capture(), ref.page.URL()),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	data := struct {
		Snapshots []row
		Editions  []EditionDefinition
		Failing   bool
		DelayMS   int64
	}{
		Snapshots: rows,
		Editions:  s.editions,
		Failing:   s.resolveFailing,
		DelayMS:   s.resolveDelay.Milliseconds(),
	}
	w.Header().Set("Content-Type", "text/html")
	_ = controlPanelTemplate.Execute(w, data)
}

// setResolveModeHandler updates the resolve failure toggle and delay.
func (s *DemoServer) setResolveModeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	delayMS, err := strconv.Atoi(r.FormValue("delay_ms"))
	if err != nil || delayMS < 0 {
		http.Error(w, "Invalid delay", http.StatusBadRequest)
		return
	}
	failing := r.FormValue("failing") == "on" || r.FormValue("failing") == "true"

	s.SetResolveFailing(failing)
	s.SetResolveDelay(time.Duration(delayMS) * time.Millisecond)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"failing":  failing,
		"delay_ms": delayMS,
	})
}

var controlPanelTemplate = template.Must(template.New("control").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Demo Archive Control Panel</title>
    <style>
        body { font-family: system-ui, -apple-system, sans-serif; max-width: 1000px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        h1 { color: #333; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        table { width: 100%; border-collapse: collapse; background: white; }
        th, td { padding: 8px; border-bottom: 1px solid #eee; text-align: left; }
        .controls { background: #fff3cd; padding: 20px; border-radius: 8px; margin-bottom: 20px; }
    </style>
</head>
<body>
    <h1>Demo Archive Control Panel</h1>

    <div class="controls">
        <h2>Resolve endpoint</h2>
        <form id="mode">
            <label><input type="checkbox" name="failing"{{if .Failing}} checked{{end}}> Answer 503</label>
            <label>Delay (ms) <input type="number" name="delay_ms" min="0" value="{{.DelayMS}}"></label>
            <button type="submit">Apply</button>
        </form>
    </div>

    <h2>Editions</h2>
    <ul>
    {{range .Editions}}<li>job-{{.ID}}: {{.Name}}{{if not .Entry}} (no entry page){{end}}</li>{{end}}
    </ul>

    <h2>Snapshots</h2>
    <table>
        <tr><th>ID</th><th>Edition</th><th>Page</th><th>Replay</th></tr>
        {{range .Snapshots}}
        <tr><td>{{.ID}}</td><td>{{.Edition}}</td><td>{{.Path}}</td><td><a href="{{.Browse}}" target="_blank">open</a></td></tr>
        {{end}}
    </table>

    <script>
        document.getElementById('mode').addEventListener('submit', function (e) {
            e.preventDefault();
            fetch('/demo/resolve-mode', {method: 'POST', body: new URLSearchParams(new FormData(e.target))})
                .then(function () { location.reload(); });
        });
    </script>
</body>
</html>`))
