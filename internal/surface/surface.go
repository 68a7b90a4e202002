// Package surface renders the replay page around an edition switch
// controller. The browse page and the snapshot detail page share one
// "surface" partial and differ only in the markup around it.
package surface

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"

	"github.com/raysh454/replaydesk/internal/locale"
	"github.com/raysh454/replaydesk/internal/replay"
	"github.com/raysh454/replaydesk/internal/replayurl"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// FrameID tags messages relayed from the page's replay iframe.
const FrameID = "replay-frame"

// Text holds the localized UI strings.
type Text struct {
	EditionLabel string
	Switching    string
	OpenNewTab   string
	RawContent   string
	Metadata     string
	ReportIssue  string
}

// EditionOption is one entry of the edition selector.
type EditionOption struct {
	ID       int64
	Label    string
	Records  string
	Selected bool
}

// ScriptConfig is handed to the page script as JSON.
type ScriptConfig struct {
	SessionID  string `json:"sessionId"`
	WSPath     string `json:"wsPath"`
	SwitchPath string `json:"switchPath"`
	FrameID    string `json:"frameId"`
}

// View is the template data for one render.
type View struct {
	Context       replay.RenderContext
	Lang          string
	Title         string
	SourceName    string
	OriginalURL   string
	CapturedOn    string
	ViewerURL     string
	RawContentURL string
	MetadataURL   string
	ReportURL     string
	Editions      []EditionOption
	ShowSelector  bool
	CanSwitch     bool
	Switching     bool
	Notice        string
	NoticeKind    replay.NoticeKind
	Text          Text
	Script        ScriptConfig
}

// NewView builds the template data for the session sessionID from the
// controller's current state.
func NewView(sessionID string, c *replay.Controller) View {
	meta := c.Metadata()
	st := c.State()
	loc := c.Localizer()

	v := View{
		Context:       c.Context(),
		Lang:          loc.Lang(),
		Title:         meta.Title,
		SourceName:    meta.SourceName,
		OriginalURL:   meta.OriginalURL,
		CapturedOn:    CaptureDisplay(st.Timestamp, meta.CaptureDate, loc),
		ViewerURL:     st.ViewerURL,
		RawContentURL: meta.RawContentURL,
		MetadataURL:   meta.APIURL,
		ReportURL:     "/sessions/" + url.PathEscape(sessionID) + "/report",
		CanSwitch:     c.CanSwitch(),
		Switching:     st.Switching,
		Text: Text{
			EditionLabel: loc.T(locale.KeyEditionLabel),
			Switching:    loc.T(locale.KeySwitching),
			OpenNewTab:   loc.T(locale.KeyOpenNewTab),
			RawContent:   loc.T(locale.KeyRawContent),
			Metadata:     loc.T(locale.KeyMetadata),
			ReportIssue:  loc.T(locale.KeyReportIssue),
		},
		Script: ScriptConfig{
			SessionID:  sessionID,
			WSPath:     "/ws/sessions/" + url.PathEscape(sessionID),
			SwitchPath: "/sessions/" + url.PathEscape(sessionID) + "/switch",
			FrameID:    FrameID,
		},
	}
	if v.ViewerURL == "" {
		v.ViewerURL = c.InitialViewerURL()
	}
	if v.Title == "" {
		v.Title = meta.OriginalURL
	}
	if st.Notice != nil {
		v.Notice = st.Notice.Text
		v.NoticeKind = st.Notice.Kind
	}

	editions := c.Editions()
	v.ShowSelector = len(editions) > 1
	for _, e := range editions {
		opt := EditionOption{ID: e.ID, Label: e.Label(), Selected: e.ID == st.EditionID}
		if e.RecordCount > 0 {
			opt.Records = loc.T(locale.KeyRecords, e.RecordCount)
		}
		v.Editions = append(v.Editions, opt)
	}
	return v
}

// CaptureDisplay is the "Captured on" header text: the current timestamp as
// a long date when it parses, otherwise the metadata capture date.
func CaptureDisplay(ts, captureDate string, loc *locale.Localizer) string {
	date, ok := replayurl.Timestamp14ToDisplayDate(ts, loc.Lang())
	if !ok {
		date = captureDate
	}
	if date == "" {
		return ""
	}
	return loc.T(locale.KeyCapturedOn, date)
}

// Render writes the page for v.Context.
func Render(w io.Writer, v View) error {
	if !v.Context.Valid() {
		return fmt.Errorf("unknown render context %q", v.Context)
	}
	return pages.ExecuteTemplate(w, string(v.Context), v)
}
