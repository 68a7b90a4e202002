package replay

import (
	"strconv"
	"time"

	"github.com/raysh454/replaydesk/internal/archiveapi"
	"github.com/raysh454/replaydesk/internal/replayurl"
)

// RenderContext names the page a controller is embedded in. Behaviour is
// identical across contexts; only the surrounding markup differs.
type RenderContext string

const (
	ContextBrowse   RenderContext = "browse"
	ContextSnapshot RenderContext = "snapshot"
)

// Valid reports whether c is a known context.
func (c RenderContext) Valid() bool {
	return c == ContextBrowse || c == ContextSnapshot
}

// Edition is an immutable capture batch of one source.
type Edition struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name,omitempty"`
	RecordCount  int64     `json:"recordCount"`
	FirstCapture time.Time `json:"firstCapture,omitzero"`
	LastCapture  time.Time `json:"lastCapture,omitzero"`
	// EntryURL is a known-good page inside the edition, used when the
	// current page has no capture there.
	EntryURL string `json:"entryUrl,omitempty"`
}

// Label is the display name: the backend's name when set, otherwise the
// capture year range.
func (e Edition) Label() string {
	if e.Name != "" {
		return e.Name
	}
	switch {
	case e.FirstCapture.IsZero() && e.LastCapture.IsZero():
		return replayurl.CollectionTag(e.ID)
	case e.FirstCapture.IsZero():
		return strconv.Itoa(e.LastCapture.Year())
	case e.LastCapture.IsZero() || e.FirstCapture.Year() == e.LastCapture.Year():
		return strconv.Itoa(e.FirstCapture.Year())
	default:
		return strconv.Itoa(e.FirstCapture.Year()) + "–" + strconv.Itoa(e.LastCapture.Year())
	}
}

// EditionFromAPI converts the backend listing. Unparseable capture times are
// left zero.
func EditionFromAPI(a archiveapi.Edition) Edition {
	return Edition{
		ID:           a.JobID,
		Name:         a.Name,
		RecordCount:  a.RecordCount,
		FirstCapture: parseISO(a.FirstCapture),
		LastCapture:  parseISO(a.LastCapture),
		EntryURL:     a.EntryBrowseURL,
	}
}

func parseISO(s string) time.Time {
	ts, ok := replayurl.ISOTimestampTo14Digit(s)
	if !ok {
		return time.Time{}
	}
	t, _ := replayurl.ParseTimestamp14(ts)
	return t
}

// NoticeKind is the cause category of a switch notice.
type NoticeKind string

const (
	NoticeEntryPage      NoticeKind = "entry_page"
	NoticeClosestCapture NoticeKind = "closest_capture"
	NoticeUnconfirmed    NoticeKind = "unconfirmed"
	NoticeUnavailable    NoticeKind = "unavailable"
)

// Notice explains why a switch did not land on an exact match.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// NavigationState is what the user is currently looking at. EditionID 0
// means unknown; Timestamp is empty or exactly 14 digits.
type NavigationState struct {
	LogicalURL string  `json:"currentLogicalUrl"`
	Timestamp  string  `json:"currentTimestamp,omitempty"`
	EditionID  int64   `json:"currentEditionId,omitempty"`
	ViewerURL  string  `json:"currentViewerUrl"`
	Notice     *Notice `json:"switchNotice,omitempty"`
	Switching  bool    `json:"isSwitching"`
}

// InitialMetadata is what the page-data layer hands the controller on load.
type InitialMetadata struct {
	SnapshotID       string
	Title            string
	SourceName       string
	SourceCode       string
	CaptureDate      string
	CaptureTimestamp string // ISO-8601
	EditionID        int64
	OriginalURL      string
	// BrowseURL is the replay viewer URL; empty when only raw content exists.
	BrowseURL     string
	RawContentURL string
	APIURL        string
	MimeType      string
	Editions      []Edition
}

// MetadataFromAPI builds InitialMetadata from backend records.
func MetadataFromAPI(d *archiveapi.SnapshotDetail, editions []archiveapi.Edition) InitialMetadata {
	m := InitialMetadata{
		SnapshotID:       d.ID,
		Title:            d.Title,
		SourceName:       d.SourceName,
		SourceCode:       d.SourceCode,
		CaptureDate:      d.CaptureDate,
		CaptureTimestamp: d.CaptureTimestamp,
		EditionID:        d.JobID,
		OriginalURL:      d.OriginalURL,
		BrowseURL:        d.BrowseURL,
		RawContentURL:    d.RawSnapshotURL,
		APIURL:           d.APIURL,
		MimeType:         d.MimeType,
	}
	for _, e := range editions {
		m.Editions = append(m.Editions, EditionFromAPI(e))
	}
	return m
}
