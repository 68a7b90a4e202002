package archiveapi

// ResolveRequest asks for the best capture of URL inside an edition.
// Timestamp14 is a hint, not a filter.
type ResolveRequest struct {
	EditionID   int64
	URL         string
	Timestamp14 string
}

// Resolution is the resolve endpoint's answer. Found=false is a normal
// outcome meaning the URL was not captured in that edition.
type Resolution struct {
	Found            bool   `json:"found"`
	BrowseURL        string `json:"browseUrl,omitempty"`
	ResolvedURL      string `json:"resolvedUrl,omitempty"`
	CaptureTimestamp string `json:"captureTimestamp,omitempty"`
	SnapshotID       string `json:"snapshotId,omitempty"`
	MimeType         string `json:"mimeType,omitempty"`
}

// SnapshotDetail is the server-side metadata a replay page starts from.
type SnapshotDetail struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	SourceName       string `json:"sourceName"`
	SourceCode       string `json:"sourceCode"`
	CaptureDate      string `json:"captureDate"`
	CaptureTimestamp string `json:"captureTimestamp"`
	JobID            int64  `json:"jobId"`
	OriginalURL      string `json:"originalUrl"`
	BrowseURL        string `json:"browseUrl,omitempty"`
	RawSnapshotURL   string `json:"rawSnapshotUrl,omitempty"`
	APIURL           string `json:"apiUrl,omitempty"`
	MimeType         string `json:"mimeType,omitempty"`
}

// Edition is one capture batch of a source as listed by the backend.
type Edition struct {
	JobID          int64  `json:"jobId"`
	Name           string `json:"name,omitempty"`
	RecordCount    int64  `json:"recordCount"`
	FirstCapture   string `json:"firstCapture,omitempty"`
	LastCapture    string `json:"lastCapture,omitempty"`
	EntryBrowseURL string `json:"entryBrowseUrl,omitempty"`
}
