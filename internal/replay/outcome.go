package replay

// SwitchState names the states of an edition switch.
type SwitchState string

const (
	StateIdle             SwitchState = "idle"
	StateSwitching        SwitchState = "switching"
	StateResolved         SwitchState = "resolved"
	StateFallbackEntry    SwitchState = "fallback_entry"
	StateFallbackTimegate SwitchState = "fallback_timegate"
	StateFailed           SwitchState = "failed"
)

// Outcome is the terminal result of a switch. The concrete type is one of
// Resolved, FallbackEntry, FallbackTimegate or Failed.
type Outcome interface {
	State() SwitchState
	Target() int64
	outcome()
}

// Resolved: the same logical page exists in the target edition.
type Resolved struct {
	EditionID  int64
	ViewerURL  string
	LogicalURL string // empty when the backend did not report one
	Timestamp  string // empty when the capture time was missing or unparseable
	SnapshotID string
	MimeType   string
}

// FallbackEntry: the page is absent from the target edition; its entry page
// is shown instead.
type FallbackEntry struct {
	EditionID int64
	ViewerURL string
}

// FallbackTimegate: the replay service is asked for the nearest capture.
// Unconfirmed is set when resolution failed rather than reporting absence.
type FallbackTimegate struct {
	EditionID   int64
	ViewerURL   string
	Unconfirmed bool
	Cause       error
}

// Failed: no navigable URL could be produced because the view has no replay
// origin to build a timegate URL against.
type Failed struct {
	EditionID   int64
	Unconfirmed bool
	Cause       error
}

func (Resolved) State() SwitchState         { return StateResolved }
func (FallbackEntry) State() SwitchState    { return StateFallbackEntry }
func (FallbackTimegate) State() SwitchState { return StateFallbackTimegate }
func (Failed) State() SwitchState           { return StateFailed }

func (o Resolved) Target() int64         { return o.EditionID }
func (o FallbackEntry) Target() int64    { return o.EditionID }
func (o FallbackTimegate) Target() int64 { return o.EditionID }
func (o Failed) Target() int64           { return o.EditionID }

func (Resolved) outcome()         {}
func (FallbackEntry) outcome()    {}
func (FallbackTimegate) outcome() {}
func (Failed) outcome()           {}

// OutcomeView is the JSON shape of an Outcome.
type OutcomeView struct {
	State       SwitchState `json:"state"`
	EditionID   int64       `json:"editionId"`
	ViewerURL   string      `json:"viewerUrl,omitempty"`
	Unconfirmed bool        `json:"unconfirmed,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// View flattens o for transport.
func View(o Outcome) OutcomeView {
	v := OutcomeView{State: o.State(), EditionID: o.Target()}
	switch t := o.(type) {
	case Resolved:
		v.ViewerURL = t.ViewerURL
	case FallbackEntry:
		v.ViewerURL = t.ViewerURL
	case FallbackTimegate:
		v.ViewerURL = t.ViewerURL
		v.Unconfirmed = t.Unconfirmed
		if t.Cause != nil {
			v.Error = t.Cause.Error()
		}
	case Failed:
		v.Unconfirmed = t.Unconfirmed
		if t.Cause != nil {
			v.Error = t.Cause.Error()
		}
	}
	return v
}
