package server

import (
	"github.com/raysh454/replaydesk/internal/replay"
)

// SwitchRequest asks a session to move to another edition.
type SwitchRequest struct {
	EditionID int64 `json:"editionId"`
}

// SwitchResponse carries the switch outcome and the state it left behind.
type SwitchResponse struct {
	Outcome replay.OutcomeView     `json:"outcome"`
	State   replay.NavigationState `json:"state"`
}

// EditionResponse is one selectable edition of a session.
type EditionResponse struct {
	ID          int64  `json:"id"`
	Label       string `json:"label"`
	RecordCount int64  `json:"recordCount,omitempty"`
	Current     bool   `json:"current"`
}

// SessionResponse describes a live session.
type SessionResponse struct {
	ID         string                 `json:"id"`
	SnapshotID string                 `json:"snapshotId"`
	Context    replay.RenderContext   `json:"context"`
	Locale     string                 `json:"locale"`
	CreatedAt  string                 `json:"createdAt"`
	CanSwitch  bool                   `json:"canSwitch"`
	State      replay.NavigationState `json:"state"`
	Editions   []EditionResponse      `json:"editions"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
