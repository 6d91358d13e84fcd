package domain

import "encoding/json"

// SchemaVersion of the persisted envelope.
const SchemaVersion = 2

// ThreadSnapshot summarizes a message thread for workspace listings.
type ThreadSnapshot struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	LinkedActionableID string `json:"linked_actionable_id,omitempty"`
	LastMessageAt      string `json:"last_message_at,omitempty" format:"date-time"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

type DocQuality string

const (
	DocQualityOK           DocQuality = "ok"
	DocQualityNeedsRescan  DocQuality = "needs_rescan"
	DocQualityMissingPages DocQuality = "missing_pages"
)

// DocumentMeta is per-document review metadata kept on the workspace.
type DocumentMeta struct {
	DocTypeID      string     `json:"doc_type_id"`
	RequestID      string     `json:"request_id,omitempty"`
	LastReviewedAt string     `json:"last_reviewed_at,omitempty" format:"date-time"`
	Quality        DocQuality `json:"quality,omitempty"`
	Coverage       string     `json:"coverage,omitempty"`
	Satisfies      []string   `json:"satisfies,omitempty"`
}

// WorkspaceState is the consistency boundary: persisted and loaded as
// one unit, with no partial-entity persistence.
type WorkspaceState struct {
	Actionables   []Actionable   `json:"actionables"`
	Threads       []ThreadSnapshot `json:"threads"`
	DocumentsMeta []DocumentMeta `json:"documents_meta"`
	Appointments  []Appointment  `json:"appointments"`
	Audit         []AuditEvent   `json:"audit"`
}

// EmptyWorkspace returns a workspace with all collections allocated so
// the persisted JSON carries arrays rather than nulls.
func EmptyWorkspace() WorkspaceState {
	return WorkspaceState{
		Actionables:   []Actionable{},
		Threads:       []ThreadSnapshot{},
		DocumentsMeta: []DocumentMeta{},
		Appointments:  []Appointment{},
		Audit:         []AuditEvent{},
	}
}

// PersistedState is the on-device envelope. Intake belongs to the
// intake-answer subsystem and rides through opaquely.
type PersistedState struct {
	SchemaVersion int             `json:"schema_version"`
	Intake        json.RawMessage `json:"intake,omitempty"`
	Workspace     WorkspaceState  `json:"workspace"`
}
