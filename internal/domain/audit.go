package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	ActionCreated           AuditAction = "created"
	ActionAssigned          AuditAction = "assigned"
	ActionStatusChanged     AuditAction = "status_changed"
	ActionDueChanged        AuditAction = "due_changed"
	ActionMessageSent       AuditAction = "message_sent"
	ActionDocUploaded       AuditAction = "doc_uploaded"
	ActionDocMarkedSufficient AuditAction = "doc_marked_sufficient"
	ActionWaived            AuditAction = "waived"
	ActionResolved          AuditAction = "resolved"
	ActionOverridden        AuditAction = "overridden"
	ActionMigrated          AuditAction = "migrated"
)

type AuditVisibility string

const (
	VisibilityInternal      AuditVisibility = "internal"
	VisibilityClientVisible AuditVisibility = "client_visible"
)

type AuditSource string

const (
	SourceUserAction AuditSource = "user_action"
	SourceSystemRule AuditSource = "system_rule"
	SourceMigration  AuditSource = "migration"
)

// AuditEvent is immutable once appended. Every entity carries its own
// ordered list; the workspace carries a flat mirror across entities.
type AuditEvent struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entity_id"`
	EntityKind Kind           `json:"entity_kind"`
	ActorRole  Role           `json:"actor_role"`
	Action     AuditAction    `json:"action"`
	From       any            `json:"from,omitempty"`
	To         any            `json:"to,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	At         string         `json:"at" format:"date-time"`
	Visibility AuditVisibility `json:"visibility"`
	Source     AuditSource    `json:"source"`
}

// AuditInput carries the caller-settable parts of an event; NewAuditEvent
// fills id, timestamp, and the visibility/source defaults.
type AuditInput struct {
	EntityID   string
	EntityKind Kind
	ActorRole  Role
	Action     AuditAction
	From       any
	To         any
	Metadata   map[string]any
	At         string
	Visibility AuditVisibility
	Source     AuditSource
}

// NewAuditEvent builds an event, defaulting visibility to internal and
// source to user_action.
func NewAuditEvent(in AuditInput) AuditEvent {
	at := in.At
	if at == "" {
		at = NowISO()
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = VisibilityInternal
	}
	source := in.Source
	if source == "" {
		source = SourceUserAction
	}
	return AuditEvent{
		ID:         uuid.New().String(),
		EntityID:   in.EntityID,
		EntityKind: in.EntityKind,
		ActorRole:  in.ActorRole,
		Action:     in.Action,
		From:       in.From,
		To:         in.To,
		Metadata:   in.Metadata,
		At:         at,
		Visibility: visibility,
		Source:     source,
	}
}

// NowISO formats the current UTC time the way every timestamp in the
// snapshot is stored.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
