// Package migrate projects the two legacy persisted schemas (the flat
// issues:v1 list and the scheduling:v1 appointment list) into the
// unified workspace model. The projection is stateless and best-effort:
// a missing or corrupt source yields an empty list, and individual
// records that fail to parse are skipped, never coerced.
package migrate

import (
	"encoding/json"
	"fmt"
	"strings"

	"caseline/internal/domain"
)

// Legacy source labels recorded on migrated audit events.
const (
	SourceIssuesV1     = "issues:v1"
	SourceSchedulingV1 = "scheduling:v1"
)

// LegacyIssue is one record of the v1 flat issue list.
type LegacyIssue struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	LinkedFieldID string              `json:"linkedFieldId"`
	LinkedStepID  string              `json:"linkedStepId"`
	DueAt         string              `json:"dueAt"`
	Owner         string              `json:"owner"`
	Priority      string              `json:"priority"`
	Status        string              `json:"status"`
	Comments      []LegacyComment     `json:"comments"`
	Resolution    *LegacyResolution   `json:"resolution"`
	CreatedAt     string              `json:"createdAt"`
	UpdatedAt     string              `json:"updatedAt"`
}

type LegacyComment struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type LegacyResolution struct {
	Rationale   string `json:"rationale"`
	OutcomeType string `json:"outcomeType"`
	ResolvedAt  string `json:"resolvedAt"`
	ResolvedBy  string `json:"resolvedBy"`
}

// ParseIssues decodes an issues:v1 document. Corrupt documents and
// records without an id are dropped; the result is never an error.
func ParseIssues(raw []byte) []LegacyIssue {
	if len(raw) == 0 {
		return nil
	}
	var doc struct {
		Issues []json.RawMessage `json:"issues"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	var out []LegacyIssue
	for _, rec := range doc.Issues {
		var issue LegacyIssue
		if err := json.Unmarshal(rec, &issue); err != nil {
			continue
		}
		if strings.TrimSpace(issue.ID) == "" {
			continue
		}
		out = append(out, issue)
	}
	return out
}

// ParseAppointments decodes a scheduling:v1 document. Records without
// an id or with a status outside the appointment enum are dropped.
func ParseAppointments(raw []byte) []domain.Appointment {
	if len(raw) == 0 {
		return nil
	}
	var doc struct {
		Data struct {
			Appointments []json.RawMessage `json:"appointments"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	var out []domain.Appointment
	for _, rec := range doc.Data.Appointments {
		var appt struct {
			ID            string `json:"id"`
			TypeID        string `json:"typeId"`
			StartsAt      string `json:"startsAt"`
			EndsAt        string `json:"endsAt"`
			Timezone      string `json:"timezone"`
			Status        string `json:"status"`
			Notes         string `json:"notes"`
			LinkedIssueID string `json:"linkedIssueId"`
		}
		if err := json.Unmarshal(rec, &appt); err != nil {
			continue
		}
		if strings.TrimSpace(appt.ID) == "" {
			continue
		}
		if !domain.IsStatusForKind(domain.KindAppointment, domain.Status(appt.Status)) {
			continue
		}
		out = append(out, domain.Appointment{
			ID:            appt.ID,
			TypeID:        appt.TypeID,
			StartsAt:      appt.StartsAt,
			EndsAt:        appt.EndsAt,
			Timezone:      appt.Timezone,
			Status:        domain.Status(appt.Status),
			Notes:         appt.Notes,
			LinkedIssueID: appt.LinkedIssueID,
		})
	}
	return out
}

func issueKind(issueType string) domain.Kind {
	switch issueType {
	case "document":
		return domain.KindDocRequest
	case "question", "clarification":
		return domain.KindQuestion
	default:
		return domain.KindTask
	}
}

func issueSeverity(priority string) domain.Severity {
	switch priority {
	case "critical":
		return domain.SeverityUrgent
	case "important":
		return domain.SeverityHigh
	default:
		return domain.SeverityNormal
	}
}

func issueStatus(kind domain.Kind, status string) domain.Status {
	switch kind {
	case domain.KindDocRequest:
		switch status {
		case "assigned":
			return domain.StatusRequested
		case "in_progress":
			return domain.StatusReceivedUnreviewed
		case "needs_review":
			return domain.StatusReceivedInsufficient
		case "closed_with_exception":
			return domain.StatusWaived
		default: // approved, resolved, anything else
			return domain.StatusReceivedSufficient
		}
	case domain.KindQuestion:
		switch status {
		case "assigned":
			return domain.StatusAssignedToClient
		case "in_progress":
			return domain.StatusNeedsClarification
		case "needs_review":
			return domain.StatusAssignedToAttorney
		case "closed_with_exception":
			return domain.StatusWaived
		default:
			return domain.StatusResolved
		}
	default:
		switch status {
		case "assigned":
			return domain.StatusOpen
		case "in_progress":
			return domain.StatusInProgress
		case "needs_review":
			return domain.StatusNeedsAttorney
		case "closed_with_exception":
			return domain.StatusDismissed
		default:
			return domain.StatusDone
		}
	}
}

func issueLinks(issue LegacyIssue) []domain.ContextLink {
	if issue.LinkedFieldID == "" {
		return nil
	}
	stepID := issue.LinkedStepID
	if stepID == "" {
		stepID = "unknown"
	}
	return []domain.ContextLink{{Type: domain.LinkField, StepID: stepID, FieldID: issue.LinkedFieldID}}
}

// IssueToActionable projects one legacy issue through the fixed mapping
// tables. The id is namespaced and a migrated audit event is attached.
func IssueToActionable(issue LegacyIssue, now string) domain.Actionable {
	kind := issueKind(issue.Type)
	status := issueStatus(kind, issue.Status)
	dueKind := domain.DueSLA
	if issue.DueAt != "" {
		dueKind = domain.DueTarget
	}
	var resolution *domain.Resolution
	if issue.Resolution != nil {
		resolution = &domain.Resolution{
			Outcome:    issue.Resolution.OutcomeType,
			Note:       issue.Resolution.Rationale,
			ResolvedBy: domain.Role(issue.Resolution.ResolvedBy),
			ResolvedAt: issue.Resolution.ResolvedAt,
		}
	}
	return domain.Actionable{
		ID:          fmt.Sprintf("issue:%s", issue.ID),
		Kind:        kind,
		Title:       issue.Title,
		Description: issue.Description,
		Owner:       domain.Role(issue.Owner),
		Responsible: domain.DeriveResponsible(kind, status, domain.Role(issue.Owner)),
		Severity:    issueSeverity(issue.Priority),
		DueKind:     dueKind,
		DueAt:       issue.DueAt,
		Status:      status,
		Links:       issueLinks(issue),
		Resolution:  resolution,
		Audit: []domain.AuditEvent{domain.NewAuditEvent(domain.AuditInput{
			EntityID:   issue.ID,
			EntityKind: kind,
			ActorRole:  domain.Role(issue.Owner),
			Action:     domain.ActionMigrated,
			At:         now,
			Source:     domain.SourceMigration,
			Metadata:   map[string]any{"from": SourceIssuesV1},
		})},
		CreatedAt: issue.CreatedAt,
		UpdatedAt: issue.UpdatedAt,
	}
}

// AppointmentToActionable projects one legacy appointment. A proposed
// appointment imports as awaiting_client; other statuses pass through.
func AppointmentToActionable(appt domain.Appointment, now string) domain.Actionable {
	status := appt.Status
	if status == domain.StatusProposed {
		status = domain.StatusAwaitingClient
	}
	id := fmt.Sprintf("appointment:%s", appt.ID)
	return domain.Actionable{
		ID:          id,
		Kind:        domain.KindAppointment,
		Title:       fmt.Sprintf("Appointment: %s", strings.ReplaceAll(appt.TypeID, "_", " ")),
		Description: appointmentDescription(appt),
		Owner:       domain.RoleClient,
		Responsible: domain.DeriveResponsible(domain.KindAppointment, status, ""),
		Severity:    domain.SeverityNormal,
		DueKind:     domain.DueTarget,
		DueAt:       appt.StartsAt,
		Status:      status,
		Links:       []domain.ContextLink{{Type: domain.LinkAppointment, AppointmentID: appt.ID}},
		Audit: []domain.AuditEvent{domain.NewAuditEvent(domain.AuditInput{
			EntityID:   id,
			EntityKind: domain.KindAppointment,
			ActorRole:  domain.RoleSystem,
			Action:     domain.ActionMigrated,
			At:         now,
			Source:     domain.SourceMigration,
			Metadata:   map[string]any{"from": SourceSchedulingV1},
		})},
		CreatedAt: appt.StartsAt,
		UpdatedAt: appt.StartsAt,
	}
}

func appointmentDescription(appt domain.Appointment) string {
	if appt.Notes != "" {
		return appt.Notes
	}
	return "Appointment record"
}

func issueThreads(issues []LegacyIssue) []domain.ThreadSnapshot {
	threads := []domain.ThreadSnapshot{}
	for _, issue := range issues {
		if len(issue.Comments) == 0 {
			continue
		}
		last := issue.Comments[len(issue.Comments)-1].CreatedAt
		if last == "" {
			last = issue.UpdatedAt
		}
		threads = append(threads, domain.ThreadSnapshot{
			ID:                 fmt.Sprintf("thread:%s", issue.ID),
			Title:              issue.Title,
			LinkedActionableID: fmt.Sprintf("issue:%s", issue.ID),
			LastMessageAt:      last,
			CreatedAt:          issue.CreatedAt,
		})
	}
	return threads
}

// FromLegacy builds a complete workspace from the two raw legacy
// documents. It runs when loading finds no valid current-version
// snapshot and never merges with previously migrated state.
func FromLegacy(issuesRaw, schedulingRaw []byte, now string) domain.WorkspaceState {
	if now == "" {
		now = domain.NowISO()
	}
	issues := ParseIssues(issuesRaw)
	appointments := ParseAppointments(schedulingRaw)

	ws := domain.EmptyWorkspace()
	for _, issue := range issues {
		ws.Actionables = append(ws.Actionables, IssueToActionable(issue, now))
	}
	for _, appt := range appointments {
		ws.Actionables = append(ws.Actionables, AppointmentToActionable(appt, now))
	}
	ws.Appointments = append(ws.Appointments, appointments...)
	ws.Threads = issueThreads(issues)
	ws.Audit = append(ws.Audit, domain.NewAuditEvent(domain.AuditInput{
		EntityID:   "workspace",
		EntityKind: domain.KindTask,
		ActorRole:  domain.RoleSystem,
		Action:     domain.ActionMigrated,
		At:         now,
		Source:     domain.SourceMigration,
	}))
	return ws
}
