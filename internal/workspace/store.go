// Package workspace provides the aggregate-level operations over a
// WorkspaceState. Every operation takes the current value and returns a
// new one; the caller commits the result in a single write. There is no
// in-place mutation and no I/O here.
package workspace

import (
	"caseline/internal/domain"
	"caseline/internal/engine"
)

// ReasonNotFound is returned by TransitionByID when no actionable with
// the given id exists.
const ReasonNotFound = "Actionable not found."

// FindByID returns the actionable with the given id, if present.
func FindByID(ws domain.WorkspaceState, id string) (domain.Actionable, bool) {
	for _, a := range ws.Actionables {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Actionable{}, false
}

func replace(ws domain.WorkspaceState, next domain.Actionable) []domain.Actionable {
	out := make([]domain.Actionable, len(ws.Actionables))
	for i, a := range ws.Actionables {
		if a.ID == next.ID {
			out[i] = next
		} else {
			out[i] = a
		}
	}
	return out
}

func appendAudit(events []domain.AuditEvent, evt domain.AuditEvent) []domain.AuditEvent {
	return append(append([]domain.AuditEvent{}, events...), evt)
}

// Upsert inserts a new actionable with a synthesized created event
// (recorded on the entity and on the workspace mirror), or shallow-merges
// onto an existing one. The merge path does not emit an audit event.
func Upsert(ws domain.WorkspaceState, a domain.Actionable, actor domain.Role, now string) domain.WorkspaceState {
	if _, ok := FindByID(ws, a.ID); !ok {
		created := domain.NewAuditEvent(domain.AuditInput{
			EntityID:   a.ID,
			EntityKind: a.Kind,
			ActorRole:  actor,
			Action:     domain.ActionCreated,
			At:         now,
		})
		a.Audit = appendAudit(a.Audit, created)
		next := ws
		next.Actionables = append(append([]domain.Actionable{}, ws.Actionables...), a)
		next.Audit = appendAudit(ws.Audit, created)
		return next
	}
	next := ws
	next.Actionables = replace(ws, a)
	return next
}

// TransitionByID locates the entity and applies the transition engine.
// On success the entity is replaced and the emitted audit event joins
// the workspace mirror; on rejection the workspace is returned unchanged
// and the engine's reason is propagated to the caller.
func TransitionByID(ws domain.WorkspaceState, id string, target domain.Status, actor domain.Role, res *engine.ResolutionInput, now string) (domain.WorkspaceState, engine.Result) {
	a, ok := FindByID(ws, id)
	if !ok {
		return ws, engine.Result{Ok: false, Reason: ReasonNotFound}
	}
	result := engine.Transition(a, target, engine.Context{
		ActorRole:  actor,
		Resolution: res,
		Now:        now,
	})
	if !result.Ok {
		return ws, result
	}
	next := ws
	next.Actionables = replace(ws, result.Value)
	if len(result.Value.Audit) > len(a.Audit) {
		emitted := result.Value.Audit[len(result.Value.Audit)-1]
		next.Audit = appendAudit(ws.Audit, emitted)
	}
	return next, result
}

// SetResponsible updates the responsible party directly, outside the
// status graph, and records one assigned event. This is not a status
// transition and carries no role gate.
func SetResponsible(ws domain.WorkspaceState, id string, responsible domain.Role, actor domain.Role, now string) (domain.WorkspaceState, bool) {
	a, ok := FindByID(ws, id)
	if !ok {
		return ws, false
	}
	evt := domain.NewAuditEvent(domain.AuditInput{
		EntityID:   a.ID,
		EntityKind: a.Kind,
		ActorRole:  actor,
		Action:     domain.ActionAssigned,
		From:       a.Responsible,
		To:         responsible,
		At:         now,
	})
	a.Responsible = responsible
	a.UpdatedAt = evt.At
	a.Audit = appendAudit(a.Audit, evt)
	next := ws
	next.Actionables = replace(ws, a)
	next.Audit = appendAudit(ws.Audit, evt)
	return next, true
}

// SetDue updates the due policy directly and records one due_changed
// event.
func SetDue(ws domain.WorkspaceState, id string, dueKind domain.DueKind, dueAt string, actor domain.Role, now string) (domain.WorkspaceState, bool) {
	a, ok := FindByID(ws, id)
	if !ok {
		return ws, false
	}
	evt := domain.NewAuditEvent(domain.AuditInput{
		EntityID:   a.ID,
		EntityKind: a.Kind,
		ActorRole:  actor,
		Action:     domain.ActionDueChanged,
		From:       map[string]any{"due_kind": a.DueKind, "due_at": a.DueAt},
		To:         map[string]any{"due_kind": dueKind, "due_at": dueAt},
		At:         now,
	})
	a.DueKind = dueKind
	a.DueAt = dueAt
	a.UpdatedAt = evt.At
	a.Audit = appendAudit(a.Audit, evt)
	next := ws
	next.Actionables = replace(ws, a)
	next.Audit = appendAudit(ws.Audit, evt)
	return next, true
}

// SyncDerived reconciles system-generated actionables recomputed on
// every rule evaluation. Unseen entities are inserted as-is. For an
// existing entity only the rule-computed fields (title, description,
// severity, links, kind) refresh; everything a human may have touched
// (owner, responsible, due policy, status, resolution, audit, timestamps)
// is kept from the existing entity. Re-running rules must never reopen
// or reassign work a human already settled.
func SyncDerived(ws domain.WorkspaceState, derived []domain.Actionable) domain.WorkspaceState {
	next := ws
	out := append([]domain.Actionable{}, ws.Actionables...)
	index := make(map[string]int, len(out))
	for i, a := range out {
		index[a.ID] = i
	}
	for _, d := range derived {
		i, ok := index[d.ID]
		if !ok {
			index[d.ID] = len(out)
			out = append(out, d)
			continue
		}
		existing := out[i]
		merged := d
		merged.Owner = existing.Owner
		merged.Responsible = existing.Responsible
		merged.DueKind = existing.DueKind
		merged.DueAt = existing.DueAt
		merged.SLAHours = existing.SLAHours
		merged.Status = existing.Status
		merged.Resolution = existing.Resolution
		merged.Audit = existing.Audit
		merged.CreatedAt = existing.CreatedAt
		merged.UpdatedAt = existing.UpdatedAt
		out[i] = merged
	}
	next.Actionables = out
	return next
}

// DerivedTaskInput describes a system-generated task to construct.
type DerivedTaskInput struct {
	ID          string
	Title       string
	Description string
	Severity    domain.Severity
	Owner       domain.Role
	Responsible domain.Role
	SLAHours    int
	Links       []domain.ContextLink
}

// NewDerivedTask builds a well-formed rule-generated task: status open,
// SLA due policy, and a created audit event attributed to the system.
func NewDerivedTask(in DerivedTaskInput, now string) domain.Actionable {
	if now == "" {
		now = domain.NowISO()
	}
	owner := in.Owner
	if owner == "" {
		owner = RoleDerivedOwner
	}
	status := domain.StatusOpen
	responsible := in.Responsible
	if responsible == "" {
		responsible = domain.DeriveResponsible(domain.KindTask, status, "")
	}
	return domain.Actionable{
		ID:          in.ID,
		Kind:        domain.KindTask,
		Title:       in.Title,
		Description: in.Description,
		Owner:       owner,
		Responsible: responsible,
		Severity:    in.Severity,
		DueKind:     domain.DueSLA,
		SLAHours:    in.SLAHours,
		Status:      status,
		Links:       in.Links,
		Audit: []domain.AuditEvent{domain.NewAuditEvent(domain.AuditInput{
			EntityID:   in.ID,
			EntityKind: domain.KindTask,
			ActorRole:  domain.RoleSystem,
			Action:     domain.ActionCreated,
			At:         now,
			Source:     domain.SourceSystemRule,
		})},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RoleDerivedOwner is the default accountable party for rule-generated
// tasks.
const RoleDerivedOwner = domain.RoleAttorney
