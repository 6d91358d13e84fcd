// Package engine holds the pure transition function for actionables.
// Domain-rule violations are not errors: Transition returns a tagged
// Result and leaves the input untouched on rejection.
package engine

import (
	"caseline/internal/domain"
)

// Rejection reasons returned on Result.Reason. Stable strings; callers
// branch on Ok, surfaces display Reason verbatim.
const (
	ReasonInvalidStatus     = "Invalid status for kind."
	ReasonInvalidTransition = "Invalid status transition for kind."
	ReasonRoleNotAllowed    = "Transition not allowed for role."
	ReasonNoteRequired      = "Resolution note required for this terminal transition."
)

// ResolutionInput is the caller-supplied part of a resolution. Outcome
// and reason code default from the target status when empty.
type ResolutionInput struct {
	Outcome    string            `json:"outcome,omitempty"`
	ReasonCode domain.ReasonCode `json:"resolution_reason_code,omitempty"`
	Note       string            `json:"note,omitempty"`
}

// Context carries the actor and optional overrides for one transition.
type Context struct {
	ActorRole  domain.Role
	Resolution *ResolutionInput
	Now        string
	Source     domain.AuditSource
	Visibility domain.AuditVisibility
}

// Result is the tagged outcome of a transition attempt. On rejection
// Value is the input unchanged and Reason is set.
type Result struct {
	Ok     bool
	Value  domain.Actionable
	Reason string
}

func reject(a domain.Actionable, reason string) Result {
	return Result{Ok: false, Value: a, Reason: reason}
}

// Transition validates and applies a status change. Gates run in order:
// same-status no-op, status-for-kind, graph edge, role authorization,
// terminal note. On success the responsible party is recomputed, a
// resolution is written if the target is terminal, and exactly one
// status_changed audit event is appended.
func Transition(a domain.Actionable, target domain.Status, ctx Context) Result {
	if a.Status == target {
		return Result{Ok: true, Value: a}
	}
	if !domain.IsStatusForKind(a.Kind, target) {
		return reject(a, ReasonInvalidStatus)
	}
	if !domain.IsTransitionAllowed(a.Kind, a.Status, target) {
		return reject(a, ReasonInvalidTransition)
	}
	if !domain.CanTransition(ctx.ActorRole, target) {
		return reject(a, ReasonRoleNotAllowed)
	}

	terminal := domain.IsTerminalStatus(a.Kind, target)
	var note string
	if ctx.Resolution != nil {
		note = ctx.Resolution.Note
	}
	if terminal && domain.NoteRequired[target] && note == "" {
		return reject(a, ReasonNoteRequired)
	}

	ts := ctx.Now
	if ts == "" {
		ts = domain.NowISO()
	}

	next := a
	next.Status = target
	next.Responsible = domain.DeriveResponsible(a.Kind, target, a.Responsible)
	next.UpdatedAt = ts

	var metadata map[string]any
	if terminal {
		res := domain.Resolution{
			Outcome:    string(target),
			ReasonCode: domain.DefaultReason(target),
			Note:       note,
			ResolvedBy: ctx.ActorRole,
			ResolvedAt: ts,
		}
		if ctx.Resolution != nil {
			if ctx.Resolution.Outcome != "" {
				res.Outcome = ctx.Resolution.Outcome
			}
			if ctx.Resolution.ReasonCode != "" {
				res.ReasonCode = ctx.Resolution.ReasonCode
			}
		}
		next.Resolution = &res
		metadata = map[string]any{"resolution": res}
	}

	evt := domain.NewAuditEvent(domain.AuditInput{
		EntityID:   a.ID,
		EntityKind: a.Kind,
		ActorRole:  ctx.ActorRole,
		Action:     domain.ActionStatusChanged,
		From:       a.Status,
		To:         target,
		Metadata:   metadata,
		At:         ts,
		Visibility: ctx.Visibility,
		Source:     ctx.Source,
	})
	next.Audit = append(append([]domain.AuditEvent{}, a.Audit...), evt)
	return Result{Ok: true, Value: next}
}
