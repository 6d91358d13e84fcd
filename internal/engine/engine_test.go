package engine_test

import (
	"testing"

	"caseline/internal/domain"
	"caseline/internal/engine"
)

const testNow = "2024-06-01T12:00:00Z"

func newTask(status domain.Status) domain.Actionable {
	return domain.Actionable{
		ID:          "task-1",
		Kind:        domain.KindTask,
		Title:       "Collect pay stubs",
		Owner:       domain.RoleStaff,
		Responsible: domain.RoleStaff,
		Severity:    domain.SeverityNormal,
		DueKind:     domain.DueSLA,
		Status:      status,
		CreatedAt:   "2024-05-01T00:00:00Z",
		UpdatedAt:   "2024-05-01T00:00:00Z",
	}
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusOpen, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if !res.Ok {
		t.Fatalf("expected ok, got reason %q", res.Reason)
	}
	if len(res.Value.Audit) != 0 {
		t.Fatalf("no-op must not emit audit events, got %d", len(res.Value.Audit))
	}
	if res.Value.UpdatedAt != a.UpdatedAt {
		t.Fatalf("no-op must not touch updated_at")
	}
}

func TestTransitionRejectsStatusOutsideKind(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusRequested, engine.Context{ActorRole: domain.RoleAttorney, Now: testNow})
	if res.Ok {
		t.Fatalf("expected rejection")
	}
	if res.Reason != engine.ReasonInvalidStatus {
		t.Fatalf("reason = %q, want %q", res.Reason, engine.ReasonInvalidStatus)
	}
	if res.Value.Status != domain.StatusOpen {
		t.Fatalf("rejected transition must leave the value unchanged")
	}
}

func TestTransitionRejectsMissingEdge(t *testing.T) {
	a := newTask(domain.StatusSnoozed)
	res := engine.Transition(a, domain.StatusDone, engine.Context{ActorRole: domain.RoleAttorney, Now: testNow})
	if res.Ok || res.Reason != engine.ReasonInvalidTransition {
		t.Fatalf("got ok=%v reason=%q, want invalid transition", res.Ok, res.Reason)
	}
}

func TestGateOrderKindBeforeRole(t *testing.T) {
	// A target that is both outside the kind's enum and role-blocked
	// must report the status error, not the role error.
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusResolvedWithOverride, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if res.Ok || res.Reason != engine.ReasonInvalidStatus {
		t.Fatalf("got ok=%v reason=%q, want invalid status", res.Ok, res.Reason)
	}
}

func TestTransitionRejectsRole(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusDone, engine.Context{ActorRole: domain.RoleClient, Now: testNow})
	if res.Ok || res.Reason != engine.ReasonRoleNotAllowed {
		t.Fatalf("got ok=%v reason=%q, want role not allowed", res.Ok, res.Reason)
	}

	res = engine.Transition(a, domain.StatusDone, engine.Context{ActorRole: domain.RoleSystem, Now: testNow})
	if res.Ok || res.Reason != engine.ReasonRoleNotAllowed {
		t.Fatalf("system must never transition, got ok=%v reason=%q", res.Ok, res.Reason)
	}
}

func TestTransitionRequiresNoteForDismissed(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusDismissed, engine.Context{ActorRole: domain.RoleAttorney, Now: testNow})
	if res.Ok || res.Reason != engine.ReasonNoteRequired {
		t.Fatalf("got ok=%v reason=%q, want note required", res.Ok, res.Reason)
	}

	res = engine.Transition(a, domain.StatusDismissed, engine.Context{
		ActorRole:  domain.RoleAttorney,
		Resolution: &engine.ResolutionInput{Note: "duplicate of task-2"},
		Now:        testNow,
	})
	if !res.Ok {
		t.Fatalf("expected ok with note, got reason %q", res.Reason)
	}
	if res.Value.Resolution == nil || res.Value.Resolution.Note != "duplicate of task-2" {
		t.Fatalf("resolution note not carried: %+v", res.Value.Resolution)
	}
}

func TestTerminalResolutionDefaults(t *testing.T) {
	a := newTask(domain.StatusInProgress)
	res := engine.Transition(a, domain.StatusDone, engine.Context{ActorRole: domain.RoleAttorney, Now: testNow})
	if !res.Ok {
		t.Fatalf("expected ok, got reason %q", res.Reason)
	}
	r := res.Value.Resolution
	if r == nil {
		t.Fatalf("terminal transition must write a resolution")
	}
	if r.Outcome != "done" {
		t.Fatalf("outcome = %q, want done", r.Outcome)
	}
	if r.ReasonCode != domain.ReasonCompleted {
		t.Fatalf("reason code = %q, want completed", r.ReasonCode)
	}
	if r.ResolvedBy != domain.RoleAttorney || r.ResolvedAt != testNow {
		t.Fatalf("resolution attribution wrong: %+v", r)
	}
}

func TestTerminalResolutionOverrides(t *testing.T) {
	a := newTask(domain.StatusInProgress)
	res := engine.Transition(a, domain.StatusDone, engine.Context{
		ActorRole: domain.RoleAttorney,
		Resolution: &engine.ResolutionInput{
			Outcome:    "completed_with_notes",
			ReasonCode: domain.ReasonDuplicate,
			Note:       "see task-9",
		},
		Now: testNow,
	})
	if !res.Ok {
		t.Fatalf("expected ok, got reason %q", res.Reason)
	}
	r := res.Value.Resolution
	if r.Outcome != "completed_with_notes" || r.ReasonCode != domain.ReasonDuplicate || r.Note != "see task-9" {
		t.Fatalf("overrides not honored: %+v", r)
	}
}

func TestNonTerminalTransitionWritesNoResolution(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusInProgress, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if !res.Ok {
		t.Fatalf("expected ok, got reason %q", res.Reason)
	}
	if res.Value.Resolution != nil {
		t.Fatalf("non-terminal transition must not write a resolution")
	}
}

func TestTransitionRecomputesResponsible(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusWaitingOnClient, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if !res.Ok {
		t.Fatalf("expected ok, got reason %q", res.Reason)
	}
	if res.Value.Responsible != domain.RoleClient {
		t.Fatalf("responsible = %s, want client", res.Value.Responsible)
	}

	back := engine.Transition(res.Value, domain.StatusInProgress, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if !back.Ok {
		t.Fatalf("expected ok, got reason %q", back.Reason)
	}
	// Fallback is the previous responsible, which was client.
	if back.Value.Responsible != domain.RoleClient {
		t.Fatalf("responsible = %s, want client fallback", back.Value.Responsible)
	}
}

func TestTransitionEmitsExactlyOneEvent(t *testing.T) {
	a := newTask(domain.StatusOpen)
	res := engine.Transition(a, domain.StatusInProgress, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if !res.Ok {
		t.Fatalf("expected ok, got reason %q", res.Reason)
	}
	if len(res.Value.Audit) != 1 {
		t.Fatalf("audit length = %d, want 1", len(res.Value.Audit))
	}
	evt := res.Value.Audit[0]
	if evt.Action != domain.ActionStatusChanged {
		t.Fatalf("action = %s, want status_changed", evt.Action)
	}
	if evt.From != domain.StatusOpen || evt.To != domain.StatusInProgress {
		t.Fatalf("from/to = %v/%v", evt.From, evt.To)
	}
	if evt.At != testNow || res.Value.UpdatedAt != testNow {
		t.Fatalf("timestamps not applied")
	}
	if len(a.Audit) != 0 {
		t.Fatalf("input actionable mutated")
	}
}

func TestQuestionClientFlow(t *testing.T) {
	q := domain.Actionable{
		ID:          "q-1",
		Kind:        domain.KindQuestion,
		Title:       "Any prior bankruptcies?",
		Responsible: domain.RoleClient,
		Status:      domain.StatusAssignedToClient,
	}
	res := engine.Transition(q, domain.StatusAnsweredByClient, engine.Context{ActorRole: domain.RoleClient, Now: testNow})
	if !res.Ok {
		t.Fatalf("client must be able to answer, got reason %q", res.Reason)
	}
	if res.Value.Responsible != domain.RoleClient {
		// answered_by_client has no status rule; question defaults to client.
		t.Fatalf("responsible = %s, want client", res.Value.Responsible)
	}

	// Client cannot resolve their own question.
	blocked := engine.Transition(res.Value, domain.StatusResolved, engine.Context{ActorRole: domain.RoleClient, Now: testNow})
	if blocked.Ok || blocked.Reason != engine.ReasonRoleNotAllowed {
		t.Fatalf("got ok=%v reason=%q, want role not allowed", blocked.Ok, blocked.Reason)
	}
}

func TestDocRequestAcceptanceIsAttorneyOnly(t *testing.T) {
	d := domain.Actionable{
		ID:     "doc-1",
		Kind:   domain.KindDocRequest,
		Title:  "Bank statements",
		Status: domain.StatusReceivedUnreviewed,
	}
	res := engine.Transition(d, domain.StatusReceivedSufficient, engine.Context{ActorRole: domain.RoleStaff, Now: testNow})
	if res.Ok || res.Reason != engine.ReasonRoleNotAllowed {
		t.Fatalf("staff must not accept documents, got ok=%v reason=%q", res.Ok, res.Reason)
	}
	res = engine.Transition(d, domain.StatusReceivedSufficient, engine.Context{ActorRole: domain.RoleAttorney, Now: testNow})
	if !res.Ok {
		t.Fatalf("attorney acceptance failed: %q", res.Reason)
	}
	if res.Value.Resolution.ReasonCode != domain.ReasonAccepted {
		t.Fatalf("reason code = %q, want accepted", res.Value.Resolution.ReasonCode)
	}
}
