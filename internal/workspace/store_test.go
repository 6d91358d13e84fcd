package workspace_test

import (
	"testing"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/workspace"
)

const testNow = "2024-06-01T12:00:00Z"

func seedWorkspace() domain.WorkspaceState {
	ws := domain.EmptyWorkspace()
	return workspace.Upsert(ws, domain.Actionable{
		ID:          "task-1",
		Kind:        domain.KindTask,
		Title:       "Collect pay stubs",
		Owner:       domain.RoleStaff,
		Responsible: domain.RoleStaff,
		Severity:    domain.SeverityNormal,
		DueKind:     domain.DueSLA,
		Status:      domain.StatusOpen,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}, domain.RoleStaff, testNow)
}

func TestUpsertInsertEmitsCreated(t *testing.T) {
	ws := seedWorkspace()
	if len(ws.Actionables) != 1 {
		t.Fatalf("actionables = %d, want 1", len(ws.Actionables))
	}
	a := ws.Actionables[0]
	if len(a.Audit) != 1 || a.Audit[0].Action != domain.ActionCreated {
		t.Fatalf("insert must record one created event, got %+v", a.Audit)
	}
	if len(ws.Audit) != 1 || ws.Audit[0].ID != a.Audit[0].ID {
		t.Fatalf("workspace mirror must carry the same created event")
	}
}

func TestUpsertMergeEmitsNoEvent(t *testing.T) {
	ws := seedWorkspace()
	updated := ws.Actionables[0]
	updated.Title = "Collect pay stubs (last 6 months)"
	ws2 := workspace.Upsert(ws, updated, domain.RoleStaff, testNow)
	a, _ := workspace.FindByID(ws2, "task-1")
	if a.Title != "Collect pay stubs (last 6 months)" {
		t.Fatalf("merge did not apply, title = %q", a.Title)
	}
	if len(a.Audit) != 1 || len(ws2.Audit) != 1 {
		t.Fatalf("merge must not add audit events")
	}
}

func TestTransitionByIDPropagatesReason(t *testing.T) {
	ws := seedWorkspace()
	_, res := workspace.TransitionByID(ws, "task-1", domain.StatusDone, domain.RoleClient, nil, testNow)
	if res.Ok || res.Reason != engine.ReasonRoleNotAllowed {
		t.Fatalf("got ok=%v reason=%q, want role not allowed", res.Ok, res.Reason)
	}

	_, res = workspace.TransitionByID(ws, "missing", domain.StatusDone, domain.RoleAttorney, nil, testNow)
	if res.Ok || res.Reason != workspace.ReasonNotFound {
		t.Fatalf("got ok=%v reason=%q, want not found", res.Ok, res.Reason)
	}
}

func TestTransitionByIDUpdatesEntityAndMirror(t *testing.T) {
	ws := seedWorkspace()
	ws2, res := workspace.TransitionByID(ws, "task-1", domain.StatusInProgress, domain.RoleStaff, nil, testNow)
	if !res.Ok {
		t.Fatalf("expected ok, got %q", res.Reason)
	}
	a, _ := workspace.FindByID(ws2, "task-1")
	if a.Status != domain.StatusInProgress {
		t.Fatalf("status = %s", a.Status)
	}
	if len(a.Audit) != 2 {
		t.Fatalf("entity audit = %d, want 2", len(a.Audit))
	}
	if len(ws2.Audit) != 2 {
		t.Fatalf("workspace audit = %d, want 2", len(ws2.Audit))
	}
	// Original snapshot untouched.
	orig, _ := workspace.FindByID(ws, "task-1")
	if orig.Status != domain.StatusOpen || len(ws.Audit) != 1 {
		t.Fatalf("input workspace mutated")
	}
}

func TestSetResponsibleRecordsAssigned(t *testing.T) {
	ws := seedWorkspace()
	ws2, ok := workspace.SetResponsible(ws, "task-1", domain.RoleAttorney, domain.RoleStaff, testNow)
	if !ok {
		t.Fatalf("expected ok")
	}
	a, _ := workspace.FindByID(ws2, "task-1")
	if a.Responsible != domain.RoleAttorney {
		t.Fatalf("responsible = %s", a.Responsible)
	}
	last := a.Audit[len(a.Audit)-1]
	if last.Action != domain.ActionAssigned {
		t.Fatalf("action = %s, want assigned", last.Action)
	}
	if last.From != domain.RoleStaff || last.To != domain.RoleAttorney {
		t.Fatalf("from/to = %v/%v", last.From, last.To)
	}
	if _, ok := workspace.SetResponsible(ws, "missing", domain.RoleStaff, domain.RoleStaff, testNow); ok {
		t.Fatalf("missing id must report false")
	}
}

func TestSetDueRecordsDueChanged(t *testing.T) {
	ws := seedWorkspace()
	ws2, ok := workspace.SetDue(ws, "task-1", domain.DueTarget, "2024-07-01T00:00:00Z", domain.RoleStaff, testNow)
	if !ok {
		t.Fatalf("expected ok")
	}
	a, _ := workspace.FindByID(ws2, "task-1")
	if a.DueKind != domain.DueTarget || a.DueAt != "2024-07-01T00:00:00Z" {
		t.Fatalf("due not applied: %s %s", a.DueKind, a.DueAt)
	}
	last := ws2.Audit[len(ws2.Audit)-1]
	if last.Action != domain.ActionDueChanged {
		t.Fatalf("action = %s, want due_changed", last.Action)
	}
}

func TestSyncDerivedInsertsUnseen(t *testing.T) {
	ws := seedWorkspace()
	derived := workspace.NewDerivedTask(workspace.DerivedTaskInput{
		ID:       "derived-1",
		Title:    "Resolve missing SSN",
		Severity: domain.SeverityHigh,
		SLAHours: 72,
	}, testNow)
	ws2 := workspace.SyncDerived(ws, []domain.Actionable{derived})
	a, ok := workspace.FindByID(ws2, "derived-1")
	if !ok {
		t.Fatalf("derived task not inserted")
	}
	if a.Status != domain.StatusOpen || a.DueKind != domain.DueSLA || a.SLAHours != 72 {
		t.Fatalf("derived task malformed: %+v", a)
	}
	if a.Owner != domain.RoleAttorney {
		t.Fatalf("owner = %s, want attorney default", a.Owner)
	}
	if len(a.Audit) != 1 || a.Audit[0].Source != domain.SourceSystemRule {
		t.Fatalf("derived task must carry one system_rule created event")
	}
}

func TestSyncDerivedKeepsHumanState(t *testing.T) {
	ws := seedWorkspace()
	derived := workspace.NewDerivedTask(workspace.DerivedTaskInput{
		ID:    "derived-1",
		Title: "Resolve missing SSN",
	}, testNow)
	ws = workspace.SyncDerived(ws, []domain.Actionable{derived})

	// A human finishes the task.
	ws, res := workspace.TransitionByID(ws, "derived-1", domain.StatusDone, domain.RoleAttorney, nil, testNow)
	if !res.Ok {
		t.Fatalf("transition failed: %q", res.Reason)
	}
	done, _ := workspace.FindByID(ws, "derived-1")

	// The rule fires again with a fresh copy and a new title.
	refreshed := workspace.NewDerivedTask(workspace.DerivedTaskInput{
		ID:       "derived-1",
		Title:    "Resolve missing SSN (retitled)",
		Severity: domain.SeverityUrgent,
	}, "2024-06-02T12:00:00Z")
	ws = workspace.SyncDerived(ws, []domain.Actionable{refreshed})

	a, _ := workspace.FindByID(ws, "derived-1")
	if a.Title != "Resolve missing SSN (retitled)" {
		t.Fatalf("title should refresh, got %q", a.Title)
	}
	if a.Severity != domain.SeverityUrgent {
		t.Fatalf("severity should refresh, got %s", a.Severity)
	}
	if a.Status != domain.StatusDone {
		t.Fatalf("status must be kept, got %s", a.Status)
	}
	if a.Resolution == nil {
		t.Fatalf("resolution must be kept")
	}
	if len(a.Audit) != len(done.Audit) {
		t.Fatalf("audit must be kept, got %d want %d", len(a.Audit), len(done.Audit))
	}
	if a.CreatedAt != done.CreatedAt || a.UpdatedAt != done.UpdatedAt {
		t.Fatalf("timestamps must be kept")
	}
}
