package app_test

import (
	"context"
	"errors"
	"testing"

	"caseline/internal/app"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/workspace"
)

const testNow = "2024-06-01T12:00:00Z"

func newTestApp(t *testing.T) app.App {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Init(context.Background(), conn); err != nil {
		t.Fatalf("init db: %v", err)
	}
	a := app.New(conn, "matter-1", config.Default("matter-1"))
	a.Now = func() string { return testNow }
	return a
}

func seedTask(t *testing.T, a app.App) domain.Actionable {
	t.Helper()
	item, err := a.Upsert(context.Background(), domain.Actionable{
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
	}, domain.RoleStaff)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return item
}

func TestUpsertPersistsAcrossLoads(t *testing.T) {
	a := newTestApp(t)
	seedTask(t, a)
	got, err := a.Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Collect pay stubs" || len(got.Audit) != 1 {
		t.Fatalf("persisted entity wrong: %+v", got)
	}
}

func TestTransitionPersistsAndRejects(t *testing.T) {
	a := newTestApp(t)
	seedTask(t, a)
	ctx := context.Background()

	item, err := a.Transition(ctx, "task-1", domain.StatusInProgress, domain.RoleStaff, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if item.Status != domain.StatusInProgress {
		t.Fatalf("status = %s", item.Status)
	}

	_, err = a.Transition(ctx, "task-1", domain.StatusDone, domain.RoleClient, nil)
	var re app.RejectionError
	if !errors.As(err, &re) {
		t.Fatalf("expected RejectionError, got %v", err)
	}

	// Rejection persisted nothing.
	got, _ := a.Get(ctx, "task-1")
	if got.Status != domain.StatusInProgress {
		t.Fatalf("rejected transition leaked into storage: %s", got.Status)
	}

	if _, err := a.Transition(ctx, "missing", domain.StatusDone, domain.RoleAttorney, nil); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	a := newTestApp(t)
	seedTask(t, a)
	ctx := context.Background()
	if _, err := a.Upsert(ctx, domain.Actionable{
		ID:          "q-1",
		Kind:        domain.KindQuestion,
		Title:       "Any prior bankruptcies?",
		Responsible: domain.RoleClient,
		Severity:    domain.SeverityNormal,
		DueKind:     domain.DueSLA,
		Status:      domain.StatusAssignedToClient,
	}, domain.RoleStaff); err != nil {
		t.Fatalf("upsert question: %v", err)
	}

	questions, err := a.List(ctx, app.ListFilters{Kind: domain.KindQuestion})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(questions) != 1 || questions[0].ID != "q-1" {
		t.Fatalf("kind filter wrong: %+v", questions)
	}

	if _, err := a.Transition(ctx, "task-1", domain.StatusDone, domain.RoleAttorney, nil); err != nil {
		t.Fatalf("close task: %v", err)
	}
	open, err := a.List(ctx, app.ListFilters{Open: true})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != "q-1" {
		t.Fatalf("open filter must exclude terminal entities: %+v", open)
	}
}

func TestCreateDerivedTaskUsesConfiguredSLA(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	item, err := a.CreateDerivedTask(ctx, workspace.DerivedTaskInput{
		ID:       "derived-1",
		Title:    "Resolve missing SSN",
		Severity: domain.SeverityUrgent,
	})
	if err != nil {
		t.Fatalf("create derived: %v", err)
	}
	if item.SLAHours != 24 {
		t.Fatalf("sla hours = %d, want 24 for urgent", item.SLAHours)
	}
	if item.Status != domain.StatusOpen || item.DueKind != domain.DueSLA {
		t.Fatalf("derived task malformed: %+v", item)
	}

	// Re-creating after a human closes it must not reopen it.
	if _, err := a.Transition(ctx, "derived-1", domain.StatusDone, domain.RoleAttorney, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.CreateDerivedTask(ctx, workspace.DerivedTaskInput{
		ID:       "derived-1",
		Title:    "Resolve missing SSN",
		Severity: domain.SeverityUrgent,
	}); err != nil {
		t.Fatalf("re-derive: %v", err)
	}
	got, _ := a.Get(ctx, "derived-1")
	if got.Status != domain.StatusDone {
		t.Fatalf("rule re-run reopened settled work: %s", got.Status)
	}
}

func TestAuditTailLimits(t *testing.T) {
	a := newTestApp(t)
	seedTask(t, a)
	ctx := context.Background()
	if _, err := a.Transition(ctx, "task-1", domain.StatusInProgress, domain.RoleStaff, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := a.AssignResponsible(ctx, "task-1", domain.RoleAttorney, domain.RoleStaff); err != nil {
		t.Fatalf("assign: %v", err)
	}

	all, err := a.AuditTail(ctx, 0)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("events = %d, want created + status_changed + assigned", len(all))
	}
	last, err := a.AuditTail(ctx, 1)
	if err != nil {
		t.Fatalf("tail 1: %v", err)
	}
	if len(last) != 1 || last[0].Action != domain.ActionAssigned {
		t.Fatalf("limited tail wrong: %+v", last)
	}
}
