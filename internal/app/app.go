// Package app is the facade over the snapshot store and the pure
// workspace operations. Every command loads the snapshot, applies one
// pure operation, and commits the whole snapshot back in a single
// write.
package app

import (
	"context"
	"database/sql"

	"caseline/internal/config"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
	"caseline/internal/workspace"
)

// RejectionError wraps a domain-rule rejection so transport layers can
// distinguish it from storage failures. The message is the engine's
// reason verbatim.
type RejectionError struct {
	Reason string
}

func (e RejectionError) Error() string { return e.Reason }

// ErrNotFound re-exported for callers that only import app.
var ErrNotFound = repo.ErrNotFound

type App struct {
	Snapshots repo.Snapshots
	Config    *config.Config
	Now       func() string
}

// New builds an App over an opened database and scope.
func New(conn *sql.DB, scope string, cfg *config.Config) App {
	return App{
		Snapshots: repo.Snapshots{DB: conn, Scope: scope},
		Config:    cfg,
		Now:       domain.NowISO,
	}
}

func (a App) now() string {
	if a.Now != nil {
		return a.Now()
	}
	return domain.NowISO()
}

// Workspace returns the full current snapshot, migrating legacy
// documents if no current-version snapshot exists.
func (a App) Workspace(ctx context.Context) (domain.PersistedState, error) {
	return a.Snapshots.Load(ctx, a.now())
}

// commit persists the workspace part of the snapshot, leaving the
// opaque intake block untouched.
func (a App) commit(ctx context.Context, state domain.PersistedState, ws domain.WorkspaceState, now string) error {
	state.Workspace = ws
	return a.Snapshots.Save(ctx, state, now)
}

// ListFilters narrow List output. Empty fields match everything.
type ListFilters struct {
	Kind        domain.Kind
	Status      domain.Status
	Responsible domain.Role
	Open        bool
}

// List returns actionables matching the filters, in snapshot order.
func (a App) List(ctx context.Context, f ListFilters) ([]domain.Actionable, error) {
	state, err := a.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	var res []domain.Actionable
	for _, item := range state.Workspace.Actionables {
		if f.Kind != "" && item.Kind != f.Kind {
			continue
		}
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		if f.Responsible != "" && item.Responsible != f.Responsible {
			continue
		}
		if f.Open && domain.IsTerminalStatus(item.Kind, item.Status) {
			continue
		}
		res = append(res, item)
	}
	return res, nil
}

// Get returns one actionable by id.
func (a App) Get(ctx context.Context, id string) (domain.Actionable, error) {
	state, err := a.Workspace(ctx)
	if err != nil {
		return domain.Actionable{}, err
	}
	item, ok := workspace.FindByID(state.Workspace, id)
	if !ok {
		return domain.Actionable{}, ErrNotFound
	}
	return item, nil
}

// Upsert inserts or merges an actionable and commits.
func (a App) Upsert(ctx context.Context, item domain.Actionable, actor domain.Role) (domain.Actionable, error) {
	now := a.now()
	state, err := a.Snapshots.Load(ctx, now)
	if err != nil {
		return domain.Actionable{}, err
	}
	ws := workspace.Upsert(state.Workspace, item, actor, now)
	if err := a.commit(ctx, state, ws, now); err != nil {
		return domain.Actionable{}, err
	}
	stored, _ := workspace.FindByID(ws, item.ID)
	return stored, nil
}

// Transition applies a status change through the engine. A rejection
// surfaces as RejectionError and nothing is persisted.
func (a App) Transition(ctx context.Context, id string, target domain.Status, actor domain.Role, res *engine.ResolutionInput) (domain.Actionable, error) {
	now := a.now()
	state, err := a.Snapshots.Load(ctx, now)
	if err != nil {
		return domain.Actionable{}, err
	}
	ws, result := workspace.TransitionByID(state.Workspace, id, target, actor, res, now)
	if !result.Ok {
		if result.Reason == workspace.ReasonNotFound {
			return domain.Actionable{}, ErrNotFound
		}
		return domain.Actionable{}, RejectionError{Reason: result.Reason}
	}
	if err := a.commit(ctx, state, ws, now); err != nil {
		return domain.Actionable{}, err
	}
	return result.Value, nil
}

// AssignResponsible sets the responsible party directly.
func (a App) AssignResponsible(ctx context.Context, id string, responsible domain.Role, actor domain.Role) (domain.Actionable, error) {
	now := a.now()
	state, err := a.Snapshots.Load(ctx, now)
	if err != nil {
		return domain.Actionable{}, err
	}
	ws, ok := workspace.SetResponsible(state.Workspace, id, responsible, actor, now)
	if !ok {
		return domain.Actionable{}, ErrNotFound
	}
	if err := a.commit(ctx, state, ws, now); err != nil {
		return domain.Actionable{}, err
	}
	item, _ := workspace.FindByID(ws, id)
	return item, nil
}

// SetDue sets the due policy directly.
func (a App) SetDue(ctx context.Context, id string, dueKind domain.DueKind, dueAt string, actor domain.Role) (domain.Actionable, error) {
	now := a.now()
	state, err := a.Snapshots.Load(ctx, now)
	if err != nil {
		return domain.Actionable{}, err
	}
	ws, ok := workspace.SetDue(state.Workspace, id, dueKind, dueAt, actor, now)
	if !ok {
		return domain.Actionable{}, ErrNotFound
	}
	if err := a.commit(ctx, state, ws, now); err != nil {
		return domain.Actionable{}, err
	}
	item, _ := workspace.FindByID(ws, id)
	return item, nil
}

// SyncDerivedTasks reconciles a recomputed derived set into the
// workspace and commits.
func (a App) SyncDerivedTasks(ctx context.Context, derived []domain.Actionable) (int, error) {
	now := a.now()
	state, err := a.Snapshots.Load(ctx, now)
	if err != nil {
		return 0, err
	}
	before := len(state.Workspace.Actionables)
	ws := workspace.SyncDerived(state.Workspace, derived)
	if err := a.commit(ctx, state, ws, now); err != nil {
		return 0, err
	}
	return len(ws.Actionables) - before, nil
}

// CreateDerivedTask builds one rule-generated task with configured SLA
// hours and reconciles it.
func (a App) CreateDerivedTask(ctx context.Context, in workspace.DerivedTaskInput) (domain.Actionable, error) {
	if in.SLAHours == 0 {
		in.SLAHours = a.Config.SLAHours(in.Severity)
	}
	task := workspace.NewDerivedTask(in, a.now())
	if _, err := a.SyncDerivedTasks(ctx, []domain.Actionable{task}); err != nil {
		return domain.Actionable{}, err
	}
	return a.Get(ctx, task.ID)
}

// ReplaceAll swaps the entire actionable collection. Used by bulk
// import flows; no audit events are synthesized.
func (a App) ReplaceAll(ctx context.Context, items []domain.Actionable) error {
	now := a.now()
	state, err := a.Snapshots.Load(ctx, now)
	if err != nil {
		return err
	}
	ws := state.Workspace
	ws.Actionables = append([]domain.Actionable{}, items...)
	return a.commit(ctx, state, ws, now)
}

// AuditTail returns the most recent workspace-level audit events,
// newest last. A non-positive limit returns everything.
func (a App) AuditTail(ctx context.Context, limit int) ([]domain.AuditEvent, error) {
	state, err := a.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	events := state.Workspace.Audit
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}
