// Package repo persists workspace snapshots as whole JSON documents in
// the documents table. A snapshot is written and read as one unit,
// which keeps the workspace a single consistency boundary.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"caseline/internal/domain"
	"caseline/internal/migrate"
)

// Document names within a scope.
const (
	DocWorkspace  = "workspace:v2"
	DocIssues     = "issues:v1"
	DocScheduling = "scheduling:v1"
)

var ErrNotFound = errors.New("not found")

// Snapshots reads and writes scoped documents. Scope isolates one
// client matter; two scopes never share state.
type Snapshots struct {
	DB    *sql.DB
	Scope string
}

func (s Snapshots) key(name string) string {
	return fmt.Sprintf("%s/%s", s.Scope, name)
}

// GetDocument returns the raw payload for a named document in scope.
func (s Snapshots) GetDocument(ctx context.Context, name string) ([]byte, error) {
	var payload string
	err := s.DB.QueryRowContext(ctx, `SELECT payload FROM documents WHERE key=?`, s.key(name)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

// PutDocument upserts a named document in scope.
func (s Snapshots) PutDocument(ctx context.Context, name string, payload []byte, now string) error {
	if now == "" {
		now = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO documents(key,payload,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		s.key(name), string(payload), now)
	return err
}

// Load returns the current snapshot for the scope. A missing, corrupt,
// or old-version workspace document triggers the legacy projection:
// the issues:v1 and scheduling:v1 documents (either may be absent) are
// read and a fresh current-version envelope is built. Load never fails
// on bad stored data, only on database errors.
func (s Snapshots) Load(ctx context.Context, now string) (domain.PersistedState, error) {
	raw, err := s.GetDocument(ctx, DocWorkspace)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.PersistedState{}, err
	}
	if err == nil {
		var state domain.PersistedState
		if jsonErr := json.Unmarshal(raw, &state); jsonErr == nil && state.SchemaVersion == domain.SchemaVersion {
			return state, nil
		}
	}
	return s.migrated(ctx, raw, now)
}

func (s Snapshots) migrated(ctx context.Context, staleWorkspace []byte, now string) (domain.PersistedState, error) {
	issuesRaw, err := s.GetDocument(ctx, DocIssues)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.PersistedState{}, err
	}
	schedulingRaw, err := s.GetDocument(ctx, DocScheduling)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.PersistedState{}, err
	}
	state := domain.PersistedState{
		SchemaVersion: domain.SchemaVersion,
		Intake:        staleIntake(staleWorkspace),
		Workspace:     migrate.FromLegacy(issuesRaw, schedulingRaw, now),
	}
	return state, nil
}

// staleIntake salvages the opaque intake block from an old-version
// envelope so migration of the workspace does not discard it.
func staleIntake(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var probe struct {
		Intake json.RawMessage `json:"intake"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	return probe.Intake
}

// Save writes the snapshot in a single document upsert.
func (s Snapshots) Save(ctx context.Context, state domain.PersistedState, now string) error {
	state.SchemaVersion = domain.SchemaVersion
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.PutDocument(ctx, DocWorkspace, payload, now)
}
