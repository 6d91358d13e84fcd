package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"caseline/internal/app"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/workspace"
)

// Config for the HTTP API handler.
type Config struct {
	App      app.App
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"transition_rejected"`
	Message string         `json:"message" example:"Transition not allowed for role."`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Caseline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.App.Config))
	hcfg := huma.DefaultConfig("Caseline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerWorkspace(group, cfg.App)
	registerActionables(group, cfg.App)
	registerTransitions(group, cfg.App)
	registerDerived(group, cfg.App)
	registerAudit(group, cfg.App)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var re app.RejectionError
	if errors.As(err, &re) {
		return newAPIError(http.StatusUnprocessableEntity, "transition_rejected", re.Reason, nil)
	}
	if errors.Is(err, app.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(swaggerHTML(basePath)))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Caseline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerWorkspace(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspace",
		Summary:     "Full workspace snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.PersistedState `json:"body"`
	}, error) {
		if _, authErr := roleFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		state, err := a.Workspace(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PersistedState `json:"body"`
		}{Body: state}, nil
	})
}

type actionablePath struct {
	ID string `path:"id"`
}

type actionableResponse struct {
	Body domain.Actionable `json:"body"`
}

func registerActionables(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actionables",
		Method:      http.MethodGet,
		Path:        "/actionables",
		Summary:     "List actionables",
	}, func(ctx context.Context, input *struct {
		Kind        string `query:"kind"`
		Status      string `query:"status"`
		Responsible string `query:"responsible"`
		Open        bool   `query:"open"`
	}) (*struct {
		Body []domain.Actionable `json:"body"`
	}, error) {
		if _, authErr := roleFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := a.List(ctx, app.ListFilters{
			Kind:        domain.Kind(input.Kind),
			Status:      domain.Status(input.Status),
			Responsible: domain.Role(input.Responsible),
			Open:        input.Open,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Actionable{}
		}
		return &struct {
			Body []domain.Actionable `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-actionable",
		Method:      http.MethodGet,
		Path:        "/actionables/{id}",
		Summary:     "Get actionable",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actionablePath) (*actionableResponse, error) {
		if _, authErr := roleFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		item, err := a.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &actionableResponse{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-actionable",
		Method:      http.MethodPut,
		Path:        "/actionables/{id}",
		Summary:     "Insert or merge actionable",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body upsertActionableBody `json:"body"`
	}) (*actionableResponse, error) {
		role, authErr := roleFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Kind == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "kind is required", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		kind := domain.Kind(input.Body.Kind)
		status := domain.Status(input.Body.Status)
		if status == "" {
			status = domain.DefaultStatusForKind(kind)
		}
		if !domain.IsStatusForKind(kind, status) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", engine.ReasonInvalidStatus, nil)
		}
		existing, err := a.Get(ctx, input.ID)
		isNew := errors.Is(err, app.ErrNotFound)
		if err != nil && !isNew {
			return nil, handleError(err)
		}
		item := existing
		if isNew {
			now := a.Now()
			severity := domain.Severity(input.Body.Severity)
			if severity == "" {
				severity = domain.SeverityNormal
			}
			item = domain.Actionable{
				ID:          input.ID,
				Kind:        kind,
				Owner:       role,
				Responsible: domain.DeriveResponsible(kind, status, role),
				Severity:    severity,
				DueKind:     domain.DueSLA,
				Status:      status,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		item.Title = input.Body.Title
		item.Description = input.Body.Description
		if input.Body.Severity != "" {
			item.Severity = domain.Severity(input.Body.Severity)
		}
		if len(input.Body.Links) > 0 {
			item.Links = input.Body.Links
		}
		stored, err := a.Upsert(ctx, item, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &actionableResponse{Body: stored}, nil
	})
}

// upsertActionableBody carries the caller-settable fields of an
// actionable. Status only applies on insert; merges never change
// status outside the transition engine.
type upsertActionableBody struct {
	Kind        string               `json:"kind"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Severity    string               `json:"severity,omitempty"`
	Status      string               `json:"status,omitempty"`
	Links       []domain.ContextLink `json:"links,omitempty"`
}

type transitionRequest struct {
	Target     domain.Status           `json:"target"`
	Resolution *engine.ResolutionInput `json:"resolution,omitempty"`
}

func registerTransitions(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-actionable",
		Method:      http.MethodPost,
		Path:        "/actionables/{id}/transition",
		Summary:     "Apply a status transition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body transitionRequest `json:"body"`
	}) (*actionableResponse, error) {
		role, authErr := roleFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Target == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "target is required", nil)
		}
		item, err := a.Transition(ctx, input.ID, input.Body.Target, role, input.Body.Resolution)
		if err != nil {
			return nil, handleError(err)
		}
		return &actionableResponse{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-actionable",
		Method:      http.MethodPost,
		Path:        "/actionables/{id}/assign",
		Summary:     "Set the responsible party",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Responsible domain.Role `json:"responsible"`
		} `json:"body"`
	}) (*actionableResponse, error) {
		role, authErr := roleFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Responsible == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "responsible is required", nil)
		}
		item, err := a.AssignResponsible(ctx, input.ID, input.Body.Responsible, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &actionableResponse{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-actionable-due",
		Method:      http.MethodPost,
		Path:        "/actionables/{id}/due",
		Summary:     "Set the due policy",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			DueKind domain.DueKind `json:"due_kind"`
			DueAt   string         `json:"due_at,omitempty"`
		} `json:"body"`
	}) (*actionableResponse, error) {
		role, authErr := roleFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		switch input.Body.DueKind {
		case domain.DueSLA, domain.DueTarget:
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "due_kind must be sla or target", nil)
		}
		item, err := a.SetDue(ctx, input.ID, input.Body.DueKind, input.Body.DueAt, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &actionableResponse{Body: item}, nil
	})
}

func registerDerived(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-derived",
		Method:      http.MethodPost,
		Path:        "/derived/sync",
		Summary:     "Reconcile rule-generated actionables",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Actionables []domain.Actionable `json:"actionables"`
		} `json:"body"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if _, authErr := roleFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		inserted, err := a.SyncDerivedTasks(ctx, input.Body.Actionables)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"inserted": inserted}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-derived-task",
		Method:        http.MethodPost,
		Path:          "/derived/tasks",
		Summary:       "Create one rule-generated task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID          string               `json:"id"`
			Title       string               `json:"title"`
			Description string               `json:"description,omitempty"`
			Severity    domain.Severity      `json:"severity,omitempty"`
			Links       []domain.ContextLink `json:"links,omitempty"`
		} `json:"body"`
	}) (*actionableResponse, error) {
		if _, authErr := roleFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ID == "" || input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id and title are required", nil)
		}
		severity := input.Body.Severity
		if severity == "" {
			severity = domain.SeverityNormal
		}
		item, err := a.CreateDerivedTask(ctx, workspace.DerivedTaskInput{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Severity:    severity,
			Links:       input.Body.Links,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &actionableResponse{Body: item}, nil
	})
}

func registerAudit(api huma.API, a app.App) {
	huma.Register(api, huma.Operation{
		OperationID: "audit-tail",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Recent workspace audit events",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.AuditEvent `json:"body"`
	}, error) {
		if _, authErr := roleFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		events, err := a.AuditTail(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if events == nil {
			events = []domain.AuditEvent{}
		}
		return &struct {
			Body []domain.AuditEvent `json:"body"`
		}{Body: events}, nil
	})
}
