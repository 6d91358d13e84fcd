package caselinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Caseline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Actionable represents the API actionable model (partial).
type Actionable struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Title       string         `json:"title"`
	Status      string         `json:"status"`
	Responsible string         `json:"responsible"`
	Severity    string         `json:"severity"`
	DueKind     string         `json:"due_kind"`
	DueAt       string         `json:"due_at,omitempty"`
	Resolution  map[string]any `json:"resolution,omitempty"`
	UpdatedAt   string         `json:"updated_at"`
}

// AuditEvent represents a workspace audit entry.
type AuditEvent struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorRole  string         `json:"actor_role"`
	Action     string         `json:"action"`
	From       any            `json:"from,omitempty"`
	To         any            `json:"to,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	At         string         `json:"at"`
}

// Resolution is the caller-supplied part of a terminal transition.
type Resolution struct {
	Outcome    string `json:"outcome,omitempty"`
	ReasonCode string `json:"resolution_reason_code,omitempty"`
	Note       string `json:"note,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListActionables returns actionables, optionally filtered by kind.
func (c *Client) ListActionables(ctx context.Context, kind string) ([]Actionable, error) {
	endpoint := "v0/actionables"
	if kind != "" {
		endpoint = fmt.Sprintf("%s?kind=%s", endpoint, url.QueryEscape(kind))
	}
	var resp []Actionable
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetActionable fetches one actionable by id.
func (c *Client) GetActionable(ctx context.Context, id string) (Actionable, error) {
	var resp Actionable
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/actionables/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Transition applies a status change. A nil resolution is fine for
// non-terminal targets.
func (c *Client) Transition(ctx context.Context, id, target string, res *Resolution) (Actionable, error) {
	body := map[string]any{"target": target}
	if res != nil {
		body["resolution"] = res
	}
	var resp Actionable
	endpoint := fmt.Sprintf("v0/actionables/%s/transition", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Assign sets the responsible party.
func (c *Client) Assign(ctx context.Context, id, responsible string) (Actionable, error) {
	var resp Actionable
	endpoint := fmt.Sprintf("v0/actionables/%s/assign", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"responsible": responsible}, &resp)
	return resp, err
}

// SetDue sets the due policy.
func (c *Client) SetDue(ctx context.Context, id, dueKind, dueAt string) (Actionable, error) {
	var resp Actionable
	endpoint := fmt.Sprintf("v0/actionables/%s/due", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"due_kind": dueKind, "due_at": dueAt}, &resp)
	return resp, err
}

// AuditTail returns recent workspace audit events.
func (c *Client) AuditTail(ctx context.Context, limit int) ([]AuditEvent, error) {
	endpoint := "v0/audit"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []AuditEvent
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
