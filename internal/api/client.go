// Package api is the HTTP client for the guardrails backend. It covers the
// four endpoints the client consumes: POST /chat, GET/POST /config,
// GET /health and GET /metrics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jask/railchat/internal/session"
)

// GuardrailsPayload mirrors the backend's GuardrailsConfigRequest. It is
// attached to a chat request only while guardrails are enabled; omission
// means guardrails-off on the backend side.
type GuardrailsPayload struct {
	Enabled     bool            `json:"enabled"`
	MonitorOnly bool            `json:"monitor_only"`
	Toggles     map[string]bool `json:"toggles"`
}

// HistoryMessage is one prior turn sent as context.
type HistoryMessage struct {
	Role    string `json:"role"` // user | assistant
	Content string `json:"content"`
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	SessionID    string             `json:"session_id"`
	UserMessage  string             `json:"user_message"`
	AgentProfile string             `json:"agent_profile,omitempty"`
	History      []HistoryMessage   `json:"history,omitempty"`
	Guardrails   *GuardrailsPayload `json:"guardrails,omitempty"`
}

// ChatResponse is the POST /chat reply. Audit fields reuse the session
// package's wire spellings.
type ChatResponse struct {
	SessionID        string                  `json:"session_id,omitempty"`
	MessageID        string                  `json:"message_id,omitempty"`
	AssistantMessage string                  `json:"assistant_message"`
	Status           string                  `json:"status"` // ok | refused | escalated | ...
	TraceID          string                  `json:"trace_id"`
	ToolCalls        []session.ToolCall      `json:"tool_calls,omitempty"`
	RailEvents       []session.RailEvent     `json:"rail_events,omitempty"`
	GeneratedRails   *session.GeneratedRails `json:"generated_rails,omitempty"`
}

// ProviderInfo is one entry of the backend's available_providers list.
type ProviderInfo struct {
	ID     string   `json:"id"`
	Models []string `json:"models"`
}

// RuntimeConfig is the backend's runtime configuration, returned by both
// GET and POST /config.
type RuntimeConfig struct {
	GuardrailsBackend  string         `json:"guardrails_backend"`
	LLMProvider        string         `json:"llm_provider"`
	LLMModel           string         `json:"llm_model"`
	AvailableBackends  []string       `json:"available_backends"`
	AvailableProviders []ProviderInfo `json:"available_providers"`
}

// ConfigUpdate is a partial POST /config body; nil fields are left as-is
// by the backend.
type ConfigUpdate struct {
	GuardrailsBackend *string `json:"guardrails_backend,omitempty"`
	LLMProvider       *string `json:"llm_provider,omitempty"`
	LLMModel          *string `json:"llm_model,omitempty"`
}

// HealthStatus is the GET /health reply, passed through uninterpreted.
type HealthStatus struct {
	Status            string `json:"status"`
	Env               string `json:"env"`
	LLMProvider       string `json:"llm_provider"`
	LLMModel          string `json:"llm_model"`
	GuardrailsBackend string `json:"guardrails_backend"`
	DynamicRails      bool   `json:"dynamic_rails"`
}

// APIError carries a non-2xx backend reply. Detail is the parsed {detail}
// payload when the body had one; Body is the raw text either way.
type APIError struct {
	StatusCode int
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// Client talks to one backend instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the backend at baseURL. A zero timeout
// means no client-side deadline: a hanging request stays in flight until
// the caller cancels its context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Chat sends one conversation turn. Cancellation of ctx is returned as
// context.Canceled, not wrapped in an *APIError.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.postJSON(ctx, "/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConfig fetches the backend's runtime configuration.
func (c *Client) GetConfig(ctx context.Context) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := c.getJSON(ctx, "/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetConfig applies a partial runtime-config update and returns the full
// resulting configuration.
func (c *Client) SetConfig(ctx context.Context, upd ConfigUpdate) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := c.postJSON(ctx, "/config", upd, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Health fetches the backend health status.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var h HealthStatus
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Metrics fetches the raw metrics text.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newAPIError(resp.StatusCode, body)
	}
	return string(body), nil
}

// ---------------------------------------------------------------------------
// Request plumbing
// ---------------------------------------------------------------------------

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(ctx, httpReq, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(ctx, httpReq, out)
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransportErr(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyTransportErr surfaces user-initiated aborts as context.Canceled
// so the orchestrator can tell cancellation from transport failure.
func classifyTransportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return fmt.Errorf("backend request: %w", err)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Detail = payload.Detail
	}
	return apiErr
}
