package verifiers

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

// Client talks to the verifierd HTTP API. Digests are lower-case hex on
// the wire.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Identity   string
	Token      string
	AdminKey   string
}

type Verifier struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	HashAlg      string `json:"hash_alg"`
	ExpectedRoot string `json:"expected_root,omitempty"`
	Armed        bool   `json:"armed"`
	Version      int64  `json:"version"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type Proof struct {
	Siblings   []string `json:"siblings"`
	Directions []string `json:"directions"`
}

type VerifyInput struct {
	Leaf    string
	Root    string
	Proof   Proof
	HashAlg string
}

type VerifyResult struct {
	Valid        bool   `json:"valid"`
	ComputedRoot string `json:"computed_root"`
	HashAlg      string `json:"hash_alg"`
}

type SetRootResult struct {
	ID      string `json:"id"`
	Root    string `json:"root"`
	Version int64  `json:"version"`
}

type AuditEvent struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	ActorIDHash   string         `json:"actor_id_hash,omitempty"`
	Result        string         `json:"result"`
	ErrorCode     string         `json:"error_code,omitempty"`
	PrevEventHash string         `json:"prev_event_hash"`
	EventHash     string         `json:"event_hash"`
	CreatedAt     string         `json:"created_at"`
}

// AuditTrail is a verifier's audit events in seq order. ChainValid is the
// server's check of the hash chain over these events.
type AuditTrail struct {
	ID         string       `json:"id"`
	ChainValid bool         `json:"chain_valid"`
	Events     []AuditEvent `json:"events"`
}

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("verifierd: status %d", e.Status)
	}
	return fmt.Sprintf("verifierd: %s: %s", e.Code, e.Message)
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

// WithBearerToken sends token as the Authorization bearer credential.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.Token = strings.TrimSpace(token)
	}
}

// WithIdentity sets the X-Identity header, honored only by servers that
// run without authentication.
func WithIdentity(identity string) Option {
	return func(c *Client) {
		c.Identity = strings.TrimSpace(identity)
	}
}

func WithAdminKey(key string) Option {
	return func(c *Client) {
		c.AdminKey = key
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Verify(ctx context.Context, input VerifyInput) (VerifyResult, error) {
	body := map[string]any{
		"leaf":       input.Leaf,
		"root":       input.Root,
		"siblings":   nonNil(input.Proof.Siblings),
		"directions": nonNil(input.Proof.Directions),
	}
	if input.HashAlg != "" {
		body["hash_alg"] = input.HashAlg
	}
	var out VerifyResult
	err := c.do(ctx, http.MethodPost, "/v1/verify", body, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context) (Verifier, error) {
	var out Verifier
	err := c.do(ctx, http.MethodPost, "/v1/verifiers", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (Verifier, error) {
	var out Verifier
	err := c.do(ctx, http.MethodGet, verifierPath(id, ""), nil, &out)
	return out, err
}

func (c *Client) SetExpectedRoot(ctx context.Context, id, root string) (SetRootResult, error) {
	var out SetRootResult
	err := c.do(ctx, http.MethodPut, verifierPath(id, "/root"), map[string]string{"root": root}, &out)
	return out, err
}

func (c *Client) CheckProof(ctx context.Context, id, leaf string, proof Proof) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	err := c.do(ctx, http.MethodPost, verifierPath(id, "/check"), map[string]any{
		"leaf":       leaf,
		"siblings":   nonNil(proof.Siblings),
		"directions": nonNil(proof.Directions),
	}, &out)
	return out.Valid, err
}

func (c *Client) AuditTrail(ctx context.Context, id string) (AuditTrail, error) {
	var out AuditTrail
	err := c.do(ctx, http.MethodGet, verifierPath(id, "/audit"), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	if c == nil {
		return fmt.Errorf("verifiers client is nil")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("verifierd base URL is required")
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.Identity != "" {
		req.Header.Set("X-Identity", c.Identity)
	}
	if c.AdminKey != "" {
		req.Header.Set("X-Admin-Key", c.AdminKey)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func verifierPath(id, suffix string) string {
	return "/v1/verifiers/" + url.PathEscape(id) + suffix
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
