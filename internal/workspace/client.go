package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"lanread/internal/config"
	"lanread/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TokenSource supplies the bearer credential for outbound calls. It must
// return ErrNoCredential when no credential is available.
type TokenSource interface {
	Token() (string, error)
}

// Object is a generic remote entity; only the id is interpreted locally,
// the rest is carried opaquely.
type Object struct {
	ID         string                     `json:"id"`
	ObjectType string                     `json:"object"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type listResponse struct {
	Results []Object `json:"results"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client is a stateless HTTP client for the workspace document service.
// Every call resolves a credential immediately before sending and fails
// fast without touching the network when none is available.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	limiter        *rate.Limiter
	logger         zerolog.Logger
	onUnauthorized func()
}

func NewClient(cfg config.WorkspaceConfig, tokens TokenSource, logger *zerolog.Logger) *Client {
	timeout := cfg.RequestTimeoutDuration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 3
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 3
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger.With().Str("component", "workspace-client").Logger(),
	}
}

// OnUnauthorized registers a hook fired once per 401 response, before the
// error is returned to the caller.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// Search queries the workspace for containers matching a free-text query.
func (c *Client) Search(ctx context.Context, query string, filter map[string]interface{}) ([]Object, error) {
	body := map[string]interface{}{"query": query}
	if filter != nil {
		body["filter"] = filter
	}
	var out listResponse
	if err := c.do(ctx, http.MethodPost, "/search", "search", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CreateContainer creates a container under a parent page with a typed
// property schema.
func (c *Client) CreateContainer(ctx context.Context, parentID, title string, schema map[string]interface{}) (*Object, error) {
	body := map[string]interface{}{
		"parent": map[string]interface{}{"type": "page_id", "page_id": parentID},
		"title": []interface{}{
			map[string]interface{}{
				"type": "text",
				"text": map[string]interface{}{"content": title},
			},
		},
		"properties": schema,
	}
	var out Object
	if err := c.do(ctx, http.MethodPost, "/containers", "create_container", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryContainer filters a container's cards, typically by idempotency key.
func (c *Client) QueryContainer(ctx context.Context, containerID string, filter map[string]interface{}) ([]Object, error) {
	body := map[string]interface{}{}
	if filter != nil {
		body["filter"] = filter
	}
	var out listResponse
	path := fmt.Sprintf("/containers/%s/query", containerID)
	if err := c.do(ctx, http.MethodPost, path, "query_container", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CreateCard creates a card under a container with properties and initial
// children blocks.
func (c *Client) CreateCard(ctx context.Context, containerID string, properties map[string]interface{}, children []Block) (*Object, error) {
	body := map[string]interface{}{
		"parent":     map[string]interface{}{"type": "container_id", "container_id": containerID},
		"properties": properties,
	}
	if len(children) > 0 {
		body["children"] = children
	}
	var out Object
	if err := c.do(ctx, http.MethodPost, "/cards", "create_card", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendBlocks appends children blocks to an existing block or card. This
// call is not idempotent: retrying after an ambiguous failure can duplicate
// blocks remotely.
func (c *Client) AppendBlocks(ctx context.Context, targetID string, children []Block) error {
	body := map[string]interface{}{"children": children}
	path := fmt.Sprintf("/blocks/%s/children", targetID)
	return c.do(ctx, http.MethodPatch, path, "append_blocks", body, nil)
}

func (c *Client) do(ctx context.Context, method, path, operation string, body, out interface{}) error {
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		metrics.IncRemoteRequest(operation, "no_credential")
		return ErrNoCredential
	}

	raw, err := json.Marshal(body)
	if err != nil {
		metrics.IncRemoteRequest(operation, "encode_error")
		return &PayloadError{Err: fmt.Errorf("encode request: %w", err)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.IncRemoteRequest(operation, "canceled")
		return &TransportError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		metrics.IncRemoteRequest(operation, "encode_error")
		return &PayloadError{Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", operation).Str("request_id", requestID).Msg("Request failed")
		metrics.IncRemoteRequest(operation, "transport_error")
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if err := c.classifyStatus(resp, operation, requestID); err != nil {
		return err
	}

	metrics.IncRemoteRequest(operation, "ok")
	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.IncRemoteRequest(operation, "decode_error")
		return &PayloadError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) classifyStatus(resp *http.Response, operation, requestID string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	message := readErrorMessage(resp.Body)
	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("operation", operation).
		Str("request_id", requestID).
		Str("message", message).
		Msg("Workspace API error")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		metrics.IncRemoteRequest(operation, "unauthorized")
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &UnauthorizedError{Message: message}
	case http.StatusTooManyRequests:
		metrics.IncRemoteRequest(operation, "rate_limited")
		return &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		metrics.IncRemoteRequest(operation, "server_error")
		return &ServerError{StatusCode: resp.StatusCode, Message: message}
	}
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ""
	}
	return parsed.Message
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
