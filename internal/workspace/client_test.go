package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lanread/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token() (string, error) { return s.token, s.err }

func newTestClient(t *testing.T, baseURL string, tokens TokenSource) *Client {
	t.Helper()
	logger := zerolog.Nop()
	return NewClient(config.WorkspaceConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5,
		RequestsPerSec: 1000,
		Burst:          1000,
	}, tokens, &logger)
}

func TestSearchSuccess(t *testing.T) {
	var gotAuth, gotContentType, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"id": "container-1", "object": "container"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok-1"})
	results, err := client.Search(context.Background(), "Walden", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "container-1", results[0].ID)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "/search", gotPath)
}

func TestMissingCredentialFailsFast(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{err: ErrNoCredential})
	_, err := client.Search(context.Background(), "q", nil)
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, 0, calls, "no network call without a credential")
}

func TestUnauthorizedFiresHook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "token revoked"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "stale"})
	var hookFired bool
	client.OnUnauthorized(func() { hookFired = true })

	err := client.AppendBlocks(context.Background(), "page-1", []Block{NewParagraphBlock("x")})
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, "token revoked", unauthorized.Message)
	assert.True(t, hookFired)
}

func TestRateLimitedParsesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	_, err := client.QueryContainer(context.Background(), "db-1", nil)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 7*time.Second, limited.RetryAfter)
}

func TestRateLimitedWithoutHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	_, err := client.Search(context.Background(), "q", nil)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, time.Duration(0), limited.RetryAfter)
}

func TestServerErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "upstream down"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	_, err := client.CreateCard(context.Background(), "db-1", TitleProperty("t"), nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadGateway, serverErr.StatusCode)
	assert.Equal(t, "upstream down", serverErr.Message)
}

func TestTransportErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	_, err := client.Search(context.Background(), "q", nil)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
}

func TestMalformedResponseIsPayloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	_, err := client.Search(context.Background(), "q", nil)
	var payloadErr *PayloadError
	require.ErrorAs(t, err, &payloadErr)
}

func TestCreateCardRequestShape(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/cards", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "page-1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	created, err := client.CreateCard(context.Background(), "db-1", map[string]interface{}{
		"Name": TitleProperty("Walden"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "page-1", created.ID)

	parent := body["parent"].(map[string]interface{})
	assert.Equal(t, "db-1", parent["container_id"])
}

func TestCreateContainerRequestShape(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/containers", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "db-1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	created, err := client.CreateContainer(context.Background(), "root-1", "Reading Annotations", map[string]interface{}{
		"Name": map[string]interface{}{"title": map[string]interface{}{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "db-1", created.ID)

	parent := body["parent"].(map[string]interface{})
	assert.Equal(t, "page_id", parent["type"])
	assert.Equal(t, "root-1", parent["page_id"])

	title := body["title"].([]interface{})
	require.Len(t, title, 1)
	text := title[0].(map[string]interface{})["text"].(map[string]interface{})
	assert.Equal(t, "Reading Annotations", text["content"])

	props := body["properties"].(map[string]interface{})
	assert.Contains(t, props, "Name")
}

func TestAppendBlocksUsesPatch(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, staticTokens{token: "tok"})
	err := client.AppendBlocks(context.Background(), "page-9", []Block{NewQuoteBlock("q")})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/blocks/page-9/children", path)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 12*time.Second, parseRetryAfter("12"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 20*time.Second)
}

func TestErrorsAreDistinct(t *testing.T) {
	var transport *TransportError
	err := error(&TransportError{Err: errors.New("timeout")})
	require.ErrorAs(t, err, &transport)

	var limited *RateLimitedError
	assert.False(t, errors.As(err, &limited))
}
