package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaproxy/internal/types"
)

func TestChatCompletionForcesStreamFalse(t *testing.T) {
	var gotStream bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotStream = req.Stream
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(srv.URL))
	resp, err := c.ChatCompletion(context.Background(), types.ChatRequest{Model: "m", Stream: true})
	require.NoError(t, err)
	assert.False(t, gotStream)
	assert.Equal(t, "hi", resp.Choices[0].Message.Content)
}

func TestChatCompletionUpstreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(srv.URL))
	_, err := c.ChatCompletion(context.Background(), types.ChatRequest{Model: "m"})
	require.Error(t, err)
}

func TestFetchContextTotalCachesWriteOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"default_generation_settings":{"n_ctx":8192}}`))
	}))
	defer srv.Close()

	c := NewClient(DefaultConfig(srv.URL))
	n, ok := c.FetchContextTotal(context.Background())
	require.True(t, ok)
	assert.Equal(t, 8192, n)

	n2, ok2 := c.FetchContextTotal(context.Background())
	require.True(t, ok2)
	assert.Equal(t, 8192, n2)
	assert.Equal(t, 1, calls)
}

func TestPassThroughCopiesBodyAndStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	c := NewClient(DefaultConfig(upstream.URL))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	c.PassThrough(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Equal(t, `{"data":[]}`, rec.Body.String())
}

func TestHopByHopHeadersNeverForwarded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Connection"))
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	c := NewClient(DefaultConfig(upstream.URL))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()
	c.PassThrough(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
