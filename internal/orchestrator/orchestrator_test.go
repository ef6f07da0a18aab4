package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaproxy/internal/config"
	"llamaproxy/internal/fixes"
	"llamaproxy/internal/logging"
	"llamaproxy/internal/metrics"
	"llamaproxy/internal/types"
	"llamaproxy/internal/upstream"
)

func newTestRegistry() *fixes.Registry {
	r := fixes.NewRegistry()
	r.Register(&fixes.NullToolIndex{})
	r.Register(&fixes.ArgumentKeyRecovery{})
	r.Register(&fixes.DedupToolArguments{RemoveDuplicate: true})
	return r
}

func newTestHandler(t *testing.T, upstreamServer *httptest.Server) *Handler {
	t.Helper()
	client := upstream.NewClient(upstream.DefaultConfig(upstreamServer.URL))
	return NewHandler(config.Default(), client, newTestRegistry(), metrics.New(), nil, logging.New())
}

const brokenToolArgsBody = `{"id":"1","model":"m","choices":[{"index":0,"message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"write_file","arguments":"{\"content\":\"x\",\"filePath\":\"/a\",\"filePath\"/a\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":5,"completion_tokens":5,"total_tokens":10}}`

func TestDuplicateFilePathRepairNonStreaming(t *testing.T) {
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(brokenToolArgsBody))
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, endpointChatCompletions, strings.NewReader(`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":false}`))
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, `{"content":"x","filePath":"/a"}`, resp.Choices[0].Message.ToolCalls[0].Function.Arguments)
}

func TestNonStreamingResponseForwardedByteIdenticalWhenNoFixApplies(t *testing.T) {
	const cleanBody = `{"id":"1","model":"m","system_fingerprint":"fp_abc123","choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cleanBody))
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, endpointChatCompletions, strings.NewReader(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`))
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cleanBody, rec.Body.String())
}

func TestDuplicateFilePathRepairStreamingAnthropicEndpoint(t *testing.T) {
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(brokenToolArgsBody))
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	body := `{"model":"m","max_tokens":100,"messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, endpointMessages, strings.NewReader(body))
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var accumulated strings.Builder
	for _, block := range strings.Split(rec.Body.String(), "\n\n") {
		if !strings.HasPrefix(block, "event: content_block_delta") {
			continue
		}
		dataLine := strings.SplitN(block, "\n", 2)[1]
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data: ")), &ev))
		delta := ev["delta"].(map[string]interface{})
		if pj, ok := delta["partial_json"].(string); ok {
			accumulated.WriteString(pj)
		}
	}
	assert.Equal(t, `{"content":"x","filePath":"/a"}`, accumulated.String())
	assert.True(t, strings.Contains(rec.Body.String(), "message_stop"))
}

func TestEndpointPassThroughIsByteIdentical(t *testing.T) {
	var propsCalls int
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/props" {
			propsCalls++
			w.Write([]byte(`{"default_generation_settings":{"n_ctx":4096}}`))
			return
		}
		w.Write([]byte(`{"upstream":"verbatim"}`))
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/props", nil)
	h.Routes().ServeHTTP(rec, req)
	assert.Equal(t, `{"default_generation_settings":{"n_ctx":4096}}`, rec.Body.String())

	n, ok := h.upstream.FetchContextTotal(req.Context())
	require.True(t, ok)
	assert.Equal(t, 4096, n)
	assert.Equal(t, 1, propsCalls)
}

func TestAnthropicBridgePreservesToolResultOrdering(t *testing.T) {
	var gotMessages []types.ChatMessage
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotMessages = req.Messages
		w.Write([]byte(`{"id":"1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	body := `{
		"model": "m",
		"max_tokens": 100,
		"messages": [
			{"role": "user", "content": "do the thing"},
			{"role": "assistant", "content": [{"type":"tool_use","id":"toolu_A","name":"run","input":{}}]},
			{"role": "user", "content": [{"type":"tool_result","tool_use_id":"toolu_A","content":"42"}]}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, endpointMessages, strings.NewReader(body))
	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, gotMessages, 3)
	assert.Equal(t, "user", gotMessages[0].Role)
	assert.Equal(t, "assistant", gotMessages[1].Role)
	require.Len(t, gotMessages[1].ToolCalls, 1)
	assert.Equal(t, "toolu_A", gotMessages[1].ToolCalls[0].ID)
	assert.Equal(t, "tool", gotMessages[2].Role)
	assert.Equal(t, "toolu_A", gotMessages[2].ToolCallID)
	assert.Equal(t, "42", gotMessages[2].Content)
}

func TestHealthCheckDoesNotCallUpstream(t *testing.T) {
	var called bool
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.False(t, called)
}

func TestUpstreamHTTPErrorForwardedUnchanged(t *testing.T) {
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer upstreamServer.Close()

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, endpointChatCompletions, strings.NewReader(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`))
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, `{"error":"model overloaded"}`, rec.Body.String())
}

func TestUpstreamTransportErrorReturns502(t *testing.T) {
	upstreamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstreamServer.Close() // closed immediately: connections fail

	h := newTestHandler(t, upstreamServer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, endpointChatCompletions, strings.NewReader(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`))
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body openAIErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error.Message)
}
