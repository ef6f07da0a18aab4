// Package upstream talks to the single local inference server this proxy
// sits in front of: it builds and dispatches the OpenAI Chat Completions
// request the orchestrator prepared, and separately offers a byte-for-byte
// pass-through path for the handful of endpoints the client is allowed to
// see unmodified.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"llamaproxy/internal/apperrors"
	"llamaproxy/internal/types"
)

// Client dispatches requests to one inference server base URL.
type Client struct {
	BaseURL string
	http    *http.Client
	cache   *ContextCache
	health  *Health
}

// Config controls the pooled HTTP client's dial and request timeouts.
type Config struct {
	BaseURL           string
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
}

// DefaultConfig mirrors the teacher's proxyToProviderEndpoint defaults:
// a short dial timeout and a generous end-to-end request timeout, since a
// local model's full non-streaming generation can run long.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Minute,
	}
}

// NewClient builds a pooled client against cfg.BaseURL. The underlying
// *http.Client is built once and reused for every request, matching the
// connection-pooling idiom the teacher's transport-per-request code does
// NOT follow (it built a fresh client per call) — since spec.md has a
// single fixed upstream instead of per-request endpoint selection, pooling
// a single client is the fitting generalization here rather than carrying
// that inefficiency forward.
func NewClient(cfg Config) *Client {
	return &Client{
		BaseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectionTimeout,
				}).DialContext,
			},
		},
		cache:  NewContextCache(),
		health: NewHealth(),
	}
}

// Health returns the client's upstream health tracker, read by the
// proxy-local health endpoint.
func (c *Client) Health() *Health {
	return c.health
}

// hopByHopHeaders lists headers that are connection-specific and must
// never be forwarded verbatim in either direction, per RFC 7230 §6.1.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid upstream base url: %v", apperrors.ErrUpstreamTransport, err)
	}
	u.Path = joinPath(u.Path, path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func joinPath(base, p string) string {
	if base == "" {
		return p
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	if len(p) == 0 || p[0] != '/' {
		p = "/" + p
	}
	return base + p
}

// ChatCompletion forces stream=false on the outbound copy of req and
// issues it against {BaseURL}/v1/chat/completions, returning the fully
// buffered response. The caller's req is never mutated; a shallow copy is
// re-marshaled with Stream cleared so the client's own streaming
// preference survives untouched for the synthesis stage to read later.
func (c *Client) ChatCompletion(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	outbound := req
	outbound.Stream = false

	body, err := json.Marshal(outbound)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding chat request: %v", apperrors.ErrClientError, err)
	}

	target, err := c.buildURL("/v1/chat/completions", nil)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building upstream request: %v", apperrors.ErrUpstreamTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrCancelled, ctx.Err())
		}
		c.health.RecordFailure(err.Error())
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstreamTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.health.RecordFailure(err.Error())
		return nil, fmt.Errorf("%w: reading upstream body: %v", apperrors.ErrUpstreamTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.health.RecordFailure(fmt.Sprintf("upstream status %d", resp.StatusCode))
		return nil, &apperrors.UpstreamHTTPError{Status: resp.StatusCode, Body: respBody}
	}

	var chatResp types.ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		c.health.RecordFailure("upstream response failed to parse")
		return nil, &apperrors.ParseFailureError{Body: respBody}
	}
	chatResp.RawBody = respBody
	c.health.RecordSuccess()
	return &chatResp, nil
}

// PassThrough forwards r unchanged to {BaseURL}{r.URL.Path} and copies the
// upstream's status, headers, and body straight through, for the endpoints
// the client is meant to see verbatim (/props, /slots, /v1/health,
// /v1/models, /metrics). The body bytes are never altered; a successful
// /props body is additionally decoded for n_ctx, which is stored in the
// context cache so FetchContextTotal needs no second upstream call.
func (c *Client) PassThrough(w http.ResponseWriter, r *http.Request) {
	target, err := c.buildURL(r.URL.Path, r.URL.Query())
	if err != nil {
		http.Error(w, "bad upstream configuration", http.StatusBadGateway)
		return
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusBadGateway)
		return
	}
	copyHeaders(outReq.Header, r.Header)

	resp, err := c.http.Do(outReq)
	if err != nil {
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if r.URL.Path == "/props" && resp.StatusCode == http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		w.Write(body)
		var props struct {
			DefaultGenerationSettings struct {
				NCtx int `json:"n_ctx"`
			} `json:"default_generation_settings"`
		}
		if json.Unmarshal(body, &props) == nil && props.DefaultGenerationSettings.NCtx > 0 {
			c.cache.Set(c.BaseURL, props.DefaultGenerationSettings.NCtx)
		}
		return
	}
	io.Copy(w, resp.Body)
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if hopByHopHeaders[name] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// FetchContextTotal returns the upstream's configured context window size
// in tokens, consulting the write-once cache before issuing a GET /props.
func (c *Client) FetchContextTotal(ctx context.Context) (int, bool) {
	if n, ok := c.cache.Get(c.BaseURL); ok {
		return n, true
	}

	target, err := c.buildURL("/props", nil)
	if err != nil {
		return 0, false
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var props struct {
		DefaultGenerationSettings struct {
			NCtx int `json:"n_ctx"`
		} `json:"default_generation_settings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&props); err != nil {
		return 0, false
	}
	if props.DefaultGenerationSettings.NCtx <= 0 {
		return 0, false
	}

	c.cache.Set(c.BaseURL, props.DefaultGenerationSettings.NCtx)
	return props.DefaultGenerationSettings.NCtx, true
}
