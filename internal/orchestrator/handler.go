// Package orchestrator wires together upstream dispatch, the fix
// registry, the format bridge and the synthesis engine into the
// per-request pipeline described for the inbound HTTP surface: classify,
// capture client intent, force non-streaming upstream, dispatch, parse
// tolerantly, apply fixes, bridge/synthesize, collect metrics, respond.
//
// Grounded on the teacher's proxy.Handler (proxy/handler.go): one struct
// holding its collaborators, one method per inbound route, panic
// containment at the HTTP boundary the way tingly-dev-tingly-box's
// streaming code recovers around its per-event work.
package orchestrator

import (
	"encoding/json"
	"net/http"

	"llamaproxy/internal/config"
	"llamaproxy/internal/fixes"
	"llamaproxy/internal/logging"
	"llamaproxy/internal/metrics"
	"llamaproxy/internal/upstream"
)

// Handler holds every collaborator one inbound request touches.
type Handler struct {
	cfg      *config.Config
	upstream *upstream.Client
	registry *fixes.Registry
	metrics  *metrics.Metrics
	queue    *metrics.Queue
	log      logging.Logger
}

// NewHandler builds a Handler. queue may be nil, in which case each
// request's RequestMetrics are still built but never handed to an
// exporter (e.g. in tests that don't care about exporters).
func NewHandler(cfg *config.Config, client *upstream.Client, registry *fixes.Registry, m *metrics.Metrics, queue *metrics.Queue, log logging.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		upstream: client,
		registry: registry,
		metrics:  m,
		queue:    queue,
		log:      log.WithComponent(logging.ComponentOrchestrator),
	}
}

// Routes builds the complete inbound HTTP surface: the two orchestrated
// endpoints, the proxy-local health check, the byte pass-through paths,
// and a catch-all pass-through for anything else — per the classify step,
// unknown paths still reach the upstream rather than 404ing locally.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", h.wrap(h.handleChatCompletions))
	mux.HandleFunc("/v1/messages", h.wrap(h.handleMessages))
	mux.HandleFunc("/health", h.wrap(h.handleHealth))
	if h.metrics != nil {
		mux.Handle("/proxy/metrics", h.metrics.Handler())
	}
	mux.HandleFunc("/", h.wrap(h.handlePassThrough))
	return mux
}

// handleHealth reports this proxy's own liveness plus the upstream health
// snapshot (internal/upstream.Health), never calling the upstream itself —
// the snapshot is built entirely from past ChatCompletion outcomes.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		Status   string            `json:"status"`
		Upstream upstream.Snapshot `json:"upstream"`
	}{
		Status:   "ok",
		Upstream: h.upstream.Health().Snapshot(),
	})
}

// handlePassThrough covers every GET path the client is meant to see
// unmodified: /props, /slots, /v1/health, /v1/models, /metrics, and any
// path this proxy does not recognize by name (classify step 1's "Unknown
// -> proxy-pass-through" fallback).
func (h *Handler) handlePassThrough(w http.ResponseWriter, r *http.Request) {
	h.upstream.PassThrough(w, r)
}

// wrap applies panic containment around every registered handler, the
// HTTP-boundary equivalent of tingly-dev-tingly-box's
// defer func() { recover() ... }() around one stream event, generalized
// here to one whole request. No user-facing request path may bring the
// process down.
func (h *Handler) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithField("path", r.URL.Path).Error("panic recovered: %v", rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}
