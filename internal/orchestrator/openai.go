package orchestrator

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"llamaproxy/internal/logging"
	"llamaproxy/internal/sse"
	"llamaproxy/internal/synth"
	"llamaproxy/internal/types"
)

const endpointChatCompletions = "/v1/chat/completions"

// handleChatCompletions implements the orchestrated pipeline for native
// OpenAI Chat Completions requests: read, force non-streaming upstream,
// apply fixes, synthesize a stream back if the client asked for one.
func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOpenAIError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}

	requestID := "req_" + uuid.NewString()
	log := h.log.WithRequestID(requestID)
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "request body too large or unreadable")
		return
	}

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeOpenAIError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body")
		return
	}

	clientWantsStream := req.Stream
	log = log.WithModel(req.Model)

	resp, err := h.upstream.ChatCompletion(r.Context(), req)
	if err != nil {
		h.recordOutcome(endpointChatCompletions, "error", time.Since(start))
		handleUpstreamError(w, err, log, openAIGrammar)
		return
	}

	fixNames := h.appliedFixNames(resp)
	resp = h.registry.ApplyAll(resp, &req, func(name string, ferr error) {
		log.Warn("fix %s skipped: %v", name, ferr)
	})

	h.recordOutcome(endpointChatCompletions, "success", time.Since(start))

	if clientWantsStream {
		h.respondOpenAIStream(w, resp, log)
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if len(fixNames) == 0 && resp.RawBody != nil {
			// No fix touched this response: forward the upstream body
			// verbatim rather than re-marshaling, so the client sees a
			// byte-identical response (spec's non-streaming transparency
			// requirement) instead of one reshaped by struct field order,
			// omitempty, or a dropped unknown field.
			w.Write(resp.RawBody)
		} else {
			json.NewEncoder(w).Encode(resp)
		}
	}

	go h.collectAndSubmit(requestID, endpointChatCompletions, req.Model, clientWantsStream, resp, time.Since(start), fixNames)
}

func (h *Handler) respondOpenAIStream(w http.ResponseWriter, resp *types.ChatResponse, log logging.Logger) {
	writer := sse.NewWriter(w)
	if err := synth.OpenAIChunkStream(writer, resp, resp.ID, time.Now().Unix(), synth.DefaultTextChunkSize); err != nil {
		log.Warn("openai stream synthesis failed: %v", err)
	}
}

func (h *Handler) maxBodyBytes() int64 {
	if h.cfg != nil && h.cfg.Server.MaxBodyBytes > 0 {
		return h.cfg.Server.MaxBodyBytes
	}
	return 10 << 20
}

func (h *Handler) recordOutcome(endpoint, outcome string, d time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	h.metrics.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}
