package orchestrator

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"llamaproxy/internal/bridge"
	"llamaproxy/internal/logging"
	"llamaproxy/internal/sse"
	"llamaproxy/internal/synth"
	"llamaproxy/internal/types"
)

const endpointMessages = "/v1/messages"

// handleMessages implements the orchestrated pipeline for Anthropic
// Messages requests: bridge into ChatRequest, dispatch to the (OpenAI-only)
// upstream, apply fixes on the OpenAI-shaped response, bridge back to
// AnthropicMessage, then synthesize Anthropic SSE if the client asked for
// a stream.
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAnthropicError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}

	requestID := "req_" + uuid.NewString()
	log := h.log.WithRequestID(requestID)
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "request body too large or unreadable")
		return
	}

	var anthropicReq types.AnthropicRequest
	if err := json.Unmarshal(body, &anthropicReq); err != nil {
		writeAnthropicError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body")
		return
	}

	clientWantsStream := anthropicReq.Stream
	log = log.WithModel(anthropicReq.Model)

	chatReq, convErrs := bridge.AnthropicRequestToChat(anthropicReq)
	for _, cErr := range convErrs {
		log.Warn("request bridge: %v", cErr)
	}

	resp, err := h.upstream.ChatCompletion(r.Context(), chatReq)
	if err != nil {
		h.recordOutcome(endpointMessages, "error", time.Since(start))
		handleUpstreamError(w, err, log, anthropicGrammar)
		return
	}

	fixNames := h.appliedFixNames(resp)
	resp = h.registry.ApplyAll(resp, &chatReq, func(name string, ferr error) {
		log.Warn("fix %s skipped: %v", name, ferr)
	})

	anthropicResp, bridgeErrs := bridge.ChatResponseToAnthropic(*resp)
	for _, bErr := range bridgeErrs {
		log.Warn("response bridge: %v", bErr)
	}

	h.recordOutcome(endpointMessages, "success", time.Since(start))

	if clientWantsStream {
		h.respondAnthropicStream(w, &anthropicResp, log)
	} else {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(anthropicResp)
	}

	go h.collectAndSubmit(requestID, endpointMessages, anthropicReq.Model, clientWantsStream, resp, time.Since(start), fixNames)
}

func (h *Handler) respondAnthropicStream(w http.ResponseWriter, msg *types.AnthropicMessage, log logging.Logger) {
	writer := sse.NewWriter(w)
	if err := synth.AnthropicChunkStream(writer, msg, synth.DefaultTextChunkSize); err != nil {
		log.Warn("anthropic stream synthesis failed: %v", err)
	}
}
