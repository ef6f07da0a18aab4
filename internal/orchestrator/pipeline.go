package orchestrator

import (
	"errors"
	"net/http"

	"llamaproxy/internal/apperrors"
	"llamaproxy/internal/logging"
)

// errorGrammar holds the error-body writer specific to one endpoint's
// native error shape, selected once per
// handler so the shared classification logic in handleUpstreamError never
// needs to know which endpoint is calling it.
type errorGrammar struct {
	writeError func(w http.ResponseWriter, status int, errType, message string)
}

var openAIGrammar = errorGrammar{writeError: writeOpenAIError}
var anthropicGrammar = errorGrammar{writeError: writeAnthropicError}

// handleUpstreamError classifies an error returned by upstream.ChatCompletion
// and writes the appropriate client-facing response, per spec's failure
// classification table. It always writes a response, so the caller must
// not write anything further.
func handleUpstreamError(w http.ResponseWriter, err error, log logging.Logger, g errorGrammar) {
	var parseErr *apperrors.ParseFailureError
	var httpErr *apperrors.UpstreamHTTPError

	switch {
	case errors.As(err, &parseErr):
		log.Warn("upstream payload failed to parse, forwarding verbatim: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(parseErr.Body)

	case errors.As(err, &httpErr):
		log.Warn("upstream returned error status %d", httpErr.Status)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpErr.Status)
		w.Write(httpErr.Body)

	case errors.Is(err, apperrors.ErrCancelled):
		log.Info("client disconnected before upstream responded")
		// No client left to answer; nothing further to write.

	case errors.Is(err, apperrors.ErrUpstreamTransport):
		log.Warn("upstream transport error: %v", err)
		g.writeError(w, http.StatusBadGateway, "upstream_error", "failed to reach upstream inference server")

	default:
		log.Error("unexpected upstream error: %v", err)
		g.writeError(w, http.StatusBadGateway, "upstream_error", "unexpected upstream error")
	}
}
