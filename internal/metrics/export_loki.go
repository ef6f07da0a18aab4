package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"llamaproxy/internal/logging"
	"llamaproxy/internal/types"
)

// LokiExporter pushes each RequestMetrics to Loki's HTTP push API as a
// single structured log line, a direct generalization of the teacher's
// LokiLogger.sendAsync: same streams/values envelope, same low-cardinality
// label set plus high-cardinality JSON body, but carrying a typed
// RequestMetrics payload instead of a free-form log message.
type LokiExporter struct {
	url    string
	client *http.Client
	log    logging.Logger
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// NewLokiExporter builds an exporter posting to baseURL + "/loki/api/v1/push",
// mirroring NewLokiLogger's URL construction and default.
func NewLokiExporter(baseURL string, log logging.Logger) *LokiExporter {
	if baseURL == "" {
		baseURL = "http://localhost:3100"
	}
	return &LokiExporter{
		url:    baseURL + "/loki/api/v1/push",
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log.WithComponent(logging.ComponentConfig),
	}
}

// Name identifies this exporter for logging and dropped-item attribution.
func (e *LokiExporter) Name() string { return "loki" }

// Export pushes m to Loki. Failures are logged and swallowed: exporters
// run off the request path entirely by the time Export is called, so
// there is nothing left to propagate an error to.
func (e *LokiExporter) Export(m types.RequestMetrics) {
	body, err := json.Marshal(m)
	if err != nil {
		e.log.Error("marshaling request metrics for loki export: %v", err)
		return
	}

	labels := map[string]string{
		"service":  "llamaproxy",
		"endpoint": m.Endpoint,
		"model":    m.Model,
	}

	push := lokiPushRequest{Streams: []lokiStream{{
		Stream: labels,
		Values: [][2]string{{fmt.Sprintf("%d", m.Timestamp), string(body)}},
	}}}

	payload, err := json.Marshal(push)
	if err != nil {
		e.log.Error("marshaling loki push envelope: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		e.log.Error("building loki push request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error("loki unavailable, dropping export: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		e.log.WithField("status", resp.StatusCode).Warn("loki rejected push")
	}
}
