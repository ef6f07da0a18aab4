package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaproxy/internal/logging"
	"llamaproxy/internal/types"
)

func TestLokiExporterPushesStreamWithLabels(t *testing.T) {
	var gotPath string
	var gotBody lokiPushRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	exp := NewLokiExporter(server.URL, logging.New())
	exp.Export(types.RequestMetrics{
		RequestID: "req-1",
		Model:     "local-model",
		Endpoint:  "/v1/chat/completions",
		Timestamp: 1700000000000000000,
	})

	assert.Equal(t, "/loki/api/v1/push", gotPath)
	require.Len(t, gotBody.Streams, 1)
	assert.Equal(t, "llamaproxy", gotBody.Streams[0].Stream["service"])
	assert.Equal(t, "local-model", gotBody.Streams[0].Stream["model"])
	require.Len(t, gotBody.Streams[0].Values, 1)

	var decoded types.RequestMetrics
	require.NoError(t, json.Unmarshal([]byte(gotBody.Streams[0].Values[0][1]), &decoded))
	assert.Equal(t, "req-1", decoded.RequestID)
}

func TestLokiExporterSwallowsTransportErrors(t *testing.T) {
	exp := NewLokiExporter("http://127.0.0.1:0", logging.New())
	assert.NotPanics(t, func() {
		exp.Export(types.RequestMetrics{RequestID: "req-2"})
	})
}
