// Package sse writes Server-Sent Events frames to an http.ResponseWriter,
// flushing after every event so a client watching a long-lived connection
// sees each one as it is produced.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Writer wraps an http.ResponseWriter with the event/data framing both the
// OpenAI and Anthropic streaming grammars use, generalized from the
// teacher's writeSSEEvent (proxy/handler.go) so one writer serves both
// synthesis formats: OpenAI omits the `event:` line, Anthropic requires it.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the standard SSE response headers and returns a Writer
// ready to emit events. It must be called before the first byte of the
// body is written.
func NewWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// WriteNamed writes an `event: name` / `data: ...` frame, the shape the
// Anthropic Messages streaming grammar requires for every event.
func (s *Writer) WriteNamed(eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	s.flush()
	return nil
}

// WriteData writes a bare `data: ...` frame with no event line, the shape
// OpenAI's Chat Completions streaming grammar uses.
func (s *Writer) WriteData(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flush()
	return nil
}

// WriteDone writes OpenAI's literal stream terminator line.
func (s *Writer) WriteDone() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Writer) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
