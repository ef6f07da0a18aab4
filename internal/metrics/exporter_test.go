package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llamaproxy/internal/logging"
	"llamaproxy/internal/types"
)

type recordingExporter struct {
	mu   sync.Mutex
	name string
	got  []types.RequestMetrics
}

func (r *recordingExporter) Name() string { return r.name }

func (r *recordingExporter) Export(m types.RequestMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
}

func (r *recordingExporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type noopCounter struct{ n int }

func (c *noopCounter) Inc() { c.n++ }

func waitForCount(t *testing.T, want int, count func() int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if count() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, count())
}

func TestQueueDispatchesToAllExporters(t *testing.T) {
	q := NewQueue(logging.New(), 8, &noopCounter{})
	e1 := &recordingExporter{name: "a"}
	e2 := &recordingExporter{name: "b"}
	q.Register(e1)
	q.Register(e2)
	q.Start(context.Background())
	defer q.Stop()

	q.Submit(types.RequestMetrics{RequestID: "req-1"})

	waitForCount(t, 1, e1.count)
	waitForCount(t, 1, e2.count)
}

func TestQueueSubmitNeverBlocksWhenFull(t *testing.T) {
	dropped := &noopCounter{}
	q := NewQueue(logging.New(), 1, dropped)
	// No exporters registered and the consumer is not started: Submit
	// must still return immediately even once the buffer is saturated.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Submit(types.RequestMetrics{RequestID: "req"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked with a full, undrained queue")
	}

	assert.Greater(t, dropped.n, 0)
}

func TestQueueSurvivesExporterPanic(t *testing.T) {
	q := NewQueue(logging.New(), 4, &noopCounter{})
	q.Register(panicExporter{})
	ok := &recordingExporter{name: "ok"}
	q.Register(ok)
	q.Start(context.Background())
	defer q.Stop()

	q.Submit(types.RequestMetrics{RequestID: "req-2"})
	waitForCount(t, 1, ok.count)
}

type panicExporter struct{}

func (panicExporter) Name() string                     { return "panics" }
func (panicExporter) Export(types.RequestMetrics) { panic("boom") }
