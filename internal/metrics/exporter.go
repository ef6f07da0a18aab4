package metrics

import (
	"context"
	"sync"

	"llamaproxy/internal/logging"
	"llamaproxy/internal/types"
)

// Exporter is the pluggable collaborator spec.md names only by interface:
// something that receives a completed request's RequestMetrics for
// external reporting. Export is called from the Queue's single consumer
// goroutine, never from the request path, so a slow Export delays only
// the exports queued behind it.
type Exporter interface {
	Name() string
	Export(types.RequestMetrics)
}

// Queue fans RequestMetrics out to a set of registered exporters over a
// bounded channel, draining them on a single background goroutine so a
// slow or unavailable exporter never adds latency to the request path
// that produced the metrics. Grounded on no single teacher file — the
// teacher's LokiLogger.sendAsync fires one bare goroutine per log line
// with no bound at all; this generalizes that fire-and-forget style into
// a bounded, drop-oldest-on-overflow queue since RequestMetrics export is
// explicitly required to never block (see the exporters paragraph of
// SPEC_FULL.md's external-interfaces section for why golang.org/x/sync/errgroup was not used here: a single
// consumer goroutine plus a channel is simpler and matches the teacher's
// existing goroutine-per-call-but-synchronous-looking style).
type Queue struct {
	log       logging.Logger
	exporters []Exporter
	ch        chan types.RequestMetrics
	dropped   counterIncrementer

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// counterIncrementer is the single method of prometheus.Counter this
// package needs, kept as its own interface so tests can swap in a no-op
// counter instead of constructing a real prometheus.Counter.
type counterIncrementer interface {
	Inc()
}

// NewQueue creates a Queue with the given buffer size. dropped, typically
// m.ExporterDropped, is incremented every time a send would have blocked
// because the buffer was full; the oldest pending item is discarded to
// make room for the newest one, so export always reflects the most
// recent requests rather than stalling behind old ones.
func NewQueue(log logging.Logger, bufferSize int, dropped counterIncrementer) *Queue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Queue{
		log:     log.WithComponent(logging.ComponentConfig),
		ch:      make(chan types.RequestMetrics, bufferSize),
		dropped: dropped,
	}
}

// Register adds an exporter to receive every future Submit call. Must be
// called before Start.
func (q *Queue) Register(e Exporter) {
	q.exporters = append(q.exporters, e)
}

// Start launches the background consumer goroutine. Calling Start twice
// is a no-op safety net, not a supported usage pattern.
func (q *Queue) Start(ctx context.Context) {
	if q.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.wg.Add(1)
	go q.run(ctx)
}

// Stop cancels the consumer goroutine and waits for it to drain its
// current item before returning.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Submit enqueues m for export without blocking. When the queue is full,
// the oldest queued item is dropped to make room and the drop counter is
// incremented — RequestMetrics export must never add latency to the
// request that produced it.
func (q *Queue) Submit(m types.RequestMetrics) {
	select {
	case q.ch <- m:
		return
	default:
	}

	select {
	case <-q.ch:
		if q.dropped != nil {
			q.dropped.Inc()
		}
	default:
	}

	select {
	case q.ch <- m:
	default:
		if q.dropped != nil {
			q.dropped.Inc()
		}
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-q.ch:
			q.dispatch(m)
		}
	}
}

func (q *Queue) dispatch(m types.RequestMetrics) {
	for _, e := range q.exporters {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.log.WithField("exporter", e.Name()).Error("exporter panicked: %v", r)
				}
			}()
			e.Export(m)
		}()
	}
}
