package orchestrator

import (
	"context"
	"math"
	"time"

	"llamaproxy/internal/types"
)

// round1 rounds to one decimal place, matching context_percent's defined
// rounding rule.
func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// buildMetrics derives a RequestMetrics snapshot from a completed chat
// response. It performs its own upstream call (FetchContextTotal) when
// the context cache hasn't been populated yet, so it is always invoked
// off the response path — see collectAndSubmit.
func (h *Handler) buildMetrics(requestID, endpoint, model string, streaming bool, resp *types.ChatResponse, duration time.Duration, fixNames []string) types.RequestMetrics {
	m := types.RequestMetrics{
		RequestID:    requestID,
		Timestamp:    time.Now().UnixNano(),
		Model:        model,
		Streaming:    streaming,
		Endpoint:     endpoint,
		DurationMS:   float64(duration.Microseconds()) / 1000,
		FixesApplied: fixNames,
	}

	if resp != nil {
		m.PromptTokens = resp.Usage.PromptTokens
		m.CompletionTokens = resp.Usage.CompletionTokens
		m.TotalTokens = resp.Usage.TotalTokens
		m.ReasoningTokens = resp.Usage.ReasoningTokens
		m.AcceptedPredictionTokens = resp.Usage.AcceptedPredictionTokens
		m.RejectedPredictionTokens = resp.Usage.RejectedPredictionTokens

		if len(resp.Choices) > 0 && resp.Choices[0].FinishReason != nil {
			m.FinishReason = *resp.Choices[0].FinishReason
		}

		if resp.Timings != nil {
			m.PromptTPS = resp.Timings.PromptPerSecond
			m.GenerationTPS = resp.Timings.PredictedPerSecond
			switch {
			case resp.Timings.CacheN > 0:
				m.ContextUsed = resp.Timings.CacheN
				m.HasContextUsed = true
			case resp.Timings.PromptN > 0:
				m.ContextUsed = resp.Timings.PromptN
				m.HasContextUsed = true
			}
		}
	}

	if total, ok := h.upstream.FetchContextTotal(context.Background()); ok {
		m.ContextTotal = total
		m.HasContextTotal = true
		if m.HasContextUsed && total > 0 {
			m.ContextPercent = round1(float64(m.ContextUsed) / float64(total) * 100)
			if h.metrics != nil {
				h.metrics.ContextPercent.WithLabelValues(model).Set(m.ContextPercent)
			}
		}
	}

	return m
}

// collectAndSubmit runs metrics derivation and exporter hand-off on its
// own goroutine, called after the client response has already been fully
// written — RequestMetrics export must never add latency to the request
// that produced it (spec's concurrency section).
func (h *Handler) collectAndSubmit(requestID, endpoint, model string, streaming bool, resp *types.ChatResponse, duration time.Duration, fixNames []string) {
	m := h.buildMetrics(requestID, endpoint, model, streaming, resp, duration, fixNames)
	if h.queue != nil {
		h.queue.Submit(m)
	}
}

// appliedFixNames evaluates Applies() against resp for every currently
// enabled fix, without running Apply — used purely to label the
// fix_applied_total counter and RequestMetrics.FixesApplied, since the
// registry's ApplyAll does not itself report which fixes actually fired.
func (h *Handler) appliedFixNames(resp *types.ChatResponse) []string {
	var names []string
	for _, f := range h.registry.List() {
		if !h.registry.IsEnabled(f.Name()) {
			continue
		}
		if f.Applies(resp) {
			names = append(names, f.Name())
			if h.metrics != nil {
				h.metrics.FixAppliedTotal.WithLabelValues(f.Name()).Inc()
			}
		}
	}
	return names
}
