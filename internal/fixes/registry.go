// Package fixes implements the response-fix registry: an ordered,
// dynamically enable/disable-able set of transformations applied to
// upstream responses, both whole and streaming, with a delta-calculation
// contract that keeps client-side accumulation correct.
//
// The registry's dispatch shape is grounded on the same ordered,
// named-rule-evaluation pattern used throughout this codebase's ancestor
// correction engine: a slice of named capabilities walked in a fixed
// order, each observing the output of the ones before it.
package fixes

import (
	"fmt"
	"sync"

	"llamaproxy/internal/apperrors"
	"llamaproxy/internal/types"
)

// Fix is a named, togglable transformation over chat responses. Applies
// decides whether Apply runs on a whole response; ApplyStream is called
// for every chunk by every enabled fix without consulting Applies, so it
// must be safe to call on any chunk.
type Fix interface {
	Name() string
	Description() string
	Applies(resp *types.ChatResponse) bool
	Apply(resp *types.ChatResponse, req *types.ChatRequest) (*types.ChatResponse, error)
	ApplyStream(chunk *types.ChatStreamChunk, acc *FixAccumulator, req *types.ChatRequest) (rewritten *types.ChatStreamChunk, delta []byte, err error)
}

// Registry holds the set of registered fixes in registration order and
// their current enabled/disabled state.
type Registry struct {
	mu      sync.RWMutex
	fixes   []Fix
	enabled map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{enabled: make(map[string]bool)}
}

// Register appends a fix to the registration order and enables it by
// default.
func (r *Registry) Register(f Fix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fixes = append(r.fixes, f)
	r.enabled[f.Name()] = true
}

// List returns the registered fixes in registration order.
func (r *Registry) List() []Fix {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Fix, len(r.fixes))
	copy(out, r.fixes)
	return out
}

// SetEnabled toggles a fix by name. Unknown names are a no-op: the
// control plane may reference a fix that was never compiled in without
// crashing the process.
func (r *Registry) SetEnabled(name string, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enabled[name]; ok {
		r.enabled[name] = on
	}
}

// IsEnabled reports whether a fix is currently enabled. A stale read
// across a concurrent SetEnabled is acceptable: a given request applies a
// fix or it doesn't, never a partial application.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[name]
}

func (r *Registry) snapshot() []Fix {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Fix, 0, len(r.fixes))
	for _, f := range r.fixes {
		if r.enabled[f.Name()] {
			out = append(out, f)
		}
	}
	return out
}

// ApplyAll runs every enabled fix whose Applies returns true against
// resp, in registration order, each observing the prior fix's output. A
// fix that panics or returns an error is skipped; processing continues
// with the remaining fixes (spec's never-fatal FixError rule). req is the
// originating request, made available so schema-dependent fixes (e.g.
// argument-key recovery) can consult the client's tool definitions.
func (r *Registry) ApplyAll(resp *types.ChatResponse, req *types.ChatRequest, onSkip func(name string, err error)) *types.ChatResponse {
	current := resp
	for _, f := range r.snapshot() {
		next, err := safeApply(f, current, req)
		if err != nil {
			if onSkip != nil {
				onSkip(f.Name(), err)
			}
			continue
		}
		current = next
	}
	return current
}

func safeApply(f Fix, resp *types.ChatResponse, req *types.ChatRequest) (out *types.ChatResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", apperrors.ErrFixError, f.Name(), r)
		}
	}()
	if !f.Applies(resp) {
		return resp, nil
	}
	next, applyErr := f.Apply(resp, req)
	if applyErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrFixError, f.Name(), applyErr)
	}
	return next, nil
}

// ApplyStreamWithAccumulation is the entrypoint streaming callers use
// when the originating request is available (so fixes like
// argument-key-recovery can consult tool schemas). It delegates to the
// same dispatchStream kernel as ApplyStreamWithAccumulationDefault so
// no fix can be wired to only one of the two paths.
func (r *Registry) ApplyStreamWithAccumulation(chunk *types.ChatStreamChunk, req *types.ChatRequest, acc *FixAccumulator) (*types.ChatStreamChunk, []byte, error) {
	return r.dispatchStream(chunk, req, acc)
}

// ApplyStreamWithAccumulationDefault is the entrypoint for callers that
// have no request context available (e.g. a fix applied to a pass-through
// reconstruction path). It runs the identical kernel with req == nil;
// fixes that need request context and receive nil must degrade safely
// (matching spec's delta-safety fallback), never panic.
func (r *Registry) ApplyStreamWithAccumulationDefault(chunk *types.ChatStreamChunk, acc *FixAccumulator) (*types.ChatStreamChunk, []byte, error) {
	return r.dispatchStream(chunk, nil, acc)
}

// dispatchStream is the common kernel both streaming entrypoints funnel
// through. Each enabled fix sees the chunk produced by its predecessor;
// the registry — not the fix — advances acc.BytesEmitted by exactly the
// length of the delta it hands back to the caller, per the delta-safety
// contract: a fix computes what to append, the registry is the only
// party that records what has actually gone out the wire.
func (r *Registry) dispatchStream(chunk *types.ChatStreamChunk, req *types.ChatRequest, acc *FixAccumulator) (*types.ChatStreamChunk, []byte, error) {
	current := chunk
	var lastDelta []byte

	for _, f := range r.snapshot() {
		rewritten, delta, err := safeApplyStream(f, current, acc, req)
		if err != nil {
			continue
		}
		if rewritten != nil {
			current = rewritten
		}
		if delta != nil {
			lastDelta = delta
		}
	}

	if lastDelta != nil {
		for _, idx := range toolCallIndexesOf(current) {
			st := acc.State(idx)
			st.BytesEmitted += len(lastDelta)
		}
	}

	return current, lastDelta, nil
}

func safeApplyStream(f Fix, chunk *types.ChatStreamChunk, acc *FixAccumulator, req *types.ChatRequest) (rewritten *types.ChatStreamChunk, delta []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", apperrors.ErrFixError, f.Name(), r)
		}
	}()
	return f.ApplyStream(chunk, acc, req)
}

func toolCallIndexesOf(chunk *types.ChatStreamChunk) []int {
	if chunk == nil {
		return nil
	}
	var out []int
	for _, choice := range chunk.Choices {
		for _, tc := range choice.Delta.ToolCalls {
			if tc.Index != nil {
				out = append(out, *tc.Index)
			}
		}
	}
	return out
}
