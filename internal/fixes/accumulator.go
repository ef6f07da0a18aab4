package fixes

// ToolCallAccumState is the per-tool-call-index slice of a
// FixAccumulator: what has been seen of that call's argument string so
// far, how much of the repaired form has already been handed to the
// client, and (once known) the schema hint a fix can use to recover a
// corrupted argument key.
type ToolCallAccumState struct {
	Buffer          []byte
	BytesEmitted    int
	SchemaHint      string
	DuplicateSeen   map[string]bool
}

// FixAccumulator is per-stream, per-request mutable state shared by every
// streaming-capable fix dispatched against one SSE stream. It is created
// when the stream starts and discarded when the stream ends; it is never
// shared across requests.
type FixAccumulator struct {
	states map[int]*ToolCallAccumState
}

// NewFixAccumulator returns an empty accumulator ready for one stream's
// lifetime.
func NewFixAccumulator() *FixAccumulator {
	return &FixAccumulator{states: make(map[int]*ToolCallAccumState)}
}

// State returns the accumulation state for a tool-call index, creating it
// on first access.
func (a *FixAccumulator) State(index int) *ToolCallAccumState {
	st, ok := a.states[index]
	if !ok {
		st = &ToolCallAccumState{DuplicateSeen: make(map[string]bool)}
		a.states[index] = st
	}
	return st
}
