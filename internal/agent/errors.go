package agent

import "errors"

// Failure classes surfaced by Answer. The HTTP layer maps these to status
// codes without inspecting error strings.
var (
	// ErrModelUnavailable wraps a model call that failed after retries.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrUnknownTool means the model requested a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool requested")

	// ErrExhausted means the turn budget ran out before the model produced
	// a final text answer.
	ErrExhausted = errors.New("tool-call budget exhausted")
)
