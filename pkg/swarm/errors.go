package swarm

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error classification. Callers inspect
// errors with errors.As against *Error and switch on Kind -- never by
// matching error message text.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input" // malformed/unschema-valid request
	KindUnknownTool  Kind = "unknown_tool"  // invoke_tool named a tool the host never registered
	KindPolicyDenied Kind = "policy_denied" // tool-class policy rejected the call

	KindToolError   Kind = "tool_error"   // tool handler returned an error
	KindToolTimeout Kind = "tool_timeout" // tool's own wall-clock cap or the task deadline elapsed first

	KindBackendUnavailable          Kind = "backend_unavailable"           // LLM backend unreachable/erroring after retries
	KindEmbeddingBackendUnavailable Kind = "embedding_backend_unavailable" // embedding backend unreachable after retries
	KindEmbeddingDimensionMismatch  Kind = "embedding_dimension_mismatch"  // an embedding's dimension disagreed with its batch or with the collection's fixed dimension

	KindCircuitOpen      Kind = "circuit_open"       // breaker is open, call short-circuited
	KindRateLimitTimeout Kind = "rate_limit_timeout" // token bucket wait exceeded the caller's deadline
	KindContextOverflow  Kind = "context_overflow"   // request exceeded the backend's context window
	KindAuthError        Kind = "auth_error"         // backend rejected credentials
	KindBadRequest       Kind = "bad_request"        // backend rejected a malformed request

	KindPlanInvalid               Kind = "plan_invalid"                // planner turn produced an unparsable/invalid plan after repair attempts
	KindSwarmInsufficientSuccesses Kind = "swarm_insufficient_successes" // fewer than the quorum of agents reached done
	KindBudgetExhausted           Kind = "budget_exhausted"            // agent exceeded its turn count or token budget

	KindDeadlineExceeded Kind = "deadline_exceeded" // context deadline exceeded, outside a tool/backend-specific cap
	KindCancelled        Kind = "cancelled"          // context cancelled

	KindInternal Kind = "internal" // unexpected/unclassified failure
)

// Error wraps an underlying cause with a stable Kind.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "llmclient.Client.Chat"
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified Error.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err, or KindInternal if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
