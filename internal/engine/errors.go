package engine

import "fmt"

// Kind classifies an engine-level failure so the API boundary can map
// it to an HTTP status without string matching.
type Kind int

const (
	// TransientChain is an RPC timeout or a fee-related mempool
	// rejection; retried with backoff.
	TransientChain Kind = iota
	// PermanentChain is a malformed tx or insufficient LP funds; marks
	// the leg broken and parks the swap.
	PermanentChain
	// InvariantViolation is an internal inconsistency (hashlock
	// mismatch, timelock ordering violated); fails fast, no retries.
	InvariantViolation
	// PeerUnreachable is a per-leg notify exhausting its retry budget.
	PeerUnreachable
	// ReorgRollback is a previously-confirmed event no longer canonical.
	ReorgRollback
	// UnrecoverableRefund is a refund broadcast made impossible by
	// missing key material.
	UnrecoverableRefund
)

func (k Kind) String() string {
	switch k {
	case TransientChain:
		return "transient_chain"
	case PermanentChain:
		return "permanent_chain"
	case InvariantViolation:
		return "invariant_violation"
	case PeerUnreachable:
		return "peer_unreachable"
	case ReorgRollback:
		return "reorg_rollback"
	case UnrecoverableRefund:
		return "unrecoverable_refund"
	default:
		return "unknown"
	}
}

// ClassifiedError pairs an error with the Kind the engine assigns it,
// so callers up the stack (the HTTP boundary, the watcher dispatch
// loop) can react by kind instead of parsing messages.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Classify wraps err with the given Kind.
func Classify(kind Kind, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: err}
}

// Classifyf is Classify with fmt.Errorf-style formatting.
func Classifyf(kind Kind, format string, args ...interface{}) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
