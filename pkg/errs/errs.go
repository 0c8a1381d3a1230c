// Package errs defines the error taxonomy shared across the node's
// components, so HTTP handlers and background loops can branch on the
// kind of failure instead of matching error strings.
package errs

import "fmt"

// Kind classifies a failure for the purpose of HTTP status mapping and
// structured logging.
type Kind string

const (
	Malformed         Kind = "malformed"
	InvalidSignature  Kind = "invalid_signature"
	InsufficientFunds Kind = "insufficient_balance"
	DuplicateTx       Kind = "duplicate_tx"
	MempoolFull       Kind = "mempool_full"
	BadPrevHash       Kind = "bad_prev_hash"
	BadProofOfWork    Kind = "bad_proof_of_work"
	BlockTooLarge     Kind = "block_too_large"
	InvalidTxBundle   Kind = "invalid_tx_bundle"
	UnknownBlockIndex Kind = "unknown_block_index"
	ChainBehind       Kind = "chain_behind"
	PeerUnreachable   Kind = "peer_unreachable"
	Internal          Kind = "internal"
)

// Error is the concrete error type returned by validation paths across
// the node. It carries a Kind so callers can branch without parsing the
// message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind from err, defaulting to Internal for errors
// that were not constructed through this package.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Internal
}

// asError is a narrow errors.As to avoid importing errors solely for one call site.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// HTTPStatus maps a Kind to the status code spec.md §7 requires.
func HTTPStatus(k Kind) int {
	switch k {
	case UnknownBlockIndex:
		return 404
	case Internal, "":
		return 500
	default:
		return 400
	}
}
