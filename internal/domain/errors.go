package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ReadError wraps a failed query against the ledger. Reads fail soft: the
// caller keeps its previous snapshot and the next poll retries.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Op, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// ChunkFetchError records one block range of a log query that failed.
// The events of that range are missing from the result.
type ChunkFetchError struct {
	Contract  common.Address
	Event     string
	FromBlock uint64
	ToBlock   uint64
	Err       error
}

func (e *ChunkFetchError) Error() string {
	return fmt.Sprintf("fetch %s logs [%d, %d] from %s: %v",
		e.Event, e.FromBlock, e.ToBlock, e.Contract.Hex(), e.Err)
}

func (e *ChunkFetchError) Unwrap() error { return e.Err }

// ValidationError is a client-side precondition that failed before any write
// was submitted.
type ValidationError struct {
	Action string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Action == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

// Is lets errors.Is match the sentinels below by reason.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return t.Action == "" && t.Reason == e.Reason
}

// Invalid builds a ValidationError for action.
func Invalid(action, format string, args ...any) error {
	return &ValidationError{Action: action, Reason: fmt.Sprintf(format, args...)}
}

var (
	// ErrWriteInFlight is returned when the signing account already has a
	// write waiting for confirmation.
	ErrWriteInFlight = &ValidationError{Reason: "another write is in flight for this account"}

	// ErrNoSigner is returned by write paths when no private key is configured.
	ErrNoSigner = &ValidationError{Reason: "no signer configured (watch-only mode)"}
)

// RevertError is a write the ledger rejected. Reason is the ledger's revert
// string, unmodified.
type RevertError struct {
	Method string
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("%s reverted: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s reverted (tx %s): %s", e.Method, e.TxHash.Hex(), e.Reason)
}

// ParseError means ancillary data did not match the expected grammar. The
// decoder still returns a usable placeholder alongside it.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string { return "ancillary data: " + e.Reason }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRevert reports whether err carries a RevertError.
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}
