package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can distinguish a policy denial from an
// outage from an integrity violation.
type Kind string

const (
	AccessDenied         Kind = "access_denied"
	LedgerUnavailable    Kind = "ledger_unavailable"
	BlobStoreUnavailable Kind = "blob_store_unavailable"
	DecryptionFailure    Kind = "decryption_failure"
	NotFound             Kind = "not_found"
	InvalidInput         Kind = "invalid_input"
)

// Error carries a failure kind alongside the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error for op. cause may be nil.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Newf builds a classified error with a formatted cause message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or "" if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the failure is transient infrastructure trouble
// worth retrying. Policy and integrity failures are never retryable.
func Retryable(err error) bool {
	switch KindOf(err) {
	case LedgerUnavailable, BlobStoreUnavailable:
		return true
	}
	return false
}
