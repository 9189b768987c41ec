package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures surfaced by the core.
type ErrorCode string

const (
	// ErrCodeStore indicates an I/O failure in the persistent store.
	ErrCodeStore ErrorCode = "STORE_ERROR"

	// ErrCodeRemoteFetch indicates the metadata provider could not be reached
	// or returned an unusable response.
	ErrCodeRemoteFetch ErrorCode = "REMOTE_FETCH_ERROR"

	// ErrCodeCorrupt indicates stored bytes could not be deserialized.
	ErrCodeCorrupt ErrorCode = "CORRUPT_DATA"

	// ErrCodePersist indicates a queue or draft write did not land.
	ErrCodePersist ErrorCode = "PERSIST_ERROR"

	// ErrCodeNotFound indicates a referenced item or schema does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidTransition indicates an illegal submission status change.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeIndexOutOfRange indicates a positional edit past the queue end.
	ErrCodeIndexOutOfRange ErrorCode = "INDEX_OUT_OF_RANGE"

	// ErrCodeInvalidItem indicates a submission that cannot be queued.
	ErrCodeInvalidItem ErrorCode = "INVALID_ITEM"
)

// Error is the single error type returned by fieldkit packages.
//
// Op names the failing operation ("queue.enqueue", "store.get"), Key the
// store key or identifier involved. Err carries the underlying cause and is
// reachable through errors.Unwrap.
type Error struct {
	Code    ErrorCode
	Op      string
	Key     string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Code)
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given fields.
func NewError(code ErrorCode, op, key string, err error) *Error {
	return &Error{Code: code, Op: op, Key: key, Err: err}
}

// Errorf creates an Error without an underlying cause.
func Errorf(code ErrorCode, op, key, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Key: key, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an *Error with any of the codes.
// Wrapping layers may re-code a cause (a STORE_ERROR surfaced as
// PERSIST_ERROR), so every *Error in the chain is checked.
func HasCode(err error, codes ...ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			for _, c := range codes {
				if e.Code == c {
					return true
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsStoreError reports whether err is or wraps a STORE_ERROR.
func IsStoreError(err error) bool { return HasCode(err, ErrCodeStore) }

// IsRemoteFetchError reports whether err is or wraps a REMOTE_FETCH_ERROR.
func IsRemoteFetchError(err error) bool { return HasCode(err, ErrCodeRemoteFetch) }

// IsCorrupt reports whether err is or wraps a CORRUPT_DATA error.
func IsCorrupt(err error) bool { return HasCode(err, ErrCodeCorrupt) }

// IsPersistError reports whether err is or wraps a PERSIST_ERROR.
func IsPersistError(err error) bool { return HasCode(err, ErrCodePersist) }

// IsNotFound reports whether err is or wraps a NOT_FOUND error.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }
