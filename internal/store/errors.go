package store

import (
	"errors"
	"fmt"
)

// ErrUnkeyed is the panic value when linking an entity that was never
// inserted.
var ErrUnkeyed = errors.New("entity has no key")

// ErrInvalidKey is returned by Insert for a key containing the ':'
// separator of the index layout.
var ErrInvalidKey = errors.New("invalid key")

// ErrorCode categorizes storage errors.
type ErrorCode string

const (
	// CodeCorrupt indicates a stored document could not be decoded.
	CodeCorrupt ErrorCode = "CORRUPT"

	// CodeBadSnapshot indicates a snapshot could not be decoded.
	CodeBadSnapshot ErrorCode = "BAD_SNAPSHOT"

	// CodeClosed indicates the store was used after Close.
	CodeClosed ErrorCode = "CLOSED"
)

// Error is a storage failure with a category.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is a CodeCorrupt storage error.
func IsCorrupt(err error) bool {
	return hasCode(err, CodeCorrupt)
}

// IsBadSnapshot reports whether err is a CodeBadSnapshot storage error.
func IsBadSnapshot(err error) bool {
	return hasCode(err, CodeBadSnapshot)
}

// IsClosed reports whether err is a CodeClosed storage error.
func IsClosed(err error) bool {
	return hasCode(err, CodeClosed)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
