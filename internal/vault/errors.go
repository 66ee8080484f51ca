package vault

import (
	"errors"
	"fmt"
)

// Error is the single error type the operation surface returns.
//
// The code set is closed. Every failure an operation can produce is one of
// these tags, returned synchronously as a value; nothing is fatal to the
// process and a failed operation leaves all stores unchanged.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Identifier names the affected identity, when known.
	Identifier string

	// RecordID names the affected record, when the failure is record-scoped.
	RecordID uint64
}

// ErrorCode categorizes operation failures.
type ErrorCode string

const (
	// CodeNotAuthenticated means the caller token is the anonymous principal.
	CodeNotAuthenticated ErrorCode = "NOT_AUTHENTICATED"

	// CodeUnauthorized means the caller is authenticated and resolvable but
	// lacks ownership or a matching grant.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeNotFound means the referenced identity, record, or profile does
	// not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists means an explicit duplicate-creation attempt.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeInvalidInput is reserved for future input validation. No current
	// path raises it; raising it requires matching tests first.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInternal is reserved. No current path raises it.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.RecordID != 0:
		return fmt.Sprintf("%s: %s (record=%d)", e.Code, e.Message, e.RecordID)
	case e.Identifier != "":
		return fmt.Sprintf("%s: %s (identifier=%s)", e.Code, e.Message, e.Identifier)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// CodeOf extracts the error code, or empty string for a non-vault error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// IsNotAuthenticated reports whether err carries CodeNotAuthenticated.
func IsNotAuthenticated(err error) bool { return CodeOf(err) == CodeNotAuthenticated }

// IsUnauthorized reports whether err carries CodeUnauthorized.
func IsUnauthorized(err error) bool { return CodeOf(err) == CodeUnauthorized }

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsAlreadyExists reports whether err carries CodeAlreadyExists.
func IsAlreadyExists(err error) bool { return CodeOf(err) == CodeAlreadyExists }

func errNotAuthenticated() *Error {
	return &Error{
		Code:    CodeNotAuthenticated,
		Message: "caller token is the anonymous principal",
	}
}

func errNoIdentity() *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: "caller has no identity",
	}
}

func errIdentityExists(identifier string) *Error {
	return &Error{
		Code:       CodeAlreadyExists,
		Message:    "identity already exists for this token",
		Identifier: identifier,
	}
}

func errIdentifierNotFound(identifier string) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    "no identity with this identifier",
		Identifier: identifier,
	}
}

func errProfileNotFound(identifier string) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    "no profile for this identity",
		Identifier: identifier,
	}
}

func errRecordNotFound(id uint64) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  "no record with this id",
		RecordID: id,
	}
}

func errRecordUnauthorized(id uint64) *Error {
	return &Error{
		Code:     CodeUnauthorized,
		Message:  "caller lacks ownership or a matching grant",
		RecordID: id,
	}
}

func errGrantUnauthorized(id uint64) *Error {
	return &Error{
		Code:     CodeUnauthorized,
		Message:  "record id is not owned by the issuer",
		RecordID: id,
	}
}
