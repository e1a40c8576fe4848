package gateway

import (
	"errors"
	"fmt"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
)

// Kind classifies a failure independently of its wire code.
type Kind int

const (
	KindAuth Kind = iota + 1
	KindMalformed
	KindValidation
	KindNotFound
	KindStore
	KindUnknownAction
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindMalformed:
		return "malformed"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	case KindUnknownAction:
		return "unknown_action"
	default:
		return "unknown"
	}
}

// Error codes carried in a nack envelope.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeInvalidJSON   = "INVALID_JSON"
	CodeInvalidField  = "INVALID_FIELD"
	CodeRequestFailed = "REQUEST_FAILED"
	CodeDBError       = "DB_ERROR"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error with the default code for kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: defaultCode(kind), Message: message}
}

func defaultCode(kind Kind) string {
	switch kind {
	case KindAuth:
		return CodeUnauthorized
	case KindMalformed, KindValidation:
		return CodeInvalidField
	case KindStore:
		return CodeDBError
	default:
		return CodeRequestFailed
	}
}

func malformed(format string, args ...any) *Error {
	return NewError(KindMalformed, fmt.Sprintf(format, args...))
}

func validation(format string, args ...any) *Error {
	return NewError(KindValidation, fmt.Sprintf(format, args...))
}

// fromBuild converts a builder failure into a validation error. Builder
// errors other than *builder.ValidationError are reported the same way since
// nothing reached the store.
func fromBuild(err error) *Error {
	message := err.Error()
	var verr *builder.ValidationError
	if errors.As(err, &verr) && verr.Field == "" {
		message = verr.Reason
	}
	return &Error{Kind: KindValidation, Code: CodeInvalidField, Message: message, Err: err}
}

// AsError returns err as an *Error, wrapping foreign errors as request
// failures.
func AsError(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	return &Error{Code: CodeRequestFailed, Message: err.Error(), Err: err}
}
