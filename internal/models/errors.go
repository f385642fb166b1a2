package models

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidQueryFormat ErrorKind = "INVALID_QUERY_FORMAT"
	KindNoInformationFound ErrorKind = "NO_INFORMATION_FOUND"
	KindProviderFailure    ErrorKind = "PROVIDER_FAILURE"
	KindEmbeddingError     ErrorKind = "EMBEDDING_ERROR"
	KindModelError         ErrorKind = "MODEL_ERROR"
	KindProcessingError    ErrorKind = "PROCESSING_ERROR"
)

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrInvalidQueryFormat = &Error{Kind: KindInvalidQueryFormat, Message: "invalid query format"}
	ErrNoInformationFound = &Error{Kind: KindNoInformationFound, Message: "no information found"}
	ErrProviderFailure    = &Error{Kind: KindProviderFailure, Message: "search provider failure"}
	ErrEmbeddingError     = &Error{Kind: KindEmbeddingError, Message: "embedding failure"}
	ErrModelError         = &Error{Kind: KindModelError, Message: "language model failure"}
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf classifies any error. Unknown errors are processing errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessingError
}

// Summary is the human readable text surfaced in error events.
func Summary(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return "An error occurred while processing the request"
}
