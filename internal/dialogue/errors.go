package dialogue

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyUtterance rejects blank input before classification runs.
	ErrEmptyUtterance = errors.New("utterance is empty")
	// ErrUnknownContextKey is returned by MergeContext for keys the lexicon does not define.
	ErrUnknownContextKey = errors.New("unknown context key")

	// ErrGenerator matches every *GeneratorError.
	ErrGenerator = errors.New("response generator failed")
	// ErrGeneratorTimeout matches generator errors caused by a deadline.
	ErrGeneratorTimeout = errors.New("response generator timed out")
	// ErrMalformedReply is returned by generators whose reply carries no usable text.
	ErrMalformedReply = errors.New("malformed generator reply")
)

// GeneratorErrorKind tells callers why a generator call failed.
type GeneratorErrorKind int

const (
	GeneratorTransport GeneratorErrorKind = iota
	GeneratorTimeout
	GeneratorCanceled
	GeneratorMalformed
)

func (k GeneratorErrorKind) String() string {
	switch k {
	case GeneratorTimeout:
		return "timeout"
	case GeneratorCanceled:
		return "canceled"
	case GeneratorMalformed:
		return "malformed"
	default:
		return "transport"
	}
}

// GeneratorError reports a failed call to the response generator. The turn
// that triggered it keeps its user entry but gets no assistant reply.
type GeneratorError struct {
	Kind   GeneratorErrorKind
	Intent string
	Err    error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generate reply for %q (%s): %v", e.Intent, e.Kind, e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

func (e *GeneratorError) Is(target error) bool {
	switch target {
	case ErrGenerator:
		return true
	case ErrGeneratorTimeout:
		return e.Kind == GeneratorTimeout
	}
	return false
}

// newGeneratorError classifies err. callCtx is the context the generator ran
// under; its state wins over whatever the generator chose to wrap.
func newGeneratorError(callCtx context.Context, intent string, err error) *GeneratorError {
	kind := GeneratorTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		kind = GeneratorTimeout
	case errors.Is(err, context.Canceled), errors.Is(callCtx.Err(), context.Canceled):
		kind = GeneratorCanceled
	case errors.Is(err, ErrMalformedReply):
		kind = GeneratorMalformed
	}
	return &GeneratorError{Kind: kind, Intent: intent, Err: err}
}
