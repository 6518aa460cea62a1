package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/snarg/dictation/internal/audio"
)

// Kind classifies why a job did not produce text.
type Kind int

const (
	KindBackendUnavailable Kind = iota + 1
	KindSplitFailure
	KindTranscriptionFailure
	KindCancelled
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindSplitFailure:
		return "split_failure"
	case KindTranscriptionFailure:
		return "transcription_failure"
	case KindCancelled:
		return "cancelled"
	case KindBusy:
		return "busy"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrBackendUnavailable = errors.New("transcription backend unavailable")
	ErrCancelled          = errors.New("transcription cancelled")
	ErrBusy               = errors.New("transcription backend busy")
)

// Error is the only error type that leaves the orchestrator.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps err in an *Error, deriving the kind from the sentinels it
// carries. fallback is used when none match.
func classify(op string, err error, fallback Kind) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	kind := fallback
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		kind = KindCancelled
	case errors.Is(err, ErrBusy):
		kind = KindBusy
	case errors.Is(err, ErrBackendUnavailable):
		kind = KindBackendUnavailable
	case errors.Is(err, audio.ErrUndecodable), errors.Is(err, audio.ErrUnsplittable):
		kind = KindSplitFailure
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}
