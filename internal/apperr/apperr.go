// Package apperr defines the error kinds a likesfeed run can end with.
//
// Every collaborator wraps its failures in an *Error carrying a Kind, so the
// command layer can pick an exit code without string matching:
//
//	if apperr.Is(err, apperr.Unauthorized) {
//	    // hint: set QIITA_API_TOKEN
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Unknown is the zero Kind, used for errors that were never classified.
	Unknown Kind = iota
	Config
	SourceUnavailable
	Unauthorized
	StateCorrupt
	MalformedCandidate
	RenderFailure
)

// Exit codes observed by the command layer.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitConfig       = 2
	ExitUpstream     = 3
	ExitRender       = 4
	ExitStateCorrupt = 5
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case SourceUnavailable:
		return "source unavailable"
	case Unauthorized:
		return "unauthorized"
	case StateCorrupt:
		return "state corrupt"
	case MalformedCandidate:
		return "malformed candidate"
	case RenderFailure:
		return "render failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the collaborator that failed
// ("fetch", "likes", "state.load", ...) and Item the article involved, if any.
type Error struct {
	Kind Kind
	Op   string
	Item string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Item != "" {
		msg += " (item " + e.Item + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a classified error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// ForItem returns a classified error about a single item.
func ForItem(kind Kind, op, item string, err error) *Error {
	return &Error{Kind: kind, Op: op, Item: item, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case Config:
		return ExitConfig
	case SourceUnavailable, Unauthorized:
		return ExitUpstream
	case RenderFailure:
		return ExitRender
	case StateCorrupt:
		return ExitStateCorrupt
	default:
		return ExitFailure
	}
}
