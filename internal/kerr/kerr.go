// Package kerr defines Kart's error kinds and the stable process exit codes
// they map to. Every error that can cross a command boundary is wrapped in
// an *Error so that cmd/kart can print a single-line summary and choose the
// right exit code without re-deriving it from the underlying cause.
package kerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the conceptual error kinds from the error handling design.
type Kind int

const (
	_ Kind = iota
	NotFound
	InvalidArgument
	InvalidOperation
	SchemaMismatch
	IntegrityError
	Conflict
	Transport
	Cancelled
	Generic
)

// ExitCode returns the stable process exit code for a Kind, per the CLI
// surface's exit-code table. Codes 20, 41, 44, 45 and 100 are reserved for
// specific InvalidOperation/Conflict situations and are carried on the
// Error itself rather than derived purely from Kind; callers should prefer
// Error.ExitCode.
func (k Kind) ExitCode() int {
	switch k {
	case InvalidArgument:
		return 2
	case InvalidOperation:
		return 20
	case NotFound:
		return 1
	case SchemaMismatch, IntegrityError, Transport:
		return 1
	case Conflict:
		return 100
	case Cancelled:
		return 1
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidOperation:
		return "InvalidOperation"
	case SchemaMismatch:
		return "SchemaMismatch"
	case IntegrityError:
		return "IntegrityError"
	case Conflict:
		return "Conflict"
	case Transport:
		return "Transport"
	case Cancelled:
		return "Cancelled"
	default:
		return "Error"
	}
}

// Reserved, named exit codes that don't follow purely from Kind.
const (
	ExitNoRepo     = 41
	ExitNoChanges  = 44
	ExitNoCommit   = 45
	ExitConflicts  = 100
	ExitInvalidArg = 2
	ExitInvalidOp  = 20
)

// Error is a Kart error: a kind, a stable exit code, and a wrapped cause
// carrying the stack trace that pkg/errors attaches on Wrap.
type Error struct {
	Kind     Kind
	Code     int
	Message  string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.cause.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// ExitCode returns the process exit code this error should produce.
func (e *Error) ExitCode() int {
	if e.Code != 0 {
		return e.Code
	}
	return e.Kind.ExitCode()
}

// New builds an Error of the given kind with the default exit code for
// that kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/message context to an existing error, wrapping cause
// with errors.WithStack so it carries a stack trace taken at this call.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// WithCode overrides the exit code a Kind would otherwise imply, for the
// handful of named reserved codes (NotAKartRepo, NoChanges, NoCommit).
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// NotAKartRepo is the specific NotFound error for "not a Kart repository".
func NotAKartRepo(path string) *Error {
	return New(NotFound, "%s: not a Kart repository", path).WithCode(ExitNoRepo)
}

// NoChanges is returned by diff/commit when there is nothing to report.
func NoChanges() *Error {
	return New(InvalidOperation, "no changes to commit").WithCode(ExitNoChanges)
}

// NoCommit is returned when a ref or revision doesn't resolve to a commit.
func NoCommit(ref string) *Error {
	return New(NotFound, "%s: no such commit", ref).WithCode(ExitNoCommit)
}

// DirtyWorkingCopy is returned by reset when force=false and uncommitted
// edits would be overwritten.
func DirtyWorkingCopy(dataset string) *Error {
	return New(InvalidOperation, "%s: working copy has uncommitted changes", dataset)
}

// CannotFastForward is returned by merge --ff-only when the merge would
// require a real merge commit.
func CannotFastForward() *Error {
	return New(InvalidOperation, "cannot fast-forward: branches have diverged")
}

// MergeInProgress is returned when a merge/conflicts/resolve command is run
// while another merge is already in the RESOLVING state.
func MergeInProgress() *Error {
	return New(InvalidOperation, "a merge is already in progress")
}

// HasConflicts wraps a non-empty conflict count as the Conflict kind, used
// by `merge` to report exit code 100 without treating it as a hard failure.
func HasConflicts(n int) *Error {
	return New(Conflict, "%d conflicts; use 'kart conflicts' to list them", n)
}
