package contigcaller

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// ErrorKind classifies an Error per the error taxonomy: fatal conditions
// that abort iteration, soft conditions that are logged and tolerated, and
// configuration failures raised at construction.
type ErrorKind int

const (
	// InvariantViolation is fatal: node uniqueness broken, input ordering
	// violated, or a memoization self-check mismatch.
	InvariantViolation ErrorKind = iota
	// SoftInconsistency is a warn-and-continue condition: evidence
	// extending beyond the input frontier, a contig with no tracked
	// evidence, or a telemetry sink I/O failure.
	SoftInconsistency
	// ConfigurationFailure is fatal, raised only from NewAssembler.
	ConfigurationFailure
)

func (k ErrorKind) String() string {
	switch k {
	case InvariantViolation:
		return "InvariantViolation"
	case SoftInconsistency:
		return "SoftInconsistency"
	case ConfigurationFailure:
		return "ConfigurationFailure"
	default:
		return "UnknownErrorKind"
	}
}

// Error is the error type returned from Assembler.Next and NewAssembler.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As (stdlib or
// grailbio/base/errors) can see through an Error.
func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...)}
}

func wrapError(kind ErrorKind, cause error, msg string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(msg, args...), Cause: cause}
}

// fatalOnce accumulates at most one fatal error across a sequence of
// operations, the way the teacher's I/O paths accumulate a single
// terminating error via errors.Once while individual soft conditions keep
// going. Assembler embeds one as its fatal field: the first error recorded
// by any internal operation sticks for the rest of the run.
type fatalOnce struct {
	once errors.Once
}

func (f *fatalOnce) set(err error) {
	f.once.Set(err)
}

func (f *fatalOnce) get() error {
	return f.once.Err()
}
