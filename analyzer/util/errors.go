package util

import (
	"errors"
	"fmt"

	"github.com/pattyshack/gt/parseutil"
)

type ErrorKind string

const (
	// Cyclic dependency, missing dominance relation, unsatisfiable pinned
	// placement, etc.  The graph was malformed upstream.
	MalformedGraph = ErrorKind("malformed graph")

	// A non-root temp would be live across a safepoint, or the temp's
	// generator / consumers cannot be kept on one side of a safepoint.
	RootAccuracy = ErrorKind("root accuracy violation")
)

// Fatal error for the current compilation.  The method falls back to a
// previously available execution tier; the error never propagates to other
// compilations.
type CompilationError struct {
	Kind     ErrorKind
	Location parseutil.Location
	Message  string
}

func (err *CompilationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", err.Kind, err.Message, err.Location)
}

func EmitMalformedGraph(
	emitter *parseutil.Emitter,
	loc parseutil.Location,
	format string,
	args ...interface{},
) {
	emitter.EmitErrors(
		&CompilationError{
			Kind:     MalformedGraph,
			Location: loc,
			Message:  fmt.Sprintf(format, args...),
		})
}

func EmitRootAccuracyViolation(
	emitter *parseutil.Emitter,
	loc parseutil.Location,
	format string,
	args ...interface{},
) {
	emitter.EmitErrors(
		&CompilationError{
			Kind:     RootAccuracy,
			Location: loc,
			Message:  fmt.Sprintf(format, args...),
		})
}

// Returns the kind of the first compilation error in errs.
func FirstErrorKind(errs []error) (ErrorKind, bool) {
	for _, err := range errs {
		compErr := &CompilationError{}
		if errors.As(err, &compErr) {
			return compErr.Kind, true
		}
	}
	return "", false
}

func HasErrorKind(errs []error, kind ErrorKind) bool {
	for _, err := range errs {
		compErr := &CompilationError{}
		if errors.As(err, &compErr) && compErr.Kind == kind {
			return true
		}
	}
	return false
}
