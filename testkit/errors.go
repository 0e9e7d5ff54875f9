package testkit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoDescriptor means that a test class did not declare any descriptor.
	ErrNoDescriptor = errors.New("no descriptor field found")

	// ErrAmbiguousDescriptor means that a test class declared more than one descriptor.
	ErrAmbiguousDescriptor = errors.New("ambiguous descriptor field")

	// ErrInvalidDescriptor means that the declared descriptor could not be read, or had
	// the wrong type.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrInvalidTestMethod means that a method named like a test did not have a signature
	// that the runner can call.
	ErrInvalidTestMethod = errors.New("invalid test method")
)

// ConfigurationError means that a test class is set up incorrectly. It is detected before any
// harness is built, and no tests in the class are run.
type ConfigurationError struct {
	// Class is the name of the test class type.
	Class string
	// Fields lists the offending fields or methods, if any.
	Fields []string
	// Err is one of the Err* values in this package, possibly wrapped with more detail.
	Err error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("test class %s is misconfigured: %s", e.Class, e.Err)
	if len(e.Fields) > 0 {
		msg += " (" + strings.Join(e.Fields, ", ") + ")"
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// HarnessStartError means that the harness for a test class could not be constructed or
// started. No tests in the class are run, and the harness is not stopped.
type HarnessStartError struct {
	Class string
	// Op is "construct" or "start".
	Op  string
	Err error
}

func (e *HarnessStartError) Error() string {
	return fmt.Sprintf("failed to %s testkit for %s: %s", e.Op, e.Class, e.Err)
}

func (e *HarnessStartError) Unwrap() error { return e.Err }

// HarnessStopError means that the harness for a test class did not stop cleanly. It is
// reported as a failure of the class's teardown; results of tests that already ran are not
// affected.
type HarnessStopError struct {
	Class string
	Err   error
}

func (e *HarnessStopError) Error() string {
	return fmt.Sprintf("failed to stop testkit for %s: %s", e.Class, e.Err)
}

func (e *HarnessStopError) Unwrap() error { return e.Err }

// InternalError means that the lifecycle callbacks were invoked out of order, for instance
// AfterAll without a successful BeforeAll. It indicates a bug in the runner integration.
type InternalError struct {
	Class  string
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal testkit error for %s: %s", e.Class, e.Reason)
}

// ResolutionError means that a test method parameter could not be supplied. Only the affected
// test invocation fails.
type ResolutionError struct {
	Parameter Parameter
	Reason    string
	Err       error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve %s: %s", e.Parameter, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }
