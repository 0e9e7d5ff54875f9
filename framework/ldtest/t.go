package ldtest

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/launchdarkly/service-testkit/framework"
)

// TestConfiguration holds the parameters that apply to an entire test run.
type TestConfiguration struct {
	// Filter, if not nil, determines which tests are run. Tests that are filtered out are
	// reported to the TestLogger as skipped.
	Filter Filter

	// TestLogger receives notifications about each test. If nil, nothing is reported.
	TestLogger TestLogger

	// Context is an arbitrary value that tests can retrieve with T.Context().
	Context interface{}

	// Capabilities is the set of optional features that the system under test supports.
	Capabilities Capabilities
}

type environment struct {
	config  TestConfiguration
	results Results
	lock    sync.Mutex
}

// T represents a test or subtest.
//
// It implements the same basic functionality as Go's testing.T, so it can be passed to the
// assert and require packages, but it runs in an environment that is outside of the Go test
// runner.
type T struct {
	env         *environment
	id          TestID
	debugLogger framework.CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	cleanups    []func()
	lock        sync.Mutex
}

// Run executes a test run. The action function receives the root T, and normally calls its
// Run method for each top-level test.
func Run(
	config TestConfiguration,
	action func(*T),
) Results {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	env := &environment{config: config}
	t := &T{env: env}
	t.run(action)
	return env.results
}

func (t *T) run(action func(*T)) {
	defer func() {
		if r := recover(); r != nil {
			t.recovered(r)
		}
		t.runCleanups()
		t.env.record(t)
	}()

	action(t)
}

func (t *T) recovered(r interface{}) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.skipped {
		return
	}
	t.failed = true
	var addError error
	if _, ok := r.(*T); ok {
		if len(t.errors) == 0 {
			addError = errors.New("test failed with no failure message")
		}
	} else {
		addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
	}
	if addError != nil {
		t.errors = append(t.errors, addError)
		t.env.config.TestLogger.TestError(t.id, addError)
	}
}

func (t *T) runCleanups() {
	for {
		t.lock.Lock()
		n := len(t.cleanups)
		if n == 0 {
			t.lock.Unlock()
			return
		}
		fn := t.cleanups[n-1]
		t.cleanups = t.cleanups[:n-1]
		t.lock.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.recovered(r)
				}
			}()
			fn()
		}()
	}
}

func (e *environment) record(t *T) {
	t.lock.Lock()
	result := TestResult{TestID: t.id, Errors: t.errors, Skipped: t.skipped}
	failed := t.failed && !t.skipped
	t.lock.Unlock()

	if len(t.id.Path) == 0 && !failed {
		return
	}
	e.lock.Lock()
	e.results.Tests = append(e.results.Tests, result)
	if failed {
		e.results.Failures = append(e.results.Failures, result)
	}
	e.lock.Unlock()
}

// ID returns the identifier of this test.
func (t *T) ID() TestID {
	return t.id
}

// Run runs a subtest. This is equivalent to the Run method of testing.T. It returns false if
// the subtest failed.
func (t *T) Run(name string, action func(*T)) bool {
	id := t.id.Plus(name)
	logger := t.env.config.TestLogger

	logger.TestStarted(id)
	if t.env.config.Filter != nil && !t.env.config.Filter(id) {
		logger.TestSkipped(id, "excluded by filter parameters")
		return true
	}
	t1 := &T{
		id:  id,
		env: t.env,
	}
	t1.run(action)
	if t1.skipped {
		logger.TestSkipped(id, t1.skipReason)
		return true
	}
	logger.TestFinished(id, t1.failed, t1.debugLogger.Output())
	return !t1.failed
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	t.lock.Lock()
	t.failed = true
	t.errors = append(t.errors, err)
	t.lock.Unlock()
	t.env.config.TestLogger.TestError(t.id, err)
}

// FailNow causes the test to immediately fail and exit. The methods in the require package
// call FailNow.
func (t *T) FailNow() {
	t.lock.Lock()
	t.failed = true
	t.lock.Unlock()
	panic(t)
}

// Failed returns true if the test has failed so far.
func (t *T) Failed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.failed
}

// Skip causes the test to immediately exit and be reported as skipped.
func (t *T) Skip() {
	t.lock.Lock()
	t.skipped = true
	t.lock.Unlock()
	panic(t)
}

// SkipWithReason is the same as Skip, but provides an explanation to the test logger.
func (t *T) SkipWithReason(reason string) {
	t.lock.Lock()
	t.skipReason = reason
	t.lock.Unlock()
	t.Skip()
}

// Defer schedules a function to be called when this test ends, whether it passes, fails, or
// is skipped. Deferred functions run in last-in-first-out order, before the test's result is
// recorded; a failure inside one is attributed to this test.
func (t *T) Defer(fn func()) {
	t.lock.Lock()
	t.cleanups = append(t.cleanups, fn)
	t.lock.Unlock()
}

// Cleanup is the same as Defer. It has the same name as the corresponding method of
// testing.T so that code can be written against either runner.
func (t *T) Cleanup(fn func()) {
	t.Defer(fn)
}

// Debug logs some debug output for the test. The output will be passed to the test logger at
// the end of the test.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns a Logger that writes to this test's debug output.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Context returns the value that was set in TestConfiguration.Context.
func (t *T) Context() interface{} {
	return t.env.config.Context
}

// Capabilities returns the capabilities that were set in TestConfiguration.Capabilities.
func (t *T) Capabilities() Capabilities {
	return t.env.config.Capabilities
}

// RequireCapability skips this test if the specified capability was not declared.
func (t *T) RequireCapability(capability string) {
	if !t.Capabilities().Has(capability) {
		t.SkipWithReason(fmt.Sprintf("test service does not have capability %q", capability))
	}
}
