package testkit

import (
	"github.com/launchdarkly/service-testkit/framework"

	"github.com/google/uuid"
)

// Extension implements the lifecycle callbacks for one kind of harness: it locates the
// descriptor of type D, builds a harness of type H from it, and manages that harness for the
// duration of a class scope.
//
// An Extension has no per-class state of its own, so one instance can serve any number of
// scopes, including scopes for classes running in parallel.
type Extension[D any, H Harness] struct {
	factory   Factory[D, H]
	logger    framework.Logger
	resolvers []ParameterResolver
}

// NewExtension creates an Extension that builds harnesses with the given factory.
func NewExtension[D any, H Harness](factory Factory[D, H], options ...Option) *Extension[D, H] {
	var opts extensionOptions
	for _, o := range options {
		o.apply(&opts)
	}
	if opts.logger == nil {
		opts.logger = framework.NullLogger()
	}
	return &Extension[D, H]{
		factory:   factory,
		logger:    opts.logger,
		resolvers: opts.resolvers,
	}
}

// NewScope creates an uninitialized scope for one run of the given test class.
func (e *Extension[D, H]) NewScope(class interface{}) *Scope[H] {
	return &Scope[H]{
		id:        uuid.New(),
		class:     class,
		className: classNameOf(class),
	}
}

// BeforeAll is called once before any test in the class runs. It locates the descriptor,
// constructs the harness, starts it, and stores it in the scope.
//
// If it returns an error, no tests in the class should run, and AfterAll should not be
// called; the scope stays Uninitialized.
func (e *Extension[D, H]) BeforeAll(scope *Scope[H]) error {
	scope.transition.Lock()
	defer scope.transition.Unlock()

	if state := scope.State(); state != Uninitialized {
		return &InternalError{Class: scope.className, Reason: "BeforeAll called for a scope that is already " + state.String()}
	}

	descriptor, err := LocateDescriptor[D](scope.class)
	if err != nil {
		return err
	}

	e.logger.Printf("Creating testkit for %s (scope %s)", scope.className, scope.id)
	h, err := e.factory(descriptor)
	if err != nil {
		return &HarnessStartError{Class: scope.className, Op: "construct", Err: err}
	}

	e.logger.Printf("Starting testkit for %s", scope.className)
	if err := h.Start(); err != nil {
		e.logger.Printf("Testkit for %s failed to start: %s", scope.className, err)
		return &HarnessStartError{Class: scope.className, Op: "start", Err: err}
	}

	scope.store.put(h)
	scope.setState(Started)
	e.logger.Printf("Testkit for %s started", scope.className)
	return nil
}

// AfterAll is called once after every test in the class has completed, regardless of their
// results. It stops the harness that BeforeAll stored and releases the scope's reference to
// it.
func (e *Extension[D, H]) AfterAll(scope *Scope[H]) error {
	scope.transition.Lock()
	defer scope.transition.Unlock()

	h, ok := scope.store.remove()
	if !ok || scope.State() != Started {
		return &InternalError{Class: scope.className, Reason: "AfterAll called but no started testkit was stored"}
	}
	scope.setState(Stopped)

	e.logger.Printf("Stopping testkit for %s (scope %s)", scope.className, scope.id)
	if err := h.Stop(); err != nil {
		e.logger.Printf("Testkit for %s did not stop cleanly: %s", scope.className, err)
		return &HarnessStopError{Class: scope.className, Err: err}
	}
	e.logger.Printf("Testkit for %s stopped", scope.className)
	return nil
}
