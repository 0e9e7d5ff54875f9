package testkit

// Harness is the runtime that a test class exercises its subject through. Start is called
// exactly once, before any test in the class runs; Stop is called exactly once after the last
// test, and only if Start succeeded. Neither is retried.
//
// If the harness is used by tests that run in parallel, it is responsible for its own
// concurrency safety.
type Harness interface {
	Start() error
	Stop() error
}

// Factory constructs a harness from a test class's descriptor. It should not start it.
type Factory[D any, H Harness] func(descriptor D) (H, error)
