// Package framework contains the low-level pieces shared by every part of the testkit: the
// Logger abstraction and the in-memory capturing logger that collects debug output for a
// single test.
//
// The general model is:
//
// 1. A test class declares a descriptor of the service it wants to exercise, and opts into
// the lifecycle managed by the testkit package.
//
// 2. The testkit builds a harness from that descriptor, starts it before the first test in
// the class and stops it after the last one.
//
// 3. Tests run under the ldtest runner (or Go's own testing package), which is similar to
// Go's *testing.T and accumulates success/failure results per test identifier.
//
// The concrete harness for talking to an HTTP test service, and receiving requests from it
// on mock endpoints, is in the harness subpackage.
package framework
