// Package testkit manages the lifecycle of a harness on behalf of a test class.
//
// A test class is a struct (normally passed by pointer) whose exported methods named Test*
// are its tests. It names the one descriptor that says what is under test, either through a
// TestDescriptor() accessor or through a single field tagged `testkit:"descriptor"`:
//
//	type OrderServiceTests struct {
//		Service servicedef.ServiceDescriptor `testkit:"descriptor"`
//	}
//
//	func (c *OrderServiceTests) TestCreateOrder(t *ldtest.T, kit *harness.TestHarness) {
//		...
//	}
//
//	testkit.Run(t, &OrderServiceTests{Service: descriptor}, harness.NewFactory())
//
// Run builds a harness from the descriptor and starts it before the first test. Every test
// method that declares a parameter of the harness type receives that same instance. The
// harness is stopped once after the last test, whether or not the tests passed. The runner
// passed to Run can be a *testing.T or an *ldtest.T.
//
// The individual lifecycle callbacks (Extension.BeforeAll, Extension.AfterAll, and the
// parameter resolver methods) are exported for runners that want to drive them directly.
package testkit
