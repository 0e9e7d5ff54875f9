// Package harness provides a testkit harness for an HTTP test service.
//
// A TestHarness queries the test service's status resource, can launch the service process
// itself, and runs an HTTP listener so that the service can send callbacks to mock endpoints.
// It asks the service to create entities and sends commands to them using a simple JSON
// protocol; see the servicedef package for the request and response formats.
package harness
