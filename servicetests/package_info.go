// Package servicetests contains a contract test class for HTTP test services, and the
// supporting API that its tests use to talk to the service.
//
// The lifecycle of the test harness is managed by the testkit package: the class declares
// which service it tests, and each test method receives the running harness as a parameter.
package servicetests
