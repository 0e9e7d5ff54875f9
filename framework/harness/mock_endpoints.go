package harness

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/launchdarkly/service-testkit/framework"
)

const maxPendingRequests = 100

// MockEndpoint represents an endpoint that can receive requests.
type MockEndpoint struct {
	owner         *TestHarness
	id            string
	description   string
	basePath      string
	handler       http.Handler
	newConns      chan IncomingRequestInfo
	cancels       map[int]context.CancelFunc
	lastRequestID int
	closed        bool
	logger        framework.Logger
	lock          sync.Mutex
}

// IncomingRequestInfo contains information about an HTTP request sent by the test service
// to one of the mock endpoints.
type IncomingRequestInfo struct {
	Headers http.Header
	Method  string
	Path    string
	Body    []byte
	Context context.Context
}

// NewMockEndpoint adds a new endpoint that can receive requests.
//
// The specified handler will be called for all incoming requests to the endpoint's
// base URL or any subpath of it. For instance, if the generated base URL (as reported
// by MockEndpoint.BaseURL()) is http://localhost:8111/endpoints/3, then it can also
// receive requests to http://localhost:8111/endpoints/3/some/subpath.
//
// When the handler is called, the test harness rewrites the request URL first so that
// the handler sees only the subpath. It also attaches a Context to the request whose
// Done channel will be closed if Close is called on the endpoint.
func (h *TestHarness) NewMockEndpoint(
	handler http.Handler,
	description string,
	logger framework.Logger,
) *MockEndpoint {
	if logger == nil {
		logger = h.logger
	}
	e := &MockEndpoint{
		owner:    h,
		handler:  handler,
		newConns: make(chan IncomingRequestInfo, maxPendingRequests),
		cancels:  make(map[int]context.CancelFunc),
		logger:   logger,
	}
	h.lock.Lock()
	h.lastEndpointID++
	e.id = strconv.Itoa(h.lastEndpointID)
	e.basePath = endpointPathPrefix + e.id
	h.endpoints[e.id] = e
	h.lock.Unlock()

	e.description = description
	if e.description == "" {
		e.description = "endpoint " + e.id
	}
	return e
}

// BaseURL returns the URL that the test service should use to reach this endpoint.
func (e *MockEndpoint) BaseURL() string {
	return e.owner.CallbackBaseURL() + e.basePath
}

// AwaitConnection waits for an incoming request to the endpoint.
func (e *MockEndpoint) AwaitConnection(timeout time.Duration) (IncomingRequestInfo, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case cxn, ok := <-e.newConns:
		if !ok {
			return IncomingRequestInfo{}, fmt.Errorf("%s was closed", e.description)
		}
		return cxn, nil
	case <-deadline.C:
		return IncomingRequestInfo{}, fmt.Errorf("timed out waiting for an incoming request to %s", e.description)
	}
}

// Close unregisters the endpoint. Any subsequent requests to it will receive 404 errors.
// It also cancels the Context for every active request to that endpoint.
func (e *MockEndpoint) Close() {
	e.owner.lock.Lock()
	delete(e.owner.endpoints, e.id)
	e.owner.lock.Unlock()

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return
	}
	e.closed = true
	cancels := e.cancels
	e.cancels = nil
	close(e.newConns)
	e.lock.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (e *MockEndpoint) beginRequest(info IncomingRequestInfo, cancel context.CancelFunc) (int, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return 0, false
	}
	e.lastRequestID++
	e.cancels[e.lastRequestID] = cancel
	select { // non-blocking push
	case e.newConns <- info:
	default:
		e.logger.Printf("Incoming connection channel was full for %s", e.description)
	}
	return e.lastRequestID, true
}

func (e *MockEndpoint) endRequest(id int) {
	e.lock.Lock()
	delete(e.cancels, id)
	e.lock.Unlock()
}
