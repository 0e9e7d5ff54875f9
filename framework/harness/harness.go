package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/service-testkit/framework"
	"github.com/launchdarkly/service-testkit/servicedef"
	"github.com/launchdarkly/service-testkit/testkit"

	"golang.org/x/sync/errgroup"
)

const endpointPathPrefix = "/endpoints/"
const listenerPollInterval = time.Millisecond * 10

type harnessState int

const (
	stateCreated harnessState = iota
	stateStarted
	stateStopped
)

// TestHarness manages the connection to one test service. It implements testkit.Harness.
//
// All of its methods are safe to call from parallel tests once Start has returned.
type TestHarness struct {
	descriptor      servicedef.ServiceDescriptor
	externalBaseURL string
	testServiceInfo TestServiceInfo
	endpoints       map[string]*MockEndpoint
	entities        map[*TestServiceEntity]struct{}
	lastEndpointID  int
	server          *http.Server
	process         *serviceProcess
	logger          framework.Logger
	startupOutput   io.Writer
	serviceOutput   io.Writer
	state           harnessState
	lock            sync.Mutex
	stateLock       sync.Mutex
}

// New creates a TestHarness for the given test service. It only validates the descriptor;
// nothing is launched or contacted until Start is called.
func New(descriptor servicedef.ServiceDescriptor, options ...Option) (*TestHarness, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	var opts harnessOptions
	for _, o := range options {
		o.apply(&opts)
	}
	if opts.logger == nil {
		opts.logger = framework.NullLogger()
	}
	if opts.startupOutput == nil {
		opts.startupOutput = io.Discard
	}
	if opts.serviceOutput == nil {
		opts.serviceOutput = io.Discard
	}
	return &TestHarness{
		descriptor:    descriptor,
		endpoints:     make(map[string]*MockEndpoint),
		entities:      make(map[*TestServiceEntity]struct{}),
		logger:        opts.logger,
		startupOutput: opts.startupOutput,
		serviceOutput: opts.serviceOutput,
	}, nil
}

// NewFactory returns a testkit.Factory that calls New with the given options.
func NewFactory(options ...Option) testkit.Factory[servicedef.ServiceDescriptor, *TestHarness] {
	return func(descriptor servicedef.ServiceDescriptor) (*TestHarness, error) {
		return New(descriptor, options...)
	}
}

// Descriptor returns the descriptor that the harness was created with.
func (h *TestHarness) Descriptor() servicedef.ServiceDescriptor {
	return h.descriptor
}

// Start starts the callback listener and, if the descriptor has a Command, the test service
// process. It then waits until the test service responds to a status query, and checks that
// it reports every required capability.
//
// Both steps run concurrently and share the descriptor's startup timeout. If Start fails,
// anything it did start is shut down again.
func (h *TestHarness) Start() error {
	h.stateLock.Lock()
	defer h.stateLock.Unlock()
	if h.state != stateCreated {
		return errors.New("test harness was already started")
	}
	h.state = stateStarted

	ctx, cancel := context.WithTimeout(context.Background(), h.descriptor.StartupTimeout())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.startListener(ctx)
	})
	g.Go(func() error {
		var exited <-chan struct{}
		if h.descriptor.Command != "" {
			p, err := startServiceProcess(h.descriptor, h.serviceOutput, h.logger)
			if err != nil {
				return err
			}
			h.lock.Lock()
			h.process = p
			h.lock.Unlock()
			exited = p.exited
		}
		info, err := queryTestServiceInfo(ctx, h.descriptor.URL, exited, h.startupOutput)
		if err != nil {
			return err
		}
		h.lock.Lock()
		h.testServiceInfo = info
		h.lock.Unlock()
		return nil
	})
	err := g.Wait()
	if err == nil {
		if missing := h.missingCapabilities(); len(missing) > 0 {
			err = fmt.Errorf("test service does not have required capabilities: %s", strings.Join(missing, ", "))
		}
	}
	if err != nil {
		h.state = stateStopped
		if shutdownErr := h.shutdown(); shutdownErr != nil {
			h.logger.Printf("Error while cleaning up after failed start: %s", shutdownErr)
		}
		return err
	}
	h.logger.Printf("Test service %s is %q", h.descriptor.DisplayName(), h.TestServiceInfo().Description)
	return nil
}

// Stop closes all mock endpoints and test service entities that are still open, tells the
// test service to exit if StopServiceAtEnd was set, shuts down the callback listener, and
// terminates the test service process if the harness launched it. Every step is attempted
// even if an earlier one fails.
func (h *TestHarness) Stop() error {
	h.stateLock.Lock()
	defer h.stateLock.Unlock()
	switch h.state {
	case stateCreated:
		return errors.New("test harness was not started")
	case stateStopped:
		return errors.New("test harness was already stopped")
	}
	h.state = stateStopped

	h.lock.Lock()
	endpoints := make([]*MockEndpoint, 0, len(h.endpoints))
	for _, e := range h.endpoints {
		endpoints = append(endpoints, e)
	}
	entities := make([]*TestServiceEntity, 0, len(h.entities))
	for e := range h.entities {
		entities = append(entities, e)
	}
	h.lock.Unlock()

	var errs []error
	for _, e := range entities {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing entity %s: %w", e.description, err))
		}
	}
	for _, e := range endpoints {
		e.Close()
	}
	if h.descriptor.StopServiceAtEnd {
		h.logger.Printf("Telling test service to stop")
		if err := h.StopService(); err != nil {
			errs = append(errs, fmt.Errorf("stopping test service: %w", err))
		}
	}
	if err := h.shutdown(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *TestHarness) shutdown() error {
	h.lock.Lock()
	server, process := h.server, h.process
	h.server, h.process = nil, nil
	h.lock.Unlock()

	var errs []error
	if server != nil {
		if err := server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing callback listener: %w", err))
		}
	}
	if process != nil {
		if err := process.stop(h.descriptor.StopServiceAtEnd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TestServiceInfo returns the status information that the test service reported at startup.
func (h *TestHarness) TestServiceInfo() TestServiceInfo {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.testServiceInfo
}

// HasCapability returns true if the test service reported the given capability.
func (h *TestHarness) HasCapability(desired string) bool {
	for _, capability := range h.TestServiceInfo().Capabilities {
		if capability == desired {
			return true
		}
	}
	return false
}

func (h *TestHarness) missingCapabilities() []string {
	var missing []string
	for _, c := range h.descriptor.RequiredCapabilities {
		if !h.HasCapability(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// CallbackBaseURL returns the base URL that the test service uses to reach the harness.
func (h *TestHarness) CallbackBaseURL() string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.externalBaseURL
}

// startListener listens on HarnessPort on all interfaces. HarnessHost is only used in the
// URLs given to the test service, since it may name this machine as seen from a container.
func (h *TestHarness) startListener(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", h.descriptor.HarnessPort))
	if err != nil {
		return fmt.Errorf("could not start callback listener: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	server := &http.Server{Handler: http.HandlerFunc(h.serveHTTP)}

	h.lock.Lock()
	h.server = server
	h.externalBaseURL = fmt.Sprintf("http://%s:%d", h.descriptor.EffectiveHarnessHost(), port)
	h.lock.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Printf("Callback listener stopped unexpectedly: %s", err)
		}
	}()

	// Wait till the server is definitely listening for requests before we run any tests
	selfURL := fmt.Sprintf("http://localhost:%d", port)
	ticker := time.NewTicker(listenerPollInterval)
	defer ticker.Stop()
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodHead, selfURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				h.logger.Printf("Callback listener is active on port %d", port)
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("could not detect own listener on port %d: %w", port, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (h *TestHarness) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK) // we use this to test whether our own listener is active yet
		return
	}

	if !strings.HasPrefix(req.URL.Path, endpointPathPrefix) {
		h.logger.Printf("Received request for unrecognized URL path %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(req.URL.Path, endpointPathPrefix)
	var endpointID string
	slashPos := strings.Index(path, "/")
	if slashPos >= 0 {
		endpointID = path[0:slashPos]
		path = path[slashPos:]
	} else {
		endpointID = path
		path = ""
	}

	h.lock.Lock()
	e := h.endpoints[endpointID]
	h.lock.Unlock()
	if e == nil {
		h.logger.Printf("Received request for unrecognized endpoint %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			h.logger.Printf("Unexpected error trying to read request body: %s", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = data
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	requestID, ok := e.beginRequest(IncomingRequestInfo{
		Headers: req.Header,
		Method:  req.Method,
		Path:    path,
		Body:    body,
		Context: ctx,
	}, cancel)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer e.endRequest(requestID)

	transformedReq := req.WithContext(ctx)
	url := *req.URL
	url.Path = path
	transformedReq.URL = &url
	if body != nil {
		transformedReq.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	e.handler.ServeHTTP(w, transformedReq)
}
