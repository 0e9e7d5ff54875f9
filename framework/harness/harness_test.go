package harness

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/launchdarkly/service-testkit/framework"
	"github.com/launchdarkly/service-testkit/internal/fakeservice"
	"github.com/launchdarkly/service-testkit/servicedef"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

func startFakeService(t *testing.T, config fakeservice.Config) *fakeservice.Service {
	service := fakeservice.Start(config)
	t.Cleanup(service.Close)
	return service
}

func startHarness(t *testing.T, descriptor servicedef.ServiceDescriptor) *TestHarness {
	h, err := New(descriptor)
	require.NoError(t, err)
	require.NoError(t, h.Start())
	return h
}

func listenerIsActive(baseURL string) bool {
	resp, err := http.Head(baseURL)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func unusedURL() string {
	server := httptest.NewServer(httphelpers.HandlerWithStatus(200))
	server.Close()
	return server.URL
}

func TestNewValidatesDescriptor(t *testing.T) {
	_, err := New(servicedef.ServiceDescriptor{})
	assert.Error(t, err)

	h, err := NewFactory()(servicedef.ServiceDescriptor{URL: "http://localhost:8000", Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", h.Descriptor().Name)
}

func TestStartQueriesStatusAndStartsListener(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{Description: "fake", Capabilities: []string{"callbacks", "other"}})
	var startup bytes.Buffer
	var logger framework.CapturingLogger
	h, err := New(servicedef.ServiceDescriptor{URL: service.URL()}, WithStartupOutput(&startup), WithLogger(&logger))
	require.NoError(t, err)

	require.NoError(t, h.Start())

	assert.Equal(t, TestServiceInfo{Description: "fake", Capabilities: []string{"callbacks", "other"}}, h.TestServiceInfo())
	assert.True(t, h.HasCapability("callbacks"))
	assert.False(t, h.HasCapability("missing"))
	assert.True(t, strings.HasPrefix(h.CallbackBaseURL(), "http://localhost:"))
	assert.True(t, listenerIsActive(h.CallbackBaseURL()))
	assert.Contains(t, startup.String(), "Connecting to test service at "+service.URL())
	assert.Contains(t, startup.String(), "Status query returned metadata")
	assert.NotEmpty(t, logger.Output())

	require.NoError(t, h.Stop())
	assert.False(t, listenerIsActive(h.CallbackBaseURL()))
	assert.False(t, service.StopRequested())
}

func TestStartAndStopRunOnlyOnce(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h, err := New(servicedef.ServiceDescriptor{URL: service.URL()})
	require.NoError(t, err)

	assert.EqualError(t, h.Stop(), "test harness was not started")
	require.NoError(t, h.Start())
	assert.EqualError(t, h.Start(), "test harness was already started")
	require.NoError(t, h.Stop())
	assert.EqualError(t, h.Stop(), "test harness was already stopped")
}

func TestStartFailsIfServiceReturnsError(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{StatusCode: 503})
	h, err := New(servicedef.ServiceDescriptor{URL: service.URL()})
	require.NoError(t, err)

	err = h.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test service returned status code 503")
	assert.False(t, listenerIsActive(h.CallbackBaseURL()), "listener should be shut down after a failed start")
}

func TestStartTimesOutIfServiceIsUnreachable(t *testing.T) {
	h, err := New(servicedef.ServiceDescriptor{URL: unusedURL(), StartupTimeoutMS: ldvalue.NewOptionalInt(300)})
	require.NoError(t, err)

	started := time.Now()
	err = h.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out connecting to test service")
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestStartFailsIfRequiredCapabilityIsMissing(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{Capabilities: []string{"a"}})
	h, err := New(servicedef.ServiceDescriptor{URL: service.URL(), RequiredCapabilities: []string{"a", "b", "c"}})
	require.NoError(t, err)

	assert.EqualError(t, h.Start(), "test service does not have required capabilities: b, c")
}

func TestStartFailsIfServiceProcessExits(t *testing.T) {
	h, err := New(servicedef.ServiceDescriptor{
		URL:              unusedURL(),
		Command:          "sh -c 'exit 3'",
		StartupTimeoutMS: ldvalue.NewOptionalInt(5000),
	})
	require.NoError(t, err)

	err = h.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test service process exited before responding")
}

func TestStartFailsForInvalidCommand(t *testing.T) {
	for _, command := range []string{"unterminated 'quote", "/nonexistent/test-service-binary"} {
		t.Run(command, func(t *testing.T) {
			h, err := New(servicedef.ServiceDescriptor{URL: unusedURL(), Command: command})
			require.NoError(t, err)
			assert.Error(t, h.Start())
		})
	}
}

func TestLaunchedProcessIsKilledOnStop(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL(), Command: "sleep 60"})

	h.lock.Lock()
	p := h.process
	h.lock.Unlock()
	require.NotNil(t, p)

	require.NoError(t, h.Stop())
	select {
	case <-p.exited:
	default:
		assert.Fail(t, "process should have exited")
	}
}

func TestStopClosesEntitiesAndTellsServiceToStop(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL(), StopServiceAtEnd: true})

	_, err := h.NewTestServiceEntity(servicedef.CreateEntityParams{Tag: "a"}, "entity a", nil)
	require.NoError(t, err)
	b, err := h.NewTestServiceEntity(servicedef.CreateEntityParams{Tag: "b"}, "entity b", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, service.OpenEntities())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, []string{"a"}, service.OpenEntities())

	endpoint := h.NewMockEndpoint(httphelpers.HandlerWithStatus(200), "", nil)

	require.NoError(t, h.Stop())
	assert.Empty(t, service.OpenEntities())
	assert.True(t, service.StopRequested())
	_, err = endpoint.AwaitConnection(time.Millisecond)
	assert.EqualError(t, err, "endpoint 1 was closed")
}

func TestStopReportsEntityCloseFailure(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{CloseStatusCode: 500})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL()})

	_, err := h.NewTestServiceEntity(servicedef.CreateEntityParams{Tag: "a"}, "entity a", nil)
	require.NoError(t, err)

	err = h.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing entity entity a: DELETE request to test service returned HTTP status 500")
	assert.False(t, listenerIsActive(h.CallbackBaseURL()), "listener should be shut down even if an entity could not be closed")
}

func TestNewTestServiceEntityReportsServiceError(t *testing.T) {
	handler := httphelpers.HandlerForMethod("GET", httphelpers.HandlerWithJSONResponse(TestServiceInfo{}, nil),
		httphelpers.HandlerWithResponse(400, nil, []byte("bad params")))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		h := startHarness(t, servicedef.ServiceDescriptor{URL: server.URL})
		defer h.Stop()

		_, err := h.NewTestServiceEntity(servicedef.CreateEntityParams{Tag: "a"}, "entity a", nil)
		assert.EqualError(t, err, "unexpected response status 400 from test service: bad params")
	})
}

func TestMockEndpointReceivesRequests(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL()})
	defer h.Stop()

	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(202))
	endpoint := h.NewMockEndpoint(handler, "my endpoint", nil)
	assert.Equal(t, h.CallbackBaseURL()+"/endpoints/1", endpoint.BaseURL())

	resp, err := http.Post(endpoint.BaseURL()+"/sub/path", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 202, resp.StatusCode)

	info, err := endpoint.AwaitConnection(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "POST", info.Method)
	assert.Equal(t, "/sub/path", info.Path)
	assert.Equal(t, "hello", string(info.Body))

	received := <-requests
	assert.Equal(t, "/sub/path", received.Request.URL.Path)
	assert.Equal(t, "hello", string(received.Body))

	_, err = endpoint.AwaitConnection(time.Millisecond * 10)
	assert.EqualError(t, err, "timed out waiting for an incoming request to my endpoint")

	endpoint.Close()
	resp, err = http.Post(endpoint.BaseURL(), "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRequestsToUnknownPathsAreRejected(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL()})
	defer h.Stop()

	for _, path := range []string{"/", "/other", "/endpoints/99"} {
		resp, err := http.Get(h.CallbackBaseURL() + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 404, resp.StatusCode, path)
	}
}

func TestSendCommandDeliversCallbacks(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL()})
	defer h.Stop()

	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(202))
	endpoint := h.NewMockEndpoint(handler, "", nil)
	entity, err := h.NewTestServiceEntity(servicedef.CreateEntityParams{Tag: "e", CallbackURL: endpoint.BaseURL()}, "e", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entity.ResourceURL(), service.URL()+"/entities/"))

	require.NoError(t, entity.SendCommand(servicedef.CommandParams{
		Command: servicedef.CommandEcho,
		Echo:    &servicedef.EchoParams{Messages: []string{"one", "two"}},
	}))

	var paths []string
	for i := 0; i < 2; i++ {
		paths = append(paths, (<-requests).Request.URL.Path)
	}
	assert.Equal(t, []string{"/2", "/1"}, paths)
	assert.Len(t, service.Commands(), 1)

	err = entity.SendCommand(servicedef.CommandParams{Command: "unknown"})
	assert.EqualError(t, err, "command returned HTTP status 400")
}

func TestHarnessHostOnlyAppearsInCallbackURLs(t *testing.T) {
	service := startFakeService(t, fakeservice.Config{})
	h := startHarness(t, servicedef.ServiceDescriptor{URL: service.URL(), HarnessHost: "harness.invalid"})
	defer h.Stop()

	baseURL := h.CallbackBaseURL()
	require.True(t, strings.HasPrefix(baseURL, "http://harness.invalid:"), baseURL)
	port := strings.TrimPrefix(baseURL, "http://harness.invalid:")
	assert.True(t, listenerIsActive("http://127.0.0.1:"+port))

	endpoint := h.NewMockEndpoint(httphelpers.HandlerWithStatus(200), "", nil)
	assert.Equal(t, baseURL+"/endpoints/1", endpoint.BaseURL())
}
