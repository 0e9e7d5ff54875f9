package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/launchdarkly/service-testkit/framework"
)

const statusPollInterval = time.Millisecond * 100

// TestServiceInfo is status information returned by the test service from the initial status query.
type TestServiceInfo struct {
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// TestServiceEntity represents some kind of entity that we have asked the test service to create,
// which the test harness will interact with.
type TestServiceEntity struct {
	owner       *TestHarness
	resourceURL string
	description string
	logger      framework.Logger
	closeOnce   sync.Once
	closeErr    error
}

func queryTestServiceInfo(
	ctx context.Context,
	serviceURL string,
	exited <-chan struct{},
	output io.Writer,
) (TestServiceInfo, error) {
	fmt.Fprintf(output, "Connecting to test service at %s", serviceURL)

	for {
		fmt.Fprintf(output, ".")
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, serviceURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			fmt.Fprintln(output)
			return readTestServiceInfo(resp, output)
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(output)
			return TestServiceInfo{}, fmt.Errorf("timed out connecting to test service at %s, result of last query was: %w", serviceURL, err)
		case <-exited:
			fmt.Fprintln(output)
			return TestServiceInfo{}, fmt.Errorf("test service process exited before responding at %s", serviceURL)
		case <-time.After(statusPollInterval):
		}
	}
}

func readTestServiceInfo(resp *http.Response, output io.Writer) (TestServiceInfo, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TestServiceInfo{}, fmt.Errorf("test service returned status code %d", resp.StatusCode)
	}
	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return TestServiceInfo{}, err
	}
	if len(respData) == 0 {
		fmt.Fprintf(output, "Status query successful, but service provided no metadata\n")
		return TestServiceInfo{}, nil
	}
	fmt.Fprintf(output, "Status query returned metadata: %s\n", string(respData))
	var info TestServiceInfo
	if err := json.Unmarshal(respData, &info); err != nil {
		return TestServiceInfo{}, fmt.Errorf("malformed status response from test service: %s", string(respData))
	}
	return info, nil
}

// StopService tells the test service that it should exit.
func (h *TestHarness) StopService() error {
	resp, err := sendJSON(http.MethodDelete, h.descriptor.URL, nil)
	if err != nil {
		// the service may quit before it gets around to responding
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("service returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// NewTestServiceEntity asks the test service to create one of the entities it manages, and
// returns a handle for interacting with it. The entity stays active inside the test service
// until Close is called on it or the harness is stopped.
//
// The service defines the format of entityParams; they are sent as the JSON encoding of
// whatever value is passed.
func (h *TestHarness) NewTestServiceEntity(
	entityParams interface{},
	description string,
	logger framework.Logger,
) (*TestServiceEntity, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}

	logger.Printf("Creating test service entity (%s)", description)
	resp, err := sendJSON(http.MethodPost, h.descriptor.URL, entityParams)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var message string
		if body, _ := io.ReadAll(resp.Body); len(body) > 0 {
			message = ": " + string(body)
		}
		return nil, fmt.Errorf("unexpected response status %d from test service%s", resp.StatusCode, message)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, errors.New("test service did not return a Location header with a resource URL")
	}

	e := &TestServiceEntity{
		owner:       h,
		resourceURL: resolveLocation(h.descriptor.URL, location),
		description: description,
		logger:      logger,
	}
	h.lock.Lock()
	h.entities[e] = struct{}{}
	h.lock.Unlock()
	return e, nil
}

// ResourceURL returns the URL that the test service assigned to this entity.
func (e *TestServiceEntity) ResourceURL() string {
	return e.resourceURL
}

// Close tells the test service to dispose of this entity. Only the first call has any effect.
func (e *TestServiceEntity) Close() error {
	e.closeOnce.Do(func() {
		e.owner.lock.Lock()
		delete(e.owner.entities, e)
		e.owner.lock.Unlock()

		e.logger.Printf("Closing test service entity (%s)", e.description)
		resp, err := sendJSON(http.MethodDelete, e.resourceURL, nil)
		if err != nil {
			e.closeErr = err
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			e.closeErr = fmt.Errorf("DELETE request to test service returned HTTP status %d", resp.StatusCode)
		}
	})
	return e.closeErr
}

// SendCommand posts a command to the entity. The parameters are sent as JSON.
func (e *TestServiceEntity) SendCommand(params interface{}) error {
	e.logger.Printf("Sending command to %s", e.description)
	resp, err := sendJSON(http.MethodPost, e.resourceURL, params)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("command returned HTTP status %d", resp.StatusCode)
	}
	return nil
}

// sendJSON sends a request with body encoded as JSON, or with no body if body is nil.
func sendJSON(method, target string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

// resolveLocation interprets a Location header relative to the service URL.
func resolveLocation(serviceURL, location string) string {
	base, err := url.Parse(serviceURL)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}
