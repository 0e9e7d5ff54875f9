package servicetests

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/launchdarkly/service-testkit/framework"
	"github.com/launchdarkly/service-testkit/framework/harness"
	"github.com/launchdarkly/service-testkit/framework/ldtest"
	"github.com/launchdarkly/service-testkit/servicedef"

	"github.com/stretchr/testify/require"
)

const awaitMessageTimeout = time.Second * 5

// Entity is an entity inside the test service, along with a mock endpoint that receives its
// callbacks.
type Entity struct {
	service       *harness.TestServiceEntity
	outputCh      chan ReceivedMessage
	errorCh       chan error
	callbackQueue *harness.MessageSortingQueue
	testEnded     chan struct{}
	logger        framework.Logger
}

// ReceivedMessage is a single callback sent to us by a test service entity.
type ReceivedMessage struct {
	servicedef.CallbackMessage
	raw string // The original JSON, for debug logging
}

func (m ReceivedMessage) String() string { return m.raw }

// NewEntity asks the test service to create an entity whose callbacks go to a new mock
// endpoint. The entity and the endpoint are closed when the test ends.
func NewEntity(t *ldtest.T, kit *harness.TestHarness) *Entity {
	e := &Entity{
		outputCh:      make(chan ReceivedMessage, 100),
		errorCh:       make(chan error, 100),
		callbackQueue: harness.NewMessageSortingQueue(100),
		testEnded:     make(chan struct{}),
		logger:        t.DebugLogger(),
	}
	t.Defer(e.callbackQueue.Close)
	t.Defer(func() { close(e.testEnded) })

	callbackEndpoint := kit.NewMockEndpoint(http.HandlerFunc(e.handleCallback), "callbacks for "+t.ID().String(), t.DebugLogger())
	t.Defer(callbackEndpoint.Close)

	params := servicedef.CreateEntityParams{
		Tag:         t.ID().String(),
		CallbackURL: callbackEndpoint.BaseURL(),
	}
	service, err := kit.NewTestServiceEntity(params, "entity", t.DebugLogger())
	require.NoError(t, err)
	t.Defer(func() {
		_ = service.Close()
	})
	e.service = service

	go e.consumeCallbacks()

	return e
}

func (e *Entity) handleCallback(w http.ResponseWriter, req *http.Request) {
	if req.Body == nil {
		e.outputError(errors.New("got callback request with no body"))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer func() { _ = req.Body.Close() }()
	data, err := io.ReadAll(req.Body)
	if err != nil {
		e.outputError(fmt.Errorf("error reading callback request body: %w", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	counter, err := strconv.Atoi(strings.TrimPrefix(req.URL.Path, "/"))
	if err != nil || counter < 1 {
		e.outputError(fmt.Errorf("callback request had invalid path %q", req.URL.Path))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	e.callbackQueue.Accept(counter, data)
	w.WriteHeader(http.StatusAccepted)
}

func (e *Entity) consumeCallbacks() {
	for data := range e.callbackQueue.C {
		message := ReceivedMessage{raw: string(data)}
		if err := json.Unmarshal(data, &message.CallbackMessage); err != nil {
			e.outputError(fmt.Errorf("malformed JSON data from test service: %s", message.raw))
			continue
		}
		e.logger.Printf("Received: %s", message.raw)
		select {
		case e.outputCh <- message:
		case <-e.testEnded:
		}
	}
	close(e.outputCh)
}

func (e *Entity) outputError(err error) {
	e.logger.Printf("Error: %s", err)
	select {
	case e.errorCh <- err:
	default:
	}
}

// SendCommand sends a command to the entity. The test fails and exits if the test service
// rejects it.
func (e *Entity) SendCommand(t *ldtest.T, params servicedef.CommandParams) {
	require.NoError(t, e.service.SendCommand(params))
}

// SendEcho asks the entity to send each of the messages back to us as a callback.
func (e *Entity) SendEcho(t *ldtest.T, messages ...string) {
	e.SendCommand(t, servicedef.CommandParams{
		Command: servicedef.CommandEcho,
		Echo:    &servicedef.EchoParams{Messages: messages},
	})
}

// AwaitMessage waits until the test service sends a callback, or until there is an error
// in handling a callback.
func (e *Entity) AwaitMessage(timeout time.Duration) (ReceivedMessage, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case m, ok := <-e.outputCh:
		if !ok {
			return ReceivedMessage{}, errors.New("callback endpoint was already closed")
		}
		return m, nil
	case err := <-e.errorCh:
		return ReceivedMessage{}, err
	case <-deadline.C:
		return ReceivedMessage{}, errors.New("timed out waiting for message from test service entity")
	}
}

// RequireMessage waits for a callback from the entity.
//
// The test fails and immediately exits if it times out without receiving anything.
func (e *Entity) RequireMessage(t *ldtest.T) ReceivedMessage {
	m, err := e.AwaitMessage(awaitMessageTimeout)
	require.NoError(t, err)
	return m
}

// RequireEchoes waits for a series of echo callbacks and verifies their content and order.
func (e *Entity) RequireEchoes(t *ldtest.T, expected ...string) {
	for i, want := range expected {
		m := e.RequireMessage(t)
		if m.Kind != servicedef.CallbackKindEcho {
			require.Fail(t, "received an unexpected message", "expected %q but got: %s", servicedef.CallbackKindEcho, m)
		}
		require.Equal(t, want, m.Message, "echo %d of %d", i+1, len(expected))
	}
}
