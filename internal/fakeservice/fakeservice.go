// Package fakeservice implements a minimal test service for use in this module's own tests.
package fakeservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/launchdarkly/service-testkit/servicedef"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
)

const entitiesPath = "/entities/"

// Config controls how the fake service responds.
type Config struct {
	Description  string
	Capabilities []string

	// StatusCode is returned for status queries. The default is 200.
	StatusCode int

	// CloseStatusCode is returned when an entity is deleted. The default is 204.
	CloseStatusCode int
}

// Request is a request that the service received.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Service is a running fake test service.
type Service struct {
	config        Config
	server        *httptest.Server
	requests      []Request
	entities      map[string]servicedef.CreateEntityParams
	commands      []servicedef.CommandParams
	lastEntityID  int
	stopRequested bool
	lock          sync.Mutex
}

// Start starts a fake service on a local port.
func Start(config Config) *Service {
	if config.StatusCode == 0 {
		config.StatusCode = http.StatusOK
	}
	if config.CloseStatusCode == 0 {
		config.CloseStatusCode = http.StatusNoContent
	}
	s := &Service{config: config, entities: make(map[string]servicedef.CreateEntityParams)}
	s.server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// URL returns the base URL of the service.
func (s *Service) URL() string {
	return s.server.URL
}

// Close shuts down the service.
func (s *Service) Close() {
	s.server.Close()
}

// Requests returns every request the service has received so far.
func (s *Service) Requests() []Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]Request(nil), s.requests...)
}

// OpenEntities returns the tags of the entities that have been created and not yet deleted.
func (s *Service) OpenEntities() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	ret := make([]string, 0, len(s.entities))
	for _, p := range s.entities {
		ret = append(ret, p.Tag)
	}
	sort.Strings(ret)
	return ret
}

// Commands returns every command that has been sent to an entity.
func (s *Service) Commands() []servicedef.CommandParams {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]servicedef.CommandParams(nil), s.commands...)
}

// StopRequested returns true if the harness asked the service to exit.
func (s *Service) StopRequested() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stopRequested
}

func (s *Service) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}
	s.lock.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
	s.lock.Unlock()

	switch {
	case r.URL.Path == "/" && r.Method == http.MethodGet:
		if s.config.StatusCode != http.StatusOK {
			httphelpers.HandlerWithStatus(s.config.StatusCode).ServeHTTP(w, r)
			return
		}
		httphelpers.HandlerWithJSONResponse(
			map[string]interface{}{"description": s.config.Description, "capabilities": s.config.Capabilities},
			nil,
		).ServeHTTP(w, r)
	case r.URL.Path == "/" && r.Method == http.MethodPost:
		s.createEntity(w, r)
	case r.URL.Path == "/" && r.Method == http.MethodDelete:
		s.lock.Lock()
		s.stopRequested = true
		s.lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, entitiesPath):
		s.serveEntity(w, r, strings.TrimPrefix(r.URL.Path, entitiesPath))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Service) createEntity(w http.ResponseWriter, r *http.Request) {
	var params servicedef.CreateEntityParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.lock.Lock()
	s.lastEntityID++
	id := strconv.Itoa(s.lastEntityID)
	s.entities[id] = params
	s.lock.Unlock()
	w.Header().Set("Location", entitiesPath+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Service) serveEntity(w http.ResponseWriter, r *http.Request, id string) {
	s.lock.Lock()
	params, ok := s.entities[id]
	s.lock.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodDelete:
		s.lock.Lock()
		delete(s.entities, id)
		s.lock.Unlock()
		w.WriteHeader(s.config.CloseStatusCode)
	case http.MethodPost:
		var command servicedef.CommandParams
		if err := json.NewDecoder(r.Body).Decode(&command); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.lock.Lock()
		s.commands = append(s.commands, command)
		s.lock.Unlock()
		if command.Command != servicedef.CommandEcho || command.Echo == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := echo(params.CallbackURL, command.Echo.Messages); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// echo posts the messages in reverse order, so the receiver has to sort them by counter.
func echo(callbackURL string, messages []string) error {
	for i := len(messages) - 1; i >= 0; i-- {
		data, _ := json.Marshal(servicedef.CallbackMessage{Kind: servicedef.CallbackKindEcho, Message: messages[i]})
		resp, err := http.Post(fmt.Sprintf("%s/%d", callbackURL, i+1), "application/json", bytes.NewBuffer(data))
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("callback returned HTTP status %d", resp.StatusCode)
		}
	}
	return nil
}
