package testkit

import (
	"errors"
	"strings"
	"testing"

	"github.com/launchdarkly/service-testkit/framework"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeAllAndAfterAll(t *testing.T) {
	f := newFakeFactory()
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})
	assert.Equal(t, Uninitialized, scope.State())
	assert.Equal(t, "singleFieldClass", scope.ClassName())

	require.NoError(t, ext.BeforeAll(scope))
	assert.Equal(t, Started, scope.State())
	h, err := scope.Harness()
	require.NoError(t, err)
	assert.Equal(t, "D1", h.descriptor)

	require.NoError(t, ext.AfterAll(scope))
	assert.Equal(t, Stopped, scope.State())
	assert.Equal(t, []string{"construct D1", "start D1", "stop D1"}, f.log.all())

	_, ok := scope.store.get()
	assert.False(t, ok, "scope should not retain the harness after AfterAll")
	_, err = scope.Harness()
	var re *ResolutionError
	assert.True(t, errors.As(err, &re))
}

func TestBeforeAllConfigurationErrorBuildsNothing(t *testing.T) {
	f := newFakeFactory()
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&noFieldClass{})

	err := ext.BeforeAll(scope)
	requireConfigurationError(t, err, ErrNoDescriptor)
	assert.Equal(t, Uninitialized, scope.State())
	assert.Empty(t, f.log.all())
}

func TestBeforeAllConstructFailure(t *testing.T) {
	f := newFakeFactory()
	f.constructErr = errors.New("bad descriptor")
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})

	err := ext.BeforeAll(scope)
	var se *HarnessStartError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "construct", se.Op)
	assert.Equal(t, "failed to construct testkit for singleFieldClass: bad descriptor", err.Error())
	assert.Equal(t, Uninitialized, scope.State())
}

func TestBeforeAllStartFailureDoesNotStop(t *testing.T) {
	f := newFakeFactory()
	startErr := errors.New("port in use")
	f.startErr = startErr
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})

	err := ext.BeforeAll(scope)
	var se *HarnessStartError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "start", se.Op)
	assert.True(t, errors.Is(err, startErr))
	assert.Equal(t, Uninitialized, scope.State())

	_, ok := scope.store.get()
	assert.False(t, ok)

	err = ext.AfterAll(scope)
	var ie *InternalError
	assert.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"construct D1", "start D1"}, f.log.all())
}

func TestAfterAllWithoutBeforeAllIsInternalError(t *testing.T) {
	f := newFakeFactory()
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})

	err := ext.AfterAll(scope)
	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "singleFieldClass", ie.Class)
	assert.Empty(t, f.log.all())
}

func TestBeforeAllTwiceIsInternalError(t *testing.T) {
	f := newFakeFactory()
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})
	require.NoError(t, ext.BeforeAll(scope))

	err := ext.BeforeAll(scope)
	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, f.log.count("start D1"))
}

func TestAfterAllTwiceStopsOnce(t *testing.T) {
	f := newFakeFactory()
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})
	require.NoError(t, ext.BeforeAll(scope))
	require.NoError(t, ext.AfterAll(scope))

	err := ext.AfterAll(scope)
	var ie *InternalError
	assert.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, f.log.count("stop D1"))
}

func TestStopFailureIsReportedAndScopeIsClosed(t *testing.T) {
	f := newFakeFactory()
	stopErr := errors.New("container would not exit")
	f.stopErr = stopErr
	ext := NewExtension(f.construct)
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})
	require.NoError(t, ext.BeforeAll(scope))

	err := ext.AfterAll(scope)
	var se *HarnessStopError
	require.True(t, errors.As(err, &se))
	assert.True(t, errors.Is(err, stopErr))
	assert.Equal(t, Stopped, scope.State())
	_, ok := scope.store.get()
	assert.False(t, ok)
}

func TestScopesHaveDistinctIDs(t *testing.T) {
	ext := NewExtension(newFakeFactory().construct)
	a := ext.NewScope(&singleFieldClass{})
	b := ext.NewScope(&singleFieldClass{})
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestLifecycleIsLogged(t *testing.T) {
	var logger framework.CapturingLogger
	ext := NewExtension(newFakeFactory().construct, WithLogger(&logger))
	scope := ext.NewScope(&singleFieldClass{Service: "D1"})
	require.NoError(t, ext.BeforeAll(scope))
	require.NoError(t, ext.AfterAll(scope))

	var messages []string
	for _, m := range logger.Output() {
		messages = append(messages, m.Message)
	}
	require.Len(t, messages, 5)
	assert.True(t, strings.HasPrefix(messages[0], "Creating testkit for singleFieldClass (scope "+scope.ID().String()))
	assert.Equal(t, "Starting testkit for singleFieldClass", messages[1])
	assert.Equal(t, "Testkit for singleFieldClass started", messages[2])
	assert.True(t, strings.HasPrefix(messages[3], "Stopping testkit for singleFieldClass"))
	assert.Equal(t, "Testkit for singleFieldClass stopped", messages[4])
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestContextStore(t *testing.T) {
	var s contextStore[*fakeHarness]
	_, ok := s.get()
	assert.False(t, ok)

	h := &fakeHarness{}
	s.put(h)
	got, ok := s.get()
	assert.True(t, ok)
	assert.Same(t, h, got)

	removed, ok := s.remove()
	assert.True(t, ok)
	assert.Same(t, h, removed)
	got, ok = s.get()
	assert.False(t, ok)
	assert.Nil(t, got)

	_, ok = s.remove()
	assert.False(t, ok)
}
