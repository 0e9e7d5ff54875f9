package servicetests

import (
	"fmt"

	"github.com/launchdarkly/service-testkit/framework/harness"
	"github.com/launchdarkly/service-testkit/framework/ldtest"
	"github.com/launchdarkly/service-testkit/servicedef"
	"github.com/launchdarkly/service-testkit/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CapabilityCallbacks means that the test service's entities can send callbacks to the harness.
const CapabilityCallbacks = "callbacks"

// AllCapabilities returns every capability that some test in ContractTests looks for.
func AllCapabilities() ldtest.Capabilities {
	return ldtest.Capabilities{CapabilityCallbacks}
}

// ContractTests verifies that a test service implements the basic service protocol. Each
// run of the class gets its own TestHarness, which is started before the first test and
// stopped after the last one.
type ContractTests struct {
	Service servicedef.ServiceDescriptor `testkit:"descriptor"`
}

// DefaultName is the name of the test that RunContractTests creates if the descriptor has no
// Name.
const DefaultName = "contract tests"

// RunContractTests runs ContractTests against the specified service, in a subtest of t named
// after the service.
func RunContractTests(
	t *ldtest.T,
	descriptor servicedef.ServiceDescriptor,
	factory testkit.Factory[servicedef.ServiceDescriptor, *harness.TestHarness],
	options ...testkit.Option,
) {
	name := descriptor.Name
	if name == "" {
		name = DefaultName
	}
	t.Run(name, func(t *ldtest.T) {
		testkit.Run(t, &ContractTests{Service: descriptor}, factory, options...)
	})
}

func (c *ContractTests) TestStatus(t *ldtest.T, kit *harness.TestHarness) {
	info := kit.TestServiceInfo()
	t.Debug("Test service reported: %+v", info)
	assert.NotEmpty(t, info.Description, "test service should describe itself")
	for _, capability := range c.Service.RequiredCapabilities {
		assert.True(t, kit.HasCapability(capability), "test service should report capability %q", capability)
	}
}

func (c *ContractTests) TestEntityLifecycle(t *ldtest.T, kit *harness.TestHarness) {
	t.Run("create and close", func(t *ldtest.T) {
		entity, err := kit.NewTestServiceEntity(servicedef.CreateEntityParams{Tag: t.ID().String()}, "entity", t.DebugLogger())
		require.NoError(t, err)
		assert.NotEmpty(t, entity.ResourceURL())
		require.NoError(t, entity.Close())
	})

	t.Run("entities are independent", func(t *ldtest.T) {
		var entities []*harness.TestServiceEntity
		for i := 0; i < 3; i++ {
			entity, err := kit.NewTestServiceEntity(
				servicedef.CreateEntityParams{Tag: fmt.Sprintf("%s/%d", t.ID(), i)},
				fmt.Sprintf("entity %d", i),
				t.DebugLogger(),
			)
			require.NoError(t, err)
			entities = append(entities, entity)
		}
		assert.NotEqual(t, entities[0].ResourceURL(), entities[1].ResourceURL())
		assert.NotEqual(t, entities[1].ResourceURL(), entities[2].ResourceURL())
		for _, e := range entities {
			require.NoError(t, e.Close())
		}
	})
}

func (c *ContractTests) TestCallbacks(t *ldtest.T, kit *harness.TestHarness) {
	requireServiceCapability(t, kit, CapabilityCallbacks)

	t.Run("single message", func(t *ldtest.T) {
		entity := NewEntity(t, kit)
		entity.SendEcho(t, "hello")
		entity.RequireEchoes(t, "hello")
	})

	t.Run("messages are delivered in order", func(t *ldtest.T) {
		entity := NewEntity(t, kit)
		entity.SendEcho(t, "first", "second", "third")
		entity.RequireEchoes(t, "first", "second", "third")
	})
}

func requireServiceCapability(t *ldtest.T, kit *harness.TestHarness, capability string) {
	if !kit.HasCapability(capability) {
		t.SkipWithReason(fmt.Sprintf("test service does not have capability %q", capability))
	}
}
