package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chatshop-Plugin/chatshop-sub001/component"
	"github.com/Chatshop-Plugin/chatshop-sub001/errors"
	"github.com/Chatshop-Plugin/chatshop-sub001/metric"
	"github.com/Chatshop-Plugin/chatshop-sub001/settings"
)

// testComponent is a controllable component instance
type testComponent struct {
	meta        component.Metadata
	activateErr error
	activated   atomic.Bool
	deactivated atomic.Bool
}

func (c *testComponent) Meta() component.Metadata {
	return c.meta
}

func (c *testComponent) Activate() error {
	if c.activateErr != nil {
		return c.activateErr
	}
	c.activated.Store(true)
	return nil
}

func (c *testComponent) Deactivate() error {
	c.deactivated.Store(true)
	return nil
}

// harness bundles a registry, loader and trusted root for a test
type harness struct {
	registry *component.Registry
	loader   *Loader
	root     string

	factoryCalls map[string]*atomic.Int32
	built        map[string]*testComponent
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	registry, err := component.NewRegistry(component.Options{
		TrustedRoot: root,
		Store:       settings.NewMemory(),
	})
	require.NoError(t, err)

	ldr, err := New(registry, Options{})
	require.NoError(t, err)

	return &harness{
		registry:     registry,
		loader:       ldr,
		root:         root,
		factoryCalls: make(map[string]*atomic.Int32),
		built:        make(map[string]*testComponent),
	}
}

// registerOption tweaks a descriptor before registration
type registerOption func(*component.Descriptor, *testComponent)

func withPriority(p int) registerOption {
	return func(d *component.Descriptor, _ *testComponent) { d.Priority = p }
}

func withDisabled() registerOption {
	return func(d *component.Descriptor, _ *testComponent) { d.Disabled = true }
}

func withActivateError(err error) registerOption {
	return func(_ *component.Descriptor, c *testComponent) { c.activateErr = err }
}

func withFactoryError(err error) registerOption {
	return func(d *component.Descriptor, _ *testComponent) {
		d.Factory = func(_ component.Dependencies) (component.Instance, error) {
			return nil, err
		}
	}
}

// register adds a component whose factory produces a tracked testComponent
func (h *harness) register(t *testing.T, id string, deps []string, opts ...registerOption) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(h.root, id), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.root, id, "main.mod"), []byte("entry"), 0o644))

	calls := &atomic.Int32{}
	h.factoryCalls[id] = calls

	instance := &testComponent{meta: component.Metadata{ID: id, Name: id, Version: "1.0.0"}}
	h.built[id] = instance

	d := component.Descriptor{
		ID:           id,
		Name:         id,
		Dir:          id,
		EntryFile:    "main.mod",
		Target:       "chatshop/modules." + id,
		Dependencies: deps,
		Version:      "1.0.0",
		Factory: func(_ component.Dependencies) (component.Instance, error) {
			calls.Add(1)
			return instance, nil
		},
	}
	for _, opt := range opts {
		opt(&d, instance)
	}
	require.NoError(t, h.registry.Register(d))
}

func TestLoadAllOrdersByPriorityAndDependency(t *testing.T) {
	h := newHarness(t)
	h.register(t, "analytics", []string{"payment"}, withPriority(1))
	h.register(t, "payment", nil, withPriority(20))
	h.register(t, "contacts", nil, withPriority(10))

	report := h.loader.LoadAll()

	assert.True(t, report.Ok())
	assert.Equal(t, []string{"payment", "analytics", "contacts"}, report.Order)
	assert.Equal(t, []string{"payment", "analytics", "contacts"}, report.Loaded)
	assert.Equal(t, report.Order, h.loader.Order())

	for _, id := range []string{"payment", "analytics", "contacts"} {
		assert.True(t, h.loader.IsLoaded(id), "%s should be loaded", id)
		instance, ok := h.loader.Instance(id)
		require.True(t, ok)
		assert.Equal(t, id, instance.Meta().ID)
		assert.True(t, h.built[id].activated.Load(), "%s should be activated", id)
	}
	assert.Len(t, h.loader.Instances(), 3)
}

func TestLoadAllIdempotent(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.register(t, "analytics", []string{"payment"})

	first := h.loader.LoadAll()
	second := h.loader.LoadAll()

	assert.True(t, second.Ok())
	assert.ElementsMatch(t, first.Loaded, second.Loaded)
	assert.Equal(t, int32(1), h.factoryCalls["payment"].Load(), "factory must run exactly once")
	assert.Equal(t, int32(1), h.factoryCalls["analytics"].Load())
}

func TestLoadAllSkipsDisabled(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.register(t, "analytics", nil, withDisabled())

	report := h.loader.LoadAll()

	assert.True(t, report.Ok())
	assert.Equal(t, []string{"payment"}, report.Loaded)
	assert.False(t, h.loader.IsLoaded("analytics"))
	assert.Zero(t, h.factoryCalls["analytics"].Load())

	state, _ := h.loader.Status("analytics")
	assert.Equal(t, component.StateDisabled, state)
}

func TestLoadAllCycleFailsContained(t *testing.T) {
	h := newHarness(t)
	h.register(t, "aa", []string{"bb"})
	h.register(t, "bb", []string{"aa"})
	h.register(t, "cc", nil)

	report := h.loader.LoadAll()

	assert.False(t, report.Ok())
	assert.Equal(t, []string{"cc"}, report.Loaded)
	assert.Contains(t, report.Failed, "aa")
	assert.Contains(t, report.Failed, "bb")
	assert.Contains(t, report.Failed["aa"], "circular dependency")

	state, reason := h.loader.Status("aa")
	assert.Equal(t, component.StateFailed, state)
	assert.Contains(t, reason, "circular dependency")
	assert.Zero(t, h.factoryCalls["aa"].Load(), "cycle members must not be constructed")
}

func TestLoadAllConstructionFailureIsolated(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.register(t, "broken", nil, withFactoryError(fmt.Errorf("db connection refused")))
	h.register(t, "reporting", []string{"broken"})

	report := h.loader.LoadAll()

	assert.False(t, report.Ok())
	assert.Equal(t, []string{"payment"}, report.Loaded)
	assert.Contains(t, report.Failed["broken"], "construction failed")
	assert.Contains(t, report.Failed["reporting"], "no live instance")

	assert.True(t, h.loader.IsLoaded("payment"))
	assert.False(t, h.loader.IsLoaded("broken"))
	assert.False(t, h.loader.IsLoaded("reporting"))
	assert.Zero(t, h.factoryCalls["reporting"].Load(), "dependents of a failure must not be constructed")

	loaderErrors := h.loader.Errors()
	assert.Len(t, loaderErrors, 2)
	assert.Contains(t, loaderErrors, "broken")
	assert.Contains(t, loaderErrors, "reporting")
}

func TestLoadAllActivationFailureDiscardsInstance(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil, withActivateError(fmt.Errorf("license check failed")))

	report := h.loader.LoadAll()

	assert.Contains(t, report.Failed["payment"], "activation failed")
	assert.False(t, h.loader.IsLoaded("payment"))
	_, ok := h.loader.Instance("payment")
	assert.False(t, ok)
}

func TestLoadAllMissingDependency(t *testing.T) {
	h := newHarness(t)
	h.register(t, "reporting", []string{"warehouse"})

	report := h.loader.LoadAll()

	assert.Contains(t, report.Failed["reporting"], "dependency not registered")
	assert.False(t, h.loader.IsLoaded("reporting"))
	assert.Zero(t, h.factoryCalls["reporting"].Load())
}

func TestLoadAllEntryFileRemovedAfterRegistration(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	require.NoError(t, os.Remove(filepath.Join(h.root, "payment", "main.mod")))

	report := h.loader.LoadAll()

	assert.Contains(t, report.Failed["payment"], "entry file")
	assert.False(t, h.loader.IsLoaded("payment"))
	assert.Zero(t, h.factoryCalls["payment"].Load())
}

func TestRetryAfterFailureClearsError(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	require.NoError(t, os.Remove(filepath.Join(h.root, "payment", "main.mod")))

	report := h.loader.LoadAll()
	assert.False(t, report.Ok())

	// Entry file restored; the next pass succeeds and clears the reason
	require.NoError(t, os.WriteFile(filepath.Join(h.root, "payment", "main.mod"), []byte("entry"), 0o644))
	report = h.loader.LoadAll()
	assert.True(t, report.Ok())
	assert.True(t, h.loader.IsLoaded("payment"))
	assert.Empty(t, h.loader.Errors())
}

func TestEnableComponentLoadsDependencyChain(t *testing.T) {
	h := newHarness(t)
	h.register(t, "base", nil)
	h.register(t, "mid", []string{"base"})
	h.register(t, "top", []string{"mid"}, withDisabled())

	h.loader.LoadAll()
	assert.False(t, h.loader.IsLoaded("top"))

	// Enabling top loads it; base and mid are already live
	require.NoError(t, h.loader.EnableComponent("top"))
	assert.True(t, h.loader.IsLoaded("top"))
	assert.Equal(t, []string{"base", "mid", "top"}, h.loader.Order())
}

func TestEnableComponentLoadsUnloadedDeps(t *testing.T) {
	h := newHarness(t)
	h.register(t, "base", nil)
	h.register(t, "top", []string{"base"}, withDisabled())

	// No LoadAll pass: enabling top must pull base in first
	require.NoError(t, h.loader.EnableComponent("top"))
	assert.True(t, h.loader.IsLoaded("base"))
	assert.True(t, h.loader.IsLoaded("top"))
	assert.Equal(t, []string{"base", "top"}, h.loader.Order())
}

func TestEnableComponentDisabledDependencyFails(t *testing.T) {
	h := newHarness(t)
	h.register(t, "base", nil, withDisabled())
	h.register(t, "top", []string{"base"}, withDisabled())

	err := h.loader.EnableComponent("top")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDependencyUnsatisfied)
	assert.False(t, h.loader.IsLoaded("top"))
	assert.False(t, h.loader.IsLoaded("base"), "a disabled dependency must not be loaded implicitly")

	// top stays enabled in the registry; the next LoadAll retries it
	d, _ := h.registry.Get("top")
	assert.True(t, d.Enabled())
}

func TestEnableComponentUnknown(t *testing.T) {
	h := newHarness(t)

	err := h.loader.EnableComponent("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownComponent)
}

func TestDisableComponentTearsDown(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.loader.LoadAll()
	require.True(t, h.loader.IsLoaded("payment"))

	require.NoError(t, h.loader.DisableComponent("payment"))

	assert.False(t, h.loader.IsLoaded("payment"))
	assert.True(t, h.built["payment"].deactivated.Load(), "Deactivate must run before removal")
	assert.Empty(t, h.loader.Order())

	d, _ := h.registry.Get("payment")
	assert.False(t, d.Enabled())

	state, _ := h.loader.Status("payment")
	assert.Equal(t, component.StateDisabled, state)
}

func TestDisableComponentUnknown(t *testing.T) {
	h := newHarness(t)

	err := h.loader.DisableComponent("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownComponent)
}

func TestDisableEnableRoundTripReactivates(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.loader.LoadAll()

	require.NoError(t, h.loader.DisableComponent("payment"))
	require.NoError(t, h.loader.EnableComponent("payment"))

	assert.True(t, h.loader.IsLoaded("payment"))
	assert.Equal(t, int32(2), h.factoryCalls["payment"].Load(), "re-enable constructs a fresh instance")
}

func TestUnregisterTearsDownInstance(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.loader.LoadAll()
	require.True(t, h.loader.IsLoaded("payment"))

	require.True(t, h.registry.Unregister("payment"))

	assert.False(t, h.loader.IsLoaded("payment"))
	assert.True(t, h.built["payment"].deactivated.Load())
	assert.Empty(t, h.loader.Order())
}

func TestStatusLifecycle(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)

	state, _ := h.loader.Status("payment")
	assert.Equal(t, component.StateRegistered, state)

	h.loader.LoadAll()
	state, _ = h.loader.Status("payment")
	assert.Equal(t, component.StateLoaded, state)

	require.NoError(t, h.loader.DisableComponent("payment"))
	state, _ = h.loader.Status("payment")
	assert.Equal(t, component.StateDisabled, state)
}

func TestHooks(t *testing.T) {
	h := newHarness(t)
	h.register(t, "payment", nil)
	h.register(t, "broken", nil, withFactoryError(fmt.Errorf("boom")))

	var loadedIDs []string
	var failedIDs []string
	var reports []Report
	h.loader.OnComponentLoaded(func(id string) { loadedIDs = append(loadedIDs, id) })
	h.loader.OnComponentError(func(id string, err error) {
		failedIDs = append(failedIDs, id)
		assert.Error(t, err)
	})
	h.loader.OnLoaded(func(r Report) { reports = append(reports, r) })

	h.loader.LoadAll()

	assert.Equal(t, []string{"payment"}, loadedIDs)
	assert.Equal(t, []string{"broken"}, failedIDs)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Failed, "broken")
}

func TestLoaderSharesSettingsStore(t *testing.T) {
	root := t.TempDir()
	store := settings.NewMemory()
	registry, err := component.NewRegistry(component.Options{TrustedRoot: root, Store: store})
	require.NoError(t, err)

	ldr, err := New(registry, Options{})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "payment"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "payment", "main.mod"), []byte("entry"), 0o644))

	var seen component.Dependencies
	require.NoError(t, registry.Register(component.Descriptor{
		ID:        "payment",
		Name:      "payment",
		Dir:       "payment",
		EntryFile: "main.mod",
		Target:    "chatshop/modules.payment",
		Factory: func(deps component.Dependencies) (component.Instance, error) {
			seen = deps
			return &testComponent{meta: component.Metadata{ID: "payment"}}, nil
		},
	}))

	report := ldr.LoadAll()
	require.True(t, report.Ok())
	assert.Same(t, store, seen.Settings, "components must receive the registry's store")
	assert.NotNil(t, seen.Logger)
}

func TestLoaderWithMetrics(t *testing.T) {
	root := t.TempDir()
	registry, err := component.NewRegistry(component.Options{TrustedRoot: root, Store: settings.NewMemory()})
	require.NoError(t, err)

	metrics := metric.NewMetricsRegistry()
	ldr, err := New(registry, Options{Metrics: metrics})
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "payment"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "payment", "main.mod"), []byte("entry"), 0o644))
	require.NoError(t, registry.Register(component.Descriptor{
		ID:        "payment",
		Name:      "payment",
		Dir:       "payment",
		EntryFile: "main.mod",
		Target:    "chatshop/modules.payment",
		Factory: func(_ component.Dependencies) (component.Instance, error) {
			return &testComponent{meta: component.Metadata{ID: "payment"}}, nil
		},
	}))

	report := ldr.LoadAll()
	require.True(t, report.Ok())

	families, err := metrics.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["chatshop_loader_loads_total"])
	assert.True(t, names["chatshop_loader_components_loaded"])
}
