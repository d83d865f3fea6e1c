// Package loader instantiates registered components in dependency order. It
// owns every live instance, records per-component lifecycle state, and keeps
// one component's failure from taking down its siblings. Dependents of a
// failed component fail with a dependency error; everything else loads.
package loader

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Chatshop-Plugin/chatshop-sub001/component"
	"github.com/Chatshop-Plugin/chatshop-sub001/errors"
	"github.com/Chatshop-Plugin/chatshop-sub001/metric"
)

// Options configures a Loader
type Options struct {
	// Logger for load activity. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics receives the loader collectors. May be nil.
	Metrics *metric.MetricsRegistry
}

// Loader resolves enabled descriptors into live instances. All methods are
// safe for concurrent use; LoadAll, EnableComponent and DisableComponent
// serialize against each other.
type Loader struct {
	registry *component.Registry
	deps     component.Dependencies
	metrics  *loaderMetrics
	logger   *slog.Logger

	mu        sync.RWMutex
	instances map[string]component.Instance
	states    map[string]component.State
	reasons   map[string]string
	order     []string // live instances in load order

	hookMu      sync.Mutex
	onLoaded    []func(Report)
	onComponent []func(id string)
	onError     []func(id string, err error)
}

// New creates a loader over the given registry. The loader shares the
// registry's settings store with every component it constructs and tears
// down live instances when their descriptor is unregistered.
func New(registry *component.Registry, opts Options) (*Loader, error) {
	if registry == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil registry"), "Loader", "New", "registry validation")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newLoaderMetrics(opts.Metrics)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		registry: registry,
		deps: component.Dependencies{
			Settings: registry.Store(),
			Logger:   logger,
			Metrics:  opts.Metrics,
		},
		metrics:   metrics,
		logger:    logger,
		instances: make(map[string]component.Instance),
		states:    make(map[string]component.State),
		reasons:   make(map[string]string),
	}

	registry.OnUnregister(l.handleUnregister)
	return l, nil
}

// OnLoaded subscribes to the end of every LoadAll pass
func (l *Loader) OnLoaded(hook func(Report)) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onLoaded = append(l.onLoaded, hook)
}

// OnComponentLoaded subscribes to individual successful loads
func (l *Loader) OnComponentLoaded(hook func(id string)) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onComponent = append(l.onComponent, hook)
}

// OnComponentError subscribes to individual load failures
func (l *Loader) OnComponentError(hook func(id string, err error)) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onError = append(l.onError, hook)
}

// LoadAll loads every enabled component in dependency order: priority
// ascending, id as tie-break, dependencies before dependents. Components on
// a dependency cycle fail with ErrCircularDependency; a failed component
// fails alone, and its dependents fail with a dependency error when reached.
// Already-loaded components are left untouched and counted as loaded, so
// repeated calls are idempotent.
func (l *Loader) LoadAll() Report {
	descriptors := l.registry.EnabledDescriptors()
	order, cyclic := computeOrder(descriptors)

	l.logger.Info("Loading components",
		"enabled", len(descriptors),
		"ordered", len(order),
		"cyclic", len(cyclic))

	report := Report{Failed: make(map[string]string)}
	var loadedIDs []string
	var failures []loadFailure

	l.mu.Lock()
	for _, id := range cyclic {
		err := errors.WrapInvalid(
			fmt.Errorf("component %q: %w", id, errors.ErrCircularDependency),
			"Loader", "LoadAll", "dependency cycle check")
		l.states[id] = component.StateFailed
		l.reasons[id] = err.Error()
		report.Failed[id] = err.Error()
		failures = append(failures, loadFailure{id: id, err: err})
		l.metrics.recordLoad(id, "failed", 0)
	}

	for _, d := range descriptorsByID(descriptors, order) {
		if _, live := l.instances[d.ID]; live {
			report.Order = append(report.Order, d.ID)
			continue
		}
		if err := l.loadLocked(d); err != nil {
			report.Failed[d.ID] = err.Error()
			failures = append(failures, loadFailure{id: d.ID, err: err})
			continue
		}
		report.Order = append(report.Order, d.ID)
		loadedIDs = append(loadedIDs, d.ID)
	}

	report.Loaded = append([]string(nil), l.order...)
	l.metrics.setLoaded(len(l.instances))
	l.mu.Unlock()

	for _, id := range loadedIDs {
		l.fireLoaded(id)
	}
	for _, f := range failures {
		l.fireError(f.id, f.err)
	}
	l.fireReport(report)

	l.logger.Info("Component load pass complete",
		"loaded", len(report.Loaded),
		"failed", len(report.Failed))
	return report
}

type loadFailure struct {
	id  string
	err error
}

// loadLocked performs one load attempt. REQUIRES: l.mu held for writing.
func (l *Loader) loadLocked(d component.Descriptor) error {
	start := time.Now()
	l.states[d.ID] = component.StateLoading
	delete(l.reasons, d.ID)
	logger := l.logger.With("component", d.ID)

	fail := func(err error) error {
		l.states[d.ID] = component.StateFailed
		l.reasons[d.ID] = err.Error()
		l.metrics.recordLoad(d.ID, "failed", time.Since(start))
		logger.Error("Component load failed", "error", err)
		return err
	}

	for _, dep := range d.Dependencies {
		depDesc, registered := l.registry.Get(dep)
		if !registered {
			return fail(errors.WrapInvalid(
				fmt.Errorf("component %q requires unregistered %q: %w", d.ID, dep, errors.ErrMissingDependency),
				"Loader", "LoadAll", "dependency resolution"))
		}
		if _, live := l.instances[dep]; !live {
			reason := "not loaded"
			if !depDesc.Enabled() {
				reason = "disabled"
			}
			return fail(errors.WrapInvalid(
				fmt.Errorf("component %q requires %q (%s): %w", d.ID, dep, reason, errors.ErrDependencyUnsatisfied),
				"Loader", "LoadAll", "dependency resolution"))
		}
	}

	if _, err := l.registry.EntryPath(d.ID); err != nil {
		return fail(errors.WrapInvalid(err, "Loader", "LoadAll", "entry file check"))
	}

	instance, err := d.Factory(l.deps)
	if err != nil {
		return fail(errors.Wrap(
			fmt.Errorf("%w: %w", errors.ErrConstructionFailed, err),
			"Loader", "LoadAll", "component construction"))
	}
	if instance == nil {
		return fail(errors.Wrap(
			fmt.Errorf("factory returned nil instance: %w", errors.ErrConstructionFailed),
			"Loader", "LoadAll", "component construction"))
	}

	if activatable, ok := instance.(component.Activatable); ok {
		if err := activatable.Activate(); err != nil {
			return fail(errors.Wrap(
				fmt.Errorf("%w: %w", errors.ErrActivationFailed, err),
				"Loader", "LoadAll", "component activation"))
		}
	}

	l.instances[d.ID] = instance
	l.states[d.ID] = component.StateLoaded
	l.order = append(l.order, d.ID)
	l.metrics.recordLoad(d.ID, "loaded", time.Since(start))
	logger.Info("Component loaded", "duration", time.Since(start))
	return nil
}

// Instance returns the live instance for id, if any
func (l *Loader) Instance(id string) (component.Instance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	instance, ok := l.instances[id]
	return instance, ok
}

// Instances returns a copy of the live instance map
func (l *Loader) Instances() map[string]component.Instance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]component.Instance, len(l.instances))
	for id, instance := range l.instances {
		result[id] = instance
	}
	return result
}

// IsLoaded reports whether id has a live instance
func (l *Loader) IsLoaded(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.instances[id]
	return ok
}

// Order returns the live instances in the order they were loaded
func (l *Loader) Order() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Errors returns the failure reason for every component whose last load
// attempt failed. Successful loads clear the entry.
func (l *Loader) Errors() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]string, len(l.reasons))
	for id, reason := range l.reasons {
		result[id] = reason
	}
	return result
}

// Status returns the lifecycle state of id and, for failed components, the
// failure reason. Registered components the loader has not touched report
// StateRegistered or StateDisabled from the registry toggle.
func (l *Loader) Status(id string) (component.State, string) {
	l.mu.RLock()
	state, tracked := l.states[id]
	reason := l.reasons[id]
	l.mu.RUnlock()

	if tracked {
		return state, reason
	}
	if d, ok := l.registry.Get(id); ok && !d.Enabled() {
		return component.StateDisabled, ""
	}
	return component.StateRegistered, ""
}

// EnableComponent flips the registry toggle on and loads the component
// together with any enabled-but-unloaded dependencies, depth first. A
// disabled dependency fails the call with ErrDependencyUnsatisfied and loads
// nothing beyond the dependencies already resolved.
func (l *Loader) EnableComponent(id string) error {
	if _, ok := l.registry.Get(id); !ok {
		return errors.WrapInvalid(
			fmt.Errorf("component %q: %w", id, errors.ErrUnknownComponent),
			"Loader", "EnableComponent", "component lookup")
	}

	l.registry.Enable(id)

	l.mu.Lock()
	err := l.loadChainLocked(id, make(map[string]bool))
	l.metrics.setLoaded(len(l.instances))
	l.mu.Unlock()

	if err != nil {
		l.fireError(id, err)
		return err
	}
	l.fireLoaded(id)
	return nil
}

// loadChainLocked loads id after recursively loading its dependency chain.
// REQUIRES: l.mu held for writing.
func (l *Loader) loadChainLocked(id string, visiting map[string]bool) error {
	if _, live := l.instances[id]; live {
		return nil
	}
	if visiting[id] {
		return errors.WrapInvalid(
			fmt.Errorf("component %q: %w", id, errors.ErrCircularDependency),
			"Loader", "EnableComponent", "dependency cycle check")
	}
	visiting[id] = true
	defer delete(visiting, id)

	d, ok := l.registry.Get(id)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("component %q: %w", id, errors.ErrMissingDependency),
			"Loader", "EnableComponent", "dependency resolution")
	}

	for _, dep := range d.Dependencies {
		depDesc, registered := l.registry.Get(dep)
		if !registered {
			return errors.WrapInvalid(
				fmt.Errorf("component %q requires unregistered %q: %w", id, dep, errors.ErrMissingDependency),
				"Loader", "EnableComponent", "dependency resolution")
		}
		if !depDesc.Enabled() {
			return errors.WrapInvalid(
				fmt.Errorf("component %q requires disabled %q: %w", id, dep, errors.ErrDependencyUnsatisfied),
				"Loader", "EnableComponent", "dependency resolution")
		}
		if err := l.loadChainLocked(dep, visiting); err != nil {
			return err
		}
	}

	return l.loadLocked(d)
}

// DisableComponent tears down the live instance of id, if any, and flips the
// registry toggle off. Deactivation errors are logged, not propagated; the
// instance is removed either way. Dependents are left running; callers
// wanting a cascade consult Registry.Dependents first.
func (l *Loader) DisableComponent(id string) error {
	if _, ok := l.registry.Get(id); !ok {
		return errors.WrapInvalid(
			fmt.Errorf("component %q: %w", id, errors.ErrUnknownComponent),
			"Loader", "DisableComponent", "component lookup")
	}

	l.mu.Lock()
	l.removeLocked(id)
	l.states[id] = component.StateDisabled
	delete(l.reasons, id)
	l.metrics.setLoaded(len(l.instances))
	l.mu.Unlock()

	l.registry.Disable(id)
	return nil
}

// handleUnregister tears down loader state when the registry drops a
// descriptor.
func (l *Loader) handleUnregister(id string) {
	l.mu.Lock()
	l.removeLocked(id)
	delete(l.states, id)
	delete(l.reasons, id)
	l.metrics.setLoaded(len(l.instances))
	l.mu.Unlock()
}

// removeLocked deactivates and drops the live instance for id, if any.
// REQUIRES: l.mu held for writing.
func (l *Loader) removeLocked(id string) {
	instance, live := l.instances[id]
	if !live {
		return
	}

	if deactivatable, ok := instance.(component.Deactivatable); ok {
		if err := deactivatable.Deactivate(); err != nil {
			l.logger.Error("Component deactivation failed", "component", id, "error", err)
		}
	}

	delete(l.instances, id)
	for i, orderedID := range l.order {
		if orderedID == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.logger.Info("Component instance removed", "component", id)
}

func (l *Loader) fireLoaded(id string) {
	l.hookMu.Lock()
	hooks := append(([]func(string))(nil), l.onComponent...)
	l.hookMu.Unlock()
	for _, hook := range hooks {
		hook(id)
	}
}

func (l *Loader) fireError(id string, err error) {
	l.hookMu.Lock()
	hooks := append(([]func(string, error))(nil), l.onError...)
	l.hookMu.Unlock()
	for _, hook := range hooks {
		hook(id, err)
	}
}

func (l *Loader) fireReport(report Report) {
	l.hookMu.Lock()
	hooks := append(([]func(Report))(nil), l.onLoaded...)
	l.hookMu.Unlock()
	for _, hook := range hooks {
		hook(report)
	}
}

// descriptorsByID maps the ordered id list back onto descriptors
func descriptorsByID(descriptors []component.Descriptor, order []string) []component.Descriptor {
	byID := make(map[string]component.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}
	result := make([]component.Descriptor, 0, len(order))
	for _, id := range order {
		result = append(result, byID[id])
	}
	return result
}
