package component

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Chatshop-Plugin/chatshop-sub001/errors"
	"github.com/Chatshop-Plugin/chatshop-sub001/settings"
)

// SettingsKeyPrefix namespaces per-component records in the settings store.
// Ops tooling lists and edits records under this prefix directly.
const SettingsKeyPrefix = "components."

// ToggleRecord is the per-component record written to the settings store
type ToggleRecord struct {
	Enabled      bool      `json:"enabled"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Options configures a Registry
type Options struct {
	// TrustedRoot is the directory all component locators must resolve
	// inside. Defaults to "components" under the working directory.
	TrustedRoot string

	// Store persists the enabled/disabled toggle across restarts.
	// Defaults to an in-memory store.
	Store settings.Store

	// Logger for registry operations. Defaults to slog.Default().
	Logger *slog.Logger
}

// Registry is the single source of truth for which components exist and
// whether they are allowed to run. It validates descriptors at registration
// time, persists the enabled toggle, and answers dependency queries. It never
// instantiates anything; that is the loader's job.
type Registry struct {
	descriptors  map[string]*Descriptor
	enabled      map[string]bool // Runtime toggle, authoritative over Descriptor.Disabled
	store        settings.Store
	trustedRoot  string // Absolute
	logger       *slog.Logger
	onUnregister []func(id string)
	mu           sync.RWMutex
}

// NewRegistry creates an empty component registry
func NewRegistry(opts Options) (*Registry, error) {
	root := opts.TrustedRoot
	if root == "" {
		root = "components"
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "NewRegistry", "trusted root resolution")
	}

	store := opts.Store
	if store == nil {
		store = settings.NewMemory()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		descriptors: make(map[string]*Descriptor),
		enabled:     make(map[string]bool),
		store:       store,
		trustedRoot: absRoot,
		logger:      logger,
	}, nil
}

// Store returns the settings store, shared with component instances through
// the loader's Dependencies.
func (r *Registry) Store() settings.Store {
	return r.store
}

// TrustedRoot returns the absolute directory component locators resolve inside
func (r *Registry) TrustedRoot() string {
	return r.trustedRoot
}

// OnUnregister subscribes to descriptor removal. The loader uses this to tear
// down the live instance of an unregistered component.
func (r *Registry) OnUnregister(hook func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUnregister = append(r.onUnregister, hook)
}

// Register validates and stores a descriptor. On success defaults are merged
// in (priority 10, enabled, empty dependency list) and the enabled flag is
// persisted. A previously persisted toggle for the same id survives restarts
// and overrides the descriptor's own Disabled field. A failed registration
// leaves the registry unchanged.
func (r *Registry) Register(d Descriptor) error {
	if err := ValidateID(d.ID); err != nil {
		r.logger.Error("Component registration rejected", "component", d.ID, "error", err)
		return err
	}
	if err := validateStructure(&d); err != nil {
		r.logger.Error("Component registration rejected", "component", d.ID, "error", err)
		return err
	}
	if err := ValidateTarget(d.Target); err != nil {
		r.logger.Error("Component registration rejected", "component", d.ID, "error", err)
		return err
	}

	entryPath, err := resolveEntry(r.trustedRoot, d.Dir, d.EntryFile)
	if err != nil {
		wrapped := errors.WrapInvalid(err, "Registry", "Register", "locator validation")
		r.logger.Error("Component registration rejected", "component", d.ID, "error", wrapped)
		return wrapped
	}
	if err := checkEntryFile(entryPath); err != nil {
		// An unreadable entry file at registration time is a locator problem
		wrapped := errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrInvalidPath, err),
			"Registry", "Register", "entry file validation")
		r.logger.Error("Component registration rejected", "component", d.ID, "error", wrapped)
		return wrapped
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.descriptors[d.ID]; exists {
		err := errors.WrapInvalid(
			fmt.Errorf("component %q: %w", d.ID, errors.ErrDuplicateID),
			"Registry", "Register", "duplicate id check")
		r.logger.Error("Component registration rejected", "component", d.ID, "error", err)
		return err
	}

	// Merge defaults
	if d.Priority == 0 {
		d.Priority = DefaultPriority
	}
	if d.Dependencies == nil {
		d.Dependencies = []string{}
	}
	d.RegisteredAt = time.Now().UTC()

	enabled := !d.Disabled

	// A persisted toggle from a previous run wins over the descriptor's
	// registration-time value; otherwise persist the initial state.
	record, found, err := r.loadPersisted(d.ID)
	if err != nil {
		return err
	}
	if found {
		enabled = record.Enabled
		d.RegisteredAt = record.RegisteredAt
	} else {
		if err := r.persist(d.ID, ToggleRecord{Enabled: enabled, RegisteredAt: d.RegisteredAt}); err != nil {
			return err
		}
	}

	stored := d
	r.descriptors[d.ID] = &stored
	r.enabled[d.ID] = enabled

	r.logger.Info("Component registered",
		"component", d.ID,
		"priority", d.Priority,
		"enabled", enabled,
		"dependencies", len(d.Dependencies))
	return nil
}

// Unregister removes a descriptor and its persisted settings. Returns false
// if id was unknown. Live instances are not touched here; the loader listens
// on OnUnregister and tears its own state down.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	if _, exists := r.descriptors[id]; !exists {
		r.mu.Unlock()
		return false
	}

	delete(r.descriptors, id)
	delete(r.enabled, id)
	hooks := make([]func(string), len(r.onUnregister))
	copy(hooks, r.onUnregister)
	r.mu.Unlock()

	if err := r.store.Delete(SettingsKeyPrefix + id); err != nil {
		r.logger.Warn("Failed to delete persisted component settings", "component", id, "error", err)
	}

	for _, hook := range hooks {
		hook(id)
	}

	r.logger.Info("Component unregistered", "component", id)
	return true
}

// Get returns the descriptor for id with the current runtime toggle merged
// in. The registry is the authority on "enabled"; the returned copy's
// Disabled field reflects the live state, not the registration-time value.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.descriptors[id]
	if !exists {
		return Descriptor{}, false
	}
	return r.merged(d), true
}

// All returns every registered descriptor with merged enabled state,
// sorted by id for deterministic iteration.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		result = append(result, r.merged(d))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// EnabledDescriptors returns the descriptors currently allowed to load,
// sorted by id.
func (r *Registry) EnabledDescriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Descriptor, 0, len(r.descriptors))
	for id, d := range r.descriptors {
		if r.enabled[id] {
			result = append(result, r.merged(d))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Enable flips the toggle on and persists it. Returns false for unknown ids.
// It does not instantiate; callers wanting the live effect go through the
// loader afterwards.
func (r *Registry) Enable(id string) bool {
	return r.setEnabled(id, true)
}

// Disable flips the toggle off and persists it. Returns false for unknown
// ids. It does not tear down a live instance.
func (r *Registry) Disable(id string) bool {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	d, exists := r.descriptors[id]
	if !exists {
		r.mu.Unlock()
		return false
	}
	r.enabled[id] = enabled
	registeredAt := d.RegisteredAt
	r.mu.Unlock()

	if err := r.persist(id, ToggleRecord{Enabled: enabled, RegisteredAt: registeredAt}); err != nil {
		r.logger.Warn("Failed to persist component toggle", "component", id, "enabled", enabled, "error", err)
	}

	r.logger.Info("Component toggle changed", "component", id, "enabled", enabled)
	return true
}

// Dependents returns the ids of registered components that list id in their
// dependencies, sorted. Callers use this to decide a cascade policy before
// disabling something others depend on.
func (r *Registry) Dependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []string
	for otherID, d := range r.descriptors {
		for _, dep := range d.Dependencies {
			if dep == id {
				result = append(result, otherID)
				break
			}
		}
	}
	sort.Strings(result)
	return result
}

// CircularDependencies scans the whole registered set (not just enabled
// components) and returns every id that is reachable from itself through
// dependency edges, sorted. An empty result means the graph is acyclic.
func (r *Registry) CircularDependencies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	const (
		unvisited = iota
		inProgress
		done
	)

	marks := make(map[string]int, len(r.descriptors))
	cyclic := make(map[string]bool)

	var stack []string
	var visit func(id string)
	visit = func(id string) {
		marks[id] = inProgress
		stack = append(stack, id)

		if d, exists := r.descriptors[id]; exists {
			for _, dep := range d.Dependencies {
				if _, known := r.descriptors[dep]; !known {
					continue // Missing deps are a load-time error, not a cycle
				}
				switch marks[dep] {
				case inProgress:
					// Everything on the stack from dep onward is on the cycle
					for i := len(stack) - 1; i >= 0; i-- {
						cyclic[stack[i]] = true
						if stack[i] == dep {
							break
						}
					}
				case unvisited:
					visit(dep)
				}
			}
		}

		stack = stack[:len(stack)-1]
		marks[id] = done
	}

	for id := range r.descriptors {
		if marks[id] == unvisited {
			visit(id)
		}
	}

	result := make([]string, 0, len(cyclic))
	for id := range cyclic {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// EntryPath resolves and re-verifies the entry file for a registered
// component. The loader calls this on every load attempt so a file removed
// after registration surfaces as ErrEntryFileMissing rather than a
// construction failure.
func (r *Registry) EntryPath(id string) (string, error) {
	r.mu.RLock()
	d, exists := r.descriptors[id]
	r.mu.RUnlock()

	if !exists {
		return "", errors.ErrUnknownComponent
	}

	path, err := resolveEntry(r.trustedRoot, d.Dir, d.EntryFile)
	if err != nil {
		return "", err
	}
	if err := checkEntryFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// merged returns a copy of d with the runtime toggle applied.
// REQUIRES: r.mu held by caller (read or write).
func (r *Registry) merged(d *Descriptor) Descriptor {
	out := *d
	out.Disabled = !r.enabled[d.ID]
	out.Dependencies = append([]string{}, d.Dependencies...)
	return out
}

// loadPersisted reads the persisted record for id, if any
func (r *Registry) loadPersisted(id string) (ToggleRecord, bool, error) {
	raw, found, err := r.store.Get(SettingsKeyPrefix + id)
	if err != nil {
		return ToggleRecord{}, false, errors.WrapTransient(err, "Registry", "Register", "settings read")
	}
	if !found {
		return ToggleRecord{}, false, nil
	}

	var record ToggleRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		// A corrupt record is dropped rather than blocking registration
		r.logger.Warn("Discarding corrupt persisted component settings", "component", id, "error", err)
		return ToggleRecord{}, false, nil
	}
	return record, true, nil
}

// persist writes the record for id to the settings store
func (r *Registry) persist(id string, record ToggleRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.WrapInvalid(err, "Registry", "persist", "settings encode")
	}
	if err := r.store.Put(SettingsKeyPrefix+id, raw); err != nil {
		return errors.WrapTransient(err, "Registry", "persist", "settings write")
	}
	return nil
}
