// Package diagnostics produces data-only status snapshots of the component
// subsystem. It exposes structured data for admin surfaces and log exports;
// rendering is the caller's concern.
package diagnostics

import (
	"time"

	"github.com/Chatshop-Plugin/chatshop-sub001/component"
	"github.com/Chatshop-Plugin/chatshop-sub001/loader"
)

// ComponentStatus is one component's combined registry and loader view
type ComponentStatus struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Version      string    `json:"version,omitempty"`
	State        string    `json:"state"`
	Reason       string    `json:"reason,omitempty"`
	Enabled      bool      `json:"enabled"`
	Priority     int       `json:"priority"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Dependents   []string  `json:"dependents,omitempty"`
	LoadPosition int       `json:"load_position"` // -1 when not loaded
	RegisteredAt time.Time `json:"registered_at"`
}

// Snapshot returns the status of every registered component, sorted by id.
// It reads registry and loader state at one point in time; a load pass
// running concurrently may be partially reflected.
func Snapshot(registry *component.Registry, ldr *loader.Loader) []ComponentStatus {
	positions := make(map[string]int)
	for i, id := range ldr.Order() {
		positions[id] = i
	}

	descriptors := registry.All()
	result := make([]ComponentStatus, 0, len(descriptors))
	for _, d := range descriptors {
		state, reason := ldr.Status(d.ID)

		position := -1
		if p, loaded := positions[d.ID]; loaded {
			position = p
		}

		result = append(result, ComponentStatus{
			ID:           d.ID,
			Name:         d.Name,
			Version:      d.Version,
			State:        state.String(),
			Reason:       reason,
			Enabled:      d.Enabled(),
			Priority:     d.Priority,
			Dependencies: d.Dependencies,
			Dependents:   registry.Dependents(d.ID),
			LoadPosition: position,
			RegisteredAt: d.RegisteredAt,
		})
	}
	return result
}
