// Package component defines the descriptor model and registry for the
// ChatShop component lifecycle manager. A component is a pluggable feature
// module (payments, messaging, analytics, ...) declared by a Descriptor and
// constructed by a Factory; the registry is the single source of truth for
// what components exist and whether they are allowed to run.
package component

import (
	"time"
)

// Factory constructs a component instance. Factories are registered at
// compile time together with the descriptor; there is no runtime lookup of
// types by name. Factories must not perform I/O beyond reading their own
// settings through deps.Settings.
type Factory func(deps Dependencies) (Instance, error)

// Instance is the live artifact produced from a descriptor. The loader owns
// all instances; the rest of the application reads them through the loader.
type Instance interface {
	// Meta returns basic component information
	Meta() Metadata
}

// Activatable is an optional extension point. When a constructed instance
// implements it, the loader invokes Activate after construction; a non-nil
// error discards the instance and records an activation failure.
type Activatable interface {
	Activate() error
}

// Deactivatable is an optional extension point. When a live instance
// implements it, the loader invokes Deactivate before removing the instance
// on disable or unregister, giving it a chance to release resources.
type Deactivatable interface {
	Deactivate() error
}

// Metadata describes what a component instance is
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Descriptor is the declarative record for a component. ID is immutable once
// registered. The zero value of Disabled registers the component enabled;
// Priority 0 is treated as unset and defaulted to DefaultPriority.
type Descriptor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Dir          string    `json:"dir"`        // directory under the trusted root
	EntryFile    string    `json:"entry_file"` // entry file inside Dir
	Target       string    `json:"target"`     // fully-qualified construction target, informational
	Dependencies []string  `json:"dependencies"`
	Version      string    `json:"version"`
	Disabled     bool      `json:"disabled"`
	Priority     int       `json:"priority"` // lower loads earlier
	RegisteredAt time.Time `json:"registered_at"`
	Factory      Factory   `json:"-"`
}

// DefaultPriority is assigned to descriptors registered with Priority 0.
const DefaultPriority = 10

// Enabled reports whether the descriptor is currently allowed to load.
// Descriptors returned by the registry carry the merged runtime toggle.
func (d Descriptor) Enabled() bool {
	return !d.Disabled
}
