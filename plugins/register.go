// Package plugins wires component registration hooks into a registry. Each
// feature package exposes a Hook that registers its descriptors; the host
// application collects built-in and third-party hooks and runs them once
// before the first load pass.
package plugins

import (
	stderrors "errors"
	"fmt"

	"github.com/Chatshop-Plugin/chatshop-sub001/component"
	"github.com/Chatshop-Plugin/chatshop-sub001/errors"
)

// Hook registers one feature package's components with the registry
type Hook func(*component.Registry) error

// Register runs every hook against the registry in order and stops at the
// first failure. Registrations made by earlier hooks stay in place; a failed
// hook's own partial registrations are governed by the registry's atomicity,
// one descriptor at a time.
func Register(registry *component.Registry, hooks ...Hook) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return errors.WrapFatal(
			stderrors.New("registry cannot be nil"),
			"Plugins", "Register", "registry validation")
	}

	for i, hook := range hooks {
		if hook == nil {
			return errors.WrapFatal(
				fmt.Errorf("hook %d is nil", i),
				"Plugins", "Register", "hook validation")
		}
		if err := hook(registry); err != nil {
			return errors.WrapInvalid(err, "Plugins", "Register",
				fmt.Sprintf("hook %d registration", i))
		}
	}

	return nil
}
