package component

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Chatshop-Plugin/chatshop-sub001/errors"
)

var (
	// idPattern matches legal component ids
	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{2,50}$`)

	// targetPattern matches fully-qualified construction targets such as
	// "chatshop/payment.Processor" or "Modules.Analytics.Tracker"
	targetPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*([./\\][A-Za-z_][A-Za-z0-9_]*)+$`)
)

// reservedIDs are ids claimed by the host application itself
var reservedIDs = map[string]struct{}{
	"core":     {},
	"admin":    {},
	"system":   {},
	"internal": {},
}

// ValidateID checks that a component id is well-formed and not reserved
func ValidateID(id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidDescriptor, "Registry", "ValidateID", "empty id")
	}
	if !idPattern.MatchString(id) {
		return errors.WrapInvalid(
			fmt.Errorf("id %q must match [a-zA-Z0-9_-]{2,50}: %w", id, errors.ErrInvalidDescriptor),
			"Registry", "ValidateID", "id format validation")
	}
	if _, reserved := reservedIDs[strings.ToLower(id)]; reserved {
		return errors.WrapInvalid(
			fmt.Errorf("id %q: %w", id, errors.ErrReservedID),
			"Registry", "ValidateID", "reserved id check")
	}
	return nil
}

// ValidateTarget checks that a construction target is a plausible
// fully-qualified type name. The target is informational metadata; the
// actual construction always goes through the registered Factory.
func ValidateTarget(target string) error {
	if target == "" {
		return errors.WrapInvalid(errors.ErrInvalidDescriptor, "Registry", "ValidateTarget", "empty target")
	}
	if !targetPattern.MatchString(target) {
		return errors.WrapInvalid(
			fmt.Errorf("target %q: %w", target, errors.ErrInvalidTarget),
			"Registry", "ValidateTarget", "target format validation")
	}
	return nil
}

// validateStructure checks the required descriptor fields are present
func validateStructure(d *Descriptor) error {
	if d.Name == "" {
		return errors.WrapInvalid(
			fmt.Errorf("component %q missing name: %w", d.ID, errors.ErrInvalidDescriptor),
			"Registry", "Register", "name validation")
	}
	if d.Dir == "" || d.EntryFile == "" {
		return errors.WrapInvalid(
			fmt.Errorf("component %q missing locator: %w", d.ID, errors.ErrInvalidDescriptor),
			"Registry", "Register", "locator validation")
	}
	if d.Factory == nil {
		return errors.WrapInvalid(
			fmt.Errorf("component %q missing factory: %w", d.ID, errors.ErrInvalidDescriptor),
			"Registry", "Register", "factory validation")
	}
	for _, dep := range d.Dependencies {
		if dep == "" {
			return errors.WrapInvalid(
				fmt.Errorf("component %q has empty dependency entry: %w", d.ID, errors.ErrInvalidDescriptor),
				"Registry", "Register", "dependency list validation")
		}
	}
	return nil
}

// resolveEntry resolves a locator against the trusted root and verifies the
// entry file stays inside it. Returns the absolute entry path.
// Path traversal check adapted from the platform config loader: Clean, Abs,
// then Rel containment against the root.
func resolveEntry(root, dir, entry string) (string, error) {
	joined := filepath.Join(root, dir, entry)

	abs, err := filepath.Abs(filepath.Clean(joined))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", joined, errors.ErrInvalidPath)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("locator %q escapes trusted root: %w", filepath.Join(dir, entry), errors.ErrInvalidPath)
	}

	return abs, nil
}

// checkEntryFile verifies the resolved entry file exists, is a regular file,
// and is readable.
func checkEntryFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("entry file %q: %w", path, errors.ErrEntryFileMissing)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("entry file %q is not a regular file: %w", path, errors.ErrEntryFileMissing)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("entry file %q not readable: %w", path, errors.ErrEntryFileMissing)
	}
	return f.Close()
}
