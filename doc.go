// Package chatshop is the component lifecycle subsystem of the ChatShop
// platform: a registry and loader for pluggable feature components
// (payments, messaging, analytics, ...) that the host application composes
// at startup.
//
// # Architecture
//
// The subsystem splits responsibility between two packages:
//
//   - component: the Registry. Declarative descriptors, structural and
//     locator validation against a trusted root, persisted enable/disable
//     toggles, reverse-dependency lookup, and cycle scanning. The registry
//     never instantiates anything.
//   - loader: the Loader. Computes a deterministic load order (priority,
//     then dependencies before dependents), constructs each enabled
//     component exactly once through its registered factory, activates it,
//     and isolates failures so one broken component never takes down its
//     siblings.
//
// Supporting packages:
//
//   - errors: classified errors (transient/invalid/fatal) and the sentinel
//     values for registration and load failures.
//   - settings: the persistence interface for toggles and per-component
//     configuration, with in-memory and NATS JetStream KV implementations.
//   - metric: Prometheus collector registration for subsystem metrics.
//   - plugins: registration hooks that feature packages expose and the host
//     runs before the first load pass.
//   - diagnostics: data-only status snapshots for admin surfaces.
//
// # Usage
//
// A host wires the subsystem like this:
//
//	registry, err := component.NewRegistry(component.Options{
//		TrustedRoot: "components",
//		Store:       settings.NewKVStore(bucket),
//	})
//	if err != nil {
//		return err
//	}
//
//	if err := plugins.Register(registry, payment.Hook, analytics.Hook); err != nil {
//		return err
//	}
//
//	ldr, err := loader.New(registry, loader.Options{Metrics: metrics})
//	if err != nil {
//		return err
//	}
//
//	report := ldr.LoadAll()
//	for id, reason := range report.Failed {
//		logger.Warn("Component failed to load", "component", id, "reason", reason)
//	}
//
// Components declare dependencies by id; the loader guarantees a dependency
// has a live instance before its dependents construct. Disabling a component
// through the loader tears its instance down without touching dependents;
// callers wanting a cascade consult Registry.Dependents first.
package chatshop
