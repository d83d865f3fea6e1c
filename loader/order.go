package loader

import (
	"sort"

	"github.com/Chatshop-Plugin/chatshop-sub001/component"
)

// computeOrder produces a deterministic load order for the given descriptors:
// priority ascending, id ascending as tie-break, then a depth-first
// topological sort so dependencies always precede their dependents. Ids
// sitting on a dependency cycle are excluded from the order and returned
// separately, sorted. Dependencies outside the given set are ignored here;
// the loader surfaces those per component at load time.
func computeOrder(descriptors []component.Descriptor) (order []string, cyclic []string) {
	byID := make(map[string]component.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	seeds := make([]component.Descriptor, len(descriptors))
	copy(seeds, descriptors)
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].Priority != seeds[j].Priority {
			return seeds[i].Priority < seeds[j].Priority
		}
		return seeds[i].ID < seeds[j].ID
	})

	onCycle := detectCycles(byID, seeds)

	const (
		unvisited = iota
		inProgress
		done
	)
	marks := make(map[string]int, len(byID))

	var visit func(id string)
	visit = func(id string) {
		if marks[id] != unvisited || onCycle[id] {
			return
		}
		marks[id] = inProgress
		d := byID[id]

		deps := append([]string(nil), d.Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, known := byID[dep]; !known {
				continue
			}
			visit(dep)
		}

		marks[id] = done
		order = append(order, id)
	}

	for _, d := range seeds {
		visit(d.ID)
	}

	cyclic = make([]string, 0, len(onCycle))
	for id := range onCycle {
		cyclic = append(cyclic, id)
	}
	sort.Strings(cyclic)
	return order, cyclic
}

// detectCycles marks every id reachable from itself through dependency edges
// restricted to the given set.
func detectCycles(byID map[string]component.Descriptor, seeds []component.Descriptor) map[string]bool {
	const (
		unvisited = iota
		inProgress
		done
	)

	marks := make(map[string]int, len(byID))
	onCycle := make(map[string]bool)

	var stack []string
	var visit func(id string)
	visit = func(id string) {
		marks[id] = inProgress
		stack = append(stack, id)

		for _, dep := range byID[id].Dependencies {
			if _, known := byID[dep]; !known {
				continue
			}
			switch marks[dep] {
			case inProgress:
				// Stack members from dep to the top form the cycle
				for i := len(stack) - 1; i >= 0; i-- {
					onCycle[stack[i]] = true
					if stack[i] == dep {
						break
					}
				}
			case unvisited:
				visit(dep)
			}
		}

		stack = stack[:len(stack)-1]
		marks[id] = done
	}

	for _, d := range seeds {
		if marks[d.ID] == unvisited {
			visit(d.ID)
		}
	}
	return onCycle
}
