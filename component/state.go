package component

// State represents the current lifecycle state of a component as seen by the
// loader. States are tracked explicitly per id rather than inferred from map
// presence so the diagnostics surface can be exhaustive.
type State int

const (
	// StateRegistered indicates the descriptor exists but no load was attempted
	StateRegistered State = iota
	// StateDisabled indicates the component is toggled off
	StateDisabled
	// StateLoading indicates the loader is resolving this component
	StateLoading
	// StateLoaded indicates a live instance exists
	StateLoaded
	// StateFailed indicates the last load attempt failed
	StateFailed
)

// String returns a string representation of the component state
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateDisabled:
		return "disabled"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
