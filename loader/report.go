package loader

// Report summarizes one LoadAll pass. It is returned to the caller and
// logged, never persisted.
type Report struct {
	// Order is the realized load sequence, dependencies before dependents
	Order []string `json:"order"`

	// Loaded lists the ids with a live instance after the pass, including
	// components that were already loaded before it started
	Loaded []string `json:"loaded"`

	// Failed maps each failed id to its failure reason
	Failed map[string]string `json:"failed,omitempty"`
}

// Ok reports whether the pass completed without any component failure
func (r Report) Ok() bool {
	return len(r.Failed) == 0
}
