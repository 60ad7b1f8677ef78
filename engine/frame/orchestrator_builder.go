package frame

// OrchestratorBuilderOption is a functional option applied to an orchestrator during construction via NewOrchestrator.
type OrchestratorBuilderOption func(*orchestrator)

// WithLabel sets the prefix of pipeline keys, buffer labels and log lines. Defaults to the scene name.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the label option to an orchestrator
func WithLabel(label string) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		if label != "" {
			o.label = label
		}
	}
}

// WithPhotonCapacity sets how many photons the photon buffer holds. Defaults to DefaultPhotonCapacity.
//
// Parameters:
//   - capacity: the photon count
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the capacity option to an orchestrator
func WithPhotonCapacity(capacity int) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.photonCapacity = capacity
	}
}

// WithAlwaysRebuild makes every acceleration structure update a full rebuild instead of a refit.
//
// Parameters:
//   - always: true to rebuild on every update
//
// Returns:
//   - OrchestratorBuilderOption: a function that applies the rebuild option to an orchestrator
func WithAlwaysRebuild(always bool) OrchestratorBuilderOption {
	return func(o *orchestrator) {
		o.alwaysRebuild = always
	}
}
