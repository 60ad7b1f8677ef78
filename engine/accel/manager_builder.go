package accel

// ManagerBuilderOption is a functional option applied to a manager during construction via NewManager.
type ManagerBuilderOption func(*manager)

// WithLabel sets the prefix of buffer labels and log lines. Defaults to "scene".
//
// Parameters:
//   - label: the label
//
// Returns:
//   - ManagerBuilderOption: a function that applies the label option to a manager
func WithLabel(label string) ManagerBuilderOption {
	return func(m *manager) {
		m.label = label
	}
}

// WithAlwaysRebuild disables refits: every top-level build is a full rebuild.
//
// Parameters:
//   - always: true to rebuild on every build
//
// Returns:
//   - ManagerBuilderOption: a function that applies the rebuild option to a manager
func WithAlwaysRebuild(always bool) ManagerBuilderOption {
	return func(m *manager) {
		m.alwaysRebuild = always
	}
}
