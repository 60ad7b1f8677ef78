package descriptor_table

// DescriptorTableOption is a functional option used to configure a DescriptorTable during construction.
type DescriptorTableOption func(*descriptorTable)

// WithLabel sets the debug label of the table. Defaults to the root signature name.
//
// Parameters:
//   - label: the debug label
//
// Returns:
//   - DescriptorTableOption: a function that sets the label for this table
func WithLabel(label string) DescriptorTableOption {
	return func(t *descriptorTable) {
		t.label = label
	}
}
