package pipeline

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithMaxRecursionDepth overrides the maximum trace recursion depth of the variant configuration.
//
// Parameters:
//   - depth: the recursion depth, 1 to 31 for ray variants
//
// Returns:
//   - PipelineBuilderOption: a function that sets the recursion depth for this pipeline
func WithMaxRecursionDepth(depth uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.maxRecursionDepth = depth
	}
}

// WithPayloadSize overrides the ray payload size of the variant configuration.
//
// Parameters:
//   - size: the payload size in bytes
//
// Returns:
//   - PipelineBuilderOption: a function that sets the payload size for this pipeline
func WithPayloadSize(size uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.payloadSize = size
	}
}

// WithBlendPolicy overrides the composite blend policy of the variant configuration.
//
// Parameters:
//   - blend: the blend policy
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend policy for this pipeline
func WithBlendPolicy(blend BlendPolicy) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blend = blend
	}
}

// WithLabel sets the label used in logs and errors. Defaults to the variant name; the
// pipeline key is the label.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - PipelineBuilderOption: a function that sets the label for this pipeline
func WithLabel(label string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.label = label
	}
}
