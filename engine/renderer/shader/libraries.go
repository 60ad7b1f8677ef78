package shader

import (
	_ "embed"
	"fmt"
)

// Keys of the built-in shader libraries.
const (
	LibraryRaytracing   = "raytracing"
	LibraryPhotonEmit   = "photon_emit"
	LibraryPhotonGather = "photon_gather"
	LibraryLightPath    = "light_path"
	LibraryForwardPath  = "forward_path"
	LibraryComposite    = "composite"
)

var (
	//go:embed assets/raytracing.wgsl
	raytracingSource string

	//go:embed assets/photon_emit.wgsl
	photonEmitSource string

	//go:embed assets/photon_gather.wgsl
	photonGatherSource string

	//go:embed assets/light_path.wgsl
	lightPathSource string

	//go:embed assets/forward_path.wgsl
	forwardPathSource string

	//go:embed assets/composite.wgsl
	compositeSource string
)

var builtinSources = map[string]string{
	LibraryRaytracing:   raytracingSource,
	LibraryPhotonEmit:   photonEmitSource,
	LibraryPhotonGather: photonGatherSource,
	LibraryLightPath:    lightPathSource,
	LibraryForwardPath:  forwardPathSource,
	LibraryComposite:    compositeSource,
}

// BuiltinLibraryKeys lists the keys of the built-in libraries in registration order.
func BuiltinLibraryKeys() []string {
	return []string{
		LibraryRaytracing,
		LibraryPhotonEmit,
		LibraryPhotonGather,
		LibraryLightPath,
		LibraryForwardPath,
		LibraryComposite,
	}
}

// BuiltinLibrary pre-processes one of the embedded libraries.
//
// Parameters:
//   - key: one of the Library* keys
//
// Returns:
//   - Library: the pre-processed library, not yet compiled
//   - error: an error if the key is unknown or the source does not pre-process
func BuiltinLibrary(key string) (Library, error) {
	source, ok := builtinSources[key]
	if !ok {
		return nil, fmt.Errorf("shader: unknown built-in library %q", key)
	}
	return NewLibraryFromSource(key, source)
}
