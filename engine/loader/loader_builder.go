package loader

import "github.com/Carmen-Shannon/oxy-rt/engine/geometry"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithMesh is an option builder that pre-populates the mesh cache.
//
// Parameters:
//   - key: the cache key for the mesh
//   - mesh: the mesh to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the mesh option to a loader
func WithMesh(key string, mesh *geometry.Mesh) LoaderBuilderOption {
	return func(l *loader) {
		if mesh != nil {
			l.meshCache[key] = mesh
		}
	}
}
