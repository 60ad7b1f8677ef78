package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
)

// loaderBackend defines the interface a mesh file format implements.
type loaderBackend interface {
	// Load imports the triangle geometry of the file at path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *geometry.Mesh: the merged triangle mesh
	//   - error: error if loading fails
	Load(path string) (*geometry.Mesh, error)

	// LoadReader imports triangle geometry from a stream. External buffer URIs are
	// resolved against the working directory.
	//
	// Parameters:
	//   - r: the reader providing the file data
	//   - isGLB: true if the reader provides GLB binary data, false for text-based formats
	//
	// Returns:
	//   - *geometry.Mesh: the merged triangle mesh
	//   - error: error if loading fails
	LoadReader(r io.Reader, isGLB bool) (*geometry.Mesh, error)
}
