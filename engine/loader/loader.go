package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/log"
)

var logger = log.New("loader")

// LoaderBackendType identifies the mesh file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	meshCache map[string]*geometry.Mesh

	backend loaderBackend
}

// Loader imports triangle meshes for the geometry store and caches them by name.
// The file format (glTF, GLB) is abstracted behind a backend; every triangle primitive of
// the file's default scene is merged into one mesh with node transforms applied.
type Loader interface {
	// Load imports a mesh file and caches the result by path.
	// If the mesh is already cached, the cached version is returned.
	//
	// Parameters:
	//   - path: the file path, .gltf or .glb
	//
	// Returns:
	//   - *geometry.Mesh: the loaded and cached mesh
	//   - error: error if the format is unsupported or loading fails
	Load(path string) (*geometry.Mesh, error)

	// LoadReader imports a mesh from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded mesh
	//   - r: the reader providing the file data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - *geometry.Mesh: the loaded mesh
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (*geometry.Mesh, error)

	// Get retrieves a cached mesh by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - *geometry.Mesh: the cached mesh or nil
	Get(name string) *geometry.Mesh

	// Meshes returns a copy of the mesh cache.
	//
	// Returns:
	//   - map[string]*geometry.Mesh: all cached meshes keyed by name
	Meshes() map[string]*geometry.Mesh
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:        sync.RWMutex{},
		meshCache: make(map[string]*geometry.Mesh),
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = &gltfLoaderBackend{}
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*geometry.Mesh, error) {
	if cached := l.Get(path); cached != nil {
		return cached, nil
	}

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	mesh, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return l.store(path, mesh), nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (*geometry.Mesh, error) {
	if cached := l.Get(name); cached != nil {
		return cached, nil
	}
	if l.backend == nil {
		return nil, fmt.Errorf("loader: no backend configured")
	}

	mesh, err := l.backend.LoadReader(r, isGLB)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return l.store(name, mesh), nil
}

func (l *loader) store(name string, mesh *geometry.Mesh) *geometry.Mesh {
	l.mu.Lock()
	l.meshCache[name] = mesh
	l.mu.Unlock()

	logger.Infof("loaded mesh %s: %d vertices, %d triangles", name, len(mesh.Vertices), len(mesh.Indices)/3)
	return mesh
}

func (l *loader) Get(name string) *geometry.Mesh {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meshCache[name]
}

func (l *loader) Meshes() map[string]*geometry.Mesh {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*geometry.Mesh, len(l.meshCache))
	for k, v := range l.meshCache {
		result[k] = v
	}
	return result
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		if l.backend == nil {
			return nil, fmt.Errorf("loader: no backend configured")
		}
		return l.backend, nil
	default:
		return nil, fmt.Errorf("unsupported mesh format: %s", ext)
	}
}
