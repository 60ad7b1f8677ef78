package loader

import (
	"io"

	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
)

// gltfLoaderBackend is the loaderBackend for glTF and GLB files.
type gltfLoaderBackend struct{}

var _ loaderBackend = &gltfLoaderBackend{}

func (b *gltfLoaderBackend) Load(path string) (*geometry.Mesh, error) {
	p := &gltfParser{}
	if err := p.parseFile(path); err != nil {
		return nil, err
	}
	return (&gltfMeshExtractor{parser: p}).extract()
}

func (b *gltfLoaderBackend) LoadReader(r io.Reader, isGLB bool) (*geometry.Mesh, error) {
	p := &gltfParser{}
	if err := p.parseReader(r, isGLB); err != nil {
		return nil, err
	}
	return (&gltfMeshExtractor{parser: p}).extract()
}
