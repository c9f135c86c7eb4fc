package simdevice

import (
	"errors"
	"fmt"
	"sync"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

// ErrUnknownTexture is returned for texture names the renderer never issued
// or already deleted.
var ErrUnknownTexture = errors.New("simdevice: unknown texture")

// Renderer is a cameracapture.Renderer that hands out texture names and
// surfaces and keeps count of the live ones.
type Renderer struct {
	mu       sync.Mutex
	next     uint32
	textures map[uint32]bool
	surfaces int

	// FailTexture and FailSurface make the next creations fail
	FailTexture bool
	FailSurface bool
	// FailSurfaceRelease makes Surface.Release return an error after still
	// dropping the surface
	FailSurfaceRelease bool
}

// NewRenderer returns an empty renderer.
func NewRenderer() *Renderer {
	return &Renderer{textures: make(map[uint32]bool)}
}

// GenTexture implements cameracapture.Renderer.
func (r *Renderer) GenTexture() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailTexture {
		return 0, errors.New("simdevice: out of texture names")
	}
	r.next++
	r.textures[r.next] = true
	return r.next, nil
}

// NewSurface implements cameracapture.Renderer.
func (r *Renderer) NewSurface(texture uint32) (cameracapture.Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.textures[texture] {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, texture)
	}
	if r.FailSurface {
		return nil, errors.New("simdevice: surface creation failed")
	}
	r.surfaces++
	return &surface{r: r, texture: texture}, nil
}

// DeleteTexture implements cameracapture.Renderer.
func (r *Renderer) DeleteTexture(texture uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.textures[texture] {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, texture)
	}
	delete(r.textures, texture)
	return nil
}

// LiveTextures counts textures not yet deleted.
func (r *Renderer) LiveTextures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.textures)
}

// LiveSurfaces counts surfaces not yet released.
func (r *Renderer) LiveSurfaces() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surfaces
}

type surface struct {
	r        *Renderer
	texture  uint32
	released bool
}

func (s *surface) Release() error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.released {
		return fmt.Errorf("simdevice: surface for texture %d already released", s.texture)
	}
	s.released = true
	s.r.surfaces--
	if s.r.FailSurfaceRelease {
		return fmt.Errorf("simdevice: surface for texture %d did not release cleanly", s.texture)
	}
	return nil
}
