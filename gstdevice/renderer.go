package gstdevice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

// ErrForeignSurface is returned when a device is handed a surface that was
// not created by a gstdevice Renderer.
var ErrForeignSurface = errors.New("gstdevice: surface was not created by this renderer")

// Renderer hands out preview surfaces backed by a queue → fakesink branch.
// Texture names are only bookkeeping; nothing is drawn.
type Renderer struct {
	mu       sync.Mutex
	next     uint32
	textures map[uint32]bool
}

// NewRenderer returns an empty Renderer.
func NewRenderer() *Renderer {
	return &Renderer{textures: make(map[uint32]bool)}
}

// GenTexture implements cameracapture.Renderer.
func (r *Renderer) GenTexture() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.textures[r.next] = true
	return r.next, nil
}

// NewSurface implements cameracapture.Renderer.
func (r *Renderer) NewSurface(texture uint32) (cameracapture.Surface, error) {
	r.mu.Lock()
	known := r.textures[texture]
	r.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("gstdevice: unknown texture %d", texture)
	}

	gst.Init(nil)
	queue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("gstdevice: failed to create preview queue: %w", err)
	}
	queue.SetProperty("leaky", 2)
	sink, err := gst.NewElement("fakesink")
	if err != nil {
		return nil, fmt.Errorf("gstdevice: failed to create preview sink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("async", false)

	return &Surface{texture: texture, queue: queue, sink: sink}, nil
}

// DeleteTexture implements cameracapture.Renderer.
func (r *Renderer) DeleteTexture(texture uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.textures[texture] {
		return fmt.Errorf("gstdevice: unknown texture %d", texture)
	}
	delete(r.textures, texture)
	return nil
}

// Surface is the preview branch a Device links behind its tee.
type Surface struct {
	texture uint32
	queue   *gst.Element
	sink    *gst.Element

	mu       sync.Mutex
	released bool
}

// Texture returns the texture this surface was created for.
func (s *Surface) Texture() uint32 { return s.texture }

// Release implements cameracapture.Surface.
func (s *Surface) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	if err := s.sink.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstdevice: release preview sink: %w", err)
	}
	if err := s.queue.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstdevice: release preview queue: %w", err)
	}
	return nil
}

func (s *Surface) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
