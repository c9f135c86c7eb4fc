package cameracapture

import (
	"fmt"
	"log/slog"
	"sync"
)

// Surface is a rendering surface bound to a texture.
type Surface interface {
	Release() error
}

// Renderer creates the dummy rendering objects a device needs before it
// starts streaming. Nothing ever reads from them.
type Renderer interface {
	GenTexture() (uint32, error)
	NewSurface(texture uint32) (Surface, error)
	DeleteTexture(texture uint32) error
}

// PreviewTarget owns one texture name and the surface bound to it. Both are
// released together by Release.
type PreviewTarget struct {
	renderer Renderer
	texture  uint32
	surface  Surface
	logger   *slog.Logger
	once     sync.Once
}

// NewPreviewTarget generates a texture and binds a surface to it. If the
// surface cannot be created the texture is deleted before returning.
func NewPreviewTarget(r Renderer, logger *slog.Logger) (*PreviewTarget, error) {
	if logger == nil {
		logger = slog.Default()
	}

	texture, err := r.GenTexture()
	if err != nil {
		return nil, fmt.Errorf("camera-capture: failed to generate preview texture: %w", err)
	}

	surface, err := r.NewSurface(texture)
	if err != nil {
		if derr := r.DeleteTexture(texture); derr != nil {
			logger.Warn("camera-capture: failed to delete preview texture",
				"texture", texture,
				"error", derr,
			)
		}
		return nil, fmt.Errorf("camera-capture: failed to create preview surface: %w", err)
	}

	return &PreviewTarget{
		renderer: r,
		texture:  texture,
		surface:  surface,
		logger:   logger,
	}, nil
}

// Texture returns the texture name.
func (t *PreviewTarget) Texture() uint32 {
	return t.texture
}

// Surface returns the surface bound to the texture.
func (t *PreviewTarget) Surface() Surface {
	return t.surface
}

// Release releases the surface and deletes the texture. Both steps always
// run; failures are logged. Calling Release more than once is a no-op.
func (t *PreviewTarget) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.step("release preview surface", t.surface.Release)
		t.step("delete preview texture", func() error {
			return t.renderer.DeleteTexture(t.texture)
		})
	})
}

func (t *PreviewTarget) step(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("camera-capture: panic during "+what,
				"texture", t.texture,
				"panic", r,
			)
		}
	}()
	if err := fn(); err != nil {
		t.logger.Warn("camera-capture: failed to "+what,
			"texture", t.texture,
			"error", err,
		)
	}
}
