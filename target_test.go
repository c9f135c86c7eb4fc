package cameracapture_test

import (
	"testing"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/simdevice"
)

func TestPreviewTarget_CreateAndRelease(t *testing.T) {
	r := simdevice.NewRenderer()

	target, err := cameracapture.NewPreviewTarget(r, quietLogger())
	if err != nil {
		t.Fatalf("NewPreviewTarget() error = %v", err)
	}
	if target.Texture() == 0 || target.Surface() == nil {
		t.Fatal("target has no texture or surface")
	}
	if r.LiveTextures() != 1 || r.LiveSurfaces() != 1 {
		t.Fatalf("live textures=%d surfaces=%d, want 1 and 1", r.LiveTextures(), r.LiveSurfaces())
	}

	target.Release()
	target.Release()
	if r.LiveTextures() != 0 || r.LiveSurfaces() != 0 {
		t.Errorf("after Release: live textures=%d surfaces=%d", r.LiveTextures(), r.LiveSurfaces())
	}
}

func TestPreviewTarget_SurfaceFailureDeletesTexture(t *testing.T) {
	r := simdevice.NewRenderer()
	r.FailSurface = true

	if _, err := cameracapture.NewPreviewTarget(r, quietLogger()); err == nil {
		t.Fatal("expected an error")
	}
	if n := r.LiveTextures(); n != 0 {
		t.Errorf("texture leaked after surface failure: %d live", n)
	}
}

func TestPreviewTarget_ReleaseAlwaysDeletesTexture(t *testing.T) {
	r := simdevice.NewRenderer()
	target, err := cameracapture.NewPreviewTarget(r, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	r.FailSurfaceRelease = true
	target.Release()

	if n := r.LiveTextures(); n != 0 {
		t.Errorf("texture not deleted after a failing surface release: %d live", n)
	}
}

func TestPreviewTarget_NilRelease(t *testing.T) {
	var target *cameracapture.PreviewTarget
	target.Release()
}
