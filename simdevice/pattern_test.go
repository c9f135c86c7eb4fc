package simdevice_test

import (
	"bytes"
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/simdevice"
)

func TestColorBarsLayout_ConvertsToSameImage(t *testing.T) {
	const w, h = 64, 32

	ref := yuv.New(yuv.LayoutI420, 1, nil)
	defer ref.Close()
	want, err := ref.Convert(simdevice.ColorBars(w, h), w, h)
	if err != nil {
		t.Fatal(err)
	}

	for _, layout := range []yuv.Layout{yuv.LayoutI420, yuv.LayoutYV12, yuv.LayoutNV21, yuv.LayoutNV12} {
		t.Run(layout.String(), func(t *testing.T) {
			conv := yuv.New(layout, 1, nil)
			defer conv.Close()

			frame := simdevice.ColorBarsLayout(w, h, layout)
			if len(frame) != yuv.FrameSize(w, h) {
				t.Fatalf("frame length = %d, want %d", len(frame), yuv.FrameSize(w, h))
			}
			got, err := conv.Convert(frame, w, h)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, want) {
				t.Error("bars differ from the I420 rendition")
			}
		})
	}
	t.Log("✅ color bars render identically in every chroma layout")
}
