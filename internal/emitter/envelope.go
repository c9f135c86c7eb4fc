package emitter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

// FrameEnvelope is the MessagePack payload published for one frame.
type FrameEnvelope struct {
	Seq         uint64 `msgpack:"seq"`
	TimestampMS int64  `msgpack:"timestamp_ms"`
	SessionID   string `msgpack:"session_id"`
	TraceID     string `msgpack:"trace_id"`
	Width       int    `msgpack:"width"`
	Height      int    `msgpack:"height"`
	Rotation    int    `msgpack:"rotation"`
	Format      string `msgpack:"format"`
	Data        []byte `msgpack:"data"`
}

// ErrorEnvelope is the MessagePack payload published for a device error.
type ErrorEnvelope struct {
	TimestampMS int64  `msgpack:"timestamp_ms"`
	Category    string `msgpack:"category"`
	Error       string `msgpack:"error"`
}

// EncodeFrame JPEG-compresses the frame image and packs it with its
// metadata.
func EncodeFrame(f cameracapture.Frame, quality int) ([]byte, error) {
	if f.Image == nil {
		return nil, errors.New("emitter: frame has no image")
	}
	data, err := encodeJPEG(f.Image, quality)
	if err != nil {
		return nil, err
	}

	b := f.Image.Bounds()
	env := FrameEnvelope{
		Seq:         f.Seq,
		TimestampMS: f.Timestamp.UnixMilli(),
		SessionID:   f.SessionID,
		TraceID:     f.TraceID,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Rotation:    f.Rotation,
		Format:      "jpeg",
		Data:        data,
	}
	payload, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("emitter: failed to marshal frame envelope: %w", err)
	}
	return payload, nil
}

// DecodeFrame unpacks a payload produced by EncodeFrame.
func DecodeFrame(payload []byte) (FrameEnvelope, error) {
	var env FrameEnvelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return FrameEnvelope{}, fmt.Errorf("emitter: failed to unmarshal frame envelope: %w", err)
	}
	return env, nil
}

// EncodeError packs a device error.
func EncodeError(err error, at time.Time) ([]byte, error) {
	env := ErrorEnvelope{
		TimestampMS: at.UnixMilli(),
		Category:    cameracapture.CategoryOf(err).String(),
		Error:       err.Error(),
	}
	payload, mErr := msgpack.Marshal(&env)
	if mErr != nil {
		return nil, fmt.Errorf("emitter: failed to marshal error envelope: %w", mErr)
	}
	return payload, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("emitter: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
