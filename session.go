package cameracapture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/rotate"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
)

// captureSession owns one opened device and its preview target for the
// lifetime of a single open/close cycle.
//
// Lifecycle methods run on the controller worker, except forceClose. The
// frame callback runs on the device delivery goroutine; it checks state
// under frameMu, which close also takes after flipping state, so no frame is
// delivered once close returns.
type captureSession struct {
	driver    Driver
	renderer  Renderer
	converter *yuv.Converter
	sink      Sink
	stats     *counters
	logger    *slog.Logger

	state   atomic.Int32 // SessionState
	frameMu sync.Mutex   // held while a frame is processed
	seq     uint64       // guarded by frameMu

	converterOnce sync.Once
	// orphaned asks the frame in flight to close the converter on exit.
	orphaned atomic.Bool

	mu     sync.Mutex // guards the fields below
	id     string
	device Device
	target *PreviewTarget
	forced bool
	neg    NegotiatedParameters

	// Set by open before the callback is registered, read by the callback.
	dst     *image.RGBA
	onError func(error)
}

func newCaptureSession(driver Driver, renderer Renderer, converter *yuv.Converter, sink Sink, stats *counters, logger *slog.Logger) *captureSession {
	return &captureSession{
		driver:    driver,
		renderer:  renderer,
		converter: converter,
		sink:      sink,
		stats:     stats,
		logger:    logger,
	}
}

// open brings the device up and starts previewing.
//
// Steps, in order:
//  1. Acquire the device (failure leaves nothing behind)
//  2. Stop any default preview and clear any default callback
//  3. Negotiate size and modes against the device capabilities
//  4. Commit parameters and read back the actual preview size
//  5. Size converter buffers and the destination image
//  6. Attach a preview target, register the frame callback, start streaming
//
// Any failure after step 1 releases everything acquired so far.
func (s *captureSession) open(p OpenParams) (NegotiatedParameters, error) {
	if !s.state.CompareAndSwap(int32(SessionClosed), int32(SessionOpening)) {
		return NegotiatedParameters{}, fmt.Errorf("camera-capture: session is %s, cannot open", SessionState(s.state.Load()))
	}

	dev, err := s.driver.Open(p.CameraID)
	if err != nil {
		s.state.Store(int32(SessionClosed))
		return NegotiatedParameters{}, fmt.Errorf("camera-capture: open camera %d: %w: %w", p.CameraID, ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	if s.forced {
		s.mu.Unlock()
		s.safely("release device", dev.Release)
		s.state.Store(int32(SessionClosed))
		return NegotiatedParameters{}, fmt.Errorf("camera-capture: open camera %d: %w: force closed", p.CameraID, ErrDeviceUnavailable)
	}
	s.id = uuid.New().String()
	s.device = dev
	s.onError = p.OnError
	s.mu.Unlock()

	fail := func(step string, err error) (NegotiatedParameters, error) {
		s.logger.Error("camera-capture: failed to open session",
			"camera_id", p.CameraID,
			"step", step,
			"error", err,
		)
		s.teardown(false)
		return NegotiatedParameters{}, fmt.Errorf("camera-capture: %s: %w: %w", step, ErrDeviceUnavailable, err)
	}

	dev.SetErrorCallback(s.onDeviceError)
	s.safely("stop default preview", dev.StopPreview)
	dev.SetFrameCallback(nil)

	caps, err := dev.Capabilities()
	if err != nil {
		return fail("query capabilities", err)
	}
	settings := negotiate(p, caps)
	if settings.PreviewSize != (Size{Width: p.Width, Height: p.Height}) {
		s.logger.Info("camera-capture: requested preview size not supported, using fallback",
			"camera_id", p.CameraID,
			"requested", Size{Width: p.Width, Height: p.Height}.String(),
			"fallback", settings.PreviewSize.String(),
		)
	}
	s.logIgnored(p, settings)

	if err := dev.SetParameters(settings); err != nil {
		return fail("commit parameters", err)
	}
	size, err := dev.PreviewSize()
	if err != nil {
		return fail("read preview size", err)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return fail("read preview size", fmt.Errorf("invalid preview size %s", size))
	}

	neg := NegotiatedParameters{
		Size:            size,
		FocusMode:       settings.FocusMode,
		ColorEffect:     settings.ColorEffect,
		SceneMode:       settings.SceneMode,
		ZoomIndex:       settings.ZoomIndex,
		RotationDegrees: rotate.Normalize(p.RotationDegrees),
	}
	if settings.ZoomIndex >= 0 {
		neg.ZoomRatio = caps.ZoomRatios[settings.ZoomIndex]
	}

	if err := s.converter.Prepare(size.Width, size.Height); err != nil {
		s.teardown(false)
		return NegotiatedParameters{}, fmt.Errorf("camera-capture: prepare converter: %w: %w", ErrConversionResourceExhausted, err)
	}
	s.dst = image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))

	target, err := NewPreviewTarget(s.renderer, s.logger)
	if err != nil {
		return fail("create preview target", err)
	}
	s.mu.Lock()
	s.target = target
	s.neg = neg
	s.mu.Unlock()

	if err := dev.SetPreviewTarget(target); err != nil {
		return fail("attach preview target", err)
	}

	// Previewing must be visible before the first frame can arrive. A
	// concurrent forceClose moves the state away from Opening, which fails
	// the swap.
	if !s.state.CompareAndSwap(int32(SessionOpening), int32(SessionPreviewing)) {
		return fail("start preview", fmt.Errorf("session force closed during open"))
	}
	s.stats.startedAt.Store(time.Now().UnixNano())
	dev.SetFrameCallback(s.onFrame)
	if err := dev.StartPreview(); err != nil {
		return fail("start preview", err)
	}

	s.logger.Info("camera-capture: session opened",
		"camera_id", p.CameraID,
		"session_id", s.id,
		"resolution", size.String(),
		"focus", neg.FocusMode,
		"zoom_ratio", neg.ZoomRatio,
		"effect", neg.ColorEffect,
		"scene", neg.SceneMode,
		"rotation", neg.RotationDegrees,
	)
	return neg, nil
}

func (s *captureSession) logIgnored(p OpenParams, st Settings) {
	ignored := func(kind, requested, applied string) {
		if requested != "" && applied == "" {
			s.logger.Debug("camera-capture: unsupported parameter ignored",
				"camera_id", p.CameraID,
				"parameter", kind,
				"requested", requested,
			)
		}
	}
	ignored("focus", p.Focus, st.FocusMode)
	ignored("effect", p.Effect, st.ColorEffect)
	ignored("scene", p.Scene, st.SceneMode)
	if p.Zoom != "" && st.ZoomIndex < 0 {
		ignored("zoom", p.Zoom, "")
	}
}

// onFrame is the device frame callback.
func (s *captureSession) onFrame(data []byte) {
	defer s.closeOrphanedConverter()
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	s.stats.received.Add(1)

	if SessionState(s.state.Load()) != SessionPreviewing {
		s.stats.droppedState.Add(1)
		return
	}
	if len(data) == 0 {
		s.stats.droppedEmpty.Add(1)
		s.logger.Debug("camera-capture: dropping empty frame", "session_id", s.id)
		return
	}

	size := s.neg.Size
	if want := size.FrameBytes(); len(data) != want {
		s.stats.droppedMismatch.Add(1)
		s.logger.Warn("camera-capture: dropping frame",
			"session_id", s.id,
			"error", ErrFrameSizeMismatch,
			"resolution", size.String(),
			"expected_bytes", want,
			"got_bytes", len(data),
		)
		return
	}

	s.process(data, size.Width, size.Height)
}

// process converts, rotates and delivers one frame. Failures anywhere on
// this path drop the frame and keep the session running.
func (s *captureSession) process(data []byte, width, height int) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.droppedConvert.Add(1)
			s.logger.Error("camera-capture: dropping frame",
				"session_id", s.id,
				"error", ErrConversionResourceExhausted,
				"panic", r,
			)
		}
	}()

	now := time.Now()
	if err := s.converter.ConvertInto(s.dst, data, width, height); err != nil {
		s.stats.droppedConvert.Add(1)
		s.logger.Error("camera-capture: dropping frame",
			"session_id", s.id,
			"error", fmt.Errorf("%w: %w", ErrConversionResourceExhausted, err),
		)
		return
	}

	rotation := s.neg.RotationDegrees
	s.seq++
	frame := Frame{
		Seq:       s.seq,
		Timestamp: now,
		SessionID: s.id,
		TraceID:   uuid.New().String(),
		Image:     rotate.Rotate(s.dst, rotation),
		Rotation:  rotation,
	}
	s.sink.Deliver(frame)

	s.stats.delivered.Add(1)
	s.stats.lastFrameAt.Store(time.Now().UnixNano())
	s.logger.Debug("camera-capture: frame delivered",
		"session_id", s.id,
		"seq", frame.Seq,
		"trace_id", frame.TraceID,
	)
}

func (s *captureSession) onDeviceError(err error) {
	s.stats.deviceErrors.Add(1)
	s.mu.Lock()
	id, onError := s.id, s.onError
	s.mu.Unlock()

	s.logger.Error("camera-capture: device runtime error",
		"session_id", id,
		"category", CategoryOf(err).String(),
		"error", err,
	)
	if onError != nil {
		onError(err)
	}
}

// close stops streaming and releases the preview target and the device.
// Idempotent; failures are logged.
func (s *captureSession) close() {
	s.teardown(false)
}

// forceClose is close for callers outside the worker. It never panics and
// does not wait for an in-flight frame. It reports whether the frame
// callback was quiescent.
func (s *captureSession) forceClose() (quiescent bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("camera-capture: panic during force close", "panic", r)
			quiescent = false
		}
	}()
	return s.teardown(true)
}

func (s *captureSession) teardown(force bool) (quiescent bool) {
	s.mu.Lock()
	if force {
		s.forced = true
	}
	dev, target, id := s.device, s.target, s.id
	s.device, s.target = nil, nil
	s.mu.Unlock()

	if dev == nil && target == nil {
		if force {
			s.state.CompareAndSwap(int32(SessionOpening), int32(SessionClosing))
		}
		return true
	}

	s.state.Store(int32(SessionClosing))
	if dev != nil {
		s.safely("stop preview", dev.StopPreview)
		dev.SetFrameCallback(nil)
	}

	// Wait for a frame that passed the state check before Closing landed.
	quiescent = true
	if force {
		if s.frameMu.TryLock() {
			s.frameMu.Unlock()
		} else {
			quiescent = false
			s.logger.Warn("camera-capture: frame still in flight during force close", "session_id", id)
		}
	} else {
		s.frameMu.Lock()
		s.frameMu.Unlock()
	}

	if dev != nil {
		s.safely("detach preview target", func() error { return dev.SetPreviewTarget(nil) })
	}
	target.Release()
	if dev != nil {
		s.safely("release device", dev.Release)
	}
	s.state.Store(int32(SessionClosed))

	s.logger.Info("camera-capture: session closed",
		"session_id", id,
		"forced", force,
		"frames_delivered", s.stats.delivered.Load(),
	)
	return quiescent
}

// safely runs a release step, logging errors and panics.
func (s *captureSession) safely(what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("camera-capture: panic during "+what, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Warn("camera-capture: failed to "+what, "error", err)
	}
}

func (s *captureSession) negotiated() NegotiatedParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neg
}

func (s *captureSession) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// converterStats reads converter counters between frames.
func (s *captureSession) converterStats() yuv.Stats {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	return s.converter.Stats()
}

// closeConverter closes the converter between frames. Only the first call
// has an effect.
func (s *captureSession) closeConverter() {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.closeConverterLocked()
}

func (s *captureSession) closeConverterLocked() {
	s.converterOnce.Do(func() { s.converter.Close() })
}

// closeConverterWhenIdle closes the converter now if no frame is in flight,
// otherwise leaves it to that frame. It never blocks.
func (s *captureSession) closeConverterWhenIdle() (closedNow bool) {
	s.orphaned.Store(true)
	if !s.frameMu.TryLock() {
		return false
	}
	defer s.frameMu.Unlock()
	s.closeConverterLocked()
	return true
}

// closeOrphanedConverter runs after every frame has released frameMu.
func (s *captureSession) closeOrphanedConverter() {
	if s.orphaned.Load() {
		s.closeConverter()
	}
}
