package cameracapture

import (
	"fmt"
	"image"
	"time"
)

// Size is a preview resolution in pixels.
type Size struct {
	Width  int
	Height int
}

// String returns the size as "WxH".
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// FrameBytes returns the byte length of a 4:2:0 frame of this size.
func (s Size) FrameBytes() int {
	return s.Width * s.Height * 3 / 2
}

// OpenParams describes the session a Controller should open.
//
// Focus, Zoom, Effect and Scene are optional: the empty string means "not
// requested". Values the device does not support are ignored, never
// reported as errors.
type OpenParams struct {
	// CameraID selects the device handed to Driver.Open
	CameraID int
	// Width and Height are the desired preview size. The first supported
	// size is used when the device does not offer this one.
	Width  int
	Height int
	// Focus is a focus mode name (e.g. "continuous-video")
	Focus string
	// Zoom is a zoom ratio in hundredths ("100" = 1.0x, "200" = 2.0x)
	Zoom string
	// Effect is a color effect name (e.g. "mono")
	Effect string
	// Scene is a scene mode name (e.g. "night")
	Scene string
	// RotationDegrees rotates every delivered image clockwise
	RotationDegrees int
	// OnError receives asynchronous device runtime errors. The session is
	// not closed automatically; that decision belongs to the caller.
	OnError func(error)
}

// Capabilities lists the values a device accepts, in the device's order of
// preference.
type Capabilities struct {
	PreviewSizes  []Size
	FocusModes    []string
	ColorEffects  []string
	SceneModes    []string
	ZoomSupported bool
	// ZoomRatios are in hundredths, indexed by zoom step
	ZoomRatios []int
}

// Settings is the parameter set committed to a device in one call.
type Settings struct {
	PreviewSize Size
	// Empty mode strings leave the device default in place
	FocusMode   string
	ColorEffect string
	SceneMode   string
	// ZoomIndex is an index into Capabilities.ZoomRatios; -1 leaves zoom alone
	ZoomIndex int
}

// NegotiatedParameters is what a session actually runs with after the device
// accepted its settings. Fixed for the lifetime of one session.
type NegotiatedParameters struct {
	// Size is the preview size read back from the device after commit
	Size Size
	// FocusMode, ColorEffect and SceneMode are empty when not applied
	FocusMode   string
	ColorEffect string
	SceneMode   string
	// ZoomRatio is the applied ratio in hundredths (0 when not applied)
	ZoomRatio int
	// ZoomIndex is the applied zoom step (-1 when not applied)
	ZoomIndex int
	// RotationDegrees is the normalized clockwise rotation in [0, 360)
	RotationDegrees int
}

// Frame is one converted and rotated image handed to a Sink.
type Frame struct {
	// Seq is the monotonic sequence number within the session
	Seq uint64
	// Timestamp is when the raw frame reached the session
	Timestamp time.Time
	// SessionID identifies the capture session that produced the frame
	SessionID string
	// TraceID is a unique identifier for distributed tracing
	TraceID string
	// Image is owned by the receiver; the pipeline never touches it again
	Image *image.RGBA
	// Rotation is the clockwise rotation already applied to Image
	Rotation int
}

// Sink receives delivered frames. Deliver runs inline on the frame delivery
// goroutine and must not block indefinitely. It must not call Stop or Stats
// on the controller that feeds it; both wait for Deliver to return.
type Sink interface {
	Deliver(Frame)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Frame)

// Deliver calls f(frame).
func (f SinkFunc) Deliver(frame Frame) {
	f(frame)
}

// SessionState is the lifecycle state of a capture session.
type SessionState int32

const (
	SessionClosed SessionState = iota
	SessionOpening
	SessionPreviewing
	SessionClosing
)

// String returns a human-readable name for the state.
func (s SessionState) String() string {
	switch s {
	case SessionClosed:
		return "closed"
	case SessionOpening:
		return "opening"
	case SessionPreviewing:
		return "previewing"
	case SessionClosing:
		return "closing"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// ControllerState is the lifecycle state of a Controller.
type ControllerState int32

const (
	// StateIdle means no worker has been started yet
	StateIdle ControllerState = iota
	// StateRunning means the worker is alive and the session is previewing
	StateRunning
	// StateStopped is terminal; a stopped controller cannot be restarted
	StateStopped
)

// String returns a human-readable name for the state.
func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("ControllerState(%d)", int32(s))
	}
}
