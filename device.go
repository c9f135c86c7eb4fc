package cameracapture

// FrameCallback receives one raw 4:2:0 frame. The driver never calls it
// concurrently with itself. data is only valid for the duration of the call.
type FrameCallback func(data []byte)

// ErrorCallback receives asynchronous device runtime errors.
type ErrorCallback func(err error)

// Driver opens camera devices by id.
type Driver interface {
	// Open acquires the device. Failure means nothing was acquired.
	Open(id int) (Device, error)
}

// Device is an opened camera. Every method except the callbacks is called
// from the controller's worker goroutine, or from ForceStop.
type Device interface {
	// Capabilities reports the supported preview sizes and modes
	Capabilities() (Capabilities, error)
	// SetParameters commits settings; the device may adjust them
	SetParameters(s Settings) error
	// PreviewSize reads back the committed preview size
	PreviewSize() (Size, error)
	// SetPreviewTarget attaches the rendering target required before
	// streaming starts. nil detaches it.
	SetPreviewTarget(t *PreviewTarget) error
	// SetFrameCallback registers cb for raw frames. nil unregisters; once
	// it returns, no new invocation of the previous callback starts.
	SetFrameCallback(cb FrameCallback)
	// SetErrorCallback registers cb for runtime errors
	SetErrorCallback(cb ErrorCallback)
	StartPreview() error
	StopPreview() error
	// Release gives the device back. The Device is unusable afterwards.
	Release() error
}
