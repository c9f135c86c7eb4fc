package cameracapture

import (
	"sync/atomic"
	"time"
)

// CaptureStats contains current capture statistics
type CaptureStats struct {
	// State is the controller lifecycle state
	State ControllerState
	// SessionState is the capture session state
	SessionState SessionState
	// SessionID identifies the current (or last) session
	SessionID string
	// Resolution is the negotiated preview size (e.g. "640x480")
	Resolution string
	// FramesReceived counts every raw frame handed to the callback
	FramesReceived uint64
	// FramesDelivered counts frames handed to the sink
	FramesDelivered uint64
	// DroppedNotPreviewing counts frames that arrived outside Previewing
	DroppedNotPreviewing uint64
	// DroppedEmpty counts nil or zero-length frames
	DroppedEmpty uint64
	// DroppedSizeMismatch counts frames whose length did not match the
	// negotiated size
	DroppedSizeMismatch uint64
	// DroppedConversion counts frames lost to conversion, rotation or sink
	// failures
	DroppedConversion uint64
	// DeviceErrors counts asynchronous device runtime errors
	DeviceErrors uint64
	// FPSReal is delivered frames per second since the session started
	FPSReal float64
	// LatencyMS is the time since the last delivered frame in milliseconds
	LatencyMS int64
	// ConverterInputAllocs and ConverterOutputAllocs count staging buffer
	// (re)allocations
	ConverterInputAllocs  uint64
	ConverterOutputAllocs uint64
	// ConverterBytes is the size of live converter buffers
	ConverterBytes int
}

// DropRate is the percentage of received frames that were not delivered.
func (s CaptureStats) DropRate() float64 {
	if s.FramesReceived == 0 || s.FramesDelivered >= s.FramesReceived {
		return 0
	}
	dropped := s.FramesReceived - s.FramesDelivered
	return float64(dropped) / float64(s.FramesReceived) * 100
}

// counters are updated from the frame callback and read from any goroutine.
type counters struct {
	received        atomic.Uint64
	delivered       atomic.Uint64
	droppedState    atomic.Uint64
	droppedEmpty    atomic.Uint64
	droppedMismatch atomic.Uint64
	droppedConvert  atomic.Uint64
	deviceErrors    atomic.Uint64
	startedAt       atomic.Int64 // unix nanos
	lastFrameAt     atomic.Int64 // unix nanos
}

func (c *counters) fill(s *CaptureStats, now time.Time) {
	s.FramesReceived = c.received.Load()
	s.FramesDelivered = c.delivered.Load()
	s.DroppedNotPreviewing = c.droppedState.Load()
	s.DroppedEmpty = c.droppedEmpty.Load()
	s.DroppedSizeMismatch = c.droppedMismatch.Load()
	s.DroppedConversion = c.droppedConvert.Load()
	s.DeviceErrors = c.deviceErrors.Load()

	if started := c.startedAt.Load(); started > 0 {
		if elapsed := now.Sub(time.Unix(0, started)).Seconds(); elapsed > 0 {
			s.FPSReal = float64(s.FramesDelivered) / elapsed
		}
	}
	if last := c.lastFrameAt.Load(); last > 0 {
		s.LatencyMS = now.Sub(time.Unix(0, last)).Milliseconds()
	}
}
