package cameracapture

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/yuv"
)

// DefaultShutdownTimeout bounds how long Stop waits for the worker to exit.
const DefaultShutdownTimeout = time.Second

type commandKind int

const (
	cmdOpen commandKind = iota
	cmdClose
	cmdQuit
)

func (k commandKind) String() string {
	switch k {
	case cmdOpen:
		return "open"
	case cmdClose:
		return "close"
	default:
		return "quit"
	}
}

// command is one unit of work for the worker. done receives exactly one
// value once the worker has handled it.
type command struct {
	kind   commandKind
	params OpenParams
	done   chan error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithShutdownTimeout bounds the final worker shutdown in Stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithChromaLayout sets the chroma layout of raw frames (default I420).
func WithChromaLayout(l yuv.Layout) Option {
	return func(c *Controller) {
		c.layout = l
	}
}

// WithConverterWorkers sets the size of the conversion pool. Values below 1
// use GOMAXPROCS.
func WithConverterWorkers(n int) Option {
	return func(c *Controller) {
		c.workers = n
	}
}

// Controller runs one capture session on a dedicated worker goroutine.
//
// Start and Stop are synchronous: they post a command to the worker and
// block until it has been handled, so an open always completes before Start
// returns and a close always completes before teardown proceeds. Only the
// final worker exit in Stop is bounded by a timeout.
//
// A Controller is single use: Idle → Running → Stopped.
type Controller struct {
	driver   Driver
	renderer Renderer
	sink     Sink

	logger          *slog.Logger
	shutdownTimeout time.Duration
	layout          yuv.Layout
	workers         int

	mu      sync.Mutex // serializes Start and Stop
	state   atomic.Int32
	cmds    chan command // FIFO, consumed only by the worker
	abort   chan struct{}
	exited  chan struct{}
	aborted sync.Once

	converter *yuv.Converter
	session   *captureSession
	stats     counters
}

// NewController creates an idle controller. The converter is created here
// but allocates its buffers and starts its pool only when frames arrive.
func NewController(driver Driver, renderer Renderer, sink Sink, opts ...Option) (*Controller, error) {
	if driver == nil {
		return nil, fmt.Errorf("camera-capture: driver is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("camera-capture: renderer is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("camera-capture: sink is required")
	}

	c := &Controller{
		driver:          driver,
		renderer:        renderer,
		sink:            sink,
		logger:          slog.Default(),
		shutdownTimeout: DefaultShutdownTimeout,
		layout:          yuv.LayoutI420,
		cmds:            make(chan command, 4),
		abort:           make(chan struct{}),
		exited:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.converter = yuv.New(c.layout, c.workers, c.logger)
	c.session = newCaptureSession(driver, renderer, c.converter, sink, &c.stats, c.logger)
	return c, nil
}

// Start spawns the worker, opens the session on it and waits for the
// outcome. On failure the worker is shut down, the controller ends Stopped
// and the error (wrapping ErrDeviceUnavailable for device failures) is
// returned; nothing stays allocated.
func (c *Controller) Start(p OpenParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.State(); st != StateIdle {
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, st)
	}

	go c.run(c.cmds, c.abort, c.exited)

	c.logger.Info("camera-capture: starting",
		"camera_id", p.CameraID,
		"resolution", Size{Width: p.Width, Height: p.Height}.String(),
		"rotation", p.RotationDegrees,
		"layout", c.layout.String(),
	)

	if err := c.send(command{kind: cmdOpen, params: p}); err != nil {
		if qerr := c.quit(); qerr != nil {
			c.logger.Error("camera-capture: worker did not exit after failed open", "error", qerr)
		}
		c.releaseConverter()
		c.state.Store(int32(StateStopped))
		return err
	}

	// A ForceStop that raced the open already moved the controller to
	// Stopped; keep that.
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("camera-capture: start: %w", ErrNotRunning)
	}
	return nil
}

// Stop closes the session on the worker, releases the converter and shuts
// the worker down, waiting at most the shutdown timeout for it to exit.
// Teardown completes either way; if the worker had to be abandoned the
// returned error wraps ErrShutdownTimeout.
//
// Stop on an idle controller releases the converter and moves it to
// Stopped. Stop on a stopped controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateIdle:
		if c.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
			c.releaseConverter()
		}
		return nil
	case StateStopped:
		return nil
	}

	if err := c.send(command{kind: cmdClose}); err != nil {
		c.logger.Warn("camera-capture: close not handled by worker", "error", err)
	}
	c.releaseConverter()

	qerr := c.quit()
	if qerr != nil {
		c.logger.Error("camera-capture: abandoning worker",
			"error", qerr,
			"timeout", c.shutdownTimeout,
		)
		c.aborted.Do(func() { close(c.abort) })
	}
	c.state.Store(int32(StateStopped))

	st := c.Stats()
	c.logger.Info("camera-capture: stopped",
		"session_id", st.SessionID,
		"frames_received", st.FramesReceived,
		"frames_delivered", st.FramesDelivered,
		"drop_rate", fmt.Sprintf("%.1f%%", st.DropRate()),
	)
	if qerr != nil {
		return fmt.Errorf("camera-capture: stop: %w", qerr)
	}
	return nil
}

// ForceStop closes the session directly from the calling goroutine,
// bypassing the worker queue, and tells the worker to exit. Use it when the
// worker may be wedged. It never panics and leaves the controller Stopped.
//
// ForceStop does not wait for a frame already inside the Sink; that frame
// finishes and closes the converter on its way out.
func (c *Controller) ForceStop() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("camera-capture: panic during force stop", "panic", r)
		}
	}()

	prev := ControllerState(c.state.Swap(int32(StateStopped)))
	quiescent := c.session.forceClose()
	c.aborted.Do(func() { close(c.abort) })
	converterClosed := c.session.closeConverterWhenIdle()

	c.logger.Warn("camera-capture: force stopped",
		"previous_state", prev.String(),
		"quiescent", quiescent,
		"converter_closed", converterClosed,
	)
}

// State returns the controller lifecycle state.
func (c *Controller) State() ControllerState {
	return ControllerState(c.state.Load())
}

// Negotiated returns the parameters of the current session. It is the zero
// value until Start succeeds.
func (c *Controller) Negotiated() NegotiatedParameters {
	return c.session.negotiated()
}

// Stats returns a snapshot of capture statistics. It waits for an in-flight
// frame to finish.
func (c *Controller) Stats() CaptureStats {
	st := CaptureStats{
		State:        c.State(),
		SessionState: SessionState(c.session.state.Load()),
		SessionID:    c.session.sessionID(),
	}
	if size := c.session.negotiated().Size; size.Width > 0 {
		st.Resolution = size.String()
	}
	c.stats.fill(&st, time.Now())

	cs := c.session.converterStats()
	st.ConverterInputAllocs = cs.InputAllocs
	st.ConverterOutputAllocs = cs.OutputAllocs
	st.ConverterBytes = cs.AllocatedBytes
	return st
}

func (c *Controller) releaseConverter() {
	c.session.closeConverter()
}

// run is the worker loop. It owns an OS thread for the lifetime of the
// session since some camera stacks bind a device to the opening thread.
func (c *Controller) run(cmds <-chan command, abort <-chan struct{}, exited chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(exited)

	for {
		select {
		case cmd := <-cmds:
			c.logger.Debug("camera-capture: worker handling command", "command", cmd.kind.String())
			switch cmd.kind {
			case cmdOpen:
				_, err := c.session.open(cmd.params)
				cmd.done <- err
			case cmdClose:
				c.session.close()
				cmd.done <- nil
			case cmdQuit:
				cmd.done <- nil
				return
			}
		case <-abort:
			c.logger.Debug("camera-capture: worker aborted")
			return
		}
	}
}

// send posts cmd and blocks until the worker handled it. It returns
// ErrNotRunning if the worker exits first.
func (c *Controller) send(cmd command) error {
	cmd.done = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.exited:
		return fmt.Errorf("camera-capture: %s: %w", cmd.kind, ErrNotRunning)
	}
	select {
	case err := <-cmd.done:
		return err
	case <-c.exited:
		// The worker may have answered just before exiting.
		select {
		case err := <-cmd.done:
			return err
		default:
			return fmt.Errorf("camera-capture: %s: %w", cmd.kind, ErrNotRunning)
		}
	}
}

// quit posts Quit and waits for the worker to exit, at most the shutdown
// timeout.
func (c *Controller) quit() error {
	timer := time.NewTimer(c.shutdownTimeout)
	defer timer.Stop()

	done := make(chan error, 1)
	select {
	case c.cmds <- command{kind: cmdQuit, done: done}:
	case <-c.exited:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}

	select {
	case <-c.exited:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}
