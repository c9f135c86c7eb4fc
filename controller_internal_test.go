package cameracapture

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestController(t *testing.T, dev *fakeDevice, sink Sink, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := NewController(&fakeDriver{dev: dev}, &fakeRenderer{}, sink, opts...)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c
}

func TestController_ForceStopClosesConverterAfterInFlightFrame(t *testing.T) {
	dev := &fakeDevice{size: Size{Width: 4, Height: 4}}
	entered := make(chan struct{})
	release := make(chan struct{})
	sink := SinkFunc(func(Frame) {
		close(entered)
		<-release
	})
	c := newTestController(t, dev, sink, WithConverterWorkers(4))
	if err := c.Start(OpenParams{Width: 4, Height: 4}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	frameDone := make(chan struct{})
	cb := dev.callback()
	go func() {
		defer close(frameDone)
		cb(make([]byte, 24))
	}()
	<-entered

	stopped := make(chan struct{})
	go func() {
		c.ForceStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("ForceStop blocked on the in-flight frame")
	}

	close(release)
	<-frameDone

	if st := c.session.converterStats(); !st.Closed || st.AllocatedBytes != 0 || st.PoolRunning {
		t.Errorf("converter after in-flight frame: %+v", st)
	}
	t.Log("✅ in-flight frame closed the converter on exit")
}

func TestController_ForceStopClosesIdleConverter(t *testing.T) {
	dev := &fakeDevice{size: Size{Width: 4, Height: 4}}
	c := newTestController(t, dev, SinkFunc(func(Frame) {}))
	if err := c.Start(OpenParams{Width: 4, Height: 4}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	dev.callback()(make([]byte, 24))

	c.ForceStop()

	if st := c.session.converterStats(); !st.Closed {
		t.Errorf("converter not closed by ForceStop: %+v", st)
	}
}

func TestController_StopBeforeStartClosesConverter(t *testing.T) {
	c := newTestController(t, &fakeDevice{size: Size{Width: 4, Height: 4}}, SinkFunc(func(Frame) {}))
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if st := c.session.converterStats(); !st.Closed {
		t.Errorf("converter not closed by Stop on an idle controller: %+v", st)
	}
}

func TestController_StopAbandonsWedgedWorker(t *testing.T) {
	dev := &fakeDevice{size: Size{Width: 4, Height: 4}}
	c := newTestController(t, dev, SinkFunc(func(Frame) {}), WithShutdownTimeout(30*time.Millisecond))

	// A worker that handles Close but never gets to Quit.
	c.state.Store(int32(StateRunning))
	go func() {
		for {
			select {
			case cmd := <-c.cmds:
				if cmd.kind == cmdClose {
					cmd.done <- nil
				}
			case <-c.abort:
				close(c.exited)
				return
			}
		}
	}()

	start := time.Now()
	err := c.Stop()
	elapsed := time.Since(start)

	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("Stop() error = %v, want ErrShutdownTimeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("Stop() took %v with a 30ms shutdown timeout", elapsed)
	}
	if st := c.State(); st != StateStopped {
		t.Errorf("state = %s, want stopped", st)
	}
	if st := c.session.converterStats(); !st.Closed {
		t.Error("converter not closed after abandoning the worker")
	}

	select {
	case <-c.exited:
	case <-time.After(time.Second):
		t.Error("abandoned worker was not told to exit")
	}

	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	t.Logf("✅ wedged worker abandoned after %v", elapsed.Round(time.Millisecond))
}
