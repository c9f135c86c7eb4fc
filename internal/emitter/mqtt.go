package emitter

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
)

const publishTimeout = 2 * time.Second

// MQTTSink publishes delivered frames and device errors to an MQTT broker.
//
// Deliver never blocks on the network: a frame is handed to a publisher
// goroutine through a one-slot mailbox and dropped when the slot is taken.
type MQTTSink struct {
	cfg    config.MQTTConfig
	client mqtt.Client
	logger *slog.Logger

	mailbox chan cameracapture.Frame
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	lastSent  atomic.Int64 // unix nanos of the last accepted frame
	connected atomic.Bool

	published  atomic.Uint64
	throttled  atomic.Uint64
	dropped    atomic.Uint64
	errors     atomic.Uint64
	errorsSent atomic.Uint64
}

// MQTTStats is a snapshot of MQTTSink counters.
type MQTTStats struct {
	Connected  bool
	Published  uint64
	Throttled  uint64
	Dropped    uint64
	Errors     uint64
	ErrorsSent uint64
}

// NewMQTTSink connects to the broker and starts the publisher goroutine.
func NewMQTTSink(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MQTTSink{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.connected.Store(true)
		logger.Info("emitter: mqtt connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.connected.Store(false)
		logger.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", cfg.Broker,
		)
	}

	client := mqtt.NewClient(opts)
	logger.Info("emitter: connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	s.start(client)
	s.connected.Store(true)
	return s, nil
}

// newMQTTSinkWithClient wires an already connected client.
func newMQTTSinkWithClient(cfg config.MQTTConfig, client mqtt.Client, logger *slog.Logger) *MQTTSink {
	s := &MQTTSink{cfg: cfg, logger: logger}
	s.start(client)
	s.connected.Store(client.IsConnected())
	return s
}

func (s *MQTTSink) start(client mqtt.Client) {
	s.client = client
	s.mailbox = make(chan cameracapture.Frame, 1)
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.publishLoop()
}

// Deliver implements cameracapture.Sink.
func (s *MQTTSink) Deliver(f cameracapture.Frame) {
	if s.cfg.MinInterval > 0 {
		last := s.lastSent.Load()
		if last != 0 && f.Timestamp.UnixNano()-last < int64(s.cfg.MinInterval) {
			s.throttled.Add(1)
			return
		}
	}

	select {
	case <-s.done:
		s.dropped.Add(1)
		return
	default:
	}

	select {
	case s.mailbox <- f:
		s.lastSent.Store(f.Timestamp.UnixNano())
	default:
		s.dropped.Add(1)
		s.logger.Debug("emitter: publisher busy, dropping frame",
			"seq", f.Seq,
			"trace_id", f.TraceID,
		)
	}
}

func (s *MQTTSink) publishLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case f := <-s.mailbox:
			if err := s.publishFrame(f); err != nil {
				s.errors.Add(1)
				s.logger.Warn("emitter: frame publish failed",
					"seq", f.Seq,
					"trace_id", f.TraceID,
					"error", err,
				)
			}
		}
	}
}

func (s *MQTTSink) publishFrame(f cameracapture.Frame) error {
	if !s.connected.Load() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := EncodeFrame(f, s.cfg.Quality)
	if err != nil {
		return err
	}
	if err := s.publish(s.cfg.FrameTopic, payload); err != nil {
		return err
	}
	s.published.Add(1)
	s.logger.Debug("emitter: frame published",
		"topic", s.cfg.FrameTopic,
		"seq", f.Seq,
		"size", len(payload),
	)
	return nil
}

// PublishError publishes a device error. It has the signature of
// OpenParams.OnError.
func (s *MQTTSink) PublishError(err error) {
	if err == nil {
		return
	}
	payload, encErr := EncodeError(err, time.Now())
	if encErr != nil {
		s.errors.Add(1)
		s.logger.Warn("emitter: error envelope failed", "error", encErr)
		return
	}
	if pubErr := s.publish(s.cfg.ErrorTopic, payload); pubErr != nil {
		s.errors.Add(1)
		s.logger.Warn("emitter: error publish failed", "error", pubErr)
		return
	}
	s.errorsSent.Add(1)
}

func (s *MQTTSink) publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, s.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the sink counters.
func (s *MQTTSink) Stats() MQTTStats {
	return MQTTStats{
		Connected:  s.connected.Load(),
		Published:  s.published.Load(),
		Throttled:  s.throttled.Load(),
		Dropped:    s.dropped.Load(),
		Errors:     s.errors.Load(),
		ErrorsSent: s.errorsSent.Load(),
	}
}

// Close stops the publisher and disconnects. Safe to call more than once.
func (s *MQTTSink) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.client != nil && s.client.IsConnected() {
			s.client.Disconnect(250) // 250ms grace period
			s.logger.Info("emitter: mqtt disconnected")
		}
		s.connected.Store(false)
	})
	return nil
}
