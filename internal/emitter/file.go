package emitter

import (
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
	"github.com/e7canasta/orion-care-sensor/modules/camera-capture/internal/config"
)

// FileSink writes every Nth delivered frame to a directory as PNG or JPEG.
// Files are written to a temporary name and renamed, so readers never see a
// partial image.
type FileSink struct {
	cfg    config.FileConfig
	logger *slog.Logger

	seen    atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
	last    atomic.Value // string
}

// FileStats is a snapshot of FileSink counters.
type FileStats struct {
	Seen    uint64
	Written uint64
	Failed  uint64
	Last    string
}

// NewFileSink creates cfg.Dir if needed.
func NewFileSink(cfg config.FileConfig, logger *slog.Logger) (*FileSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Every <= 0 {
		cfg.Every = 1
	}
	if cfg.Format != "png" && cfg.Format != "jpeg" {
		return nil, fmt.Errorf("emitter: unsupported file format %q", cfg.Format)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("emitter: failed to create output dir: %w", err)
	}
	return &FileSink{cfg: cfg, logger: logger}, nil
}

// Deliver implements cameracapture.Sink.
func (s *FileSink) Deliver(f cameracapture.Frame) {
	n := s.seen.Add(1)
	if (n-1)%uint64(s.cfg.Every) != 0 {
		return
	}

	path, err := s.write(f)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("emitter: snapshot write failed",
			"seq", f.Seq,
			"trace_id", f.TraceID,
			"error", err,
		)
		return
	}
	s.written.Add(1)
	s.last.Store(path)
	s.logger.Debug("emitter: snapshot written", "path", path, "seq", f.Seq)
}

func (s *FileSink) write(f cameracapture.Frame) (string, error) {
	if f.Image == nil {
		return "", fmt.Errorf("frame has no image")
	}

	ext := "png"
	if s.cfg.Format == "jpeg" {
		ext = "jpg"
	}
	name := fmt.Sprintf("frame-%s-%06d.%s", shortID(f.SessionID), f.Seq, ext)
	path := filepath.Join(s.cfg.Dir, name)

	tmp, err := os.CreateTemp(s.cfg.Dir, ".snapshot-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	switch s.cfg.Format {
	case "jpeg":
		data, encErr := encodeJPEG(f.Image, s.cfg.Quality)
		if encErr == nil {
			_, encErr = tmp.Write(data)
		}
		err = encErr
	default:
		err = png.Encode(tmp, f.Image)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// Stats returns a snapshot of the sink counters.
func (s *FileSink) Stats() FileStats {
	last, _ := s.last.Load().(string)
	return FileStats{
		Seen:    s.seen.Load(),
		Written: s.written.Load(),
		Failed:  s.failed.Load(),
		Last:    last,
	}
}

func shortID(id string) string {
	if id == "" {
		return "nosession"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
