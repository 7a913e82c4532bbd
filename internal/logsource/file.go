package logsource

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/hasura-metrics-adapter/internal/model"
)

const (
	// DefaultFileBuffer is the default channel buffer size for tailed lines.
	DefaultFileBuffer = 10_000

	// DefaultFileMaxLineSize caps a single log line at 1MB.
	DefaultFileMaxLineSize = 1024 * 1024

	// Backoff bounds for waiting on a missing source file.
	openBackoffMin = 250 * time.Millisecond
	openBackoffMax = 5 * time.Second
)

// FileConfig holds tunable parameters for the file source.
type FileConfig struct {
	BufferSize  int
	MaxLineSize int
	SleepTime   time.Duration // idle wait between EOF probes
}

// FileSource tails a log file the way the engine writes it: the file may
// not exist yet at startup, and the writer may truncate or recreate it at
// any time. EOF is never terminal; the source waits for growth, and
// reopens when the path points at a new or truncated file. Lines are
// emitted in write order, reassembled across read boundaries.
type FileSource struct {
	path   string
	log    *zap.Logger
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc

	sleepTime   time.Duration
	maxLineSize int
}

// NewFileSource creates a FileSource and starts tailing in a background
// goroutine. The channel is closed once the context is cancelled or Stop
// is called.
func NewFileSource(ctx context.Context, path string, log *zap.Logger, conf ...FileConfig) *FileSource {
	bufferSize := DefaultFileBuffer
	maxLineSize := DefaultFileMaxLineSize
	sleepTime := model.DefaultSleepTime
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		if conf[0].SleepTime > 0 {
			sleepTime = conf[0].SleepTime
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &FileSource{
		path:        path,
		log:         log,
		ch:          make(chan model.IngestEnvelope, bufferSize),
		cancel:      cancel,
		sleepTime:   sleepTime,
		maxLineSize: maxLineSize,
	}
	go s.run(ctx)
	return s
}

func (s *FileSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *FileSource) Stop()                              { s.cancel() }
func (s *FileSource) Name() string                       { return "file" }

// run opens the source and follows it until cancellation, reopening
// whenever the current session ends because the writer replaced the file.
func (s *FileSource) run(ctx context.Context) {
	defer close(s.ch)

	backoff := openBackoffMin
	for ctx.Err() == nil {
		f, err := os.Open(s.path)
		if err != nil {
			s.log.Warn("log source unavailable, retrying",
				zap.String("path", s.path),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > openBackoffMax {
				backoff = openBackoffMax
			}
			continue
		}
		backoff = openBackoffMin

		s.follow(ctx, f)
		_ = f.Close()
	}
}

// follow reads the open file to its moving end. It returns when the file
// has been truncated or replaced (caller reopens) or the context is done.
func (s *FileSource) follow(ctx context.Context, f *os.File) {
	reader := bufio.NewReaderSize(f, 64*1024)
	partial := make([]byte, 0, 4096)
	consumed := int64(0)

	for ctx.Err() == nil {
		chunk, err := reader.ReadSlice('\n')
		consumed += int64(len(chunk))
		partial = append(partial, chunk...)

		switch err {
		case nil:
			line := string(partial[:len(partial)-1])
			partial = partial[:0]
			if len(line) > s.maxLineSize {
				s.log.Warn("dropping oversized log line",
					zap.Int("bytes", len(line)),
					zap.Int("limit", s.maxLineSize))
				continue
			}
			if line == "" {
				continue
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.Name(), Line: line}:
			case <-ctx.Done():
				return
			}

		case bufio.ErrBufferFull:
			// Long line spanning reads; keep accumulating in partial.
			continue

		case io.EOF:
			// Writer may still be appending, or may recreate the file.
			if !sleepCtx(ctx, s.sleepTime) {
				return
			}
			replaced, statErr := s.sourceReplaced(f, consumed)
			if statErr != nil {
				// Path vanished; go back to the open/backoff loop.
				s.log.Warn("log source disappeared mid-session",
					zap.String("path", s.path), zap.Error(statErr))
				return
			}
			if replaced {
				s.log.Info("log source recreated, reopening", zap.String("path", s.path))
				return
			}

		default:
			s.log.Warn("log source read error, reopening",
				zap.String("path", s.path), zap.Error(err))
			return
		}
	}
}

// sourceReplaced reports whether the path now refers to a different file
// than the open handle, or the file shrank below what we already read.
func (s *FileSource) sourceReplaced(f *os.File, consumed int64) (bool, error) {
	pathInfo, err := os.Stat(s.path)
	if err != nil {
		return false, err
	}
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !os.SameFile(pathInfo, openInfo) {
		return true, nil
	}
	if pathInfo.Size() < consumed {
		return true, nil
	}
	return false, nil
}

// sleepCtx waits d or until ctx is done; returns false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
