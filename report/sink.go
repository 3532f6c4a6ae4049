package report

import (
	"context"
	"os"
	"strings"
	"sync"
)

// Sink receives a finished report. Implementations must tolerate being
// called once per run.
type Sink interface {
	Write(ctx context.Context, report Report) error
}

// FileSink writes the rendered markdown to a file, replacing any previous
// content.
type FileSink struct {
	path string
}

// NewFileSink creates a sink writing to the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, report Report) error {
	return os.WriteFile(s.path, []byte(report.Markdown()), 0o644)
}

// BufferSink keeps rendered reports in memory. Useful for tests and for
// embedding the output elsewhere.
type BufferSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Write implements Sink.
func (s *BufferSink) Write(_ context.Context, report Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(report.Markdown())
	return nil
}

// String returns everything written so far.
func (s *BufferSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
