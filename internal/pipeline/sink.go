package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rendis/stickyflow/pkg/schema"
)

// Sink accepts an accepted graph. Implementations must be safe for
// concurrent use.
type Sink interface {
	Save(ctx context.Context, graph *schema.FlowGraph, opts SaveOptions) (*Receipt, error)
}

// SaveOptions is the options bag handed to a Sink with every graph.
type SaveOptions struct {
	RunID  string
	Report *schema.ValidationResult
}

// Receipt confirms a save.
type Receipt struct {
	RunID    string    `json:"runId"`
	Location string    `json:"location,omitempty"`
	Bytes    int       `json:"bytes"`
	SavedAt  time.Time `json:"savedAt"`
}

func encodeGraph(graph *schema.FlowGraph) ([]byte, error) {
	b, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeSink, "failed to encode flow graph").WithCause(err)
	}
	return append(b, '\n'), nil
}

// WriterSink writes each graph as indented JSON to W.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
	// Location is reported in receipts, e.g. "stdout".
	Location string
}

// NewWriterSink creates a WriterSink over w.
func NewWriterSink(w io.Writer, location string) *WriterSink {
	return &WriterSink{w: w, now: time.Now, Location: location}
}

// Save implements Sink.
func (s *WriterSink) Save(ctx context.Context, graph *schema.FlowGraph, opts SaveOptions) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := encodeGraph(graph)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.w.Write(b)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSink, "failed to write flow graph to %s", s.Location).WithCause(err)
	}
	return &Receipt{RunID: opts.RunID, Location: s.Location, Bytes: n, SavedAt: s.now().UTC()}, nil
}

// FileSink writes each graph to Path, replacing any previous file. The
// write goes through a temporary file in the same directory so readers
// never see a partial graph.
type FileSink struct {
	Path string
	now  func() time.Time
}

// NewFileSink creates a FileSink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path, now: time.Now}
}

// Save implements Sink.
func (s *FileSink) Save(ctx context.Context, graph *schema.FlowGraph, opts SaveOptions) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := encodeGraph(graph)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSink, "failed to create temp file in %s", dir).WithCause(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return nil, schema.NewErrorf(schema.ErrCodeSink, "failed to write %s", tmp.Name()).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSink, "failed to close %s", tmp.Name()).WithCause(err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSink, "failed to move graph to %s", s.Path).WithCause(err)
	}
	return &Receipt{RunID: opts.RunID, Location: s.Path, Bytes: len(b), SavedAt: s.now().UTC()}, nil
}

var (
	_ Sink = (*WriterSink)(nil)
	_ Sink = (*FileSink)(nil)
)
