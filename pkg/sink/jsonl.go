// Package sink writes harvested records to a durable append-only
// stream, one self-contained JSON object per line. Records are streamed
// through page by page; the sink never accumulates a whole batch in
// memory and never rewrites previously written lines.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/danbooru-harvester/pkg/client"
)

// ErrWrite is wrapped by every sink write failure. Write failures are
// fatal to a harvest: the orchestrator must not count a page as
// processed unless its records are durably written.
var ErrWrite = errors.New("sink write failed")

// Prometheus metrics for sink writes.
var (
	sinkRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danbooru_sink_records_written_total",
		Help: "Total records appended to the output stream",
	})

	sinkBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danbooru_sink_bytes_written_total",
		Help: "Total bytes appended to the output stream",
	})
)

// Writer appends harvested records to a durable stream in the order
// received.
type Writer interface {
	Append(posts []client.Post) error
	Close() error
}

// JSONLWriter appends records to a JSON Lines file. The file is opened
// in append mode so interrupted harvests continue the same stream, and
// the buffer is flushed after every Append so committed pages are on
// their way to disk before the checkpoint is advanced.
type JSONLWriter struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	logger zerolog.Logger
}

// Verify JSONLWriter implements Writer.
var _ Writer = (*JSONLWriter)(nil)

// NewJSONLWriter opens (or creates) the output file at path.
func NewJSONLWriter(path string, logger zerolog.Logger) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrWrite, path, err)
	}

	return &JSONLWriter{
		path:   path,
		file:   f,
		buf:    bufio.NewWriter(f),
		logger: logger,
	}, nil
}

// Path returns the output file path.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Append writes each post's raw payload as one line, in the order
// received, and flushes the buffer.
func (w *JSONLWriter) Append(posts []client.Post) error {
	var bytes int
	for _, p := range posts {
		n, err := w.buf.Write(p.Raw)
		if err != nil {
			return fmt.Errorf("%w: append to %s: %v", ErrWrite, w.path, err)
		}
		if err := w.buf.WriteByte('\n'); err != nil {
			return fmt.Errorf("%w: append to %s: %v", ErrWrite, w.path, err)
		}
		bytes += n + 1
	}

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %v", ErrWrite, w.path, err)
	}

	sinkRecordsTotal.Add(float64(len(posts)))
	sinkBytesTotal.Add(float64(bytes))

	w.logger.Debug().
		Int("records", len(posts)).
		Int("bytes", bytes).
		Msg("Records appended")

	return nil
}

// Close flushes and syncs the output file.
func (w *JSONLWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: flush %s: %v", ErrWrite, w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrWrite, w.path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrWrite, w.path, err)
	}
	return nil
}
