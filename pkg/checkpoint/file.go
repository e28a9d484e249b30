package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for checkpoint persistence.
var (
	checkpointSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danbooru_checkpoint_saves_total",
		Help: "Total successful checkpoint saves by backend",
	}, []string{"backend"})

	checkpointSaveErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danbooru_checkpoint_save_errors_total",
		Help: "Total failed checkpoint saves by backend",
	}, []string{"backend"})

	checkpointLastProcessedID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "danbooru_checkpoint_last_processed_id",
		Help: "Last processed record ID in the most recently saved checkpoint",
	})
)

// FileStore persists the checkpoint as an indented JSON file. Saves go
// through a temp file in the same directory followed by fsync and
// rename, so a crash mid-save leaves the previous checkpoint intact.
type FileStore struct {
	path     string
	defaults State
	logger   zerolog.Logger
}

// NewFileStore creates a file-backed checkpoint store at path. Load
// returns defaults when the file does not exist.
func NewFileStore(path string, defaults State, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:     path,
		defaults: defaults,
		logger:   logger,
	}
}

// Path returns the checkpoint file path.
func (fs *FileStore) Path() string {
	return fs.path
}

// Load reads the checkpoint file. A missing file yields the default
// initial state; unparsable content yields ErrCorrupt.
func (fs *FileStore) Load(_ context.Context) (State, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		fs.logger.Info().
			Str("path", fs.path).
			Int64("first_id", fs.defaults.CurrentBatchStart).
			Msg("No checkpoint found, starting fresh")
		return fs.defaults, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read checkpoint %s: %w", fs.path, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("%w: parse %s: %v", ErrCorrupt, fs.path, err)
	}
	if state.CurrentBatchStart == 0 {
		return State{}, fmt.Errorf("%w: %s is missing current_batch_start", ErrCorrupt, fs.path)
	}

	fs.logger.Info().
		Int64("current_batch_start", state.CurrentBatchStart).
		Int64("last_processed_id", state.LastProcessedID).
		Int64("total_records", state.TotalRecordsHarvested).
		Msg("Resuming from checkpoint")

	return state, nil
}

// Save atomically persists state. The temp-write/fsync/rename sequence
// guarantees Load never observes a partially written checkpoint.
func (fs *FileStore) Save(_ context.Context, state State) error {
	state.LastUpdate = time.Now().UTC()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		checkpointSaveErrorsTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		checkpointSaveErrorsTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("create temp checkpoint in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		checkpointSaveErrorsTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		checkpointSaveErrorsTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		checkpointSaveErrorsTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		checkpointSaveErrorsTotal.WithLabelValues("file").Inc()
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}

	checkpointSavesTotal.WithLabelValues("file").Inc()
	checkpointLastProcessedID.Set(float64(state.LastProcessedID))

	fs.logger.Debug().
		Int64("last_processed_id", state.LastProcessedID).
		Int64("total_records", state.TotalRecordsHarvested).
		Msg("Checkpoint saved")

	return nil
}

// Reset removes the checkpoint file. This is the documented "start
// over" action exposed by the CLI; the harvester core never calls it.
// Removing a file that does not exist is not an error.
func (fs *FileStore) Reset(_ context.Context) error {
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint %s: %w", fs.path, err)
	}
	return nil
}
