// Package checkpoint provides durable persistence of harvest progress.
// The harvester writes one checkpoint after every successfully committed
// page; on restart the checkpoint is the single source of truth for the
// resume position.
//
// Two backends implement the Store contract: a local file written
// atomically via rename (the default, human-inspectable), and a Redis
// key for deployments that already run Redis.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned when a persisted checkpoint exists but cannot
// be parsed or fails validation. The harvester refuses to guess a
// resume position from corrupt state; deleting the checkpoint is a
// deliberate, external reset action.
var ErrCorrupt = errors.New("checkpoint corrupt")

// State is the persisted harvest progress. All fields are monotonically
// non-decreasing over the lifetime of a harvest.
type State struct {
	// CurrentBatchStart is the inclusive lower bound of the ID range
	// currently being processed.
	CurrentBatchStart int64 `json:"current_batch_start"`

	// LastProcessedID is the highest record ID successfully written to
	// the output stream and committed.
	LastProcessedID int64 `json:"last_processed_id"`

	// TotalRecordsHarvested counts records written across all runs.
	TotalRecordsHarvested int64 `json:"total_records_harvested"`

	// LastUpdate is the timestamp of the last successful persist.
	// Stamped by Save; informational only.
	LastUpdate time.Time `json:"last_update"`
}

// DefaultState returns the initial state for a fresh harvest starting
// at firstID.
func DefaultState(firstID int64) State {
	return State{
		CurrentBatchStart: firstID,
	}
}

// Validate checks the internal invariants of a loaded state against the
// configured batch size. A violation means the checkpoint was not
// written by this harvester configuration and is treated as corrupt.
func (s State) Validate(batchSize int64) error {
	if s.CurrentBatchStart < 1 {
		return fmt.Errorf("%w: current_batch_start %d < 1", ErrCorrupt, s.CurrentBatchStart)
	}
	if s.LastProcessedID < 0 {
		return fmt.Errorf("%w: last_processed_id %d < 0", ErrCorrupt, s.LastProcessedID)
	}
	if s.TotalRecordsHarvested < 0 {
		return fmt.Errorf("%w: total_records_harvested %d < 0", ErrCorrupt, s.TotalRecordsHarvested)
	}
	if batchSize > 0 && s.LastProcessedID >= s.CurrentBatchStart+batchSize {
		return fmt.Errorf("%w: last_processed_id %d beyond current batch [%d, %d]",
			ErrCorrupt, s.LastProcessedID, s.CurrentBatchStart, s.CurrentBatchStart+batchSize-1)
	}
	return nil
}

// Store persists harvest progress. Save must be atomic with respect to
// partial writes: after a crash, Load observes either the previous or
// the new state, never a mixture. Load returns the backend's default
// state when no checkpoint exists; that is not an error.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}
