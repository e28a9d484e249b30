// Package planner derives the next page request from checkpoint state.
// It is pure computation: no network, no disk, fully deterministic.
package planner

import (
	"github.com/Sternrassler/danbooru-harvester/pkg/checkpoint"
)

// PageRequest identifies one page fetch: the id range to filter on and
// the 1-based page number within that range.
type PageRequest struct {
	RangeStart int64
	RangeEnd   int64
	Page       int
}

// BatchEnd returns the inclusive upper bound of the batch the state is
// currently processing.
func BatchEnd(state checkpoint.State, batchSize int64) int64 {
	return state.CurrentBatchStart + batchSize - 1
}

// NextPageRequest computes where the harvest resumes given the last
// committed checkpoint.
//
// A fresh batch starts at page 1 of the full range. When the checkpoint
// shows pages already committed inside the current batch, the request
// is re-based onto the unprocessed remainder [LastProcessedID+1,
// batchEnd] at page 1: nothing in the narrowed range has been committed
// yet, so the resumed fetch can neither duplicate nor skip records.
// When the batch is fully consumed but the advance was not persisted,
// the next range is planned.
func NextPageRequest(state checkpoint.State, batchSize int64) PageRequest {
	end := BatchEnd(state, batchSize)

	switch {
	case state.LastProcessedID < state.CurrentBatchStart:
		return PageRequest{
			RangeStart: state.CurrentBatchStart,
			RangeEnd:   end,
			Page:       1,
		}
	case state.LastProcessedID < end:
		return PageRequest{
			RangeStart: state.LastProcessedID + 1,
			RangeEnd:   end,
			Page:       1,
		}
	default:
		return PageRequest{
			RangeStart: state.CurrentBatchStart + batchSize,
			RangeEnd:   end + batchSize,
			Page:       1,
		}
	}
}

// AdvanceBatch returns the state moved past the exhausted range.
// CurrentBatchStart strictly increases by batchSize and never revisits
// a prior range.
func AdvanceBatch(state checkpoint.State, batchSize int64) checkpoint.State {
	state.CurrentBatchStart += batchSize
	return state
}
