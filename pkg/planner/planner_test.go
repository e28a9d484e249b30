package planner

import (
	"testing"

	"github.com/Sternrassler/danbooru-harvester/pkg/checkpoint"
)

func TestNextPageRequest(t *testing.T) {
	tests := []struct {
		name      string
		state     checkpoint.State
		batchSize int64
		want      PageRequest
	}{
		{
			name:      "fresh harvest starts at the first batch",
			state:     checkpoint.DefaultState(1),
			batchSize: 1000,
			want:      PageRequest{RangeStart: 1, RangeEnd: 1000, Page: 1},
		},
		{
			name: "fresh batch after a committed advance",
			state: checkpoint.State{
				CurrentBatchStart: 5001,
				LastProcessedID:   5000,
			},
			batchSize: 1000,
			want:      PageRequest{RangeStart: 5001, RangeEnd: 6000, Page: 1},
		},
		{
			name: "mid-batch resume re-bases onto the remainder",
			state: checkpoint.State{
				CurrentBatchStart: 1001,
				LastProcessedID:   1400,
			},
			batchSize: 1000,
			want:      PageRequest{RangeStart: 1401, RangeEnd: 2000, Page: 1},
		},
		{
			name: "one id left in the batch",
			state: checkpoint.State{
				CurrentBatchStart: 1001,
				LastProcessedID:   1999,
			},
			batchSize: 1000,
			want:      PageRequest{RangeStart: 2000, RangeEnd: 2000, Page: 1},
		},
		{
			name: "batch consumed but advance not persisted plans the next range",
			state: checkpoint.State{
				CurrentBatchStart: 1001,
				LastProcessedID:   2000,
			},
			batchSize: 1000,
			want:      PageRequest{RangeStart: 2001, RangeEnd: 3000, Page: 1},
		},
		{
			name: "custom batch size",
			state: checkpoint.State{
				CurrentBatchStart: 1,
				LastProcessedID:   0,
			},
			batchSize: 500,
			want:      PageRequest{RangeStart: 1, RangeEnd: 500, Page: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextPageRequest(tt.state, tt.batchSize)
			if got != tt.want {
				t.Errorf("NextPageRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNextPageRequest_Deterministic(t *testing.T) {
	state := checkpoint.State{
		CurrentBatchStart:     3001,
		LastProcessedID:       3456,
		TotalRecordsHarvested: 3456,
	}

	first := NextPageRequest(state, 1000)
	for i := 0; i < 10; i++ {
		if got := NextPageRequest(state, 1000); got != first {
			t.Fatalf("NextPageRequest() not deterministic: %+v != %+v", got, first)
		}
	}
}

func TestAdvanceBatch(t *testing.T) {
	state := checkpoint.State{
		CurrentBatchStart:     1001,
		LastProcessedID:       1890,
		TotalRecordsHarvested: 1890,
	}

	advanced := AdvanceBatch(state, 1000)

	if advanced.CurrentBatchStart != 2001 {
		t.Errorf("CurrentBatchStart = %d, want 2001", advanced.CurrentBatchStart)
	}
	// Progress counters carry over untouched.
	if advanced.LastProcessedID != 1890 {
		t.Errorf("LastProcessedID = %d, want 1890", advanced.LastProcessedID)
	}
	if advanced.TotalRecordsHarvested != 1890 {
		t.Errorf("TotalRecordsHarvested = %d, want 1890", advanced.TotalRecordsHarvested)
	}
	// Input state is unchanged (value semantics).
	if state.CurrentBatchStart != 1001 {
		t.Errorf("Input state mutated: CurrentBatchStart = %d", state.CurrentBatchStart)
	}
}

func TestAdvanceBatch_NeverDecreases(t *testing.T) {
	state := checkpoint.DefaultState(1)
	prev := state.CurrentBatchStart

	for i := 0; i < 100; i++ {
		state = AdvanceBatch(state, 1000)
		if state.CurrentBatchStart <= prev {
			t.Fatalf("CurrentBatchStart did not strictly increase: %d -> %d", prev, state.CurrentBatchStart)
		}
		if state.CurrentBatchStart-prev != 1000 {
			t.Fatalf("Advance step = %d, want 1000", state.CurrentBatchStart-prev)
		}
		prev = state.CurrentBatchStart
	}
}

func TestBatchEnd(t *testing.T) {
	state := checkpoint.State{CurrentBatchStart: 2001}
	if got := BatchEnd(state, 1000); got != 3000 {
		t.Errorf("BatchEnd() = %d, want 3000", got)
	}
}
