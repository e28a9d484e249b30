// Package harvester orchestrates the harvest loop: it walks the ID
// space in fixed-size batches, fetches pages through the client, streams
// records to the sink, and commits a checkpoint after every durably
// written page. The loop is strictly sequential; a run interrupted at
// any point resumes from the last committed checkpoint with no
// duplicated and no skipped records.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/danbooru-harvester/pkg/checkpoint"
	"github.com/Sternrassler/danbooru-harvester/pkg/client"
	"github.com/Sternrassler/danbooru-harvester/pkg/logging"
	"github.com/Sternrassler/danbooru-harvester/pkg/planner"
	"github.com/Sternrassler/danbooru-harvester/pkg/sink"
)

// Prometheus metrics for harvest progress.
var (
	recordsHarvestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danbooru_records_harvested_total",
		Help: "Total records harvested across the current process",
	})

	batchesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danbooru_batches_completed_total",
		Help: "Total id-range batches fully processed",
	})

	emptyBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "danbooru_empty_batches_total",
		Help: "Total batches that contained no posts",
	})

	lastProcessedID = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "danbooru_harvest_last_processed_id",
		Help: "Highest post id committed by the harvest loop",
	})
)

// Fetcher is the page-fetching surface the harvester depends on.
// *client.Client implements it.
type Fetcher interface {
	FetchPosts(ctx context.Context, rangeStart, rangeEnd int64, page int) ([]client.Post, error)
	HighestPostID(ctx context.Context) (int64, error)
	PageSize() int
}

// Config holds the harvest loop configuration.
type Config struct {
	// BatchSize is the width of each ID range batch.
	BatchSize int64

	// FirstID is where a fresh harvest (no checkpoint) starts.
	FirstID int64

	// UpperID bounds the harvest inclusively. Zero means unbounded: the
	// harvest runs until EmptyBatchThreshold consecutive batches come
	// back empty.
	UpperID int64

	// EmptyBatchThreshold is the number of consecutive empty batches
	// after which an unbounded harvest concludes it has passed the
	// newest post and stops.
	EmptyBatchThreshold int
}

// DefaultConfig returns the default harvest configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:           1000,
		FirstID:             1,
		UpperID:             0,
		EmptyBatchThreshold: 5,
	}
}

// Harvester drives the batch harvest loop.
type Harvester struct {
	fetcher Fetcher
	store   checkpoint.Store
	sink    sink.Writer
	config  Config
	logger  zerolog.Logger
}

// New creates a harvester. The fetcher, store, and sink are owned by the
// caller; the harvester never closes them.
func New(fetcher Fetcher, store checkpoint.Store, out sink.Writer, cfg Config) (*Harvester, error) {
	if fetcher == nil || store == nil || out == nil {
		return nil, fmt.Errorf("fetcher, store, and sink are required")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch_size must be >= 1 (got %d)", cfg.BatchSize)
	}
	if cfg.FirstID < 1 {
		return nil, fmt.Errorf("first_id must be >= 1 (got %d)", cfg.FirstID)
	}
	if cfg.UpperID < 0 {
		return nil, fmt.Errorf("upper_id must be >= 0 (got %d)", cfg.UpperID)
	}
	if cfg.UpperID > 0 && cfg.UpperID < cfg.FirstID {
		return nil, fmt.Errorf("upper_id %d below first_id %d", cfg.UpperID, cfg.FirstID)
	}
	if cfg.EmptyBatchThreshold < 1 {
		return nil, fmt.Errorf("empty_batch_threshold must be >= 1 (got %d)", cfg.EmptyBatchThreshold)
	}

	return &Harvester{
		fetcher: fetcher,
		store:   store,
		sink:    out,
		config:  cfg,
		logger:  logging.NewLogger("harvester"),
	}, nil
}

// Run executes the harvest loop until the ID space is exhausted or the
// context is cancelled. Cancellation is a clean stop and returns nil:
// the checkpoint already holds the resume position.
//
// Errors surface with their cause intact: checkpoint.ErrCorrupt for an
// unusable checkpoint, client.ErrRetryExhausted for transient failures
// that outlived the retry budget, sink.ErrWrite for output failures, and
// *client.APIError for fatal API rejections.
func (h *Harvester) Run(ctx context.Context) error {
	state, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if err := state.Validate(h.config.BatchSize); err != nil {
		return err
	}

	started := time.Now()
	startTotal := state.TotalRecordsHarvested

	// Probe the newest post so progress logs can show how far the
	// harvest reaches. For unbounded harvests this is informational
	// only; termination is decided by the empty-batch threshold.
	highestKnown := h.config.UpperID
	if highestKnown == 0 {
		if probed, probeErr := h.fetcher.HighestPostID(ctx); probeErr == nil {
			highestKnown = probed
		} else {
			if ctx.Err() != nil {
				return nil
			}
			h.logger.Warn().Err(probeErr).Msg("Highest-id probe failed, continuing without progress target")
		}
	}

	h.logger.Info().
		Int64("current_batch_start", state.CurrentBatchStart).
		Int64("last_processed_id", state.LastProcessedID).
		Int64("total_records", state.TotalRecordsHarvested).
		Int64("highest_known_id", highestKnown).
		Msg("Harvest starting")

	emptyBatches := 0

	for {
		if ctx.Err() != nil {
			h.logStop(state, started, startTotal)
			return nil
		}

		req := planner.NextPageRequest(state, h.config.BatchSize)

		// A checkpoint written after the last page of a batch but before
		// the advance plans the next range; persist the advance first so
		// the stored state keeps describing the batch being worked.
		if req.RangeStart > planner.BatchEnd(state, h.config.BatchSize) {
			state = planner.AdvanceBatch(state, h.config.BatchSize)
			if err := h.store.Save(ctx, state); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
			continue
		}

		if h.config.UpperID > 0 && req.RangeStart > h.config.UpperID {
			h.logDone(state, started, startTotal)
			return nil
		}

		rangeEnd := req.RangeEnd
		if h.config.UpperID > 0 && rangeEnd > h.config.UpperID {
			rangeEnd = h.config.UpperID
		}

		harvested, err := h.harvestRange(ctx, &state, req.RangeStart, rangeEnd, req.Page)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, client.ErrContextCancelled) {
				h.logStop(state, started, startTotal)
				return nil
			}
			return err
		}

		if harvested == 0 && req.RangeStart == state.CurrentBatchStart {
			emptyBatchesTotal.Inc()
			emptyBatches++
			if h.config.UpperID == 0 && emptyBatches >= h.config.EmptyBatchThreshold {
				h.logger.Info().
					Int("empty_batches", emptyBatches).
					Msg("Passed the newest post, harvest complete")
				h.logDone(state, started, startTotal)
				return nil
			}
		} else if harvested > 0 {
			emptyBatches = 0
		}

		state = planner.AdvanceBatch(state, h.config.BatchSize)
		if err := h.store.Save(ctx, state); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		batchesCompletedTotal.Inc()

		h.logger.Info().
			Int64("range_start", req.RangeStart).
			Int64("range_end", rangeEnd).
			Int64("records", harvested).
			Int64("total_records", state.TotalRecordsHarvested).
			Int64("next_batch_start", state.CurrentBatchStart).
			Msg("Batch complete")
	}
}

// harvestRange walks the pages of one ID range, committing each page to
// the sink and the checkpoint before moving on. Returns the number of
// records written for this range.
func (h *Harvester) harvestRange(ctx context.Context, state *checkpoint.State, rangeStart, rangeEnd int64, page int) (int64, error) {
	var harvested int64

	for {
		if ctx.Err() != nil {
			return harvested, ctx.Err()
		}

		posts, err := h.fetcher.FetchPosts(ctx, rangeStart, rangeEnd, page)
		if err != nil {
			return harvested, fmt.Errorf("fetch range [%d, %d] page %d: %w", rangeStart, rangeEnd, page, err)
		}

		if len(posts) == 0 {
			return harvested, nil
		}

		if err := h.sink.Append(posts); err != nil {
			return harvested, fmt.Errorf("write range [%d, %d] page %d: %w", rangeStart, rangeEnd, page, err)
		}

		// Pages arrive in ascending id order, so the last post carries
		// the highest committed id.
		state.LastProcessedID = posts[len(posts)-1].ID
		state.TotalRecordsHarvested += int64(len(posts))

		if err := h.store.Save(ctx, *state); err != nil {
			return harvested, fmt.Errorf("save checkpoint: %w", err)
		}

		harvested += int64(len(posts))
		recordsHarvestedTotal.Add(float64(len(posts)))
		lastProcessedID.Set(float64(state.LastProcessedID))

		h.logger.Debug().
			Int64("range_start", rangeStart).
			Int64("range_end", rangeEnd).
			Int("page", page).
			Int("posts", len(posts)).
			Int64("last_processed_id", state.LastProcessedID).
			Msg("Page committed")

		// A short page means the range holds nothing past it.
		if len(posts) < h.fetcher.PageSize() {
			return harvested, nil
		}

		page++
		if page > client.MaxPagesPerBatch {
			h.logger.Warn().
				Int64("range_start", rangeStart).
				Int64("range_end", rangeEnd).
				Msg("Page ceiling reached inside one range, advancing")
			return harvested, nil
		}
	}
}

func (h *Harvester) logStop(state checkpoint.State, started time.Time, startTotal int64) {
	h.logger.Info().
		Int64("last_processed_id", state.LastProcessedID).
		Int64("records_this_run", state.TotalRecordsHarvested-startTotal).
		Dur("elapsed", time.Since(started)).
		Msg("Harvest stopped, checkpoint holds the resume position")
}

func (h *Harvester) logDone(state checkpoint.State, started time.Time, startTotal int64) {
	h.logger.Info().
		Int64("last_processed_id", state.LastProcessedID).
		Int64("records_this_run", state.TotalRecordsHarvested-startTotal).
		Int64("total_records", state.TotalRecordsHarvested).
		Dur("elapsed", time.Since(started)).
		Msg("Harvest complete")
}
