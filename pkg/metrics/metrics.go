// Package metrics provides the centralized Prometheus metrics registry
// for the harvester. All metrics are defined in their respective
// packages (client, ratelimit, checkpoint, sink, harvester) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - danbooru_requests_total{status} (Counter): Total requests by HTTP status
//   - danbooru_request_duration_seconds (Histogram): Request duration
//   - danbooru_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - danbooru_retries_total{error_class} (Counter): Retry attempts by error class
//   - danbooru_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - danbooru_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Pacing Metrics (pkg/ratelimit):
//   - danbooru_pacer_wait_seconds (Histogram): Time spent waiting for a request slot
//   - danbooru_pacer_waits_total (Counter): Requests that had to wait for pacing
//
// Checkpoint Metrics (pkg/checkpoint):
//   - danbooru_checkpoint_saves_total{backend} (Counter): Successful checkpoint saves by backend
//   - danbooru_checkpoint_save_errors_total{backend} (Counter): Failed checkpoint saves by backend
//   - danbooru_checkpoint_last_processed_id (Gauge): Last processed id in the newest checkpoint
//
// Sink Metrics (pkg/sink):
//   - danbooru_sink_records_written_total (Counter): Records appended to the output stream
//   - danbooru_sink_bytes_written_total (Counter): Bytes appended to the output stream
//
// Harvest Metrics (pkg/harvester):
//   - danbooru_records_harvested_total (Counter): Records harvested by the current process
//   - danbooru_batches_completed_total (Counter): ID-range batches fully processed
//   - danbooru_empty_batches_total (Counter): Batches that contained no posts
//   - danbooru_harvest_last_processed_id (Gauge): Highest post id committed by the harvest loop
//
// Example Prometheus Queries:
//
//   # Harvest Throughput
//   rate(danbooru_records_harvested_total[5m])
//
//   # Request Error Rate
//   rate(danbooru_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(danbooru_request_duration_seconds_bucket[5m]))
//
//   # Time Lost to Pacing
//   rate(danbooru_pacer_wait_seconds_sum[5m])
//
//   # Checkpoint Failure Rate
//   rate(danbooru_checkpoint_save_errors_total[5m])
