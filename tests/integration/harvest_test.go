//go:build integration

package integration

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tidwall/gjson"

	"github.com/Sternrassler/danbooru-harvester/internal/testutil"
	"github.com/Sternrassler/danbooru-harvester/pkg/checkpoint"
	"github.com/Sternrassler/danbooru-harvester/pkg/client"
	"github.com/Sternrassler/danbooru-harvester/pkg/harvester"
	"github.com/Sternrassler/danbooru-harvester/pkg/sink"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newFetcher(t *testing.T, mock *testutil.MockBooru) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig("danbooru-harvester-integration/1.0")
	cfg.BaseURL = mock.URL()
	cfg.RequestInterval = 0
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

func outputIDs(t *testing.T, path string) []int64 {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var ids []int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ids = append(ids, gjson.Get(scanner.Text(), "id").Int())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return ids
}

// TestHarvestWithRedisCheckpoint runs a full bounded harvest with the
// Redis checkpoint backend: mock API, real client, real sink.
func TestHarvestWithRedisCheckpoint(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockBooru(testutil.DenseIDs(1, 2500))
	defer mock.Close()

	store := checkpoint.NewRedisStore(redisClient, "", checkpoint.DefaultState(1), zerolog.Nop())

	outPath := filepath.Join(t.TempDir(), "posts.jsonl")
	out, err := sink.NewJSONLWriter(outPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJSONLWriter() error = %v", err)
	}
	defer out.Close()

	hv, err := harvester.New(newFetcher(t, mock), store, out, harvester.Config{
		BatchSize:           1000,
		FirstID:             1,
		UpperID:             2500,
		EmptyBatchThreshold: 5,
	})
	if err != nil {
		t.Fatalf("harvester.New() error = %v", err)
	}

	if err := hv.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	ids := outputIDs(t, outPath)
	if len(ids) != 2500 {
		t.Fatalf("Output has %d records, want 2500", len(ids))
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("Output id[%d] = %d, want %d", i, id, i+1)
		}
	}

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.LastProcessedID != 2500 {
		t.Errorf("LastProcessedID = %d, want 2500", state.LastProcessedID)
	}
	if state.TotalRecordsHarvested != 2500 {
		t.Errorf("TotalRecordsHarvested = %d, want 2500", state.TotalRecordsHarvested)
	}
}

// TestHarvestResumeAcrossProcesses simulates a crash between two harvest
// processes sharing one Redis checkpoint: the second run resumes where
// the first stopped, and the combined output has every id exactly once.
func TestHarvestResumeAcrossProcesses(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockBooru(testutil.DenseIDs(1, 2000))
	defer mock.Close()

	store := checkpoint.NewRedisStore(redisClient, "", checkpoint.DefaultState(1), zerolog.Nop())
	outPath := filepath.Join(t.TempDir(), "posts.jsonl")

	// First process: bounded to the first batch.
	out, err := sink.NewJSONLWriter(outPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJSONLWriter() error = %v", err)
	}
	hv, err := harvester.New(newFetcher(t, mock), store, out, harvester.Config{
		BatchSize:           1000,
		FirstID:             1,
		UpperID:             1000,
		EmptyBatchThreshold: 5,
	})
	if err != nil {
		t.Fatalf("harvester.New() error = %v", err)
	}
	if err := hv.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Second process: same checkpoint key, higher bound.
	mock.Reset()
	out, err = sink.NewJSONLWriter(outPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJSONLWriter() reopen error = %v", err)
	}
	defer out.Close()
	hv, err = harvester.New(newFetcher(t, mock), store, out, harvester.Config{
		BatchSize:           1000,
		FirstID:             1,
		UpperID:             2000,
		EmptyBatchThreshold: 5,
	})
	if err != nil {
		t.Fatalf("harvester.New() error = %v", err)
	}
	if err := hv.Run(context.Background()); err != nil {
		t.Fatalf("Resumed Run() error = %v", err)
	}

	// The resumed process never refetched the committed range.
	for _, call := range mock.CallLog() {
		if call.HasRange && call.RangeStart <= 1000 {
			t.Errorf("Resumed run refetched committed range starting at %d", call.RangeStart)
		}
	}

	ids := outputIDs(t, outPath)
	if len(ids) != 2000 {
		t.Fatalf("Output has %d records, want 2000", len(ids))
	}
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("Output id[%d] = %d, want %d (no duplicates, no gaps)", i, id, i+1)
		}
	}
}
