// Package client provides the Danbooru HTTP client used by the
// harvester: bounded single-page fetches over id-range filters with
// request pacing, retry with backoff, and error classification.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Sternrassler/danbooru-harvester/pkg/logging"
	"github.com/Sternrassler/danbooru-harvester/pkg/ratelimit"
)

// Danbooru API limits.
const (
	// MaxPageSize is the maximum number of posts per page the API returns.
	MaxPageSize = 200

	// MaxPagesPerBatch is the hard page-count ceiling per distinct tag query.
	MaxPagesPerBatch = 1000

	// DefaultBaseURL is the public Danbooru instance.
	DefaultBaseURL = "https://danbooru.donmai.us"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20

// Prometheus metrics for API operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danbooru_requests_total",
		Help: "Total API requests by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "danbooru_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "danbooru_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Post is one harvested record. The payload schema is owned by the API;
// the client interprets nothing beyond the numeric id field and hands
// the raw JSON through unmodified.
type Post struct {
	ID  int64
	Raw json.RawMessage
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Danbooru instance.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Login and APIKey are optional account credentials. Authenticated
	// accounts get elevated rate limits.
	Login  string
	APIKey string

	// PageSize is the number of posts requested per page, capped at MaxPageSize.
	PageSize int

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration

	// RequestInterval is the minimum spacing between outbound requests.
	RequestInterval time.Duration

	// Retry configures the transient-failure retry budget and backoff.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		UserAgent:       userAgent,
		PageSize:        MaxPageSize,
		RequestTimeout:  30 * time.Second,
		RequestInterval: 1 * time.Second,
		Retry:           DefaultRetryConfig(),
	}
}

// Client is the Danbooru API client.
type Client struct {
	httpClient *http.Client
	pacer      *ratelimit.Pacer
	config     Config
	logger     zerolog.Logger
}

// New creates a new Danbooru client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page_size must be in [1, %d] (got %d)", MaxPageSize, cfg.PageSize)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := logging.NewLogger("danbooru-client")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		pacer:  ratelimit.NewPacer(cfg.RequestInterval, logger),
		config: cfg,
		logger: logger,
	}, nil
}

// PageSize returns the configured posts-per-page limit.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// FetchPosts fetches one page of posts whose ids fall in
// [rangeStart, rangeEnd], using the id:<start>..<end> tag filter.
// Transient failures (network, 5xx, 429) are retried with backoff up to
// the configured budget; non-retryable failures surface immediately as
// an *APIError. An empty result is a valid outcome meaning no more
// posts exist at or beyond this page within the range.
func (c *Client) FetchPosts(ctx context.Context, rangeStart, rangeEnd int64, page int) ([]Post, error) {
	if rangeStart < 1 || rangeEnd < rangeStart {
		return nil, fmt.Errorf("invalid id range [%d, %d]", rangeStart, rangeEnd)
	}
	if page < 1 || page > MaxPagesPerBatch {
		return nil, fmt.Errorf("page %d outside [1, %d]", page, MaxPagesPerBatch)
	}

	// order:id makes pages arrive in ascending id order, so the highest
	// committed id always marks the exact resume point within a range.
	query := url.Values{}
	query.Set("tags", fmt.Sprintf("id:%d..%d order:id", rangeStart, rangeEnd))
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(c.config.PageSize))

	c.logger.Debug().
		Int64("range_start", rangeStart).
		Int64("range_end", rangeEnd).
		Int("page", page).
		Msg("Fetching posts")

	var posts []Post
	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}
		var fetchErr error
		posts, fetchErr = c.getPosts(ctx, query)
		return fetchErr
	}, Classify)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int64("range_start", rangeStart).
		Int64("range_end", rangeEnd).
		Int("page", page).
		Int("posts", len(posts)).
		Msg("Page fetched")

	return posts, nil
}

// HighestPostID probes the newest post on the instance and returns its id.
func (c *Client) HighestPostID(ctx context.Context) (int64, error) {
	query := url.Values{}
	query.Set("limit", "1")
	query.Set("page", "1")

	var posts []Post
	err := retryWithBackoff(ctx, c.config.Retry, func() error {
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}
		var fetchErr error
		posts, fetchErr = c.getPosts(ctx, query)
		return fetchErr
	}, Classify)
	if err != nil {
		return 0, err
	}
	if len(posts) == 0 {
		return 0, &APIError{
			ErrorClass: ErrorClassDecode,
			Message:    "no posts returned when probing highest id",
		}
	}

	c.logger.Info().
		Int64("highest_id", posts[0].ID).
		Msg("Probed highest post id")

	return posts[0].ID, nil
}

// getPosts performs a single GET against /posts.json and decodes the
// response into opaque posts. One call, no retries.
func (c *Client) getPosts(ctx context.Context, query url.Values) ([]Post, error) {
	reqURL := c.config.BaseURL + "/posts.json?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &APIError{
			ErrorClass: ErrorClassClient,
			Message:    "build request",
			Err:        err,
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.Login != "" {
		req.SetBasicAuth(c.config.Login, c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		errorClass := ClassifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errorClass)).Inc()

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errorClass,
			Message:    resp.Status,
		}
		if errorClass == ErrorClassRateLimit {
			if seconds, parseErr := strconv.Atoi(resp.Header.Get("Retry-After")); parseErr == nil {
				apiErr.RetryAfter = time.Duration(seconds) * time.Second
			}
		}

		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(errorClass)).
			Msg("API request error")

		return nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "response is not a JSON array of posts",
			Err:        err,
		}
	}

	posts := make([]Post, 0, len(raw))
	for _, msg := range raw {
		id := gjson.GetBytes(msg, "id")
		if !id.Exists() {
			errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassDecode,
				Message:    "post record is missing the id field",
			}
		}
		posts = append(posts, Post{ID: id.Int(), Raw: msg})
	}

	return posts, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
