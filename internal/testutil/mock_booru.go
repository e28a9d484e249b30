// Package testutil provides testing utilities for the Danbooru harvester.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ratings cycled deterministically across the synthetic corpus.
var ratings = []string{"g", "s", "q", "e"}

// PageCall records one /posts.json request for assertions.
type PageCall struct {
	RangeStart int64
	RangeEnd   int64
	HasRange   bool
	Page       int
	Limit      int
}

// MockBooru is a configurable mock Danbooru server backed by a
// synthetic post corpus. It implements the subset of /posts.json the
// harvester uses: the id:<start>..<end> tag filter with page and limit
// parameters, newest posts first unless order:id requests ascending.
type MockBooru struct {
	server *httptest.Server

	mu         sync.Mutex
	ids        []int64
	failures   int
	failStatus int
	retryAfter int
	delay      time.Duration

	// Tracking
	RequestCount int
	Calls        []PageCall
	LastAuth     string
}

// NewMockBooru creates a mock server over the given post ids. The ids
// need not be contiguous; holes model deleted posts.
func NewMockBooru(ids []int64) *MockBooru {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mock := &MockBooru{ids: sorted}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// DenseIDs returns the contiguous id range [start, end] for corpus building.
func DenseIDs(start, end int64) []int64 {
	ids := make([]int64, 0, end-start+1)
	for id := start; id <= end; id++ {
		ids = append(ids, id)
	}
	return ids
}

// URL returns the mock server URL.
func (m *MockBooru) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBooru) Close() {
	m.server.Close()
}

// FailNext makes the next n requests fail with the given HTTP status.
func (m *MockBooru) FailNext(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failStatus = status
}

// SetRetryAfter attaches a Retry-After header (in seconds) to injected failures.
func (m *MockBooru) SetRetryAfter(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryAfter = seconds
}

// SetDelay makes every response wait before being written.
func (m *MockBooru) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// AddPosts inserts additional ids into the corpus, simulating posts
// created while a harvest is running.
func (m *MockBooru) AddPosts(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, ids...)
	sort.Slice(m.ids, func(i, j int) bool { return m.ids[i] < m.ids[j] })
}

func (m *MockBooru) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/posts.json" {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	m.RequestCount++
	m.LastAuth = r.Header.Get("Authorization")

	if m.delay > 0 {
		delay := m.delay
		m.mu.Unlock()
		time.Sleep(delay)
		m.mu.Lock()
	}

	if m.failures > 0 {
		m.failures--
		status := m.failStatus
		retryAfter := m.retryAfter
		m.mu.Unlock()
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	query := r.URL.Query()

	limit := 20
	if v := query.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	page := 1
	if v := query.Get("page"); v != "" {
		page, _ = strconv.Atoi(v)
	}

	var rangeStart, rangeEnd int64
	hasRange := false
	ascending := false
	if tags := query.Get("tags"); tags != "" {
		for _, tag := range strings.Fields(tags) {
			switch {
			case strings.HasPrefix(tag, "id:") && strings.Contains(tag, ".."):
				bounds := strings.SplitN(strings.TrimPrefix(tag, "id:"), "..", 2)
				rangeStart, _ = strconv.ParseInt(bounds[0], 10, 64)
				rangeEnd, _ = strconv.ParseInt(bounds[1], 10, 64)
				hasRange = true
			case tag == "order:id" || tag == "order:id_asc":
				ascending = true
			default:
				m.mu.Unlock()
				http.Error(w, "unsupported tag filter", http.StatusBadRequest)
				return
			}
		}
	}

	m.Calls = append(m.Calls, PageCall{
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		HasRange:   hasRange,
		Page:       page,
		Limit:      limit,
	})

	// Newest first by default, ascending under order:id.
	var matched []int64
	if ascending {
		for _, id := range m.ids {
			if !hasRange || (id >= rangeStart && id <= rangeEnd) {
				matched = append(matched, id)
			}
		}
	} else {
		for i := len(m.ids) - 1; i >= 0; i-- {
			id := m.ids[i]
			if !hasRange || (id >= rangeStart && id <= rangeEnd) {
				matched = append(matched, id)
			}
		}
	}
	m.mu.Unlock()

	lo := (page - 1) * limit
	hi := lo + limit
	if lo > len(matched) {
		lo = len(matched)
	}
	if hi > len(matched) {
		hi = len(matched)
	}
	pageIDs := matched[lo:hi]

	var sb strings.Builder
	sb.WriteByte('[')
	for i, id := range pageIDs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(postJSON(id))
	}
	sb.WriteByte(']')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sb.String()))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBooru) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// CallLog returns a copy of the recorded /posts.json calls.
func (m *MockBooru) CallLog() []PageCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]PageCall, len(m.Calls))
	copy(calls, m.Calls)
	return calls
}

// Reset clears all tracking counters.
func (m *MockBooru) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Calls = nil
	m.LastAuth = ""
}

// postJSON renders one deterministic synthetic post.
func postJSON(id int64) string {
	rating := ratings[id%int64(len(ratings))]
	tags := "solo original"
	if id%2 == 0 {
		tags += " highres"
	}
	return fmt.Sprintf(`{"id":%d,"rating":%q,"score":%d,"tag_string":%q}`,
		id, rating, id%100, tags)
}
