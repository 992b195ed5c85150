package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
)

// ForumTopic is a listing record served by the mock forum
type ForumTopic struct {
	ID           int64    `json:"id,omitempty"`
	Title        string   `json:"title,omitempty"`
	FancyTitle   string   `json:"fancy_title,omitempty"`
	Excerpt      string   `json:"excerpt,omitempty"`
	FeaturedLink string   `json:"featured_link,omitempty"`
	URL          string   `json:"url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	PinnedAt     string   `json:"pinned_at,omitempty"`
}

// MockForumServerBuilder provides a fluent interface for building mock forum listings
type MockForumServerBuilder struct {
	slug        string
	apiKey      string
	rateLimited int
	retryAfter  string
	pages       [][]ForumTopic
}

// NewMockForumServerBuilder creates a builder for a listing served at /c/{slug}.json
func NewMockForumServerBuilder(slug string) *MockForumServerBuilder {
	return &MockForumServerBuilder{slug: slug}
}

// WithPage appends a listing page. Pages past the last one are served empty.
func (b *MockForumServerBuilder) WithPage(topics ...ForumTopic) *MockForumServerBuilder {
	b.pages = append(b.pages, topics)
	return b
}

// WithAPIKey makes the forum reject requests without a matching Api-Key header
func (b *MockForumServerBuilder) WithAPIKey(key string) *MockForumServerBuilder {
	b.apiKey = key
	return b
}

// WithRateLimit answers the first n requests with 429 Too Many Requests
func (b *MockForumServerBuilder) WithRateLimit(n int, retryAfter string) *MockForumServerBuilder {
	b.rateLimited = n
	b.retryAfter = retryAfter
	return b
}

// Build creates and starts the mock forum
func (b *MockForumServerBuilder) Build() *MockForum {
	f := &MockForum{
		slug:        b.slug,
		apiKey:      b.apiKey,
		retryAfter:  b.retryAfter,
		pages:       b.pages,
		pageHits:    make(map[int]int),
		rateLimited: int64(b.rateLimited),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// MockForum is a running mock forum listing
type MockForum struct {
	*httptest.Server

	slug        string
	apiKey      string
	retryAfter  string
	rateLimited int64

	mu       sync.Mutex
	pages    [][]ForumTopic
	pageHits map[int]int

	requests  atomic.Int64
	throttled atomic.Int64
}

// SetPages replaces the listing content
func (f *MockForum) SetPages(pages ...[]ForumTopic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

// Requests returns the number of listing requests received, including throttled ones
func (f *MockForum) Requests() int64 {
	return f.requests.Load()
}

// Throttled returns the number of requests answered with 429
func (f *MockForum) Throttled() int64 {
	return f.throttled.Load()
}

// PageHits returns how many times page n was served successfully
func (f *MockForum) PageHits(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageHits[n]
}

func (f *MockForum) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != fmt.Sprintf("/c/%s.json", f.slug) {
		http.NotFound(w, r)
		return
	}
	f.requests.Add(1)

	if f.apiKey != "" && r.Header.Get("Api-Key") != f.apiKey {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if f.throttled.Load() < f.rateLimited {
		f.throttled.Add(1)
		if f.retryAfter != "" {
			w.Header().Set("Retry-After", f.retryAfter)
		}
		http.Error(w, "slow down", http.StatusTooManyRequests)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	topics := []ForumTopic{}
	if page >= 0 && page < len(f.pages) {
		topics = f.pages[page]
	}
	f.pageHits[page]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"topic_list": map[string]any{"topics": topics},
	})
}

// Topics builds n sequential topics starting at id first, all tagged with tags
func Topics(first int64, n int, tags ...string) []ForumTopic {
	topics := make([]ForumTopic, 0, n)
	for i := range int64(n) {
		id := first + i
		topics = append(topics, ForumTopic{
			ID:           id,
			Title:        fmt.Sprintf("Site %d", id),
			FeaturedLink: fmt.Sprintf("https://site%d.example.com", id),
			Tags:         tags,
		})
	}
	return topics
}
