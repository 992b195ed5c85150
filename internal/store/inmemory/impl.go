// Package inmemory provides an in-memory implementation of the SiteStore interface
package inmemory

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/site-discovery-server/internal/sites"
	"github.com/stacklok/site-discovery-server/internal/store"
)

// siteStore implements the SiteStore interface
type siteStore struct {
	mu         sync.RWMutex // Protects byID, byExternal, nextID
	byID       map[int64]*sites.Site
	byExternal map[int64]int64
	nextID     int64
	now        func() time.Time
}

var _ store.SiteStore = (*siteStore)(nil)

// Option is a functional option for configuring the siteStore
type Option func(*siteStore)

// WithClock replaces the time source used for sync timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *siteStore) {
		s.now = now
	}
}

// New creates an empty in-memory site store.
func New(opts ...Option) store.SiteStore {
	s := &siteStore{
		byID:       make(map[int64]*sites.Site),
		byExternal: make(map[int64]int64),
		nextID:     1,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckReadiness always succeeds
func (*siteStore) CheckReadiness(_ context.Context) error {
	return nil
}

// Upsert creates or overwrites the site with externalID
func (s *siteStore) Upsert(ctx context.Context, externalID int64, fields sites.Fields) (*sites.Site, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	site, ok := s.lookupLocked(externalID)
	if !ok {
		site = &sites.Site{
			ID:         s.nextID,
			ExternalID: externalID,
			CreatedAt:  now,
		}
		s.nextID++
		s.byID[site.ID] = site
		s.byExternal[externalID] = site.ID
		slog.DebugContext(ctx, "Created site", "id", site.ID, "external_id", externalID)
	}

	site.Fields = cloneFields(fields)
	site.LastSyncedAt = now
	site.UpdatedAt = now

	return cloneSite(site), nil
}

func (s *siteStore) lookupLocked(externalID int64) (*sites.Site, bool) {
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, false
	}
	site, ok := s.byID[id]
	return site, ok
}

// Query returns one page of matching sites
func (s *siteStore) Query(_ context.Context, opts ...store.QueryOption) (*store.QueryResult, error) {
	o, err := store.NewQueryOptions(opts...)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	matches := make([]*sites.Site, 0, len(s.byID))
	for _, site := range s.byID {
		if matchesQuery(site, o) {
			matches = append(matches, cloneSite(site))
		}
	}
	s.mu.RUnlock()

	if o.FeaturedOnly {
		slices.SortFunc(matches, byFeaturedDesc)
	} else {
		slices.SortFunc(matches, byLastSyncedDesc)
	}

	total := int64(len(matches))
	start := min(o.Offset, len(matches))
	end := min(start+o.Limit, len(matches))

	return &store.QueryResult{Sites: matches[start:end:end], Total: total}, nil
}

func matchesQuery(site *sites.Site, o *store.QueryOptions) bool {
	if o.Locale != "" && (site.Locale == nil || *site.Locale != o.Locale) {
		return false
	}
	if o.Category != "" && !slices.Contains(site.Categories, o.Category) {
		return false
	}
	if o.Search != "" && !strings.Contains(strings.ToLower(site.Name), strings.ToLower(o.Search)) {
		return false
	}
	if o.FeaturedOnly && !site.Featured() {
		return false
	}
	return true
}

func byLastSyncedDesc(a, b *sites.Site) int {
	if c := b.LastSyncedAt.Compare(a.LastSyncedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func byFeaturedDesc(a, b *sites.Site) int {
	if c := b.FeaturedAt.Compare(*a.FeaturedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// FindByID returns the site with id
func (s *siteStore) FindByID(_ context.Context, id int64) (*sites.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, ok := s.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSite(site), nil
}

// Count returns the number of stored sites
func (s *siteStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func cloneFields(f sites.Fields) sites.Fields {
	out := f
	out.Categories = slices.Clone(f.Categories)
	out.Tags = slices.Clone(f.Tags)
	if f.Locale != nil {
		locale := *f.Locale
		out.Locale = &locale
	}
	if f.FeaturedAt != nil {
		featuredAt := *f.FeaturedAt
		out.FeaturedAt = &featuredAt
	}
	return out
}

func cloneSite(s *sites.Site) *sites.Site {
	out := *s
	out.Fields = cloneFields(s.Fields)
	return &out
}
