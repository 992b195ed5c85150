package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/site-discovery-server/internal/sites"
	"github.com/stacklok/site-discovery-server/internal/store"
)

// steppingClock advances one second on every reading so sync order is deterministic.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore() store.SiteStore {
	clock := &steppingClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(clock.Now))
}

func ptr[T any](v T) *T {
	return &v
}

func fields(name string, locale *string, categories ...string) sites.Fields {
	return sites.Fields{
		Name:       name,
		URL:        "https://" + name + ".example",
		Locale:     locale,
		Categories: categories,
		Tags:       append([]string(nil), categories...),
	}
}

func TestUpsert_CreatesThenOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	created, err := s.Upsert(ctx, 123, fields("alpha", ptr("en"), "technology"))
	require.NoError(t, err)
	assert.Equal(t, int64(123), created.ExternalID)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "alpha", created.Name)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	updated, err := s.Upsert(ctx, 123, fields("alpha renamed", nil))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "upsert keeps identity")
	assert.Equal(t, "alpha renamed", updated.Name)
	assert.Nil(t, updated.Locale, "all mutable fields are overwritten")
	assert.Empty(t, updated.Categories)
	assert.True(t, updated.LastSyncedAt.After(created.LastSyncedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUpsert_ValidationFailureWritesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	_, err := s.Upsert(ctx, 1, fields("keep", nil))
	require.NoError(t, err)

	tests := []struct {
		name   string
		fields sites.Fields
		field  string
	}{
		{name: "empty name", fields: sites.Fields{URL: "https://x.example"}, field: "name(required)"},
		{name: "empty url", fields: sites.Fields{Name: "x"}, field: "url(required)"},
		{name: "long locale", fields: sites.Fields{Name: "x", URL: "https://x.example", Locale: ptr("abcdefghijk")}, field: "locale(max)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upsert(ctx, 1, tt.fields)
			var validationErr *sites.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Contains(t, validationErr.Fields, tt.field)
		})
	}

	site, err := s.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "keep", site.Name)
}

func TestQuery_Filters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	_, err := s.Upsert(ctx, 1, fields("English Tech", ptr("en"), "technology"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, 2, fields("Spanish Tech", ptr("es"), "technology", "news"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, 3, fields("English News", ptr("en"), "news"))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, 4, fields("No Locale", nil))
	require.NoError(t, err)

	tests := []struct {
		name      string
		opts      []store.QueryOption
		wantNames []string
	}{
		{
			name:      "no filter, newest sync first",
			wantNames: []string{"No Locale", "English News", "Spanish Tech", "English Tech"},
		},
		{
			name:      "locale",
			opts:      []store.QueryOption{store.WithLocale("en")},
			wantNames: []string{"English News", "English Tech"},
		},
		{
			name:      "category membership",
			opts:      []store.QueryOption{store.WithCategory("news")},
			wantNames: []string{"English News", "Spanish Tech"},
		},
		{
			name:      "case insensitive search",
			opts:      []store.QueryOption{store.WithSearch("tECH")},
			wantNames: []string{"Spanish Tech", "English Tech"},
		},
		{
			name:      "combined",
			opts:      []store.QueryOption{store.WithLocale("en"), store.WithCategory("technology")},
			wantNames: []string{"English Tech"},
		},
		{
			name:      "no match",
			opts:      []store.QueryOption{store.WithLocale("fr")},
			wantNames: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := s.Query(ctx, tt.opts...)
			require.NoError(t, err)

			names := make([]string, 0, len(result.Sites))
			for _, site := range result.Sites {
				names = append(names, site.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, int64(len(tt.wantNames)), result.Total)
		})
	}
}

func TestQuery_Pagination(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	for i := range 30 {
		_, err := s.Upsert(ctx, int64(i+1), fields(fmt.Sprintf("site-%02d", i), nil))
		require.NoError(t, err)
	}

	first, err := s.Query(ctx)
	require.NoError(t, err)
	assert.Len(t, first.Sites, store.DefaultPageSize)
	assert.Equal(t, int64(30), first.Total)
	assert.Equal(t, "site-29", first.Sites[0].Name)

	second, err := s.Query(ctx, store.WithOffset(24))
	require.NoError(t, err)
	assert.Len(t, second.Sites, 6)
	assert.Equal(t, int64(30), second.Total)
	assert.Equal(t, "site-00", second.Sites[5].Name)

	beyond, err := s.Query(ctx, store.WithOffset(100))
	require.NoError(t, err)
	assert.Empty(t, beyond.Sites)
	assert.Equal(t, int64(30), beyond.Total)

	small, err := s.Query(ctx, store.WithLimit(5), store.WithOffset(5))
	require.NoError(t, err)
	require.Len(t, small.Sites, 5)
	assert.Equal(t, "site-24", small.Sites[0].Name)
}

func TestQuery_FeaturedOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	f := fields("older featured", nil)
	f.FeaturedAt = &older
	_, err := s.Upsert(ctx, 1, f)
	require.NoError(t, err)

	_, err = s.Upsert(ctx, 2, fields("not featured", nil))
	require.NoError(t, err)

	f = fields("newer featured", nil)
	f.FeaturedAt = &newer
	_, err = s.Upsert(ctx, 3, f)
	require.NoError(t, err)

	result, err := s.Query(ctx, store.WithFeaturedOnly())
	require.NoError(t, err)
	require.Len(t, result.Sites, 2)
	assert.Equal(t, "newer featured", result.Sites[0].Name)
	assert.Equal(t, "older featured", result.Sites[1].Name)
	assert.True(t, result.Sites[0].Featured())
}

func TestQuery_InvalidOptions(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	for _, opt := range []store.QueryOption{
		store.WithLocale(""),
		store.WithCategory(""),
		store.WithSearch("   "),
		store.WithOffset(-1),
		store.WithLimit(0),
	} {
		_, err := s.Query(context.Background(), opt)
		assert.Error(t, err)
	}
}

func TestFindByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	_, err := s.FindByID(ctx, 42)
	require.ErrorIs(t, err, store.ErrNotFound)

	created, err := s.Upsert(ctx, 7, fields("seven", ptr("de"), "travel"))
	require.NoError(t, err)

	found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, found)
}

func TestReturnedSitesAreCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	created, err := s.Upsert(ctx, 1, fields("copy", ptr("en"), "a", "b"))
	require.NoError(t, err)

	created.Categories[0] = "mutated"
	*created.Locale = "xx"

	found, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, found.Categories)
	assert.Equal(t, "en", *found.Locale)
}

func TestConcurrentUpsertsKeepExternalIDUnique(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Upsert(ctx, int64(i%5), fields(fmt.Sprintf("s%d", i), nil))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestQueryDuringUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore()

	featured := func(i int) sites.Fields {
		f := fields(fmt.Sprintf("site-%02d", i), ptr("en"), "technology")
		f.FeaturedAt = ptr(time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC))
		return f
	}
	for i := range 50 {
		_, err := s.Upsert(ctx, int64(i+1), featured(i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			for i := range 50 {
				_, err := s.Upsert(ctx, int64(i+1), featured(i))
				assert.NoError(t, err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := range 200 {
			opts := []store.QueryOption{store.WithCategory("technology")}
			if i%2 == 0 {
				opts = append(opts, store.WithFeaturedOnly())
			}
			result, err := s.Query(ctx, opts...)
			if assert.NoError(t, err) {
				assert.Equal(t, int64(50), result.Total)
				assert.Len(t, result.Sites, store.DefaultPageSize)
			}
		}
	}()
	wg.Wait()
}
