package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the meter for sync runs.
	SyncMetricsMeterName = "github.com/stacklok/site-discovery-server/sync"

	// FetchMetricsMeterName is the meter for listing fetches.
	FetchMetricsMeterName = "github.com/stacklok/site-discovery-server/fetch"

	// SiteMetricsMeterName is the meter for the site catalog.
	SiteMetricsMeterName = "github.com/stacklok/site-discovery-server/sites"
)

// SyncMetrics records sync run outcomes. A nil *SyncMetrics records nothing.
type SyncMetrics struct {
	syncDuration    metric.Float64Histogram
	recordsTotal    metric.Int64Counter
	lockContentions metric.Int64Counter
}

// NewSyncMetrics returns nil metrics for a nil provider.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"discover_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, err
	}

	recordsTotal, err := meter.Int64Counter(
		"discover_sync_records_total",
		metric.WithDescription("Records processed by sync runs, by result"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	lockContentions, err := meter.Int64Counter(
		"discover_sync_lock_contentions_total",
		metric.WithDescription("Sync runs skipped because another run held the lock"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:    syncDuration,
		recordsTotal:    recordsTotal,
		lockContentions: lockContentions,
	}, nil
}

// RecordSyncDuration records how long a run held the lock.
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, profile string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.Bool("success", success),
	))
}

// RecordRecords adds the synced and failed record counts of a run.
func (m *SyncMetrics) RecordRecords(ctx context.Context, profile string, synced, failed int) {
	if m == nil {
		return
	}
	m.recordsTotal.Add(ctx, int64(synced), metric.WithAttributes(
		attribute.String("profile", profile), attribute.String("result", "synced")))
	m.recordsTotal.Add(ctx, int64(failed), metric.WithAttributes(
		attribute.String("profile", profile), attribute.String("result", "failed")))
}

// RecordLockContention counts a run that found the lock held.
func (m *SyncMetrics) RecordLockContention(ctx context.Context, profile string) {
	if m == nil {
		return
	}
	m.lockContentions.Add(ctx, 1, metric.WithAttributes(attribute.String("profile", profile)))
}

// FetchMetrics records listing fetches. A nil *FetchMetrics records nothing.
type FetchMetrics struct {
	fetchDuration metric.Float64Histogram
	cacheLookups  metric.Int64Counter
	retries       metric.Int64Counter
}

// NewFetchMetrics returns nil metrics for a nil provider.
func NewFetchMetrics(provider metric.MeterProvider) (*FetchMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(FetchMetricsMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"discover_listing_fetch_duration_seconds",
		metric.WithDescription("Duration of listing page fetches including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"discover_listing_cache_lookups_total",
		metric.WithDescription("Listing page cache lookups, by hit or miss"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"discover_listing_rate_limit_retries_total",
		metric.WithDescription("Retries caused by HTTP 429 from the listing"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	return &FetchMetrics{
		fetchDuration: fetchDuration,
		cacheLookups:  cacheLookups,
		retries:       retries,
	}, nil
}

// RecordPageFetch records one uncached page fetch and its outcome.
func (m *FetchMetrics) RecordPageFetch(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCacheLookup records a page cache hit or miss.
func (m *FetchMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// RecordRetry counts one rate-limit retry.
func (m *FetchMetrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1)
}

// SiteMetrics records catalog size. A nil *SiteMetrics records nothing.
type SiteMetrics struct {
	sitesTotal metric.Int64Gauge
}

// NewSiteMetrics returns nil metrics for a nil provider.
func NewSiteMetrics(provider metric.MeterProvider) (*SiteMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(SiteMetricsMeterName)

	sitesTotal, err := meter.Int64Gauge(
		"discover_sites_total",
		metric.WithDescription("Number of sites in the catalog"),
		metric.WithUnit("{site}"),
	)
	if err != nil {
		return nil, err
	}
	return &SiteMetrics{sitesTotal: sitesTotal}, nil
}

// RecordSitesTotal records the current catalog size.
func (m *SiteMetrics) RecordSitesTotal(ctx context.Context, count int64) {
	if m == nil {
		return
	}
	m.sitesTotal.Record(ctx, count)
}
