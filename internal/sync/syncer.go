package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/site-discovery-server/internal/kv"
	"github.com/stacklok/site-discovery-server/internal/otel"
	"github.com/stacklok/site-discovery-server/internal/sites"
	"github.com/stacklok/site-discovery-server/internal/sources"
	"github.com/stacklok/site-discovery-server/internal/store"
	"github.com/stacklok/site-discovery-server/internal/telemetry"
)

// SyncerTracerName is the name used for the sync tracer
const SyncerTracerName = "github.com/stacklok/site-discovery-server/sync"

// releaseTimeout bounds the lock release once a run has finished.
const releaseTimeout = 5 * time.Second

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks -source=syncer.go Runner

// Runner executes a single sync run.
type Runner interface {
	// Run crawls the listing under profile. A run that finds the lock held
	// returns a Result with Contended set and a nil error.
	Run(ctx context.Context, profile Profile) (*Result, error)
}

// Result summarizes one run.
type Result struct {
	RunID     string
	Profile   string
	Pages     int
	Synced    int
	Failed    int
	Contended bool
	Disabled  bool
	Duration  time.Duration
}

// State is the lock lifecycle of a run.
type State int

// Run states. A run always starts and ends in StateIdle.
const (
	StateIdle State = iota
	StateLockAcquiring
	StateLockedRunning
	StateReleasing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateLockAcquiring:
		return "LOCK_ACQUIRING"
	case StateLockedRunning:
		return "LOCKED_RUNNING"
	case StateReleasing:
		return "RELEASING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Syncer implements Runner against a Fetcher, a SiteStore and a lock store.
type Syncer struct {
	fetcher sources.Fetcher
	store   store.SiteStore
	locks   kv.Store

	enabled     func() bool
	pageDelay   time.Duration
	sleep       sources.SleepFunc
	newRunID    func() string
	observe     func(runID string, state State)
	tracer      trace.Tracer
	syncMetrics *telemetry.SyncMetrics
	siteMetrics *telemetry.SiteMetrics
}

var _ Runner = (*Syncer)(nil)

// Option configures a Syncer.
type Option func(*Syncer)

// WithEnabled sets the feature toggle checked at the start of every run.
func WithEnabled(enabled func() bool) Option {
	return func(s *Syncer) {
		s.enabled = enabled
	}
}

// WithPageDelay sets the pause after each non-empty page.
func WithPageDelay(d time.Duration) Option {
	return func(s *Syncer) {
		s.pageDelay = d
	}
}

// WithSleep replaces the pause implementation.
func WithSleep(sleep sources.SleepFunc) Option {
	return func(s *Syncer) {
		s.sleep = sleep
	}
}

// WithRunID replaces the run identifier generator.
func WithRunID(newRunID func() string) Option {
	return func(s *Syncer) {
		s.newRunID = newRunID
	}
}

// WithStateObserver registers a callback for every state transition.
func WithStateObserver(observe func(runID string, state State)) Option {
	return func(s *Syncer) {
		s.observe = observe
	}
}

// WithTracer sets the OpenTelemetry tracer. If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Syncer) {
		s.tracer = tracer
	}
}

// WithSyncMetrics sets the sync metrics.
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *Syncer) {
		s.syncMetrics = m
	}
}

// WithSiteMetrics sets the catalog size metrics.
func WithSiteMetrics(m *telemetry.SiteMetrics) Option {
	return func(s *Syncer) {
		s.siteMetrics = m
	}
}

// NewSyncer creates a Syncer.
func NewSyncer(fetcher sources.Fetcher, siteStore store.SiteStore, locks kv.Store, opts ...Option) (*Syncer, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if siteStore == nil {
		return nil, fmt.Errorf("site store is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock store is required")
	}

	s := &Syncer{
		fetcher:   fetcher,
		store:     siteStore,
		locks:     locks,
		enabled:   func() bool { return true },
		pageDelay: time.Second,
		sleep:     sources.SleepContext,
		newRunID:  uuid.NewString,
		observe:   func(string, State) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes one crawl under profile.
func (s *Syncer) Run(ctx context.Context, profile Profile) (*Result, error) {
	result := &Result{RunID: s.newRunID(), Profile: profile.Name}
	logger := slog.With("profile", profile.Name, "run_id", result.RunID)

	if !s.enabled() {
		logger.DebugContext(ctx, "Site discovery disabled, skipping sync")
		result.Disabled = true
		return result, nil
	}

	ctx, span := otel.StartSpan(ctx, s.tracer, "Syncer.Run", trace.WithAttributes(
		otel.AttrSyncProfile.String(profile.Name),
		otel.AttrSyncRunID.String(result.RunID),
	))
	defer span.End()

	s.transition(result.RunID, StateLockAcquiring)
	acquired, err := s.locks.SetNX(ctx, profile.LockKey, []byte(result.RunID), profile.LockTTL)
	if err != nil {
		s.transition(result.RunID, StateIdle)
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to acquire sync lock %s: %w", profile.LockKey, err)
	}
	if !acquired {
		s.transition(result.RunID, StateIdle)
		logger.InfoContext(ctx, "Sync already in progress, skipping", "lock_key", profile.LockKey)
		s.syncMetrics.RecordLockContention(ctx, profile.Name)
		result.Contended = true
		return result, nil
	}

	s.transition(result.RunID, StateLockedRunning)
	defer s.release(ctx, logger, result.RunID, profile.LockKey)

	logger.InfoContext(ctx, "Starting site sync")
	start := time.Now()
	err = s.crawl(ctx, logger, profile, result)
	result.Duration = time.Since(start)

	s.syncMetrics.RecordSyncDuration(ctx, profile.Name, result.Duration, err == nil)
	s.syncMetrics.RecordRecords(ctx, profile.Name, result.Synced, result.Failed)
	s.recordCatalogSize(ctx)

	if err != nil {
		otel.RecordError(span, err)
		logger.WarnContext(ctx, "Site sync interrupted",
			"pages", result.Pages,
			"synced", result.Synced,
			"failed", result.Failed,
			"error", err)
		return result, err
	}

	logger.InfoContext(ctx, "Site sync complete",
		"pages", result.Pages,
		"synced", result.Synced,
		"failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}

// crawl walks pages from zero until an empty page.
func (s *Syncer) crawl(ctx context.Context, logger *slog.Logger, profile Profile, result *Result) error {
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		records := s.fetcher.FetchPage(ctx, page, sources.WithMaxRetries(profile.MaxRetries))
		if len(records) == 0 {
			// A fetch cut short by cancellation also yields no records
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.DebugContext(ctx, "Reached end of listing", "page", page)
			return nil
		}
		result.Pages++

		for _, raw := range records {
			if err := s.syncRecord(ctx, raw); err != nil {
				result.Failed++
				logger.ErrorContext(ctx, "Failed to sync site",
					"page", page,
					"external_id", gjson.GetBytes(raw, "id").Raw,
					"error", err)
				continue
			}
			result.Synced++
		}

		if err := s.sleep(ctx, s.pageDelay); err != nil {
			return err
		}
	}
}

func (s *Syncer) syncRecord(ctx context.Context, raw json.RawMessage) error {
	topic, err := sites.DecodeTopic(raw)
	if err != nil {
		return err
	}
	if !topic.HasID() {
		return ErrMissingID
	}
	_, err = s.store.Upsert(ctx, topic.ID, sites.Normalize(topic))
	return err
}

// release deletes the lock even when ctx is already cancelled.
func (s *Syncer) release(ctx context.Context, logger *slog.Logger, runID, key string) {
	s.transition(runID, StateReleasing)
	defer s.transition(runID, StateIdle)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.locks.Delete(releaseCtx, key); err != nil {
		logger.ErrorContext(ctx, "Failed to release sync lock", "lock_key", key, "error", err)
	}
}

func (s *Syncer) recordCatalogSize(ctx context.Context) {
	if s.siteMetrics == nil {
		return
	}
	count, err := s.store.Count(context.WithoutCancel(ctx))
	if err != nil {
		slog.WarnContext(ctx, "Failed to count sites for metrics", "error", err)
		return
	}
	s.siteMetrics.RecordSitesTotal(ctx, count)
}

func (s *Syncer) transition(runID string, state State) {
	s.observe(runID, state)
}
