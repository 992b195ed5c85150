// Package v1 provides the site discovery endpoints mounted under /discover.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/site-discovery-server/internal/api/common"
	"github.com/stacklok/site-discovery-server/internal/status"
	"github.com/stacklok/site-discovery-server/internal/store"
	pkgsync "github.com/stacklok/site-discovery-server/internal/sync"
)

// PageSize is the fixed number of sites per listing page.
const PageSize = store.DefaultPageSize

// maxPage keeps page*PageSize within int.
const maxPage = math.MaxInt / PageSize

// SyncTrigger enqueues a sync run. *sync.Trigger implements it.
type SyncTrigger interface {
	TriggerSync(ctx context.Context) error
}

// SyncStatusReader reports the stored status of each sync profile.
// *status.Tracker implements it.
type SyncStatusReader interface {
	Statuses(ctx context.Context) (map[string]*status.SyncStatus, error)
}

// RouterOption configures optional routes.
type RouterOption func(*Routes)

// WithStatusReader serves GET /sync/status from reader.
func WithStatusReader(reader SyncStatusReader) RouterOption {
	return func(routes *Routes) {
		routes.statuses = reader
	}
}

// Routes handles the discovery endpoints.
type Routes struct {
	store    store.SiteStore
	trigger  SyncTrigger
	statuses SyncStatusReader
	enabled  func() bool
}

// NewRoutes creates a new Routes instance.
func NewRoutes(siteStore store.SiteStore, trigger SyncTrigger, enabled func() bool) *Routes {
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &Routes{store: siteStore, trigger: trigger, enabled: enabled}
}

// Router creates the discovery router. admin guards the sync endpoint and
// runs before the feature check, so a non-admin caller gets 403 even when
// the feature is disabled.
func Router(
	siteStore store.SiteStore,
	trigger SyncTrigger,
	admin func(http.Handler) http.Handler,
	enabled func() bool,
	opts ...RouterOption,
) http.Handler {
	routes := NewRoutes(siteStore, trigger, enabled)
	for _, opt := range opts {
		opt(routes)
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(routes.requireEnabled)
		r.Get("/", routes.index)
		r.Get("/sites", routes.listSites)
		r.Get("/sites.json", routes.listSites)
		r.Get("/sites/{id}", routes.getSite)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin, routes.requireEnabled)
		r.Post("/sync", routes.triggerSync)
		r.Post("/sync.json", routes.triggerSync)
		r.Get("/sync/status", routes.syncStatus)
	})
	return r
}

// requireEnabled answers 404 while the feature is switched off.
func (routes *Routes) requireEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !routes.enabled() {
			common.WriteNotFound(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// index handles GET /discover
func (*Routes) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	common.WriteJSONResponse(w, IndexResponse{Discover: true}, http.StatusOK)
}

// listSites handles GET /discover/sites
//
// Query parameters: locale, category, search, featured (bool) and page
// (zero based, negative values clamp to 0 and pages past the end are empty).
func (routes *Routes) listSites(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 0
	if pageStr := query.Get("page"); pageStr != "" {
		v, err := strconv.Atoi(pageStr)
		if err != nil {
			common.WriteErrorResponse(w, "Invalid page parameter: must be an integer", http.StatusBadRequest)
			return
		}
		page = min(max(v, 0), maxPage)
	}

	opts := []store.QueryOption{
		store.WithOffset(page * PageSize),
		store.WithLimit(PageSize),
	}
	if locale := query.Get("locale"); locale != "" {
		opts = append(opts, store.WithLocale(locale))
	}
	if category := query.Get("category"); category != "" {
		opts = append(opts, store.WithCategory(category))
	}
	if search := strings.TrimSpace(query.Get("search")); search != "" {
		opts = append(opts, store.WithSearch(search))
	}
	if featuredStr := query.Get("featured"); featuredStr != "" {
		featured, err := strconv.ParseBool(featuredStr)
		if err != nil {
			common.WriteErrorResponse(w, "Invalid featured parameter: must be a boolean", http.StatusBadRequest)
			return
		}
		if featured {
			opts = append(opts, store.WithFeaturedOnly())
		}
	}

	result, err := routes.store.Query(r.Context(), opts...)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list sites", "error", err)
		common.WriteErrorResponse(w, "Failed to list sites", http.StatusInternalServerError)
		return
	}

	resp := ListResponse{
		Sites: make([]SiteResponse, 0, len(result.Sites)),
		Meta: ListMeta{
			Page:       page,
			PerPage:    PageSize,
			Total:      result.Total,
			TotalPages: totalPages(result.Total, PageSize),
		},
	}
	for _, site := range result.Sites {
		resp.Sites = append(resp.Sites, newSiteResponse(site))
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// getSite handles GET /discover/sites/{id}
func (routes *Routes) getSite(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetIDParam(r, "id")
	if err != nil {
		common.WriteNotFound(w)
		return
	}

	site, err := routes.store.FindByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		common.WriteNotFound(w)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to get site", "id", id, "error", err)
		common.WriteErrorResponse(w, "Failed to get site", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, newSiteResponse(site), http.StatusOK)
}

// triggerSync handles POST /discover/sync
func (routes *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	if err := routes.trigger.TriggerSync(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Failed to trigger sync", "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, pkgsync.ErrQueueFull) || errors.Is(err, pkgsync.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		common.WriteErrorResponse(w, "Failed to enqueue sync job", status)
		return
	}
	common.WriteJSONResponse(w, SyncResponse{Success: true, Message: "Sync job enqueued"}, http.StatusOK)
}

// syncStatus handles GET /discover/sync/status
func (routes *Routes) syncStatus(w http.ResponseWriter, r *http.Request) {
	if routes.statuses == nil {
		common.WriteNotFound(w)
		return
	}

	statuses, err := routes.statuses.Statuses(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load sync status", "error", err)
		common.WriteErrorResponse(w, "Failed to load sync status", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, SyncStatusResponse{Profiles: statuses}, http.StatusOK)
}
