package v1

import (
	"time"

	"github.com/stacklok/site-discovery-server/internal/sites"
	"github.com/stacklok/site-discovery-server/internal/status"
)

// IndexResponse answers GET /discover
type IndexResponse struct {
	Discover bool `json:"discover"`
}

// SiteResponse is the public representation of a catalog entry
type SiteResponse struct {
	ID              int64     `json:"id"`
	ExternalTopicID int64     `json:"external_topic_id"`
	SiteName        string    `json:"site_name"`
	SiteURL         string    `json:"site_url"`
	Description     *string   `json:"description"`
	LogoURL         *string   `json:"logo_url"`
	Locale          *string   `json:"locale"`
	Categories      []string  `json:"categories"`
	Tags            []string  `json:"tags"`
	Featured        bool      `json:"featured"`
	LastSyncedAt    time.Time `json:"last_synced_at"`
}

// ListMeta carries the pagination of a site listing
type ListMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// ListResponse answers GET /discover/sites
type ListResponse struct {
	Sites []SiteResponse `json:"sites"`
	Meta  ListMeta       `json:"meta"`
}

// SyncResponse answers POST /discover/sync
type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func newSiteResponse(s *sites.Site) SiteResponse {
	return SiteResponse{
		ID:              s.ID,
		ExternalTopicID: s.ExternalID,
		SiteName:        s.Name,
		SiteURL:         s.URL,
		Description:     nullable(s.Description),
		LogoURL:         nullable(s.LogoURL),
		Locale:          s.Locale,
		Categories:      nonNil(s.Categories),
		Tags:            nonNil(s.Tags),
		Featured:        s.Featured(),
		LastSyncedAt:    s.LastSyncedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// totalPages is ceil(total/perPage).
func totalPages(total int64, perPage int) int64 {
	if perPage <= 0 {
		return 0
	}
	return (total + int64(perPage) - 1) / int64(perPage)
}

// SyncStatusResponse is the body of GET /discover/sync/status.
type SyncStatusResponse struct {
	Profiles map[string]*status.SyncStatus `json:"profiles"`
}
