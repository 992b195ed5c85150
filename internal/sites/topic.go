// Package sites holds the site catalog domain: the remote topic record as it
// arrives from the listing endpoint, the normalized site fields derived from
// it, and the persisted Site entity.
package sites

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topic is a single record from the remote listing endpoint. Any field may be
// absent; absent strings decode to "" and an absent ID decodes to 0.
type Topic struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	FancyTitle   string     `json:"fancy_title"`
	Excerpt      string     `json:"excerpt"`
	FeaturedLink string     `json:"featured_link"`
	URL          string     `json:"url"`
	Slug         string     `json:"slug"`
	ImageURL     string     `json:"image_url"`
	Tags         []string   `json:"tags"`
	PinnedAt     *time.Time `json:"pinned_at"`
}

// HasID reports whether the record carries a usable external identifier.
func (t Topic) HasID() bool {
	return t.ID != 0
}

// DecodeTopic decodes one raw listing record.
func DecodeTopic(raw json.RawMessage) (Topic, error) {
	var t Topic
	if err := json.Unmarshal(raw, &t); err != nil {
		return Topic{}, fmt.Errorf("failed to decode topic: %w", err)
	}
	return t, nil
}
