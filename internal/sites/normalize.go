package sites

import "strings"

// LocaleTagPrefix marks the tag carrying a site's locale, e.g. "locale-en".
const LocaleTagPrefix = "locale-"

// fieldRule selects one candidate value from a topic.
type fieldRule func(Topic) string

// nameRules are tried in order; the first non-empty result wins.
var nameRules = []fieldRule{
	func(t Topic) string { return t.Title },
	func(t Topic) string { return t.FancyTitle },
}

// urlRules are tried in order; the first non-empty result wins.
var urlRules = []fieldRule{
	func(t Topic) string { return t.FeaturedLink },
	func(t Topic) string { return t.URL },
	func(t Topic) string { return t.Slug },
}

func firstNonEmpty(t Topic, rules []fieldRule) string {
	for _, rule := range rules {
		if v := rule(t); v != "" {
			return v
		}
	}
	return ""
}

// Normalize maps a remote topic into site fields. It performs no I/O and does
// not validate; callers reject topics without an ID before normalizing and
// validate the result before persisting.
func Normalize(t Topic) Fields {
	tags := make([]string, len(t.Tags))
	copy(tags, t.Tags)

	var featuredAt = t.PinnedAt
	if featuredAt != nil {
		ts := featuredAt.UTC()
		featuredAt = &ts
	}

	return Fields{
		Name:        firstNonEmpty(t, nameRules),
		URL:         firstNonEmpty(t, urlRules),
		Description: t.Excerpt,
		LogoURL:     t.ImageURL,
		Locale:      ExtractLocale(t.Tags),
		Categories:  ExtractCategories(t.Tags),
		Tags:        tags,
		FeaturedAt:  featuredAt,
	}
}

// ExtractLocale returns the code of the first locale tag, or nil if there is none.
func ExtractLocale(tags []string) *string {
	for _, tag := range tags {
		if strings.HasPrefix(tag, LocaleTagPrefix) {
			locale := strings.TrimPrefix(tag, LocaleTagPrefix)
			return &locale
		}
	}
	return nil
}

// ExtractCategories returns every non-locale tag in source order. Duplicates are kept.
func ExtractCategories(tags []string) []string {
	categories := make([]string, 0, len(tags))
	for _, tag := range tags {
		if strings.HasPrefix(tag, LocaleTagPrefix) {
			continue
		}
		categories = append(categories, tag)
	}
	return categories
}
