package sites

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// MaxLocaleLength bounds the stored locale code.
const MaxLocaleLength = 10

// Fields are the mutable attributes of a site, as produced by Normalize.
type Fields struct {
	Name        string     `json:"name" validate:"required"`
	URL         string     `json:"url" validate:"required"`
	Description string     `json:"description,omitempty"`
	LogoURL     string     `json:"logo_url,omitempty"`
	Locale      *string    `json:"locale,omitempty" validate:"omitempty,max=10"`
	Categories  []string   `json:"categories"`
	Tags        []string   `json:"tags"`
	FeaturedAt  *time.Time `json:"featured_at,omitempty"`
}

// Site is a persisted catalog entry.
type Site struct {
	ID         int64 `json:"id"`
	ExternalID int64 `json:"external_id"`
	Fields
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Featured reports whether the site has a featured timestamp.
func (s *Site) Featured() bool {
	return s.FeaturedAt != nil
}

// ValidationError reports the fields that failed validation.
type ValidationError struct {
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid site fields [%s]: %v", strings.Join(e.Fields, ", "), e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the required fields. A nil return means the fields may be persisted.
func (f *Fields) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Err: err}
	}

	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fmt.Sprintf("%s(%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return &ValidationError{Fields: names, Err: err}
}
