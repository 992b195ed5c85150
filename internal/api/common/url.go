// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// formatSuffix may follow a resource path, as in /discover/sites/7.json.
const formatSuffix = ".json"

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter from the request.
// A trailing ".json" is dropped. The result must be non-empty and free of whitespace.
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}
	decoded = strings.TrimSuffix(decoded, formatSuffix)

	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}
	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	}
	return decoded, nil
}

// GetIDParam returns a positive integer URL parameter.
func GetIDParam(r *http.Request, paramName string) (int64, error) {
	value, err := GetAndValidateURLParam(r, paramName)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", paramName)
	}
	return id, nil
}
