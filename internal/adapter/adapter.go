// Package adapter normalizes per-provider scraping into canonical
// business records. Each adapter covers one source and hides that
// provider's query dialect and payload shape.
package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/prospectline/prospector/internal/model"
)

// Query is one unit of scraping work: a single search term in a single
// location, plus the job-level filters and configuration.
type Query struct {
	Term     string
	Location string
	Filters  map[string]string
	Config   map[string]string
}

// Adapter scrapes one provider and returns canonical records. A scrape
// that finds nothing returns an empty slice, not an error.
type Adapter interface {
	Source() model.Source
	Scrape(ctx context.Context, q Query) ([]model.Record, error)
}

// ProviderError reports a non-retryable status returned by a provider
// inside an otherwise successful response.
type ProviderError struct {
	Provider string
	Status   string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: status %s: %s", e.Provider, e.Status, e.Message)
}

var postalCodeRe = regexp.MustCompile(`\b\d{5}\b`)

// parseCityPostal splits a location string into city and postal code.
// Both "75001 Paris" and "Paris 75001" are accepted; a location without
// a five-digit code is treated as a bare city name.
func parseCityPostal(location string) (city, postalCode string) {
	location = strings.TrimSpace(location)
	postalCode = postalCodeRe.FindString(location)
	if postalCode == "" {
		return location, ""
	}
	city = strings.TrimSpace(strings.Replace(location, postalCode, "", 1))
	city = strings.Trim(city, ",")
	return strings.TrimSpace(city), postalCode
}
