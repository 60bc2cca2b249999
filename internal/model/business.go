package model

import "time"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Address is a business's postal address. Every field is independently
// optional; absent values are empty strings.
type Address struct {
	Street      string       `json:"street,omitempty"`
	City        string       `json:"city,omitempty"`
	PostalCode  string       `json:"postal_code,omitempty"`
	Region      string       `json:"region,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Contact holds a business's contact channels.
type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// Registration holds French business-registry attributes.
type Registration struct {
	Category string `json:"category,omitempty"`
	NafCode  string `json:"naf_code,omitempty"`
	Siret    string `json:"siret,omitempty"`
	Siren    string `json:"siren,omitempty"`
}

// Provenance records where and when a business record was scraped.
type Provenance struct {
	Source      Source    `json:"source"`
	PlaceID     string    `json:"place_id,omitempty"`
	ScrapedBy   string    `json:"scraped_by,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Record is the canonical, not-yet-persisted shape produced by a source
// adapter. It is the common currency between adapters and the reconciler.
type Record struct {
	Name         string       `json:"name"`
	Address      Address      `json:"address"`
	Contact      Contact      `json:"contact"`
	Registration Registration `json:"registration"`
	Scraping     Provenance   `json:"scraping_data"`
}

// Business is a persisted, reconciled business entity. Fields already
// populated are never overwritten by a later scrape; only empty fields
// are filled in.
type Business struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Address      Address      `json:"address"`
	Contact      Contact      `json:"contact"`
	Registration Registration `json:"registration"`
	Scraping     Provenance   `json:"scraping_data"`
	Tags         []string     `json:"tags,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// FromRecord builds a new Business from a canonical record.
func FromRecord(r Record) *Business {
	return &Business{
		Name:         r.Name,
		Address:      r.Address,
		Contact:      r.Contact,
		Registration: r.Registration,
		Scraping:     r.Scraping,
		Active:       true,
	}
}
