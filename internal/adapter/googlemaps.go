package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/pkg/places"
)

// GoogleMapsAdapter scrapes businesses from Places text search.
type GoogleMapsAdapter struct {
	client places.Client
}

// NewGoogleMaps creates an adapter over a Places client.
func NewGoogleMaps(client places.Client) *GoogleMapsAdapter {
	return &GoogleMapsAdapter{client: client}
}

func (a *GoogleMapsAdapter) Source() model.Source {
	return model.SourceGoogleMaps
}

// Scrape runs a "<term> in <location>" text search and maps each place
// to a canonical record. A ZERO_RESULTS status is a successful empty
// scrape; any other non-OK status is a provider error.
func (a *GoogleMapsAdapter) Scrape(ctx context.Context, q Query) ([]model.Record, error) {
	resp, err := a.client.TextSearch(ctx, fmt.Sprintf("%s in %s", q.Term, q.Location))
	if err != nil {
		return nil, eris.Wrap(err, "googlemaps: text search")
	}

	switch resp.Status {
	case places.StatusOK:
	case places.StatusZeroResults:
		return []model.Record{}, nil
	default:
		return nil, &ProviderError{Provider: "googlemaps", Status: resp.Status, Message: resp.ErrorMessage}
	}

	now := time.Now().UTC()
	records := make([]model.Record, 0, len(resp.Results))
	for _, p := range resp.Results {
		street, city, postalCode := splitFormattedAddress(p.FormattedAddress)
		if city == "" {
			city, postalCode = parseCityPostal(q.Location)
		}

		rec := model.Record{
			Name: p.Name,
			Address: model.Address{
				Street:     street,
				City:       city,
				PostalCode: postalCode,
				Country:    "France",
			},
			Contact: model.Contact{
				Phone:   p.FormattedPhone,
				Website: p.Website,
			},
			Registration: model.Registration{
				Category: primaryType(p.Types),
			},
			Scraping: model.Provenance{
				Source:      model.SourceGoogleMaps,
				PlaceID:     p.PlaceID,
				ScrapedAt:   now,
				LastUpdated: now,
			},
		}
		if p.Geometry != nil {
			rec.Address.Coordinates = &model.Coordinates{
				Lat: p.Geometry.Location.Lat,
				Lng: p.Geometry.Location.Lng,
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// splitFormattedAddress breaks a formatted address like
// "12 Rue de Rivoli, 75004 Paris, France" into street, city and postal
// code. Segments that don't carry a postal code are left in the street.
func splitFormattedAddress(addr string) (street, city, postalCode string) {
	segments := strings.Split(addr, ",")
	var rest []string
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || strings.EqualFold(seg, "France") {
			continue
		}
		if city == "" {
			if c, pc := parseCityPostal(seg); pc != "" {
				city, postalCode = c, pc
				continue
			}
		}
		rest = append(rest, seg)
	}
	street = strings.Join(rest, ", ")
	return street, city, postalCode
}

func primaryType(types []string) string {
	for _, t := range types {
		switch t {
		case "point_of_interest", "establishment", "food", "store":
			continue
		}
		return t
	}
	if len(types) > 0 {
		return types[0]
	}
	return ""
}
