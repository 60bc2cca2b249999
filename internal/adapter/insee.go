package adapter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/pkg/sirene"
)

// InseeAdapter scrapes establishments from the Sirene registry. The
// search term is matched against the legal-unit name client-side since
// the registry only filters on structured fields.
type InseeAdapter struct {
	client sirene.Client
}

// NewInsee creates an adapter over a Sirene client.
func NewInsee(client sirene.Client) *InseeAdapter {
	return &InseeAdapter{client: client}
}

func (a *InseeAdapter) Source() model.Source {
	return model.SourceInsee
}

func (a *InseeAdapter) Scrape(ctx context.Context, q Query) ([]model.Record, error) {
	city, postalCode := parseCityPostal(q.Location)
	if city == "" && postalCode == "" {
		return nil, eris.New("insee: empty location")
	}

	query := sirene.SearchQuery{
		City:       city,
		PostalCode: postalCode,
		NafCode:    q.Filters["naf_code"],
	}
	if raw := q.Config["page_size"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			query.Limit = n
		}
	}

	resp, err := a.client.SearchEstablishments(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "insee: search establishments")
	}

	term := strings.ToLower(strings.TrimSpace(q.Term))
	now := time.Now().UTC()
	records := make([]model.Record, 0, len(resp.Etablissements))
	for _, et := range resp.Etablissements {
		name := legalName(et.UniteLegale)
		if name == "" {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(name), term) {
			continue
		}
		records = append(records, model.Record{
			Name: name,
			Address: model.Address{
				Street:     et.Adresse.Street(),
				City:       et.Adresse.LibelleCommune,
				PostalCode: et.Adresse.CodePostal,
				Country:    "France",
			},
			Registration: model.Registration{
				NafCode: et.ActivitePrincipale,
				Siret:   et.Siret,
				Siren:   et.Siren,
			},
			Scraping: model.Provenance{
				Source:      model.SourceInsee,
				ScrapedAt:   now,
				LastUpdated: now,
			},
		})
	}
	return records, nil
}

// legalName prefers the company denomination and falls back to the
// natural person's name for sole proprietorships.
func legalName(u sirene.UniteLegale) string {
	if u.Denomination != "" {
		return u.Denomination
	}
	return strings.TrimSpace(u.Prenom + " " + u.Nom)
}
