package sirene

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.insee.fr/entreprises/sirene/V3"

const defaultPageSize = 20

// Client queries the INSEE Sirene establishment registry.
type Client interface {
	SearchEstablishments(ctx context.Context, q SearchQuery) (*SearchResponse, error)
	GetBySiret(ctx context.Context, siret string) (*Etablissement, error)
}

// SearchQuery selects establishments by location and optional filters.
// The zero Limit uses the registry default page size.
type SearchQuery struct {
	City       string
	PostalCode string
	NafCode    string
	Limit      int
	Offset     int
}

// SearchResponse is the payload of a /siret search.
type SearchResponse struct {
	Etablissements []Etablissement `json:"etablissements"`
}

type siretResponse struct {
	Etablissement *Etablissement `json:"etablissement"`
}

// Etablissement is one establishment record.
type Etablissement struct {
	Siret              string      `json:"siret"`
	Siren              string      `json:"siren"`
	ActivitePrincipale string      `json:"activitePrincipaleEtablissement"`
	UniteLegale        UniteLegale `json:"uniteLegale"`
	Adresse            Adresse     `json:"adresseEtablissement"`
}

// UniteLegale holds the legal-unit attributes of an establishment.
type UniteLegale struct {
	Denomination string `json:"denominationUniteLegale"`
	Prenom       string `json:"prenom1UniteLegale"`
	Nom          string `json:"nomUniteLegale"`
	Siren        string `json:"siren"`
}

// Adresse is the establishment's registered address.
type Adresse struct {
	NumeroVoie     string `json:"numeroVoieEtablissement"`
	TypeVoie       string `json:"typeVoieEtablissement"`
	LibelleVoie    string `json:"libelleVoieEtablissement"`
	LibelleCommune string `json:"libelleCommuneEtablissement"`
	CodePostal     string `json:"codePostalEtablissement"`
}

// Street joins the address's street components.
func (a Adresse) Street() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{a.NumeroVoie, a.TypeVoie, a.LibelleVoie} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Sirene API client authenticated with a bearer token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchEstablishments runs a /siret query built from the search criteria.
// An HTTP 404 means the query matched nothing and returns an empty response,
// which is how the registry reports zero results.
func (c *httpClient) SearchEstablishments(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	clauses := []string{fmt.Sprintf("libelleCommuneEtablissement:%q", q.City)}
	if q.PostalCode != "" {
		clauses = append(clauses, "codePostalEtablissement:"+q.PostalCode)
	}
	if q.NafCode != "" {
		clauses = append(clauses, "activitePrincipaleEtablissement:"+q.NafCode)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}

	params := url.Values{}
	params.Set("q", strings.Join(clauses, " AND "))
	params.Set("nombre", fmt.Sprint(limit))
	if q.Offset > 0 {
		params.Set("debut", fmt.Sprint(q.Offset))
	}

	body, status, err := c.get(ctx, "/siret?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return &SearchResponse{}, nil
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("sirene: unexpected status %d: %s", status, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "sirene: unmarshal response")
	}
	return &result, nil
}

// GetBySiret fetches a single establishment by its SIRET number.
func (c *httpClient) GetBySiret(ctx context.Context, siret string) (*Etablissement, error) {
	body, status, err := c.get(ctx, "/siret/"+url.PathEscape(siret))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("sirene: unexpected status %d: %s", status, string(body))
	}

	var result siretResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "sirene: unmarshal response")
	}
	if result.Etablissement == nil {
		return nil, eris.Errorf("sirene: establishment %s not found", siret)
	}
	return result.Etablissement, nil
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sirene: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sirene: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sirene: read response")
	}
	return body, resp.StatusCode, nil
}
