package sirene

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchEstablishments_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/siret", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, `libelleCommuneEtablissement:"Lyon" AND codePostalEtablissement:69001 AND activitePrincipaleEtablissement:10.71C`, r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("nombre"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Etablissements: []Etablissement{
				{
					Siret:              "55210055400013",
					Siren:              "552100554",
					ActivitePrincipale: "10.71C",
					UniteLegale:        UniteLegale{Denomination: "AU PAIN DORE", Siren: "552100554"},
					Adresse: Adresse{
						NumeroVoie:     "4",
						TypeVoie:       "RUE",
						LibelleVoie:    "DE LA REPUBLIQUE",
						LibelleCommune: "LYON",
						CodePostal:     "69001",
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	resp, err := client.SearchEstablishments(context.Background(), SearchQuery{
		City:       "Lyon",
		PostalCode: "69001",
		NafCode:    "10.71C",
	})

	require.NoError(t, err)
	require.Len(t, resp.Etablissements, 1)
	et := resp.Etablissements[0]
	assert.Equal(t, "55210055400013", et.Siret)
	assert.Equal(t, "AU PAIN DORE", et.UniteLegale.Denomination)
	assert.Equal(t, "4 RUE DE LA REPUBLIQUE", et.Adresse.Street())
}

func TestSearchEstablishments_CityOnlyQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `libelleCommuneEtablissement:"Paris"`, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	_, err := client.SearchEstablishments(context.Background(), SearchQuery{City: "Paris"})
	require.NoError(t, err)
}

func TestSearchEstablishments_NotFoundMeansEmpty(t *testing.T) {
	// Sirene reports an empty result set as HTTP 404.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"header":{"statut":404,"message":"Aucun élément trouvé"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	resp, err := client.SearchEstablishments(context.Background(), SearchQuery{City: "Nulle-Part"})

	require.NoError(t, err)
	assert.Empty(t, resp.Etablissements)
}

func TestSearchEstablishments_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"expired token"}`))
	}))
	defer srv.Close()

	client := NewClient("stale-token", WithBaseURL(srv.URL))
	resp, err := client.SearchEstablishments(context.Background(), SearchQuery{City: "Lyon"})

	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "401")
}

func TestGetBySiret_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/siret/55210055400013", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(siretResponse{
			Etablissement: &Etablissement{Siret: "55210055400013", Siren: "552100554"},
		})
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	et, err := client.GetBySiret(context.Background(), "55210055400013")

	require.NoError(t, err)
	assert.Equal(t, "552100554", et.Siren)
}

func TestGetBySiret_MissingEstablishment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", WithBaseURL(srv.URL))
	et, err := client.GetBySiret(context.Background(), "00000000000000")

	assert.Error(t, err)
	assert.Nil(t, et)
	assert.Contains(t, err.Error(), "not found")
}

func TestAdresseStreet_SkipsEmptyComponents(t *testing.T) {
	a := Adresse{TypeVoie: "RUE", LibelleVoie: "VOLTAIRE"}
	assert.Equal(t, "RUE VOLTAIRE", a.Street())

	assert.Empty(t, Adresse{}.Street())
}
