package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectline/prospector/internal/model"
)

func TestParseCityPostal(t *testing.T) {
	tests := []struct {
		in     string
		city   string
		postal string
	}{
		{"Paris", "Paris", ""},
		{"75001 Paris", "Paris", "75001"},
		{"Paris 75001", "Paris", "75001"},
		{"Lyon, 69001", "Lyon", "69001"},
		{"  Saint-Étienne  ", "Saint-Étienne", ""},
		{"91000", "", "91000"},
		{"", "", ""},
	}
	for _, tt := range tests {
		city, postal := parseCityPostal(tt.in)
		assert.Equal(t, tt.city, city, "city of %q", tt.in)
		assert.Equal(t, tt.postal, postal, "postal of %q", tt.in)
	}
}

type stubAdapter struct {
	source model.Source
}

func (s stubAdapter) Source() model.Source { return s.source }
func (s stubAdapter) Scrape(context.Context, Query) ([]model.Record, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubAdapter{source: model.SourceGoogleMaps})
	r.Register(stubAdapter{source: model.SourceInsee})

	a, err := r.Get(model.SourceGoogleMaps)
	require.NoError(t, err)
	assert.Equal(t, model.SourceGoogleMaps, a.Source())

	assert.Equal(t, []model.Source{model.SourceGoogleMaps, model.SourceInsee}, r.Sources())
}

func TestRegistry_UnsupportedSource(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(model.SourceLinkedIn)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestRegistry_ReplacesSameSource(t *testing.T) {
	r := NewRegistry()
	r.Register(stubAdapter{source: model.SourceGoogleMaps})
	r.Register(stubAdapter{source: model.SourceGoogleMaps})

	assert.Len(t, r.Sources(), 1)
}
