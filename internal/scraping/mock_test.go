package scraping

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/prospectline/prospector/internal/adapter"
	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// fakeAdapter serves scripted results per term/location pair and records
// the order of calls.
type fakeAdapter struct {
	mu      sync.Mutex
	source  model.Source
	results map[string][]model.Record
	errs    map[string]error
	calls   []adapter.Query
}

func newFakeAdapter(source model.Source) *fakeAdapter {
	return &fakeAdapter{
		source:  source,
		results: make(map[string][]model.Record),
		errs:    make(map[string]error),
	}
}

func key(term, location string) string { return term + "|" + location }

func (f *fakeAdapter) on(term, location string, records []model.Record) {
	f.results[key(term, location)] = records
}

func (f *fakeAdapter) failOn(term, location string, err error) {
	f.errs[key(term, location)] = err
}

func (f *fakeAdapter) Source() model.Source { return f.source }

func (f *fakeAdapter) Scrape(_ context.Context, q adapter.Query) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if err := f.errs[key(q.Term, q.Location)]; err != nil {
		return nil, err
	}
	return f.results[key(q.Term, q.Location)], nil
}

func (f *fakeAdapter) callPairs() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = [2]string{c.Term, c.Location}
	}
	return out
}

// trackingStore records every progress value persisted through SaveJob.
type trackingStore struct {
	store.Store
	mu         sync.Mutex
	progresses []int
}

func (ts *trackingStore) SaveJob(ctx context.Context, job *model.ScrapingJob) error {
	ts.mu.Lock()
	ts.progresses = append(ts.progresses, job.Progress)
	ts.mu.Unlock()
	return ts.Store.SaveJob(ctx, job)
}

func mapsRecord(name, city string) model.Record {
	return model.Record{
		Name:     name,
		Address:  model.Address{City: city},
		Scraping: model.Provenance{Source: model.SourceGoogleMaps},
	}
}
