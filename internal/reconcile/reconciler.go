// Package reconcile folds scraped records into the business collection.
// Matching is by name+city(+postal code when present) or by SIRET, and
// merging never overwrites a field that already holds a value.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/internal/store"
)

// RecordError ties a reconcile failure to the record that caused it.
type RecordError struct {
	Record model.Record
	Err    error
}

func (e *RecordError) Error() string {
	return eris.Wrapf(e.Err, "reconcile %q", e.Record.Name).Error()
}

func (e *RecordError) Unwrap() error { return e.Err }

// Reconciler persists scraped records, deduplicating against existing
// businesses.
type Reconciler struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Reconciler.
func New(s store.Store) *Reconciler {
	return &Reconciler{
		store: s,
		log:   zap.L().With(zap.String("component", "reconciler")),
	}
}

// Reconcile processes records in order, creating or merging one business
// per record. A failing record is skipped and reported in the returned
// error slice; the remaining records still go through. scrapedBy tags
// each persisted business with the user whose job produced it.
func (r *Reconciler) Reconcile(ctx context.Context, records []model.Record, scrapedBy string) ([]model.Business, []*RecordError) {
	var (
		persisted []model.Business
		failures  []*RecordError
	)

	for _, rec := range records {
		b, err := r.reconcileOne(ctx, rec, scrapedBy)
		if err != nil {
			r.log.Error("record reconcile failed",
				zap.String("name", rec.Name),
				zap.Error(err))
			failures = append(failures, &RecordError{Record: rec, Err: err})
			continue
		}
		persisted = append(persisted, *b)
	}

	r.log.Info("reconcile finished",
		zap.Int("records", len(records)),
		zap.Int("persisted", len(persisted)),
		zap.Int("failed", len(failures)))
	return persisted, failures
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec model.Record, scrapedBy string) (*model.Business, error) {
	now := time.Now().UTC()
	rec.Scraping.ScrapedBy = scrapedBy
	if rec.Scraping.ScrapedAt.IsZero() {
		rec.Scraping.ScrapedAt = now
	}
	rec.Scraping.LastUpdated = now

	existing, err := r.lookup(ctx, rec)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		b := model.FromRecord(rec)
		if err := r.store.InsertBusiness(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	merge(existing, rec)
	existing.Scraping.LastUpdated = now
	if err := r.store.UpdateBusiness(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// lookup finds a matching business by its natural key, falling back to
// the SIRET when the name/city key misses.
func (r *Reconciler) lookup(ctx context.Context, rec model.Record) (*model.Business, error) {
	b, err := r.store.FindBusinessByNameCityPostal(ctx, rec.Name, rec.Address.City, rec.Address.PostalCode)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}
	if rec.Registration.Siret == "" {
		return nil, nil
	}
	return r.store.FindBusinessBySiret(ctx, rec.Registration.Siret)
}

// merge fills only the fields a scrape is allowed to supply, and only
// when the business doesn't already have them.
func merge(b *model.Business, rec model.Record) {
	fillEmpty(&b.Contact.Phone, rec.Contact.Phone)
	fillEmpty(&b.Contact.Website, rec.Contact.Website)
	fillEmpty(&b.Registration.NafCode, rec.Registration.NafCode)
	fillEmpty(&b.Registration.Siret, rec.Registration.Siret)
	fillEmpty(&b.Registration.Siren, rec.Registration.Siren)
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
