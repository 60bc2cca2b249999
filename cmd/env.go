package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/prospectline/prospector/internal/adapter"
	"github.com/prospectline/prospector/internal/reconcile"
	"github.com/prospectline/prospector/internal/scraping"
	"github.com/prospectline/prospector/internal/store"
	"github.com/prospectline/prospector/pkg/places"
	"github.com/prospectline/prospector/pkg/sirene"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "prospector.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRegistry() *adapter.Registry {
	reg := adapter.NewRegistry()

	if cfg.Places.Key != "" {
		reg.Register(adapter.NewGoogleMaps(places.NewClient(cfg.Places.Key,
			places.WithBaseURL(cfg.Places.BaseURL),
			places.WithLanguage(cfg.Places.Language),
			places.WithRateLimit(cfg.Places.RequestsPerSec),
		)))
	}
	if cfg.Sirene.Token != "" {
		reg.Register(adapter.NewInsee(sirene.NewClient(cfg.Sirene.Token,
			sirene.WithBaseURL(cfg.Sirene.BaseURL),
		)))
	}

	return reg
}

func initEngine(st store.Store) *scraping.Engine {
	return scraping.NewEngine(st, initRegistry(), reconcile.New(st),
		scraping.WithPause(time.Duration(cfg.Scraper.PauseMillis)*time.Millisecond))
}
