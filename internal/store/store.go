package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/prospectline/prospector/internal/model"
)

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = eris.New("job not found")

// JobFilter specifies criteria for listing scraping jobs.
type JobFilter struct {
	Owner  string          `json:"owner,omitempty"`
	Status model.JobStatus `json:"status,omitempty"`
	Source model.Source    `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Source model.Source `json:"source,omitempty"`
	City   string       `json:"city,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence boundary for jobs and businesses.
//
// SaveJob is a full-document write (last-write-wins) that recomputes the
// job's results count from its results. ClaimJob atomically moves a job
// into in_progress unless it is already there, which makes the
// one-active-run-per-job guard race-free under concurrent run requests.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.ScrapingJob) error
	GetJob(ctx context.Context, id string) (*model.ScrapingJob, error)
	SaveJob(ctx context.Context, job *model.ScrapingJob) error
	ClaimJob(ctx context.Context, id string) (bool, error)
	SetJobStatus(ctx context.Context, id string, status model.JobStatus) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error)
	DeleteJob(ctx context.Context, id string) error

	// Businesses. The Find methods return (nil, nil) on a miss.
	FindBusinessByNameCityPostal(ctx context.Context, name, city, postalCode string) (*model.Business, error)
	FindBusinessBySiret(ctx context.Context, siret string) (*model.Business, error)
	InsertBusiness(ctx context.Context, b *model.Business) error
	UpdateBusiness(ctx context.Context, b *model.Business) error
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error)
	CountBySource(ctx context.Context) (map[model.Source]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
