package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/prospectline/prospector/internal/db"
	"github.com/prospectline/prospector/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot path (the engine saves the job document
// after every term/location pair).
var preparedStatements = map[string]string{
	"insert_job":        `INSERT INTO jobs (id, owner, source, status, document, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_job":           `SELECT document FROM jobs WHERE id = $1`,
	"save_job":          `UPDATE jobs SET status = $1, document = $2, updated_at = $3 WHERE id = $4`,
	"claim_job":         `UPDATE jobs SET status = 'in_progress', document = jsonb_set(document, '{status}', '"in_progress"'), updated_at = $1 WHERE id = $2 AND status <> 'in_progress'`,
	"find_biz_by_siret": `SELECT document FROM businesses WHERE siret = $1 LIMIT 1`,
	"insert_business":   `INSERT INTO businesses (id, name_key, city_key, postal_code, siret, source, document, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_business":   `UPDATE businesses SET name_key = $1, city_key = $2, postal_code = $3, siret = $4, document = $5, updated_at = $6 WHERE id = $7`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	document   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs(source);

CREATE TABLE IF NOT EXISTS businesses (
	id          TEXT PRIMARY KEY,
	name_key    TEXT NOT NULL,
	city_key    TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	siret       TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_name_city ON businesses(name_key, city_key);
CREATE INDEX IF NOT EXISTS idx_businesses_siret ON businesses(siret) WHERE siret <> '';
CREATE INDEX IF NOT EXISTS idx_businesses_source ON businesses(source);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ScrapingJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, owner, source, status, document, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Owner, string(job.Source), string(job.Status), doc, now, now,
	)
	return eris.Wrap(err, "postgres: insert job")
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT document FROM jobs WHERE id = $1`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}

	var job model.ScrapingJob
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job")
	}
	return &job, nil
}

// SaveJob writes the whole job document back, recomputing the results
// count from the results slice.
func (s *PostgresStore) SaveJob(ctx context.Context, job *model.ScrapingJob) error {
	job.ResultsCount = len(job.Results)
	job.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, document = $2, updated_at = $3 WHERE id = $4`,
		string(job.Status), doc, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ClaimJob atomically marks the job in_progress. It returns false when
// the job is already running.
func (s *PostgresStore) ClaimJob(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'in_progress', document = jsonb_set(document, '{status}', '"in_progress"'), updated_at = $1 WHERE id = $2 AND status <> 'in_progress'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim job %s", id)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Zero rows means either the job does not exist or it is already
	// in progress; tell them apart.
	var exists bool
	row := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "postgres: claim job %s", id)
	}
	if !exists {
		return false, ErrJobNotFound
	}
	return false, nil
}

func (s *PostgresStore) SetJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, document = jsonb_set(document, '{status}', to_jsonb($1::text)), updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set job status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := `SELECT document FROM jobs WHERE 1=1`
	var args []any

	if filter.Owner != "" {
		args = append(args, filter.Owner)
		query += ` AND owner = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		query += ` AND source = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapingJob
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		var job model.ScrapingJob
		if err := json.Unmarshal(doc, &job); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) FindBusinessByNameCityPostal(ctx context.Context, name, city, postalCode string) (*model.Business, error) {
	query := `SELECT document FROM businesses WHERE name_key = $1 AND city_key = $2`
	args := []any{foldKey(name), foldKey(city)}
	if postalCode != "" {
		args = append(args, postalCode)
		query += ` AND postal_code = $3`
	}
	query += ` LIMIT 1`

	row := s.pool.QueryRow(ctx, query, args...)
	return scanBusinessDoc(row, "postgres")
}

func (s *PostgresStore) FindBusinessBySiret(ctx context.Context, siret string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx, `SELECT document FROM businesses WHERE siret = $1 LIMIT 1`, siret)
	return scanBusinessDoc(row, "postgres")
}

func (s *PostgresStore) InsertBusiness(ctx context.Context, b *model.Business) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	doc, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal business")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO businesses (id, name_key, city_key, postal_code, siret, source, document, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, foldKey(b.Name), foldKey(b.Address.City), b.Address.PostalCode,
		b.Registration.Siret, string(b.Scraping.Source), doc, now, now,
	)
	return eris.Wrap(err, "postgres: insert business")
}

func (s *PostgresStore) UpdateBusiness(ctx context.Context, b *model.Business) error {
	b.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal business")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET name_key = $1, city_key = $2, postal_code = $3, siret = $4, document = $5, updated_at = $6 WHERE id = $7`,
		foldKey(b.Name), foldKey(b.Address.City), b.Address.PostalCode,
		b.Registration.Siret, doc, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update business %s", b.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", b.ID)
	}
	return nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT document FROM businesses WHERE 1=1`
	var args []any

	if filter.Source != "" {
		args = append(args, string(filter.Source))
		query += ` AND source = $` + itoa(len(args))
	}
	if filter.City != "" {
		args = append(args, foldKey(filter.City))
		query += ` AND city_key = $` + itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		var b model.Business
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal business")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) CountBySource(ctx context.Context) (map[model.Source]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, count(*) FROM businesses GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by source")
	}
	defer rows.Close()

	counts := make(map[model.Source]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.Source(src)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by source iterate")
}

func scanBusinessDoc(row pgx.Row, backend string) (*model.Business, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "%s: scan business", backend)
	}
	var b model.Business
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, eris.Wrapf(err, "%s: unmarshal business", backend)
	}
	return &b, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
