package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/prospectline/prospector/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// ClaimJob relies on a single writer observing its own UPDATE.
	sdb.SetMaxOpenConns(1)
	return &SQLiteStore{db: sdb}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	document   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
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
	document    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_businesses_name_city ON businesses(name_key, city_key);
CREATE INDEX IF NOT EXISTS idx_businesses_siret ON businesses(siret);
CREATE INDEX IF NOT EXISTS idx_businesses_source ON businesses(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ScrapingJob) error {
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
		return eris.Wrap(err, "sqlite: marshal job")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, owner, source, status, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Owner, string(job.Source), string(job.Status), string(doc), now, now,
	)
	return eris.Wrap(err, "sqlite: insert job")
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ScrapingJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document FROM jobs WHERE id = ?`, id)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}

	var job model.ScrapingJob
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job")
	}
	return &job, nil
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.ScrapingJob) error {
	job.ResultsCount = len(job.Results)
	job.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, document = ?, updated_at = ? WHERE id = ?`,
		string(job.Status), string(doc), job.UpdatedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save job %s", job.ID)
	}
	return checkJobAffected(res)
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'in_progress', document = json_set(document, '$.status', 'in_progress'), updated_at = ? WHERE id = ? AND status <> 'in_progress'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = ?)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	if !exists {
		return false, ErrJobNotFound
	}
	return false, nil
}

func (s *SQLiteStore) SetJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, document = json_set(document, '$.status', ?), updated_at = ? WHERE id = ?`,
		string(status), string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set job status %s", id)
	}
	return checkJobAffected(res)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error) {
	query := `SELECT document FROM jobs WHERE 1=1`
	var args []any

	if filter.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, filter.Owner)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapingJob
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		var job model.ScrapingJob
		if err := json.Unmarshal([]byte(doc), &job); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete job %s", id)
	}
	return checkJobAffected(res)
}

func (s *SQLiteStore) FindBusinessByNameCityPostal(ctx context.Context, name, city, postalCode string) (*model.Business, error) {
	query := `SELECT document FROM businesses WHERE name_key = ? AND city_key = ?`
	args := []any{foldKey(name), foldKey(city)}
	if postalCode != "" {
		query += ` AND postal_code = ?`
		args = append(args, postalCode)
	}
	query += ` LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	return scanBusinessRow(row)
}

func (s *SQLiteStore) FindBusinessBySiret(ctx context.Context, siret string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document FROM businesses WHERE siret = ? LIMIT 1`, siret)
	return scanBusinessRow(row)
}

func (s *SQLiteStore) InsertBusiness(ctx context.Context, b *model.Business) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	doc, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal business")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO businesses (id, name_key, city_key, postal_code, siret, source, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, foldKey(b.Name), foldKey(b.Address.City), b.Address.PostalCode,
		b.Registration.Siret, string(b.Scraping.Source), string(doc), now, now,
	)
	return eris.Wrap(err, "sqlite: insert business")
}

func (s *SQLiteStore) UpdateBusiness(ctx context.Context, b *model.Business) error {
	b.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal business")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET name_key = ?, city_key = ?, postal_code = ?, siret = ?, document = ?, updated_at = ? WHERE id = ?`,
		foldKey(b.Name), foldKey(b.Address.City), b.Address.PostalCode,
		b.Registration.Siret, string(doc), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update business %s", b.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("business not found: %s", b.ID)
	}
	return nil
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT document FROM businesses WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.City != "" {
		query += ` AND city_key = ?`
		args = append(args, foldKey(filter.City))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		var b model.Business
		if err := json.Unmarshal([]byte(doc), &b); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal business")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

func (s *SQLiteStore) CountBySource(ctx context.Context) (map[model.Source]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, count(*) FROM businesses GROUP BY source`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by source")
	}
	defer rows.Close()

	counts := make(map[model.Source]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.Source(src)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by source iterate")
}

// helpers

func checkJobAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBusinessRow(row scannable) (*model.Business, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: scan business")
	}
	var b model.Business
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal business")
	}
	return &b, nil
}
