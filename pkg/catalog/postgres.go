package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"ir-scraper/pkg/models"
	"ir-scraper/pkg/utils"
)

// PostgresCatalog implements Directory and Store on a PostgreSQL pool.
type PostgresCatalog struct {
	pool            *pgxpool.Pool
	rescheduleAfter time.Duration
	log             *logrus.Entry
}

// Connect establishes a connection pool, verifies it, and ensures the schema
// exists.
func Connect(ctx context.Context, databaseURL string, rescheduleAfter time.Duration, logger *logrus.Entry) (*PostgresCatalog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %w", utils.ErrDatabase, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", utils.ErrDatabase, err)
	}

	c := &PostgresCatalog{pool: pool, rescheduleAfter: rescheduleAfter, log: logger}
	if err := c.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// ensureSchema creates the catalog tables if they do not exist. The companies
// table is managed externally; it is created here only so a fresh database is
// usable for local runs.
func (c *PostgresCatalog) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id      BIGSERIAL PRIMARY KEY,
			name    TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			ir_url  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS presentations (
			url                  TEXT PRIMARY KEY,
			title                TEXT NOT NULL,
			publication_date     DATE NOT NULL,
			date_guessed         BOOLEAN NOT NULL DEFAULT FALSE,
			file_type            TEXT NOT NULL,
			file_size_bytes      BIGINT,
			file_size            TEXT NOT NULL,
			slide_count_estimate INT,
			company_id           BIGINT NOT NULL REFERENCES companies(id),
			company_symbol       TEXT NOT NULL,
			discovered_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS crawl_jobs (
			id                  BIGSERIAL PRIMARY KEY,
			company_id          BIGINT NOT NULL REFERENCES companies(id),
			status              TEXT NOT NULL,
			started_at          TIMESTAMPTZ NOT NULL,
			completed_at        TIMESTAMPTZ,
			presentations_found INT NOT NULL DEFAULT 0,
			next_scheduled      TIMESTAMPTZ NOT NULL,
			skipped_reason      TEXT,
			error               TEXT
		)`,
		// One claim per company at a time.
		`CREATE UNIQUE INDEX IF NOT EXISTS crawl_jobs_active_company
			ON crawl_jobs (company_id) WHERE status IN ('pending', 'in_progress')`,
	}
	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: failed to ensure schema: %w", utils.ErrDatabase, err)
		}
	}
	return nil
}

// ListCompanies implements Directory. A company is due when it has never
// been crawled or its latest job's next_scheduled time has passed.
func (c *PostgresCatalog) ListCompanies(ctx context.Context) ([]models.Company, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT co.id, co.name, co.symbol, co.ir_url
		 FROM companies co
		 LEFT JOIN LATERAL (
			SELECT next_scheduled FROM crawl_jobs j
			WHERE j.company_id = co.id
			ORDER BY j.started_at DESC LIMIT 1
		 ) latest ON TRUE
		 WHERE latest.next_scheduled IS NULL OR latest.next_scheduled <= NOW()
		 ORDER BY co.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list companies: %w", utils.ErrDatabase, err)
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		var co models.Company
		if err := rows.Scan(&co.ID, &co.Name, &co.Symbol, &co.IRURL); err != nil {
			return nil, fmt.Errorf("%w: failed to scan company: %w", utils.ErrDatabase, err)
		}
		if !validIRURL(co.IRURL) {
			c.log.Warnf("Skipping company '%s' (ID %d): invalid IR URL '%s'", co.Name, co.ID, co.IRURL)
			continue
		}
		companies = append(companies, co)
	}
	return companies, rows.Err()
}

func validIRURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HasPresentation implements Store.
func (c *PostgresCatalog) HasPresentation(ctx context.Context, presURL string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM presentations WHERE url = $1)`, presURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check presentation '%s': %w", utils.ErrDatabase, presURL, err)
	}
	return exists, nil
}

// SavePresentation implements Store. ON CONFLICT DO NOTHING keeps the first
// write; re-discovering a URL is not an error.
func (c *PostgresCatalog) SavePresentation(ctx context.Context, rec *models.PresentationRecord) (bool, error) {
	tag, err := c.pool.Exec(ctx,
		`INSERT INTO presentations
			(url, title, publication_date, date_guessed, file_type, file_size_bytes,
			 file_size, slide_count_estimate, company_id, company_symbol, discovered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (url) DO NOTHING`,
		rec.URL, rec.Title, rec.PublicationDate, rec.DateGuessed, rec.Format,
		nullableInt64(rec.FileSizeBytes), rec.FileSize, nullableInt(rec.SlideCountEstimate),
		rec.CompanyID, rec.CompanySymbol, rec.DiscoveredAt,
	)
	if err != nil {
		return false, fmt.Errorf("%w: failed to save presentation '%s': %w", utils.ErrDatabase, rec.URL, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimJob implements Store. The partial unique index on non-terminal jobs
// makes the claim atomic: a second concurrent insert fails the index and we
// report the company as already claimed.
func (c *PostgresCatalog) ClaimJob(ctx context.Context, companyID int64) (bool, error) {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO crawl_jobs (company_id, status, started_at, next_scheduled)
		 VALUES ($1, $2, NOW(), NOW())`,
		companyID, models.JobStatusInProgress,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to claim job for company %d: %w", utils.ErrDatabase, companyID, err)
	}
	return true, nil
}

// CompleteJob implements Store.
func (c *PostgresCatalog) CompleteJob(ctx context.Context, companyID int64, outcome JobOutcome) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE crawl_jobs SET
			status = $1,
			completed_at = NOW(),
			presentations_found = presentations_found + $2,
			next_scheduled = NOW() + make_interval(secs => $3),
			skipped_reason = NULLIF($4, ''),
			error = NULLIF($5, '')
		 WHERE company_id = $6 AND status = $7`,
		outcome.Status, outcome.PresentationsFound, c.rescheduleAfter.Seconds(),
		outcome.SkippedReason, outcome.Error,
		companyID, models.JobStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to complete job for company %d: %w", utils.ErrDatabase, companyID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no in-progress job for company %d", utils.ErrDatabase, companyID)
	}
	return nil
}

// Close implements Store.
func (c *PostgresCatalog) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableInt64(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func nullableInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
