package warehouse

import (
	"context"
	"fmt"
)

// tableDDL holds the pipeline tables in creation order. The primary key is
// always the first column; mergeKeys mirrors that.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.raw_docs (
		raw_id        TEXT PRIMARY KEY,
		source        TEXT NOT NULL,
		payload       JSONB NOT NULL,
		meta          JSONB,
		fetched_at    TIMESTAMPTZ NOT NULL,
		retries       INT NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.events (
		event_id              TEXT PRIMARY KEY,
		company_name          TEXT NOT NULL,
		title                 TEXT NOT NULL,
		text                  TEXT NOT NULL DEFAULT '',
		section               TEXT,
		url                   TEXT,
		pub_date              TIMESTAMPTZ,
		date_parse_error      BOOLEAN NOT NULL DEFAULT FALSE,
		source                TEXT NOT NULL,
		risk_label            TEXT,
		confidence            DOUBLE PRECISION,
		rationale             TEXT,
		classification_method TEXT,
		classifier_ts         TIMESTAMPTZ,
		embedding_status      TEXT,
		embedding_model       TEXT,
		alerted               BOOLEAN NOT NULL DEFAULT FALSE,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.vectors (
		event_id          TEXT PRIMARY KEY,
		vector            TEXT NOT NULL,
		vector_dimension  INT NOT NULL,
		embedding_model   TEXT NOT NULL,
		vector_created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_active         BOOLEAN NOT NULL DEFAULT TRUE,
		company_name      TEXT NOT NULL DEFAULT '',
		risk_level        TEXT NOT NULL DEFAULT '',
		publication_date  TEXT NOT NULL DEFAULT '',
		source            TEXT NOT NULL DEFAULT '',
		title             TEXT NOT NULL DEFAULT '',
		text_summary      TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.companies (
		name        TEXT PRIMARY KEY,
		vat         TEXT,
		last_risk   TEXT,
		last_search TIMESTAMPTZ,
		event_count INT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.users (
		user_id    TEXT PRIMARY KEY,
		email      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.assessments (
		assessment_id   TEXT PRIMARY KEY,
		user_id         TEXT,
		company_name    TEXT NOT NULL,
		payload         JSONB NOT NULL,
		overall_risk    TEXT,
		composite_score DOUBLE PRECISION,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.search_cache (
		cache_key    TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		envelope     JSONB NOT NULL,
		cached_at    TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.financial_metrics (
		metric_id          TEXT PRIMARY KEY,
		company_name       TEXT NOT NULL,
		ticker             TEXT NOT NULL,
		price_change_7d    DOUBLE PRECISION,
		revenue_change_yoy DOUBLE PRECISION,
		indicators         JSONB,
		risk_level         TEXT,
		captured_at        TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_company_created
		ON %[1]s.events (lower(company_name), created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_company_active
		ON %[1]s.vectors (lower(company_name)) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_raw_docs_status_fetched
		ON %[1]s.raw_docs (status, fetched_at)`,
}

// EnsureSchema creates the dataset schema and pipeline tables if absent.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", c.dataset)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", c.dataset, err)
	}

	for _, ddl := range tableDDL {
		stmt := fmt.Sprintf(ddl, fmt.Sprintf("%q", c.dataset))
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply warehouse DDL: %w", err)
		}
	}

	c.logger.Debug().Str("dataset", c.dataset).Msg("Warehouse schema verified")
	return nil
}
