package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/models"
)

// mergeKeys maps each warehouse table to its primary-key column, the merge
// key for upserts. The key is always the first column of the table DDL.
var mergeKeys = map[string]string{
	"raw_docs":          "raw_id",
	"events":            "event_id",
	"vectors":           "event_id",
	"companies":         "name",
	"users":             "user_id",
	"assessments":       "assessment_id",
	"search_cache":      "cache_key",
	"financial_metrics": "metric_id",
}

// Client is the pgx-backed columnar store of record. All tables live inside
// one schema (the dataset).
type Client struct {
	pool    *pgxpool.Pool
	dataset string
	logger  arbor.ILogger
}

// NewClient connects to the warehouse and verifies connectivity.
func NewClient(ctx context.Context, cfg *common.WarehouseConfig, logger arbor.ILogger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse DSN is required (set VIGIA_WAREHOUSE_DSN or warehouse.dsn in config)")
	}

	dataset := cfg.Dataset
	if dataset == "" {
		dataset = "dyo_risk"
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse pool: %w", err)
	}

	client := &Client{pool: pool, dataset: dataset, logger: logger}
	if err := client.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warehouse is unreachable: %w", err)
	}

	logger.Info().Str("dataset", dataset).Msg("Warehouse connection established")
	return client, nil
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// qualified returns the schema-qualified table name.
func (c *Client) qualified(table string) string {
	return pgx.Identifier{c.dataset, table}.Sanitize()
}

// rowColumns returns the sorted column set of a row batch. Sorting keeps the
// generated SQL deterministic.
func rowColumns(rows []map[string]interface{}) []string {
	seen := map[string]bool{}
	for _, row := range rows {
		for col := range row {
			seen[col] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

// Insert bulk-appends rows into a table.
func (c *Client) Insert(ctx context.Context, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	columns := rowColumns(rows)
	copyRows := make([][]interface{}, len(rows))
	for i, row := range rows {
		values := make([]interface{}, len(columns))
		for j, col := range columns {
			values[j] = row[col]
		}
		copyRows[i] = values
	}

	count, err := c.pool.CopyFrom(ctx,
		pgx.Identifier{c.dataset, table},
		columns,
		pgx.CopyFromRows(copyRows))
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	c.logger.Debug().
		Str("table", table).
		Int64("rows", count).
		Msg("Warehouse insert completed")
	return nil
}

// Upsert stages rows into an ephemeral table and merges them on the target
// table's primary key. The staging table is dropped in a defer so a failed
// merge never leaks it.
func (c *Client) Upsert(ctx context.Context, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	key, ok := mergeKeys[table]
	if !ok {
		return fmt.Errorf("no merge key registered for table %s", table)
	}

	staging := fmt.Sprintf("%s_staging_%s", table, strings.ReplaceAll(uuid.New().String(), "-", ""))
	stagingIdent := pgx.Identifier{c.dataset, staging}

	createSQL := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS)",
		stagingIdent.Sanitize(), c.qualified(table))
	if _, err := c.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create staging table for %s: %w", table, err)
	}
	defer func() {
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", stagingIdent.Sanitize())
		if _, err := c.pool.Exec(context.WithoutCancel(ctx), dropSQL); err != nil {
			c.logger.Warn().Err(err).Str("staging", staging).Msg("Failed to drop staging table")
		}
	}()

	columns := rowColumns(rows)
	copyRows := make([][]interface{}, len(rows))
	for i, row := range rows {
		values := make([]interface{}, len(columns))
		for j, col := range columns {
			values[j] = row[col]
		}
		copyRows[i] = values
	}
	if _, err := c.pool.CopyFrom(ctx, stagingIdent, columns, pgx.CopyFromRows(copyRows)); err != nil {
		return fmt.Errorf("failed to stage rows for %s: %w", table, err)
	}

	quoted := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	inserts := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		inserts[i] = "s." + quoted[i]
		if col != key {
			updates = append(updates, fmt.Sprintf("%s = s.%s", quoted[i], quoted[i]))
		}
	}

	mergeSQL := fmt.Sprintf(`MERGE INTO %s AS t USING %s AS s ON t.%s = s.%s
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)`,
		c.qualified(table), stagingIdent.Sanitize(),
		pgx.Identifier{key}.Sanitize(), pgx.Identifier{key}.Sanitize(),
		strings.Join(updates, ", "),
		strings.Join(quoted, ", "), strings.Join(inserts, ", "))

	tag, err := c.pool.Exec(ctx, mergeSQL)
	if err != nil {
		return fmt.Errorf("failed to merge into %s: %w", table, err)
	}

	c.logger.Debug().
		Str("table", table).
		Int64("rows", tag.RowsAffected()).
		Msg("Warehouse upsert completed")
	return nil
}

// CachedEnvelope returns the persisted envelope for a search cache key when
// a row newer than the cutoff exists.
func (c *Client) CachedEnvelope(ctx context.Context, key string, since time.Time) (*models.SearchEnvelope, time.Time, error) {
	querySQL := fmt.Sprintf(`SELECT envelope, cached_at FROM %s
WHERE cache_key = $1 AND cached_at >= $2`, c.qualified("search_cache"))

	var payload []byte
	var cachedAt time.Time
	err := c.pool.QueryRow(ctx, querySQL, key, since).Scan(&payload, &cachedAt)
	if err == pgx.ErrNoRows {
		return nil, time.Time{}, interfaces.ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query search cache: %w", err)
	}

	var envelope models.SearchEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, time.Time{}, fmt.Errorf("corrupt search cache row for key %s: %w", key, err)
	}
	return &envelope, cachedAt, nil
}

// RecentEvents returns classified events for a company newer than the
// cutoff, most recent first.
func (c *Client) RecentEvents(ctx context.Context, company string, since time.Time) ([]models.Event, error) {
	querySQL := fmt.Sprintf(`SELECT event_id, title, text, section, url, pub_date, date_parse_error,
source, risk_label, confidence, rationale, classification_method, classifier_ts
FROM %s WHERE lower(company_name) = lower($1) AND created_at >= $2
ORDER BY pub_date DESC NULLS LAST`, c.qualified("events"))

	rows, err := c.pool.Query(ctx, querySQL, company, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var section, url, rationale, method *string
		var riskLabel *string
		if err := rows.Scan(&e.EventID, &e.Title, &e.Text, &section, &url, &e.PubDate,
			&e.DateParseError, &e.Source, &riskLabel, &e.Confidence, &rationale, &method,
			&e.ClassifierTS); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if section != nil {
			e.Section = *section
		}
		if url != nil {
			e.URL = *url
		}
		if rationale != nil {
			e.Rationale = *rationale
		}
		if riskLabel != nil {
			e.RiskLabel = models.RiskLabel(*riskLabel)
		}
		if method != nil {
			e.ClassificationMethod = models.ClassificationMethod(*method)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ActiveVectors returns active vector rows matching the filter, decoded from
// the base64 wire format.
func (c *Client) ActiveVectors(ctx context.Context, filter models.VectorFilter, limit int) ([]models.VectorRecord, error) {
	var conditions []string
	var args []interface{}
	conditions = append(conditions, "is_active = TRUE")
	if filter.CompanyName != "" {
		args = append(args, filter.CompanyName)
		conditions = append(conditions, fmt.Sprintf("lower(company_name) = lower($%d)", len(args)))
	}
	if filter.RiskLevel != "" {
		args = append(args, filter.RiskLevel)
		conditions = append(conditions, fmt.Sprintf("risk_level = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}

	querySQL := fmt.Sprintf(`SELECT event_id, vector, vector_dimension, embedding_model,
vector_created_at, company_name, risk_level, publication_date, source, title, text_summary
FROM %s WHERE %s ORDER BY vector_created_at DESC`, c.qualified("vectors"), strings.Join(conditions, " AND "))
	if limit > 0 {
		querySQL += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var records []models.VectorRecord
	for rows.Next() {
		var r models.VectorRecord
		var encoded string
		if err := rows.Scan(&r.EventID, &encoded, &r.Dimension, &r.EmbeddingModel,
			&r.CreatedAt, &r.CompanyName, &r.RiskLevel, &r.PublicationDate, &r.Source,
			&r.Title, &r.TextSummary); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		vector, err := models.DecodeVector(encoded, r.Dimension)
		if err != nil {
			c.logger.Warn().Err(err).Str("event_id", r.EventID).Msg("Skipping undecodable vector row")
			continue
		}
		r.Vector = vector
		r.IsActive = true
		records = append(records, r)
	}
	return records, rows.Err()
}

// VacuumParsedRawDocs removes parsed raw documents older than the cutoff.
func (c *Client) VacuumParsedRawDocs(ctx context.Context, cutoff time.Time) (int64, error) {
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE status = 'parsed' AND fetched_at < $1", c.qualified("raw_docs"))
	tag, err := c.pool.Exec(ctx, deleteSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to vacuum raw docs: %w", err)
	}

	deleted := tag.RowsAffected()
	c.logger.Info().
		Int64("deleted", deleted).
		Str("cutoff", cutoff.Format(time.RFC3339)).
		Msg("Raw document vacuum completed")
	return deleted, nil
}

var _ interfaces.Warehouse = (*Client)(nil)
