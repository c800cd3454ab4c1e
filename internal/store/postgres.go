package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/db"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (or a pgxmock in tests).
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pricing_snapshots (
	id            UUID PRIMARY KEY,
	fetched_at    TIMESTAMPTZ NOT NULL,
	source        TEXT NOT NULL,
	sheet_version TEXT NOT NULL DEFAULT '',
	item_count    INT NOT NULL DEFAULT 0,
	is_current    BOOLEAN NOT NULL DEFAULT false,
	errors        JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- At most one current snapshot, enforced by the database itself.
CREATE UNIQUE INDEX IF NOT EXISTS pricing_snapshots_single_current
	ON pricing_snapshots (is_current) WHERE is_current;

CREATE TABLE IF NOT EXISTS price_items (
	snapshot_id     UUID NOT NULL REFERENCES pricing_snapshots(id) ON DELETE CASCADE,
	position        INT NOT NULL,
	sku             TEXT NOT NULL,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	price_list      TEXT NOT NULL DEFAULT '',
	unit            TEXT NOT NULL DEFAULT 'unit',
	currency        TEXT NOT NULL DEFAULT '',
	unit_price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (snapshot_id, position)
);

CREATE INDEX IF NOT EXISTS price_items_sku_idx ON price_items (snapshot_id, sku);
CREATE INDEX IF NOT EXISTS price_items_name_idx ON price_items (snapshot_id, normalized_name);

CREATE TABLE IF NOT EXISTS inbound_emails (
	id          UUID PRIMARY KEY,
	message_id  TEXT NOT NULL UNIQUE,
	from_addr   TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	received_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS inbound_emails_status_idx ON inbound_emails (status, received_at);

CREATE TABLE IF NOT EXISTS quote_requests (
	id         UUID PRIMARY KEY,
	email_id   UUID NOT NULL UNIQUE REFERENCES inbound_emails(id) ON DELETE CASCADE,
	extraction JSONB,
	preview    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var priceItemColumns = []string{
	"snapshot_id", "position", "sku", "name", "normalized_name",
	"price_list", "unit", "currency", "unit_price",
}

// CreatePricingSnapshot inserts the snapshot header row and COPYs its
// items in one transaction. The snapshot is created with is_current=false
// and never mutated afterward.
func (s *PostgresStore) CreatePricingSnapshot(ctx context.Context, snap *model.PricingSnapshot) (string, error) {
	id := uuid.NewString()

	var errsJSON []byte
	if len(snap.Errors) > 0 {
		b, err := json.Marshal(snap.Errors)
		if err != nil {
			return "", eris.Wrap(err, "postgres: marshal capture errors")
		}
		errsJSON = b
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", eris.Wrap(err, "postgres: begin create snapshot")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO pricing_snapshots (id, fetched_at, source, sheet_version, item_count, is_current, errors)
		 VALUES ($1, $2, $3, $4, $5, false, $6)`,
		id, snap.FetchedAt, snap.Source, snap.SheetVersion, len(snap.Items), errsJSON,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert snapshot")
	}

	rows := make([][]any, len(snap.Items))
	for i, it := range snap.Items {
		rows[i] = []any{id, i, it.SKU, it.Name, it.NormalizedName, it.PriceList, it.Unit, it.Currency, it.UnitPrice}
	}
	if _, err := db.CopyFrom(ctx, tx, "price_items", priceItemColumns, rows); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", eris.Wrap(err, "postgres: commit create snapshot")
	}
	return id, nil
}

// PromoteSnapshot atomically demotes the previous current snapshot (if
// any) and promotes the target. The partial unique index backs this up:
// two racing promotions serialize on the row locks, and a reader can
// never observe two current snapshots.
func (s *PostgresStore) PromoteSnapshot(ctx context.Context, id string) (*PromotionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin promote")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var prevID string
	err = tx.QueryRow(ctx,
		`UPDATE pricing_snapshots SET is_current = false WHERE is_current RETURNING id`,
	).Scan(&prevID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: demote current snapshot")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE pricing_snapshots SET is_current = true WHERE id = $1`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: promote snapshot %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrSnapshotNotFound, "promote %s", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit promote")
	}
	return &PromotionResult{PreviousCurrentID: prevID, CurrentID: id}, nil
}

// GetCurrentSnapshot returns the snapshot flagged current with its items,
// or nil if no snapshot has ever been promoted.
func (s *PostgresStore) GetCurrentSnapshot(ctx context.Context) (*model.PricingSnapshot, error) {
	return s.getSnapshotWhere(ctx, `is_current`, nil)
}

// GetSnapshot returns a snapshot by id, or nil if absent.
func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*model.PricingSnapshot, error) {
	return s.getSnapshotWhere(ctx, `id = $1`, []any{id})
}

func (s *PostgresStore) getSnapshotWhere(ctx context.Context, where string, args []any) (*model.PricingSnapshot, error) {
	var (
		snap     model.PricingSnapshot
		errsJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, fetched_at, source, sheet_version, item_count, is_current, errors, created_at
		 FROM pricing_snapshots WHERE `+where, args...,
	).Scan(&snap.ID, &snap.FetchedAt, &snap.Source, &snap.SheetVersion, &snap.ItemCount,
		&snap.Current, &errsJSON, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get snapshot")
	}

	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &snap.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal capture errors")
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT sku, name, normalized_name, price_list, unit, currency, unit_price
		 FROM price_items WHERE snapshot_id = $1 ORDER BY position`, snap.ID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get snapshot items")
	}
	defer rows.Close()

	for rows.Next() {
		var it model.PriceItem
		if err := rows.Scan(&it.SKU, &it.Name, &it.NormalizedName, &it.PriceList,
			&it.Unit, &it.Currency, &it.UnitPrice); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price item")
		}
		snap.Items = append(snap.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate price items")
	}
	return &snap, nil
}

// LookupPrice resolves a single item against the current snapshot: sku
// exact match first, else normalized name. Later snapshot positions win,
// matching the resolver's last-write-wins index rule.
func (s *PostgresStore) LookupPrice(ctx context.Context, sku, name string) (*model.PriceItem, error) {
	if sku != "" {
		it, err := s.lookupBy(ctx, `i.sku = $1`, sku)
		if err != nil || it != nil {
			return it, err
		}
	}
	if name != "" {
		if key := normalize.Name(name); key != "" {
			return s.lookupBy(ctx, `i.normalized_name = $1`, key)
		}
	}
	return nil, nil
}

func (s *PostgresStore) lookupBy(ctx context.Context, cond string, arg any) (*model.PriceItem, error) {
	var it model.PriceItem
	err := s.pool.QueryRow(ctx,
		`SELECT i.sku, i.name, i.normalized_name, i.price_list, i.unit, i.currency, i.unit_price
		 FROM price_items i
		 JOIN pricing_snapshots s ON s.id = i.snapshot_id
		 WHERE s.is_current AND `+cond+`
		 ORDER BY i.position DESC LIMIT 1`, arg,
	).Scan(&it.SKU, &it.Name, &it.NormalizedName, &it.PriceList, &it.Unit, &it.Currency, &it.UnitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup price")
	}
	return &it, nil
}

// CreateInboundEmail inserts an email record, idempotent on the provider
// message id: a replayed delivery returns the existing record's id.
func (s *PostgresStore) CreateInboundEmail(ctx context.Context, email *model.InboundEmail) (string, error) {
	id := uuid.NewString()
	status := email.Status
	if status == "" {
		status = model.EmailStatusPending
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO inbound_emails (id, message_id, from_addr, subject, body, status, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (message_id) DO NOTHING`,
		id, email.MessageID, email.From, email.Subject, email.Body, status, email.ReceivedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert inbound email")
	}
	if tag.RowsAffected() > 0 {
		return id, nil
	}

	var existing string
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM inbound_emails WHERE message_id = $1`, email.MessageID,
	).Scan(&existing)
	if err != nil {
		return "", eris.Wrap(err, "postgres: find existing inbound email")
	}
	return existing, nil
}

// GetInboundEmail returns an email by id, or nil if absent.
func (s *PostgresStore) GetInboundEmail(ctx context.Context, id string) (*model.InboundEmail, error) {
	var e model.InboundEmail
	err := s.pool.QueryRow(ctx,
		`SELECT id, message_id, from_addr, subject, body, status, received_at, created_at
		 FROM inbound_emails WHERE id = $1`, id,
	).Scan(&e.ID, &e.MessageID, &e.From, &e.Subject, &e.Body, &e.Status, &e.ReceivedAt, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get inbound email")
	}
	return &e, nil
}

// ListPendingEmails returns up to limit pending emails, oldest first.
func (s *PostgresStore) ListPendingEmails(ctx context.Context, limit int) ([]model.InboundEmail, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, from_addr, subject, body, status, received_at, created_at
		 FROM inbound_emails WHERE status = $1 ORDER BY received_at LIMIT $2`,
		model.EmailStatusPending, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending emails")
	}
	defer rows.Close()

	var emails []model.InboundEmail
	for rows.Next() {
		var e model.InboundEmail
		if err := rows.Scan(&e.ID, &e.MessageID, &e.From, &e.Subject, &e.Body, &e.Status,
			&e.ReceivedAt, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan inbound email")
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// UpdateEmailStatus moves an email through the processing states.
func (s *PostgresStore) UpdateEmailStatus(ctx context.Context, id string, status model.EmailStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inbound_emails SET status = $2 WHERE id = $1`, id, status,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update email %s status", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: email %s not found", id)
	}
	return nil
}

// SaveQuoteRequest upserts the extraction and preview for an email.
// Replays from the job runner overwrite rather than duplicate.
func (s *PostgresStore) SaveQuoteRequest(ctx context.Context, req *model.QuoteRequest) (string, error) {
	id := uuid.NewString()

	extraction, err := marshalNullable(req.Extraction)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal extraction")
	}
	preview, err := marshalNullable(req.Preview)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal preview")
	}

	var finalID string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO quote_requests (id, email_id, extraction, preview)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email_id) DO UPDATE SET extraction = EXCLUDED.extraction, preview = EXCLUDED.preview
		 RETURNING id`,
		id, req.EmailID, extraction, preview,
	).Scan(&finalID)
	if err != nil {
		return "", eris.Wrap(err, "postgres: save quote request")
	}
	return finalID, nil
}

// GetQuoteRequestByEmail returns the quote request for an email, or nil.
func (s *PostgresStore) GetQuoteRequestByEmail(ctx context.Context, emailID string) (*model.QuoteRequest, error) {
	var (
		req        model.QuoteRequest
		extraction []byte
		preview    []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, email_id, extraction, preview, created_at FROM quote_requests WHERE email_id = $1`,
		emailID,
	).Scan(&req.ID, &req.EmailID, &extraction, &preview, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get quote request")
	}

	if len(extraction) > 0 {
		req.Extraction = &model.EmailExtraction{}
		if err := json.Unmarshal(extraction, req.Extraction); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extraction")
		}
	}
	if len(preview) > 0 {
		req.Preview = &model.QuotePreview{}
		if err := json.Unmarshal(preview, req.Preview); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal preview")
		}
	}
	return &req, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *model.EmailExtraction:
		if t == nil {
			return nil, nil
		}
	case *model.QuotePreview:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
