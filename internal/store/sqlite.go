package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// SQLite serializes writers; a single connection avoids busy errors
	// under concurrent promotions.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pricing_snapshots (
	id            TEXT PRIMARY KEY,
	fetched_at    DATETIME NOT NULL,
	source        TEXT NOT NULL,
	sheet_version TEXT NOT NULL DEFAULT '',
	item_count    INTEGER NOT NULL DEFAULT 0,
	is_current    INTEGER NOT NULL DEFAULT 0,
	errors        TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS pricing_snapshots_single_current
	ON pricing_snapshots (is_current) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS price_items (
	snapshot_id     TEXT NOT NULL REFERENCES pricing_snapshots(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	sku             TEXT NOT NULL,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	price_list      TEXT NOT NULL DEFAULT '',
	unit            TEXT NOT NULL DEFAULT 'unit',
	currency        TEXT NOT NULL DEFAULT '',
	unit_price      REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (snapshot_id, position)
);

CREATE INDEX IF NOT EXISTS idx_price_items_sku ON price_items(snapshot_id, sku);
CREATE INDEX IF NOT EXISTS idx_price_items_name ON price_items(snapshot_id, normalized_name);

CREATE TABLE IF NOT EXISTS inbound_emails (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL UNIQUE,
	from_addr   TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	received_at DATETIME NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_inbound_emails_status ON inbound_emails(status, received_at);

CREATE TABLE IF NOT EXISTS quote_requests (
	id         TEXT PRIMARY KEY,
	email_id   TEXT NOT NULL UNIQUE REFERENCES inbound_emails(id) ON DELETE CASCADE,
	extraction TEXT,
	preview    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePricingSnapshot(ctx context.Context, snap *model.PricingSnapshot) (string, error) {
	id := uuid.New().String()
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	var errsJSON sql.NullString
	if len(snap.Errors) > 0 {
		b, err := json.Marshal(snap.Errors)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: marshal capture errors")
		}
		errsJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin create snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pricing_snapshots (id, fetched_at, source, sheet_version, item_count, is_current, errors)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, fetchedAt, snap.Source, snap.SheetVersion, len(snap.Items), errsJSON,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert snapshot")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_items (snapshot_id, position, sku, name, normalized_name, price_list, unit, currency, unit_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: prepare item insert")
	}
	defer stmt.Close()

	for i, it := range snap.Items {
		if _, err := stmt.ExecContext(ctx, id, i, it.SKU, it.Name, it.NormalizedName,
			it.PriceList, it.Unit, it.Currency, it.UnitPrice); err != nil {
			return "", eris.Wrapf(err, "sqlite: insert price item %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit create snapshot")
	}
	return id, nil
}

func (s *SQLiteStore) PromoteSnapshot(ctx context.Context, id string) (*PromotionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin promote")
	}
	defer tx.Rollback() //nolint:errcheck

	var prevID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM pricing_snapshots WHERE is_current = 1`,
	).Scan(&prevID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(err, "sqlite: find current snapshot")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE pricing_snapshots SET is_current = 0 WHERE is_current = 1`,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: demote current snapshot")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE pricing_snapshots SET is_current = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: promote snapshot %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: promote rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrSnapshotNotFound, "promote %s", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit promote")
	}
	return &PromotionResult{PreviousCurrentID: prevID, CurrentID: id}, nil
}

func (s *SQLiteStore) GetCurrentSnapshot(ctx context.Context) (*model.PricingSnapshot, error) {
	return s.getSnapshotWhere(ctx, `is_current = 1`)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*model.PricingSnapshot, error) {
	return s.getSnapshotWhere(ctx, `id = ?`, id)
}

func (s *SQLiteStore) getSnapshotWhere(ctx context.Context, where string, args ...any) (*model.PricingSnapshot, error) {
	var (
		snap     model.PricingSnapshot
		current  int
		errsJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, fetched_at, source, sheet_version, item_count, is_current, errors, created_at
		 FROM pricing_snapshots WHERE `+where, args...,
	).Scan(&snap.ID, &snap.FetchedAt, &snap.Source, &snap.SheetVersion, &snap.ItemCount,
		&current, &errsJSON, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get snapshot")
	}
	snap.Current = current == 1

	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &snap.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal capture errors")
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sku, name, normalized_name, price_list, unit, currency, unit_price
		 FROM price_items WHERE snapshot_id = ? ORDER BY position`, snap.ID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get snapshot items")
	}
	defer rows.Close()

	for rows.Next() {
		var it model.PriceItem
		if err := rows.Scan(&it.SKU, &it.Name, &it.NormalizedName, &it.PriceList,
			&it.Unit, &it.Currency, &it.UnitPrice); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price item")
		}
		snap.Items = append(snap.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate price items")
	}
	return &snap, nil
}

func (s *SQLiteStore) LookupPrice(ctx context.Context, sku, name string) (*model.PriceItem, error) {
	if sku != "" {
		it, err := s.lookupBy(ctx, `i.sku = ?`, sku)
		if err != nil || it != nil {
			return it, err
		}
	}
	if name != "" {
		if key := normalize.Name(name); key != "" {
			return s.lookupBy(ctx, `i.normalized_name = ?`, key)
		}
	}
	return nil, nil
}

func (s *SQLiteStore) lookupBy(ctx context.Context, cond string, arg any) (*model.PriceItem, error) {
	var it model.PriceItem
	err := s.db.QueryRowContext(ctx,
		`SELECT i.sku, i.name, i.normalized_name, i.price_list, i.unit, i.currency, i.unit_price
		 FROM price_items i
		 JOIN pricing_snapshots s ON s.id = i.snapshot_id
		 WHERE s.is_current = 1 AND `+cond+`
		 ORDER BY i.position DESC LIMIT 1`, arg,
	).Scan(&it.SKU, &it.Name, &it.NormalizedName, &it.PriceList, &it.Unit, &it.Currency, &it.UnitPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup price")
	}
	return &it, nil
}

func (s *SQLiteStore) CreateInboundEmail(ctx context.Context, email *model.InboundEmail) (string, error) {
	id := uuid.New().String()
	status := email.Status
	if status == "" {
		status = model.EmailStatusPending
	}
	receivedAt := email.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_emails (id, message_id, from_addr, subject, body, status, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, email.MessageID, email.From, email.Subject, email.Body, string(status), receivedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert inbound email")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", eris.Wrap(err, "sqlite: inbound email rows affected")
	}
	if n > 0 {
		return id, nil
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM inbound_emails WHERE message_id = ?`, email.MessageID,
	).Scan(&existing)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: find existing inbound email")
	}
	return existing, nil
}

func (s *SQLiteStore) GetInboundEmail(ctx context.Context, id string) (*model.InboundEmail, error) {
	var e model.InboundEmail
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, from_addr, subject, body, status, received_at, created_at
		 FROM inbound_emails WHERE id = ?`, id,
	).Scan(&e.ID, &e.MessageID, &e.From, &e.Subject, &e.Body, &e.Status, &e.ReceivedAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get inbound email")
	}
	return &e, nil
}

func (s *SQLiteStore) ListPendingEmails(ctx context.Context, limit int) ([]model.InboundEmail, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, from_addr, subject, body, status, received_at, created_at
		 FROM inbound_emails WHERE status = ? ORDER BY received_at LIMIT ?`,
		string(model.EmailStatusPending), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending emails")
	}
	defer rows.Close()

	var emails []model.InboundEmail
	for rows.Next() {
		var e model.InboundEmail
		if err := rows.Scan(&e.ID, &e.MessageID, &e.From, &e.Subject, &e.Body, &e.Status,
			&e.ReceivedAt, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan inbound email")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "sqlite: list pending emails iterate")
}

func (s *SQLiteStore) UpdateEmailStatus(ctx context.Context, id string, status model.EmailStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE inbound_emails SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update email %s status", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: update status rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: email %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) SaveQuoteRequest(ctx context.Context, req *model.QuoteRequest) (string, error) {
	id := uuid.New().String()

	var extraction, preview sql.NullString
	if req.Extraction != nil {
		b, err := json.Marshal(req.Extraction)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: marshal extraction")
		}
		extraction = sql.NullString{String: string(b), Valid: true}
	}
	if req.Preview != nil {
		b, err := json.Marshal(req.Preview)
		if err != nil {
			return "", eris.Wrap(err, "sqlite: marshal preview")
		}
		preview = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quote_requests (id, email_id, extraction, preview) VALUES (?, ?, ?, ?)
		 ON CONFLICT (email_id) DO UPDATE SET extraction = excluded.extraction, preview = excluded.preview`,
		id, req.EmailID, extraction, preview,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: save quote request")
	}

	var finalID string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM quote_requests WHERE email_id = ?`, req.EmailID,
	).Scan(&finalID)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: load quote request id")
	}
	return finalID, nil
}

func (s *SQLiteStore) GetQuoteRequestByEmail(ctx context.Context, emailID string) (*model.QuoteRequest, error) {
	var (
		req        model.QuoteRequest
		extraction sql.NullString
		preview    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email_id, extraction, preview, created_at FROM quote_requests WHERE email_id = ?`,
		emailID,
	).Scan(&req.ID, &req.EmailID, &extraction, &preview, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get quote request")
	}

	if extraction.Valid && extraction.String != "" {
		req.Extraction = &model.EmailExtraction{}
		if err := json.Unmarshal([]byte(extraction.String), req.Extraction); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extraction")
		}
	}
	if preview.Valid && preview.String != "" {
		req.Preview = &model.QuotePreview{}
		if err := json.Unmarshal([]byte(preview.String), req.Preview); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal preview")
		}
	}
	return &req, nil
}
