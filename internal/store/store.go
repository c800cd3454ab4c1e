// Package store persists pricing snapshots, inbound emails, and quote
// requests. Two backends implement the same interface: Postgres for
// production and SQLite for local, single-binary use.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/model"
)

// ErrSnapshotNotFound means a promotion targeted a snapshot id that does
// not exist. This is a fatal caller error, never retried.
var ErrSnapshotNotFound = eris.New("store: pricing snapshot not found")

// PromotionResult reports an atomic current-flag flip.
type PromotionResult struct {
	PreviousCurrentID string `json:"previous_current_id,omitempty"`
	CurrentID         string `json:"current_id"`
}

// Store defines the persistence surface for the quoting pipeline.
type Store interface {
	// Pricing snapshots. A snapshot is immutable once created; the only
	// mutation anywhere is the current-flag flip, which is atomic with
	// respect to readers.
	CreatePricingSnapshot(ctx context.Context, snap *model.PricingSnapshot) (string, error)
	GetSnapshot(ctx context.Context, id string) (*model.PricingSnapshot, error)
	GetCurrentSnapshot(ctx context.Context) (*model.PricingSnapshot, error)
	PromoteSnapshot(ctx context.Context, id string) (*PromotionResult, error)
	LookupPrice(ctx context.Context, sku, name string) (*model.PriceItem, error)

	// Inbound emails. Creation is idempotent on the provider message id
	// so the at-least-once job runner can replay deliveries safely.
	CreateInboundEmail(ctx context.Context, email *model.InboundEmail) (string, error)
	GetInboundEmail(ctx context.Context, id string) (*model.InboundEmail, error)
	ListPendingEmails(ctx context.Context, limit int) ([]model.InboundEmail, error)
	UpdateEmailStatus(ctx context.Context, id string, status model.EmailStatus) error

	// Quote requests, one per email, upserted for replay safety.
	SaveQuoteRequest(ctx context.Context, req *model.QuoteRequest) (string, error)
	GetQuoteRequestByEmail(ctx context.Context, emailID string) (*model.QuoteRequest, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
