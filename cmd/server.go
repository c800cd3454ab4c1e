package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quote-cli/internal/fetcher"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/pricing"
	"github.com/sells-group/quote-cli/internal/quote"
	"github.com/sells-group/quote-cli/internal/store"
)

// enqueueFunc hands a stored email to the background job runner. Nil means
// emails stay pending until an inbox drain or worker picks them up.
type enqueueFunc func(ctx context.Context, emailID string) error

type server struct {
	env     *appEnv
	enqueue enqueueFunc
}

func newRouter(env *appEnv, enqueue enqueueFunc, allowedOrigins []string) http.Handler {
	s := &server{env: env, enqueue: enqueue}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/email", s.handleEmailWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/quotes/preview", s.handleQuotePreview)
		r.Get("/quotes/{emailID}", s.handleGetQuoteRequest)
		r.Get("/prices/lookup", s.handlePriceLookup)
		r.Route("/pricing", func(r chi.Router) {
			r.Get("/current", s.handleCurrentSnapshot)
			r.Get("/snapshots/{id}", s.handleGetSnapshot)
			r.Post("/sync", s.handlePricingSync)
			r.Post("/snapshots/{id}/promote", s.handlePromote)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writePreviewError uses the preview endpoint's response envelope, which
// carries an explicit success flag unlike the other routes.
func writePreviewError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// handleQuotePreview prices a list of requested items against the current
// snapshot. The preview is advisory and nothing is persisted. An empty
// items array is rejected here as a usability guard even though the
// resolver itself would short-circuit it.
func (s *server) handleQuotePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []model.QuoteInputItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePreviewError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writePreviewError(w, http.StatusBadRequest, "'items' array is required")
		return
	}

	preview, err := s.env.Resolver.GenerateQuotationPreview(r.Context(), req.Items)
	if err != nil {
		if eris.Is(err, quote.ErrPricingNotConfigured) {
			writePreviewError(w, http.StatusConflict, "no current pricing snapshot is configured")
			return
		}
		zap.L().Error("quote preview failed", zap.Error(err))
		writePreviewError(w, http.StatusInternalServerError, "quote preview failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "preview": preview})
}

func (s *server) handleEmailWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID  string    `json:"message_id"`
		From       string    `json:"from"`
		Subject    string    `json:"subject"`
		Body       string    `json:"body"`
		ReceivedAt time.Time `json:"received_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MessageID == "" {
		writeError(w, http.StatusBadRequest, "'message_id' is required")
		return
	}

	id, err := s.env.Store.CreateInboundEmail(r.Context(), &model.InboundEmail{
		MessageID:  req.MessageID,
		From:       req.From,
		Subject:    req.Subject,
		Body:       req.Body,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		zap.L().Error("webhook email store failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store email")
		return
	}

	if s.enqueue != nil {
		if err := s.enqueue(r.Context(), id); err != nil {
			// The email is stored; a drain pass will pick it up.
			zap.L().Warn("webhook enqueue failed",
				zap.String("email_id", id),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"email_id": id,
	})
}

func (s *server) handleGetQuoteRequest(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "emailID")
	qr, err := s.env.Store.GetQuoteRequestByEmail(r.Context(), emailID)
	if err != nil {
		zap.L().Error("get quote request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if qr == nil {
		writeError(w, http.StatusNotFound, "no quote request for this email")
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

func (s *server) handlePriceLookup(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	name := r.URL.Query().Get("name")
	if sku == "" && name == "" {
		writeError(w, http.StatusBadRequest, "'sku' or 'name' query parameter is required")
		return
	}

	item, err := s.env.Store.LookupPrice(r.Context(), sku, name)
	if err != nil {
		zap.L().Error("price lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found in current snapshot")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// snapshotSummary is the header-only view returned by the pricing routes;
// item lists can run to thousands of rows.
func snapshotSummary(snap *model.PricingSnapshot) map[string]any {
	return map[string]any{
		"id":            snap.ID,
		"fetched_at":    snap.FetchedAt,
		"source":        snap.Source,
		"sheet_version": snap.SheetVersion,
		"item_count":    snap.ItemCount,
		"current":       snap.Current,
		"error_count":   len(snap.Errors),
	}
}

func (s *server) handleCurrentSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.env.Store.GetCurrentSnapshot(r.Context())
	if err != nil {
		zap.L().Error("get current snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no current pricing snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snapshotSummary(snap))
}

func (s *server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.env.Store.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		zap.L().Error("get snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handlePricingSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		SheetName string `json:"sheet_name"`
		Source    string `json:"source"`
		Promote   bool   `json:"promote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "'path' is required")
		return
	}

	snap, err := captureSheet(req.Path, req.SheetName, req.Source)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.env.Store.CreatePricingSnapshot(r.Context(), snap)
	if err != nil {
		zap.L().Error("create snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store snapshot")
		return
	}
	snap.ID = id

	if req.Promote {
		if _, err := s.env.Store.PromoteSnapshot(r.Context(), id); err != nil {
			zap.L().Error("promote snapshot failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "snapshot stored but promotion failed")
			return
		}
		snap.Current = true
	}

	writeJSON(w, http.StatusCreated, snapshotSummary(snap))
}

func (s *server) handlePromote(w http.ResponseWriter, r *http.Request) {
	res, err := s.env.Store.PromoteSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if eris.Is(err, store.ErrSnapshotNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		zap.L().Error("promote snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "promotion failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// captureSheet reads a local sheet and captures a snapshot from it.
func captureSheet(path, sheetName, source string) (*model.PricingSnapshot, error) {
	rows, err := readSheetFile(path, sheetName)
	if err != nil {
		return nil, err
	}
	return pricing.Capture(rows, pricing.CaptureOptions{Source: source})
}

func readSheetFile(path, sheetName string) ([][]string, error) {
	if isCSVPath(path) {
		return fetcher.ReadCSVFile(path, fetcher.CSVOptions{TrimSpace: true})
	}
	return fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: sheetName})
}
