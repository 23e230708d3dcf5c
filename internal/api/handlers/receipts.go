package handlers

import (
	"errors"
	"net/http"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/extractor"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/store"
	"github.com/rs/zerolog"
)

// ReceiptsHandler handles extraction, sync and receipt lookups.
type ReceiptsHandler struct {
	extractor *extractor.Extractor
	repo      store.Repository
	publisher jobs.Publisher
	resolve   ResolverFactory
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(ex *extractor.Extractor, repo store.Repository, publisher jobs.Publisher, resolve ResolverFactory, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		extractor: ex,
		repo:      repo,
		publisher: publisher,
		resolve:   resolve,
		log:       log,
	}
}

// extractResponse mirrors the content script's reply: content is null when
// the page holds no receipt.
type extractResponse struct {
	Content *domain.Extraction `json:"content"`
	Reason  extractor.Kind     `json:"reason,omitempty"`
}

func extractionKind(err error) extractor.Kind {
	var extractionErr *extractor.ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr.Kind
	}
	return ""
}

// Extract handles POST /api/extract
func (h *ReceiptsHandler) Extract(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, h.log)
	req, err := readMarkup(w, r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ex, err := h.extractor.ExtractString(req.HTML)
	if err != nil {
		log.Info().Err(err).Msg("No receipt found")
		middleware.WriteJSON(w, http.StatusOK, extractResponse{Reason: extractionKind(err)})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, extractResponse{Content: ex})
}

// Sync handles POST /api/sync
func (h *ReceiptsHandler) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := requestLogger(r, h.log)

	req, err := readMarkup(w, r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ex, err := h.extractor.ExtractString(req.HTML)
	if err != nil {
		log.Info().Err(err).Msg("No receipt found")
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"content": nil,
			"code":    "no_receipt_found",
			"reason":  extractionKind(err),
		})
		return
	}

	id, ok := identify(w, r, h.resolve)
	if !ok {
		return
	}

	if _, err := h.repo.GetProfile(ctx, id.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("user_id", id.ID).Msg("No such document")
			middleware.WriteErrorCode(w, http.StatusNotFound, "profile_not_found", "No profile registered for this user")
			return
		}
		log.Error().Err(err).Str("user_id", id.ID).Msg("Failed to load profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	job := &jobs.ReconcileJob{
		UserID:       id.ID,
		MemberID:     domain.StringValue(ex.MemberID),
		ReceiptID:    domain.StringValue(ex.Receipt.ReceiptID),
		Extraction:   ex,
		Markup:       []byte(req.HTML),
		Registration: req.Registration,
	}
	if err := h.publisher.PublishReconcile(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue reconcile job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue sync")
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Str("user_id", id.ID).
		Str("receipt_id", job.ReceiptID).
		Msg("Reconcile job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.JobID,
		"status":     job.Status,
		"member_id":  job.MemberID,
		"receipt_id": job.ReceiptID,
		"items":      len(ex.Receipt.Items),
	})
}

// authorizeMember resolves the caller and checks they are bound to memberID.
func (h *ReceiptsHandler) authorizeMember(w http.ResponseWriter, r *http.Request, memberID string) bool {
	log := requestLogger(r, h.log)
	id, ok := identify(w, r, h.resolve)
	if !ok {
		return false
	}
	profile, err := h.repo.GetProfile(r.Context(), id.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteErrorCode(w, http.StatusNotFound, "profile_not_found", "No profile registered for this user")
			return false
		}
		log.Error().Err(err).Msg("Failed to load profile")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load profile")
		return false
	}
	if domain.StringValue(profile.MemberID) != memberID {
		middleware.WriteErrorCode(w, http.StatusForbidden, "forbidden", "Not bound to this member")
		return false
	}
	return true
}

// ListReceipts handles GET /api/members/{memberId}/receipts
func (h *ReceiptsHandler) ListReceipts(w http.ResponseWriter, r *http.Request, memberID string) {
	log := requestLogger(r, h.log)
	if !h.authorizeMember(w, r, memberID) {
		return
	}

	ids, err := h.repo.ListReceiptIDs(r.Context(), memberID)
	if err != nil {
		log.Error().Err(err).Str("member_id", memberID).Msg("Failed to list receipts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": ids,
		"count":    len(ids),
	})
}

// GetReceipt handles GET /api/members/{memberId}/receipts/{receiptId}
func (h *ReceiptsHandler) GetReceipt(w http.ResponseWriter, r *http.Request, memberID, receiptID string) {
	log := requestLogger(r, h.log)
	if !h.authorizeMember(w, r, memberID) {
		return
	}

	receipt, err := h.repo.GetReceipt(r.Context(), memberID, receiptID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
			middleware.WriteError(w, http.StatusNotFound, "Receipt not found")
			return
		}
		log.Error().Err(err).Str("receipt_id", receiptID).Msg("Failed to get receipt")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get receipt")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"receiptId": receiptID,
		"receipt":   receipt,
	})
}
