package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter domain.TransactionFilter
	var err error

	if filter.MinRisk, err = queryFloat(r, "min_risk"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.MaxRisk, err = queryFloat(r, "max_risk"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Reviewed, err = queryBool(r, "reviewed"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, r, err)
		return
	}
	filter.UserID = r.URL.Query().Get("user_id")

	txs, err := h.reports.Transactions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetTransaction handles GET /transactions/{id} with the full review context.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	detail, err := h.reports.TransactionDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// ReviewRequest is the body of POST /transactions/{id}/review.
type ReviewRequest struct {
	// Reviewed defaults to true.
	Reviewed *bool   `json:"reviewed,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

// ReviewTransaction handles POST /transactions/{id}/review.
func (h *Handler) ReviewTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	var req ReviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reviewed := true
	if req.Reviewed != nil {
		reviewed = *req.Reviewed
	}

	if err := h.repo.ReviewTransaction(r.Context(), txID, reviewed, req.Notes); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("transaction reviewed", "transaction_id", txID, "reviewed", reviewed)
	h.respondTransaction(w, r, txID)
}

// FraudLabelRequest is the body of POST /transactions/{id}/fraud.
type FraudLabelRequest struct {
	IsFraud *bool `json:"isFraud"`
}

// LabelTransaction handles POST /transactions/{id}/fraud.
func (h *Handler) LabelTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	var req FraudLabelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.IsFraud == nil {
		writeError(w, r, fmt.Errorf("%w: isFraud is required", domain.ErrInvalidInput))
		return
	}

	if err := h.repo.SetFraudLabel(r.Context(), txID, *req.IsFraud); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondTransaction(w, r, txID)
}

// MLScoreRequest is the body of PUT /transactions/{id}/ml-score. A null
// score clears it.
type MLScoreRequest struct {
	Score *float64 `json:"score"`
}

// SetMLScore handles PUT /transactions/{id}/ml-score. The final risk score
// is updated by the next batch pass.
func (h *Handler) SetMLScore(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	var req MLScoreRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := domain.ValidateScore(req.Score); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.repo.SetMLScore(r.Context(), txID, req.Score); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondTransaction(w, r, txID)
}

func (h *Handler) respondTransaction(w http.ResponseWriter, r *http.Request, txID string) {
	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
