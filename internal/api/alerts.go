package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AlertFilter{
		Status:        domain.AlertStatus(q.Get("status")),
		RuleID:        q.Get("rule_id"),
		TransactionID: q.Get("transaction_id"),
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.reports.Alerts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.repo.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// StatusRequest is the body of POST /alerts/{id}/status.
type StatusRequest struct {
	Status     domain.AlertStatus `json:"status"`
	Resolution *string            `json:"resolution,omitempty"`
}

// SetAlertStatus handles POST /alerts/{id}/status.
func (h *Handler) SetAlertStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	alert, err := h.lifecycle.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Resolution)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}
