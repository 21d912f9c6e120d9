package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RulePerformance handles GET /reports/rule-performance.
func (h *Handler) RulePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := h.reports.RulePerformance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": perf,
	})
}

// HighRisk handles GET /reports/high-risk.
func (h *Handler) HighRisk(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.threshold(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := h.reports.HighRisk(r.Context(), threshold, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold":    threshold,
		"transactions": txs,
		"count":        len(txs),
	})
}

// Detection handles GET /reports/detection.
func (h *Handler) Detection(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.threshold(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.reports.Detection(r.Context(), threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Summary handles GET /reports/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.threshold(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	top, err := queryInt(r, "top", 5)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sum, err := h.reports.Summary(r.Context(), threshold, top)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// UserSummary handles GET /users/{id}/summary.
func (h *Handler) UserSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.reports.UserSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) threshold(r *http.Request) (float64, error) {
	t, err := queryFloat(r, "threshold")
	if err != nil || t == nil {
		return h.highRisk, err
	}
	return *t, nil
}
