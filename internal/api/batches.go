package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/worker"
)

// RequestBatch handles POST /batches. The pass runs asynchronously on the
// batch worker; poll GET /batches/{id} for its summary.
func (h *Handler) RequestBatch(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	batchID, err := worker.Request(r.Context(), h.bus, "api")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"batchId": batchID,
		"status":  "queued",
	})
}

// ListBatches handles GET /batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := h.repo.ListBatchRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*domain.BatchRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batches": runs,
		"count":   len(runs),
	})
}

// GetBatch handles GET /batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	run, err := h.repo.GetBatchRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
