package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ListRules handles GET /rules. Inactive rules are included unless
// active=true is given.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	list, err := h.catalog.List(r.Context(), !activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /rules. The rule is validated, including its
// expression, and upserted. It takes effect on the next batch pass.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := decodeBody(r, &rule); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.catalog.Save(r.Context(), &rule); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.catalog.Get(r.Context(), rule.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("rule saved", "rule_id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, saved)
}

// ActivateRule handles POST /rules/{id}/activate.
func (h *Handler) ActivateRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, true)
}

// DeactivateRule handles POST /rules/{id}/deactivate. Existing alerts from
// the rule are kept.
func (h *Handler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, false)
}

func (h *Handler) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	ruleID := chi.URLParam(r, "id")
	if err := h.catalog.SetActive(r.Context(), ruleID, active); err != nil {
		writeError(w, r, err)
		return
	}
	rule, err := h.catalog.Get(r.Context(), ruleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
