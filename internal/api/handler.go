package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/opensource-finance/harrier/internal/alerts"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/catalog"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/reporting"
)

// Deps are the collaborators the API serves from. Cache and Bus are
// optional.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Catalog   *catalog.Catalog
	Reports   *reporting.Service
	Lifecycle *alerts.Lifecycle

	// HighRiskThreshold is used when a request does not name one.
	HighRiskThreshold float64
	Version           string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	catalog   *catalog.Catalog
	reports   *reporting.Service
	lifecycle *alerts.Lifecycle
	highRisk  float64
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.HighRiskThreshold <= 0 {
		d.HighRiskThreshold = 0.7
	}
	return &Handler{
		repo:      d.Repo,
		cache:     d.Cache,
		bus:       d.Bus,
		catalog:   d.Catalog,
		reports:   d.Reports,
		lifecycle: d.Lifecycle,
		highRisk:  d.HighRiskThreshold,
		version:   d.Version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if h.repo != nil {
		checks["repository"] = pingStatus(h.repo.Ping(r.Context()))
	}
	if h.cache != nil {
		checks["cache"] = pingStatus(h.cache.Ping(r.Context()))
	}
	if h.bus != nil {
		checks["eventBus"] = pingStatus(h.bus.Ping(r.Context()))
	}
	for _, c := range checks {
		if c != "ok" {
			status = "degraded"
		}
	}

	body := map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	}
	if stats, ok := cache.StatsOf(h.cache); ok {
		body["cache"] = stats
	}
	writeJSON(w, http.StatusOK, body)
}

func pingStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

// Ready reports whether the store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.repo.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to status codes. Unrecognised errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidRuleDefinition):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateAlert),
		errors.Is(err, domain.ErrConstraintViolation):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCatalogUnavailable):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"trace_id", traceID(r.Context()),
			"error", err,
		)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON request body", domain.ErrInvalidInput)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (*float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, name)
	}
	return &f, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, name)
	}
	return &b, nil
}
