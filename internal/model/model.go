// Package model adapts the external fraud model to the batch runner. The
// model is a black box that maps a transaction to a score in [0,1].
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// Scorer returns the model score for a transaction. ok is false when the
// model has no score for it.
type Scorer interface {
	Score(ctx context.Context, txID string) (score float64, ok bool, err error)
}

// New builds the scorer selected by cfg. A non-nil cache wraps remote
// scorers with CachedScorer.
func New(cfg domain.ModelConfig, c domain.Cache) (Scorer, error) {
	switch cfg.Type {
	case "", "stored":
		return StoredScorer{}, nil
	case "http":
		s, err := NewHTTPScorer(cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return s, nil
		}
		return NewCachedScorer(s, c, cfg.CacheTTL), nil
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
}

// StoredScorer leaves ml_score as already written to the store. The batch
// runner skips fetching when it is in use.
type StoredScorer struct{}

// Score always reports no fresh score.
func (StoredScorer) Score(context.Context, string) (float64, bool, error) {
	return 0, false, nil
}

// IsStored reports whether s defers to stored scores.
func IsStored(s Scorer) bool {
	_, ok := s.(StoredScorer)
	return ok || s == nil
}

// HTTPScorer fetches scores from GET {base}/score/{id}.
type HTTPScorer struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPScorer creates an HTTP model client.
func NewHTTPScorer(baseURL string, timeout time.Duration) (*HTTPScorer, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: model url is required", domain.ErrInvalidInput)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: model url: %v", domain.ErrInvalidInput, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{base: u, client: &http.Client{Timeout: timeout}}, nil
}

type scoreResponse struct {
	Score *float64 `json:"score"`
}

// Score implements Scorer. A 404 means the model has no score.
func (s *HTTPScorer) Score(ctx context.Context, txID string) (float64, bool, error) {
	endpoint := s.base.JoinPath("score", txID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, nil
	case resp.StatusCode != http.StatusOK:
		return 0, false, fmt.Errorf("model returned %s for %s", resp.Status, txID)
	}

	var body scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, fmt.Errorf("decode model response: %w", err)
	}
	if body.Score == nil {
		return 0, false, nil
	}
	if err := domain.ValidateScore(body.Score); err != nil {
		return 0, false, fmt.Errorf("model score for %s: %w", txID, err)
	}
	return *body.Score, true, nil
}

// CachedScorer memoizes another scorer, including "no score" answers.
type CachedScorer struct {
	next  Scorer
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedScorer wraps next with c.
func NewCachedScorer(next Scorer, c domain.Cache, ttl time.Duration) *CachedScorer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedScorer{next: next, cache: c, ttl: ttl}
}

type cachedScore struct {
	Score float64 `json:"score"`
	OK    bool    `json:"ok"`
}

// Score implements Scorer. Cache failures fall through to the wrapped scorer.
func (s *CachedScorer) Score(ctx context.Context, txID string) (float64, bool, error) {
	key := "model:score:" + txID

	hit, found, err := cache.GetJSON[cachedScore](ctx, s.cache, key)
	if err != nil {
		slog.Warn("model score cache read failed", "transaction_id", txID, "error", err)
	}
	if found {
		metrics.ModelScoreLookups.WithLabelValues("hit").Inc()
		return hit.Score, hit.OK, nil
	}

	score, ok, err := s.next.Score(ctx, txID)
	if err != nil {
		metrics.ModelScoreLookups.WithLabelValues("error").Inc()
		return 0, false, err
	}
	metrics.ModelScoreLookups.WithLabelValues("miss").Inc()

	if err := cache.SetJSON(ctx, s.cache, key, cachedScore{Score: score, OK: ok}, s.ttl); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("model score cache write failed", "transaction_id", txID, "error", err)
	}
	return score, ok, nil
}
