package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

func modelServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/score/{id}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch chi.URLParam(r, "id") {
		case "T1":
			_, _ = w.Write([]byte(`{"score": 0.4}`))
		case "T-null":
			_, _ = w.Write([]byte(`{"score": null}`))
		case "T-bad":
			_, _ = w.Write([]byte(`{"score": 1.7}`))
		case "T-down":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPScorer(t *testing.T) {
	var calls atomic.Int32
	srv := modelServer(t, &calls)
	ctx := context.Background()

	s, err := NewHTTPScorer(srv.URL, time.Second)
	require.NoError(t, err)

	tests := []struct {
		id      string
		want    float64
		wantOK  bool
		wantErr bool
	}{
		{"T1", 0.4, true, false},
		{"T-null", 0, false, false},
		{"T-missing", 0, false, false},
		{"T-bad", 0, false, true},
		{"T-down", 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			score, ok, err := s.Score(ctx, tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, score)
		})
	}

	_, err = NewHTTPScorer("", time.Second)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCachedScorer(t *testing.T) {
	var calls atomic.Int32
	srv := modelServer(t, &calls)
	ctx := context.Background()

	remote, err := NewHTTPScorer(srv.URL, time.Second)
	require.NoError(t, err)
	s := NewCachedScorer(remote, cache.NewLRUCache(100), time.Minute)

	for range 3 {
		score, ok, err := s.Score(ctx, "T1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0.4, score)
	}
	assert.Equal(t, int32(1), calls.Load())

	// Absent scores are cached too.
	for range 2 {
		_, ok, err := s.Score(ctx, "T-missing")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, int32(2), calls.Load())

	// Errors are not cached.
	for range 2 {
		_, _, err := s.Score(ctx, "T-down")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestNew(t *testing.T) {
	s, err := New(domain.ModelConfig{Type: "stored"}, nil)
	require.NoError(t, err)
	assert.True(t, IsStored(s))

	s, err = New(domain.ModelConfig{Type: "http", URL: "http://model.local"}, cache.NewLRUCache(10))
	require.NoError(t, err)
	assert.IsType(t, &CachedScorer{}, s)
	assert.False(t, IsStored(s))

	s, err = New(domain.ModelConfig{Type: "http", URL: "http://model.local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPScorer{}, s)

	_, err = New(domain.ModelConfig{Type: "onnx"}, nil)
	assert.Error(t, err)
}
