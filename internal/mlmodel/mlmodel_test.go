package mlmodel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jgoulah/homeenergy/internal/apperr"
	"github.com/jgoulah/homeenergy/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubForecaster struct{}

func (stubForecaster) Forecast(context.Context, []models.GlobalDailyPoint, int) ([]models.ForecastPoint, error) {
	return nil, nil
}

type stubScorer struct{}

func (stubScorer) Score(context.Context, []string, [][]float64) ([]Prediction, error) {
	return nil, nil
}

func TestRegistry_LoadsOnce(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry(
		func(context.Context) (Forecaster, error) { calls.Add(1); return stubForecaster{}, nil },
		func(context.Context) (Scorer, error) { calls.Add(1); return stubScorer{}, nil },
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Forecaster(context.Background())
			assert.NoError(t, err)
			_, err = r.Scorer(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistry_LoadOutlivesCallerCancellation(t *testing.T) {
	r := NewRegistry(
		func(ctx context.Context) (Forecaster, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return stubForecaster{}, nil
		},
		func(ctx context.Context) (Scorer, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return stubScorer{}, nil
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Forecaster(ctx)
	require.NoError(t, err)
	_, err = r.Scorer(context.Background())
	assert.NoError(t, err)
}

func TestRegistry_FailedLoadIsRemembered(t *testing.T) {
	var calls atomic.Int32
	loadErr := errors.New("corrupt artifact")
	r := NewRegistry(
		func(context.Context) (Forecaster, error) { calls.Add(1); return nil, loadErr },
		nil,
	)

	for i := 0; i < 3; i++ {
		_, err := r.Forecaster(context.Background())
		require.ErrorIs(t, err, apperr.ErrModelUnavailable)
		assert.Contains(t, err.Error(), "corrupt artifact")
	}
	assert.Equal(t, int32(1), calls.Load())

	_, err := r.Scorer(context.Background())
	require.ErrorIs(t, err, apperr.ErrModelUnavailable)
	assert.Contains(t, err.Error(), "not configured")

	status := r.Status(context.Background())
	assert.Equal(t, loadErr, status["forecast"])
	assert.Error(t, status["anomaly"])
}

func TestStatic(t *testing.T) {
	r := Static(stubForecaster{}, nil)

	f, err := r.Forecaster(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = r.Scorer(context.Background())
	assert.ErrorIs(t, err, apperr.ErrModelUnavailable)
}

func TestFetch_ExistingFileSkipsDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	got, err := Fetch(context.Background(), http.DefaultClient, Artifact{Path: path, URL: "http://127.0.0.1:1/unused"})
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestFetch_Downloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"trees":[]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "nested", "model.json")
	got, err := Fetch(context.Background(), srv.Client(), Artifact{Path: path, URL: srv.URL})
	require.NoError(t, err)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, `{"trees":[]}`, string(data))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "model.json")
	_, err := Fetch(context.Background(), srv.Client(), Artifact{Path: path, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "model.json")
	_, err := Fetch(context.Background(), srv.Client(), Artifact{Path: path, URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.NoFileExists(t, path)
}

func TestFetch_MissingWithoutURL(t *testing.T) {
	_, err := Fetch(context.Background(), http.DefaultClient, Artifact{Path: filepath.Join(t.TempDir(), "none.json")})
	assert.ErrorContains(t, err, "no download URL")
}
