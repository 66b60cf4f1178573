package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/internal/fees"
	"github.com/angelmondragon/checkout-engine/pkg/config"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReadyReportsEachDependency(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	deps := map[string]Pinger{
		"db":    pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	}

	rec := httptest.NewRecorder()
	HealthReady(cfg, deps, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"down"`)
	require.Contains(t, rec.Body.String(), `"db":"up"`)
}

func TestHealthReadyOK(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	deps := map[string]Pinger{"db": pingFunc(func(context.Context) error { return nil })}

	rec := httptest.NewRecorder()
	HealthReady(cfg, deps, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	live := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, live.Code)
}

func TestFeesBreakdown(t *testing.T) {
	t.Parallel()

	calc, err := fees.NewCalculator(fees.Schedule{ProcessingFeeBps: 150, EscrowFeeMinor: 2500})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fees/breakdown?amount=20.00&delivery=0", nil)
	FeesBreakdown(calc, "ZAR", nil).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data feeBreakdownResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.Equal(t, int64(2000), envelope.Data.MerchSubtotalMinor)
	require.Equal(t, int64(30), envelope.Data.ProcessingFeeMinor)
	require.Equal(t, int64(2500), envelope.Data.EscrowFeeMinor)
	require.Equal(t, int64(4530), envelope.Data.TotalMinor)
	require.Equal(t, "45.30", envelope.Data.Total)
	require.Equal(t, "ZAR", envelope.Data.Currency)
}

func TestFeesBreakdownRequiresAmount(t *testing.T) {
	t.Parallel()

	calc, err := fees.NewCalculator(fees.Schedule{ProcessingFeeBps: 150, EscrowFeeMinor: 2500})
	require.NoError(t, err)

	for _, query := range []string{"", "?amount=abc", "?amount=-5", "?amount=1.005"} {
		rec := httptest.NewRecorder()
		FeesBreakdown(calc, "ZAR", nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fees/breakdown"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
