package fundhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"skinfund/internal/store"
	"skinfund/internal/types"
)

type stubStore struct {
	store.Store
	configID   string
	portfolios []types.Portfolio
	decisions  []store.DecisionRecord
}

func (s *stubStore) GetConfigIDByName(_ context.Context, exp string) (string, error) {
	if exp == "T-known" {
		return s.configID, nil
	}
	return "", nil
}

func (s *stubStore) ListPortfolios(context.Context, string) ([]types.Portfolio, error) {
	return s.portfolios, nil
}

func (s *stubStore) ListDecisions(context.Context, string, string, int) ([]store.DecisionRecord, error) {
	return s.decisions, nil
}

func (s *stubStore) ListSignals(context.Context, string, string, int) ([]store.SignalRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := &stubStore{
		configID: "cfg-1",
		portfolios: []types.Portfolio{{
			ID:          "p-1",
			TradingDate: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
			Cashflow:    400,
			Positions:   map[string]types.Position{"x": {Shares: 6, Value: 600}},
			TotalAssets: 1000,
		}},
		decisions: []store.DecisionRecord{{ID: "d-1", Ticker: "x", Action: "Buy", Shares: 6, Price: 100}},
	}
	srv, err := NewServer(ServerConfig{ExpName: "T-known", Store: st})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec, rec.Body.String()
}

func TestHealthz(t *testing.T) {
	rec, body := get(t, newTestServer(t), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
}

func TestListPortfolios(t *testing.T) {
	rec, body := get(t, newTestServer(t), "/api/v1/portfolios")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, gjson.Get(body, "count").Int())
	assert.Equal(t, "p-1", gjson.Get(body, "portfolios.0.id").String())

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
}

func TestListDecisions(t *testing.T) {
	rec, body := get(t, newTestServer(t), "/api/v1/decisions?ticker=x")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Buy", gjson.Get(body, "decisions.0.action").String())
}

func TestUnknownExperiment(t *testing.T) {
	rec, _ := get(t, newTestServer(t), "/api/v1/portfolios?exp=T-ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRequiresStore(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
