package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/handlers"
	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

func newHandler(t *testing.T) (*handlers.QuotaHandler, *quota.Ledger) {
	t.Helper()
	ledger, err := quota.NewLedger(context.Background(), quota.NewMemoryStore(),
		map[string]string{"a": "secret-a", "b": "secret-b"}, 200)
	require.NoError(t, err)

	exec := ytapi.NewExecutor(ledger, ytapi.NewClient(nil))
	planner := ytapi.NewPlanner(exec, ledger)
	return handlers.NewQuotaHandler(ledger, planner), ledger
}

func TestGetSummary(t *testing.T) {
	h, ledger := newHandler(t)

	res, err := ledger.Reserve("a", "videos.list", 40)
	require.NoError(t, err)
	ledger.Commit(res, quota.OutcomeSuccess)

	req := httptest.NewRequest("GET", "/api/v1/quota/summary", nil)
	rec := httptest.NewRecorder()
	h.GetSummary(rec, req)

	require.Equal(t, 200, rec.Code)
	var s quota.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, int64(400), s.TotalQuota)
	assert.Equal(t, int64(40), s.TotalUsed)
	assert.Equal(t, int64(360), s.TotalRemaining)
	assert.Len(t, s.Credentials, 2)
}

func TestGetAfford(t *testing.T) {
	h, _ := newHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/quota/afford?endpoint=videos.list&items=120", nil)
	rec := httptest.NewRecorder()
	h.GetAfford(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp handlers.AffordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Affordable)
	assert.Equal(t, int64(3), resp.EstimatedCost)

	req = httptest.NewRequest("GET", "/api/v1/quota/afford?endpoint=search.list&items=500", nil)
	rec = httptest.NewRecorder()
	h.GetAfford(rec, req)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Affordable, "10 search pages cost 1000 against a 400-unit pool")
	assert.Equal(t, int64(1000), resp.EstimatedCost)
}

func TestGetAfford_RejectsBadInput(t *testing.T) {
	h, _ := newHandler(t)

	rec := httptest.NewRecorder()
	h.GetAfford(rec, httptest.NewRequest("GET", "/api/v1/quota/afford?items=5", nil))
	assert.Equal(t, 400, rec.Code)

	rec = httptest.NewRecorder()
	h.GetAfford(rec, httptest.NewRequest("GET", "/api/v1/quota/afford?endpoint=videos.list&items=abc", nil))
	assert.Equal(t, 400, rec.Code)
}

func TestGetEvents(t *testing.T) {
	h, ledger := newHandler(t)

	res, err := ledger.Reserve("a", "videos.list", 1)
	require.NoError(t, err)
	ledger.Commit(res, quota.OutcomeError)

	rec := httptest.NewRecorder()
	h.GetEvents(rec, httptest.NewRequest("GET", "/api/v1/quota/events", nil))

	require.Equal(t, 200, rec.Code)
	var events []quota.UsageEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, quota.OutcomeError, events[0].Outcome)
	assert.Equal(t, "a", events[0].Credential)
}
