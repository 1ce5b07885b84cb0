package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/L0rd008/ViewTrendsSL-sub001/internal/quota"
	"github.com/L0rd008/ViewTrendsSL-sub001/pkg/ytapi"
)

type QuotaHandler struct {
	ledger  *quota.Ledger
	planner *ytapi.Planner
}

func NewQuotaHandler(ledger *quota.Ledger, planner *ytapi.Planner) *QuotaHandler {
	return &QuotaHandler{ledger: ledger, planner: planner}
}

// GetSummary returns the pool-wide quota view for monitoring
// GET /api/v1/quota/summary
func (h *QuotaHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ledger.GetSummary())
}

// AffordResponse answers a pre-flight affordability check.
type AffordResponse struct {
	Affordable    bool   `json:"affordable"`
	EstimatedCost int64  `json:"estimated_cost"`
	Endpoint      string `json:"endpoint"`
	ItemCount     int    `json:"item_count"`
}

// GetAfford answers whether an operation fits the remaining pool budget
// GET /api/v1/quota/afford?endpoint=videos.list&items=120
func (h *QuotaHandler) GetAfford(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		http.Error(w, "Missing endpoint parameter", http.StatusBadRequest)
		return
	}
	items, err := strconv.Atoi(r.URL.Query().Get("items"))
	if err != nil || items < 0 {
		http.Error(w, "Invalid items parameter", http.StatusBadRequest)
		return
	}

	affordable, cost := h.planner.CanAfford(endpoint, items)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AffordResponse{
		Affordable:    affordable,
		EstimatedCost: cost,
		Endpoint:      endpoint,
		ItemCount:     items,
	})
}

// GetEvents returns the retained usage history, oldest first
// GET /api/v1/quota/events
func (h *QuotaHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	events := h.ledger.Events()
	if events == nil {
		events = []quota.UsageEvent{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
