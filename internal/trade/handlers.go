package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/energydesk/trade-engine/internal/apperr"
	"github.com/energydesk/trade-engine/internal/instrument"
	"github.com/energydesk/trade-engine/internal/margin"
	"github.com/energydesk/trade-engine/internal/model"
	"github.com/energydesk/trade-engine/internal/risk"
)

// --- HTTP Handlers ---

// SubmitTrade handles POST /api/v1/traders/{trader}/trades
func (s *Service) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	var req risk.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := s.Submit(r.Context(), handle, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// ListTrades handles GET /api/v1/traders/{trader}/trades
// Returns the trader's full history, newest first. ?status=OPEN|CLOSED filters.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	trades, err := s.History(r.Context(), handle)
	if err != nil {
		writeAppError(w, err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]model.Trade, 0, len(trades))
		for _, t := range trades {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	writeJSON(w, http.StatusOK, trades)
}

type closeRequest struct {
	ClosePrice decimal.Decimal `json:"close_price"`

	// RefPrice, when present, overrides the stored reference for the
	// close-deviation guard.
	RefPrice decimal.Decimal `json:"ref_price"`
}

// CloseTrade handles POST /api/v1/traders/{trader}/trades/{tradeID}/close
func (s *Service) CloseTrade(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")
	tradeID := chi.URLParam(r, "tradeID")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := s.Close(r.Context(), handle, tradeID, req.ClosePrice, req.RefPrice)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// DeleteTrade handles DELETE /api/v1/traders/{trader}/trades/{tradeID}
func (s *Service) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")
	tradeID := chi.URLParam(r, "tradeID")

	if err := s.Delete(r.Context(), handle, tradeID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": tradeID})
}

// GetOTCStatus handles GET /api/v1/traders/{trader}/otc-status
func (s *Service) GetOTCStatus(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	t, err := s.Trader(r.Context(), handle)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"otc_available": t.OTCAvailable})
}

// SetOTCStatus handles POST /api/v1/traders/{trader}/otc-status
func (s *Service) SetOTCStatus(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	var req struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.SetOTCAvailable(r.Context(), handle, req.Available); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"otc_available": req.Available})
}

// ListCounterparties handles GET /api/v1/traders/{trader}/counterparties
func (s *Service) ListCounterparties(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	traders, err := s.Counterparties(r.Context(), handle)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, traders)
}

// SubmitOTC handles POST /api/v1/traders/{trader}/otc
func (s *Service) SubmitOTC(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	var req OTCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	leg, mirror, err := s.OpenPair(r.Context(), handle, req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]*model.Trade{
		"trade":  leg,
		"mirror": mirror,
	})
}

// CloseOTC handles POST /api/v1/traders/{trader}/otc/{tradeID}/close
func (s *Service) CloseOTC(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")
	tradeID := chi.URLParam(r, "tradeID")

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	leg, mirror, err := s.ClosePair(r.Context(), handle, tradeID, req.ClosePrice)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*model.Trade{
		"trade":  leg,
		"mirror": mirror,
	})
}

// GetLeaderboard handles GET /api/v1/leaderboard?prices={"hub":price,...}
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	prices, err := parsePrices(r.URL.Query().Get("prices"))
	if err != nil {
		writeError(w, "invalid prices parameter: "+err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := s.Leaderboard(r.Context(), prices)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// GetFeed handles GET /api/v1/feed?limit=N
func (s *Service) GetFeed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.Feed(r.Context(), limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if entries == nil {
		entries = []model.FeedEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// RecordSnapshotsHandler handles POST /api/v1/snapshots
func (s *Service) RecordSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prices map[string]decimal.Decimal `json:"prices"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	n, err := s.RecordSnapshots(r.Context(), req.Prices)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int{"recorded": n})
}

// GetSnapshots handles GET /api/v1/traders/{trader}/snapshots
func (s *Service) GetSnapshots(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "trader")

	snaps, err := s.Snapshots(r.Context(), handle)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if snaps == nil {
		snaps = []model.Snapshot{}
	}

	writeJSON(w, http.StatusOK, snaps)
}

// PreviewMargin handles POST /api/v1/margin/preview
// Computes required margin for a hypothetical trade without persisting it.
func (s *Service) PreviewMargin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   instrument.Type `json:"type"`
		Volume decimal.Decimal `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !instrument.Valid(req.Type) {
		writeError(w, "unknown instrument type", http.StatusBadRequest)
		return
	}
	if req.Volume.LessThanOrEqual(decimal.Zero) {
		writeError(w, "volume must be positive", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"type":            req.Type,
		"volume":          req.Volume,
		"unit":            instrument.Unit(req.Type),
		"required_margin": margin.Required(req.Type, req.Volume),
	})
}

// GetStatus handles GET /api/v1/status
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	traders, err := s.store.ListActiveTraders(ctx)
	if err != nil {
		writeAppError(w, err)
		return
	}

	openTrades := 0
	for _, tr := range traders {
		trades, err := s.store.ListTradesByTrader(ctx, tr.Handle)
		if err != nil {
			writeAppError(w, err)
			return
		}
		for _, t := range trades {
			if t.Status == model.TradeOpen {
				openTrades++
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_traders": len(traders),
		"open_trades":    openTrades,
		"ws_clients":     s.wsClients(),
	})
}

// wsClients reports connected websocket clients when the sink is the hub.
func (s *Service) wsClients() int {
	if hub, ok := s.sink.(*WSHub); ok {
		return hub.ClientCount()
	}
	return 0
}

// parsePrices decodes the leaderboard's hub→price mark map.
func parsePrices(raw string) (map[string]decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	var prices map[string]decimal.Decimal
	if err := json.Unmarshal([]byte(raw), &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// writeAppError maps classified domain errors onto HTTP statuses; anything
// unclassified is a 500 and gets logged.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		var ae *apperr.Error
		if !errors.As(err, &ae) {
			slog.Error("request failed", "err", err)
			writeError(w, "internal error", status)
			return
		}
	}
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
