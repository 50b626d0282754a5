package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/market"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/portfolio"
	"github.com/100-hours-a-week/7-team-kono-fe/internal/scheduler"
)

const maxSymbols = 100

// FeedStatus describes the market stream behind the API
type FeedStatus struct {
	State   string   `json:"state"`
	Mode    string   `json:"mode"`
	Symbols []string `json:"symbols"`
}

// TickersResponse is the latest tick per watched symbol
type TickersResponse struct {
	Feed    FeedStatus    `json:"feed"`
	Tickers []domain.Tick `json:"tickers"`
}

// PortfolioResponse is the valued portfolio
type PortfolioResponse struct {
	Feed               FeedStatus             `json:"feed"`
	Holdings           []domain.ValuedHolding `json:"holdings"`
	TotalHoldingsValue decimal.Decimal        `json:"total_holdings_value"`
	TotalCost          decimal.Decimal        `json:"total_cost"`
	Cash               decimal.Decimal        `json:"cash"`
	TotalAsset         decimal.Decimal        `json:"total_asset"`
	TotalProfitRate    float64                `json:"total_profit_rate"`
	PendingCount       int                    `json:"pending_count"`
	Issues             []portfolio.InputIssue `json:"issues,omitempty"`
}

// AllocationResponse is the allocation chart data
type AllocationResponse struct {
	TopN    int                       `json:"top_n"`
	Buckets []domain.AllocationBucket `json:"buckets"`
}

// SetSymbolsRequest replaces the watched symbol set
type SetSymbolsRequest struct {
	Symbols []string `json:"symbols"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.systemHandlers.getSystemStats()

	response := map[string]interface{}{
		"status":         "healthy",
		"service":        "kono-valuation",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"cpu_percent":    cpuPercent,
		"ram_percent":    ramPercent,
	}
	if s.source != nil {
		response["feed"] = s.feedStatus()
		if s.source.FeedState() == market.StateDegraded {
			response["status"] = "degraded"
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	view, ok := s.source.View()
	resp := TickersResponse{Feed: s.feedStatus(), Tickers: []domain.Tick{}}
	if ok {
		for _, t := range view.LatestTicks {
			resp.Tickers = append(resp.Tickers, t)
		}
		sort.Slice(resp.Tickers, func(i, j int) bool {
			return resp.Tickers[i].Symbol < resp.Tickers[j].Symbol
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSymbols(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.feedStatus())
}

func (s *Server) handleSetSymbols(w http.ResponseWriter, r *http.Request) {
	var req SetSymbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Symbols) > maxSymbols {
		s.writeError(w, http.StatusBadRequest, "too many symbols, max "+strconv.Itoa(maxSymbols))
		return
	}

	symbols := make([]domain.Symbol, 0, len(req.Symbols))
	for _, raw := range req.Symbols {
		sym := domain.NormalizeSymbol(raw)
		if sym == "" {
			s.writeError(w, http.StatusBadRequest, "empty symbol")
			return
		}
		symbols = append(symbols, sym)
	}

	if err := s.source.SetSymbols(symbols); err != nil {
		s.log.Error().Err(err).Msg("Failed to change watched symbols")
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, s.feedStatus())
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	view, ok := s.source.View()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "portfolio not valued yet")
		return
	}

	sum := view.Summary
	holdings := view.ValuedHoldings
	if holdings == nil {
		holdings = []domain.ValuedHolding{}
	}
	s.writeJSON(w, http.StatusOK, PortfolioResponse{
		Feed:               s.feedStatus(),
		Holdings:           holdings,
		TotalHoldingsValue: sum.TotalHoldingsValue,
		TotalCost:          sum.TotalCost,
		Cash:               sum.Cash,
		TotalAsset:         sum.TotalAsset,
		TotalProfitRate:    sum.TotalProfitRate,
		PendingCount:       sum.PendingCount,
		Issues:             sum.Issues,
	})
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	topN := s.topN
	if raw := r.URL.Query().Get("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSymbols {
			s.writeError(w, http.StatusBadRequest, "top_n must be between 1 and "+strconv.Itoa(maxSymbols))
			return
		}
		topN = n
	}
	if topN <= 0 {
		topN = portfolio.DefaultTopN
	}

	view, ok := s.source.View()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, "portfolio not valued yet")
		return
	}

	buckets := view.Buckets
	if topN != s.topN {
		buckets = portfolio.Bucketize(view.ValuedHoldings, view.Summary.Cash, topN)
	}
	if buckets == nil {
		buckets = []domain.AllocationBucket{}
	}
	s.writeJSON(w, http.StatusOK, AllocationResponse{TopN: topN, Buckets: buckets})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := s.job(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job: "+name)
		return
	}

	if err := job.Run(); err != nil {
		if errors.Is(err, scheduler.ErrJobRunning) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"job":    name,
	})
}

func (s *Server) feedStatus() FeedStatus {
	if s.source == nil {
		return FeedStatus{Symbols: []string{}}
	}
	symbols := s.source.Symbols()
	out := make([]string, len(symbols))
	for i, sym := range symbols {
		out[i] = string(sym)
	}
	return FeedStatus{
		State:   s.source.FeedState().String(),
		Mode:    string(s.source.Mode()),
		Symbols: out,
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
