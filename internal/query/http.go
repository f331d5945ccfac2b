package query

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
)

// Handler exposes the query service as JSON over HTTP.
type Handler struct {
	svc     *Service
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewHandler(svc *Service, logger zerolog.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{
		svc:     svc,
		logger:  logger.With().Str("component", "query").Logger(),
		metrics: metrics,
	}
}

// Register mounts the query routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/status", h.instrument("status", h.handleStatus))
	mux.HandleFunc("/v1/pools", h.instrument("pools", h.handlePools))
	mux.HandleFunc("/v1/pool", h.instrument("pool", h.handlePool))
	mux.HandleFunc("/v1/balances", h.instrument("balances", h.handleBalances))
	mux.HandleFunc("/v1/quote", h.instrument("quote", h.handleQuote))
}

func (h *Handler) instrument(endpoint string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		fn(sw, r)
		h.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		status := "ok"
		if sw.status >= 400 {
			status = "error"
		}
		h.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, info)
}

func (h *Handler) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.svc.Pools(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"pools": pools})
}

func (h *Handler) handlePool(w http.ResponseWriter, r *http.Request) {
	tick0 := r.URL.Query().Get("tick0")
	tick1 := r.URL.Query().Get("tick1")
	if tick0 == "" || tick1 == "" {
		h.writeStatus(w, http.StatusBadRequest, "tick0 and tick1 are required")
		return
	}
	pool, err := h.svc.Pool(r.Context(), tick0, tick1)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, pool)
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("address")
	if addr == "" {
		h.writeStatus(w, http.StatusBadRequest, "address is required")
		return
	}
	balances, err := h.svc.Balances(r.Context(), addr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]interface{}{"address": addr, "balances": balances})
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tickIn, tickOut := q.Get("tickIn"), q.Get("tickOut")
	amount, exact := q.Get("amount"), q.Get("exact")
	if tickIn == "" || tickOut == "" || amount == "" {
		h.writeStatus(w, http.StatusBadRequest, "tickIn, tickOut and amount are required")
		return
	}
	if exact == "" {
		exact = "exactIn"
	}
	quote, err := h.svc.Quote(r.Context(), tickIn, tickOut, amount, exact)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, quote)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn().Err(err).Msg("encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotReady):
		h.writeStatus(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ledger.ErrPoolNotFound):
		h.writeStatus(w, http.StatusNotFound, err.Error())
	case ledger.IsFinancialRuleError(err):
		h.writeStatus(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("query failed")
		h.writeStatus(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
