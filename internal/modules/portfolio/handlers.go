package portfolio

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/avelldo/papertrader/internal/clients/yahoo"
	"github.com/avelldo/papertrader/internal/modules/accounts"
	"github.com/avelldo/papertrader/internal/modules/trading"
)

// Handlers contains HTTP handlers for portfolio and quote endpoints
type Handlers struct {
	valuator *Valuator
	quotes   trading.QuoteSource
	log      zerolog.Logger
}

// NewHandlers creates a new portfolio handlers instance
func NewHandlers(valuator *Valuator, quotes trading.QuoteSource, log zerolog.Logger) *Handlers {
	return &Handlers{
		valuator: valuator,
		quotes:   quotes,
		log:      log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetPortfolio returns the caller's enriched valuation rows
// GET /api/portfolio
func (h *Handlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		writeError(w, http.StatusUnauthorized, "missing account")
		return
	}

	views, err := h.valuator.Valuate(r.Context(), account.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to valuate portfolio")
		writeError(w, http.StatusInternalServerError, "failed to valuate portfolio")
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// HandleGetNetWorth returns the caller's cash + holdings summary
// GET /api/portfolio/networth
func (h *Handlers) HandleGetNetWorth(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		writeError(w, http.StatusUnauthorized, "missing account")
		return
	}

	netWorth, err := h.valuator.NetWorth(r.Context(), account.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute net worth")
		writeError(w, http.StatusInternalServerError, "failed to compute net worth")
		return
	}

	writeJSON(w, http.StatusOK, netWorth)
}

// HandleGetStock returns the current quote for one symbol
// GET /api/stock/{symbol}
func (h *Handlers) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := h.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, yahoo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "stock not found")
			return
		}
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to fetch quote")
		writeError(w, http.StatusNotFound, "stock not found")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
