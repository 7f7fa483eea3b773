package trading

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/avelldo/papertrader/internal/modules/accounts"
)

// Handlers contains HTTP handlers for the trading API
type Handlers struct {
	executor     *Executor
	transactions *TransactionRepository
	log          zerolog.Logger
}

// NewHandlers creates a new trading handlers instance
func NewHandlers(executor *Executor, transactions *TransactionRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		executor:     executor,
		transactions: transactions,
		log:          log.With().Str("handler", "trading").Logger(),
	}
}

// orderRequest is the buy/sell payload
type orderRequest struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// HandleBuy executes a buy order for the caller
// POST /api/trade/buy
func (h *Handlers) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.handleOrder(w, r, SideBuy)
}

// HandleSell executes a sell order for the caller
// POST /api/trade/sell
func (h *Handlers) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.handleOrder(w, r, SideSell)
}

func (h *Handlers) handleOrder(w http.ResponseWriter, r *http.Request, side Side) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		writeError(w, http.StatusUnauthorized, "missing account")
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var fill Fill
	var err error
	if side == SideBuy {
		fill, err = h.executor.Buy(r.Context(), account.ID, req.Symbol, req.Quantity)
	} else {
		fill, err = h.executor.Sell(r.Context(), account.ID, req.Symbol, req.Quantity)
	}

	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fill)
}

// writeOrderError maps the order error taxonomy to HTTP statuses. Every
// rejection carries its specific reason.
func (h *Handlers) writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSymbolNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientHoldings):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Order failed")
		writeError(w, http.StatusInternalServerError, ErrTradeFailed.Error())
	}
}

// HandleGetTransactions returns the caller's trade history
// GET /api/transactions
func (h *Handlers) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	account := accounts.FromContext(r.Context())
	if account == nil {
		writeError(w, http.StatusUnauthorized, "missing account")
		return
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil {
			limit = parsed
		}
	}

	transactions, err := h.transactions.History(account.ID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get transaction history")
		writeError(w, http.StatusInternalServerError, "failed to get transaction history")
		return
	}

	if transactions == nil {
		transactions = []Transaction{}
	}

	writeJSON(w, http.StatusOK, transactions)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
