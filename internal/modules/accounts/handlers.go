package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// accountKey stores the resolved *Account on the request context
var accountKey = contextKey{}

// FromContext returns the account resolved by RequireAccount, or nil
func FromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountKey).(*Account)
	return account
}

// Handlers contains HTTP handlers for account and identity endpoints
type Handlers struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandlers creates a new account handlers instance
func NewHandlers(repo *Repository, log zerolog.Logger) *Handlers {
	return &Handlers{
		repo: repo,
		log:  log.With().Str("handler", "accounts").Logger(),
	}
}

// RequireAccount resolves the caller's account from the X-Account-ID
// header. Identity verification happens upstream; the id is trusted
// here, but it must map to a known account.
func (h *Handlers) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := strings.TrimSpace(r.Header.Get("X-Account-ID"))
		if accountID == "" {
			writeError(w, http.StatusUnauthorized, "missing account id")
			return
		}

		account, err := h.repo.GetByID(accountID)
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown account")
			return
		}
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to resolve account")
			writeError(w, http.StatusInternalServerError, "failed to resolve account")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountKey, account)))
	})
}

// loginRequest is the mock-login payload. The real deployment fronts
// this with an OAuth verifier that yields the same email/name pair.
type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleLogin upserts the caller's account and returns it
// POST /api/auth/login
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	account, err := h.repo.GetOrCreate(req.Email, req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upsert account")
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// HandleGetAccount returns the caller's account
// GET /api/account
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	account := FromContext(r.Context())
	if account == nil {
		writeError(w, http.StatusUnauthorized, "missing account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
