package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runcall/platform/pkg/logging"
)

// OAuthHandler handles the Google consent flow HTTP endpoints.
type OAuthHandler struct {
	tokens     *TokenManager
	accounts   *Accounts
	successURL string
	logger     *logging.Logger

	mu         sync.Mutex
	stateStore map[string]stateEntry
}

type stateEntry struct {
	expertID  uuid.UUID
	expiresAt time.Time
}

// NewOAuthHandler creates the consent-flow handler.
func NewOAuthHandler(tokens *TokenManager, accounts *Accounts, successURL string, logger *logging.Logger) *OAuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OAuthHandler{
		tokens:     tokens,
		accounts:   accounts,
		successURL: successURL,
		logger:     logger,
		stateStore: make(map[string]stateEntry),
	}
}

// Routes returns the public consent-flow routes.
func (h *OAuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/connect/{expertID}", h.HandleConnect)
	r.Get("/callback", h.HandleCallback)
	return r
}

// HandleConnect starts the consent flow for an expert.
// GET /google/connect/{expertID}
func (h *OAuthHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	expertID, err := uuid.Parse(chi.URLParam(r, "expertID"))
	if err != nil {
		http.Error(w, `{"error": "invalid expert id"}`, http.StatusBadRequest)
		return
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		h.logger.Error("failed to generate oauth state", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(stateBytes)

	h.mu.Lock()
	h.stateStore[state] = stateEntry{expertID: expertID, expiresAt: time.Now().Add(10 * time.Minute)}
	h.cleanExpiredStates()
	h.mu.Unlock()

	h.logger.Info("initiating google oauth", "expert_id", expertID)
	http.Redirect(w, r, h.tokens.AuthorizationURL(state), http.StatusFound)
}

// HandleCallback completes the consent flow and stores the credential record.
// GET /google/callback?code=...&state=...
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Error("google oauth denied", "error", errParam)
		http.Error(w, `{"error": "consent denied"}`, http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		http.Error(w, `{"error": "missing code or state"}`, http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	entry, ok := h.stateStore[state]
	delete(h.stateStore, state)
	h.mu.Unlock()
	if !ok || time.Now().After(entry.expiresAt) {
		http.Error(w, `{"error": "invalid or expired state"}`, http.StatusBadRequest)
		return
	}

	accessToken, refreshToken, expiry, err := h.tokens.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("google code exchange failed", "error", err, "expert_id", entry.expertID)
		http.Error(w, `{"error": "token exchange failed"}`, http.StatusBadGateway)
		return
	}

	email := h.fetchEmail(r.Context(), accessToken)

	acct := Account{
		ExpertID:     entry.expertID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  expiry,
		GoogleEmail:  email,
	}
	if err := h.accounts.Upsert(r.Context(), acct); err != nil {
		h.logger.Error("failed to store google account", "error", err, "expert_id", entry.expertID)
		http.Error(w, `{"error": "failed to store account"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("google account connected", "expert_id", entry.expertID, "email", email)
	if h.successURL != "" {
		http.Redirect(w, r, h.successURL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"connected": true})
}

// fetchEmail is best effort; an empty email never blocks the connect flow.
func (h *OAuthHandler) fetchEmail(ctx context.Context, accessToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := h.tokens.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("userinfo fetch failed", "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var parsed struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ""
	}
	return parsed.Email
}

// cleanExpiredStates removes stale entries. Caller holds the mutex.
func (h *OAuthHandler) cleanExpiredStates() {
	now := time.Now()
	for k, v := range h.stateStore {
		if now.After(v.expiresAt) {
			delete(h.stateStore, k)
		}
	}
}
