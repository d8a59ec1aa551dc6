package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runcall/platform/pkg/logging"
)

// ErrReconnectRequired means the stored account has no refresh token and the
// expert must go through consent again. Never retried automatically.
var ErrReconnectRequired = errors.New("google: reconnect required")

// ErrRefreshFailed means the token endpoint rejected the refresh token.
var ErrRefreshFailed = errors.New("google: token refresh failed")

// RefreshError carries the provider's error payload for diagnostics. It
// unwraps to ErrRefreshFailed.
type RefreshError struct {
	Status int
	Body   string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("google: token refresh failed: status %d: %s", e.Status, e.Body)
}

func (e *RefreshError) Unwrap() error { return ErrRefreshFailed }

// tokenWriter persists refreshed access tokens.
type tokenWriter interface {
	UpdateToken(ctx context.Context, expertID uuid.UUID, accessToken string, expiry time.Time, refreshToken string) error
}

// OAuthConfig holds the Google OAuth client configuration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// TokenManager guarantees a usable access token before any calendar call.
type TokenManager struct {
	config       OAuthConfig
	tokenURL     string
	httpClient   *http.Client
	store        tokenWriter
	logger       *logging.Logger
	safetyMargin time.Duration
}

// NewTokenManager creates a token manager writing refreshed tokens through
// the accounts store.
func NewTokenManager(config OAuthConfig, store tokenWriter, logger *logging.Logger) *TokenManager {
	if logger == nil {
		logger = logging.Default()
	}
	return &TokenManager{
		config:       config,
		tokenURL:     "https://oauth2.googleapis.com/token",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		store:        store,
		logger:       logger,
		safetyMargin: time.Minute,
	}
}

// WithTokenURL overrides the token endpoint (for testing).
func (m *TokenManager) WithTokenURL(u string) *TokenManager {
	if u != "" {
		m.tokenURL = strings.TrimRight(u, "/")
	}
	return m
}

// WithSafetyMargin sets how long before expiry a token counts as stale.
// Margins below one minute are clamped up.
func (m *TokenManager) WithSafetyMargin(d time.Duration) *TokenManager {
	if d < time.Minute {
		d = time.Minute
	}
	m.safetyMargin = d
	return m
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// EnsureAccessToken returns a valid access token for the account, refreshing
// and persisting it when the stored one is missing or inside the safety
// margin of its expiry.
func (m *TokenManager) EnsureAccessToken(ctx context.Context, acct *Account) (string, error) {
	now := time.Now()
	if acct.AccessToken != "" && now.Before(acct.TokenExpiry.Add(-m.safetyMargin)) {
		return acct.AccessToken, nil
	}
	if acct.RefreshToken == "" {
		return "", ErrReconnectRequired
	}

	refreshed, err := m.exchangeRefreshToken(ctx, acct.RefreshToken)
	if err != nil {
		return "", err
	}

	expiry := now.Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	if err := m.store.UpdateToken(ctx, acct.ExpertID, refreshed.AccessToken, expiry, refreshed.RefreshToken); err != nil {
		return "", fmt.Errorf("google: persist refreshed token: %w", err)
	}

	acct.AccessToken = refreshed.AccessToken
	acct.TokenExpiry = expiry
	if refreshed.RefreshToken != "" {
		acct.RefreshToken = refreshed.RefreshToken
	}

	m.logger.Info("google access token refreshed", "expert_id", acct.ExpertID, "expires_at", expiry.UTC())
	return refreshed.AccessToken, nil
}

// AuthorizationURL builds the consent URL for the connect flow.
func (m *TokenManager) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":     {m.config.ClientID},
		"redirect_uri":  {m.config.RedirectURI},
		"response_type": {"code"},
		"scope":         {"https://www.googleapis.com/auth/calendar openid email"},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return "https://accounts.google.com/o/oauth2/v2/auth?" + params.Encode()
}

// ExchangeCode trades an authorization code for tokens during the consent
// callback.
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (accessToken, refreshToken string, expiry time.Time, err error) {
	form := url.Values{
		"client_id":     {m.config.ClientID},
		"client_secret": {m.config.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {m.config.RedirectURI},
	}
	resp, err := m.postForm(ctx, form)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return resp.AccessToken, resp.RefreshToken, time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second), nil
}

func (m *TokenManager) exchangeRefreshToken(ctx context.Context, refreshToken string) (*googleTokenResponse, error) {
	form := url.Values{
		"client_id":     {m.config.ClientID},
		"client_secret": {m.config.ClientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	return m.postForm(ctx, form)
}

func (m *TokenManager) postForm(ctx context.Context, form url.Values) (*googleTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("google: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: token http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		m.logger.Error("google token exchange failed", "status", resp.StatusCode, "body", string(body))
		return nil, &RefreshError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed googleTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("google: parse token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return nil, &RefreshError{Status: resp.StatusCode, Body: "response missing access_token"}
	}
	return &parsed, nil
}
