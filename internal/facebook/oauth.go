package facebook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	fbendpoint "golang.org/x/oauth2/facebook"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
	"github.com/fbpage-agent/pkg/logger"
)

// ErrNotAuthenticated is returned when no usable user token exists
var ErrNotAuthenticated = errors.New("no facebook session: run 'auth login' or set FBPAGE_FACEBOOK_ACCESS_TOKEN")

// OAuthManager handles the Facebook login flow and the stored user token
type OAuthManager struct {
	config     *oauth2.Config
	client     *Client
	repository storage.Repository // Optional, can be nil for env-only mode
	log        *logger.Logger

	// In-memory token storage (used when repository is nil, or as cache)
	mu           sync.RWMutex
	currentToken *models.OAuthToken
}

// NewOAuthManager creates a new OAuth manager
func NewOAuthManager(cfg config.FacebookConfig, client *Client, repo storage.Repository, log *logger.Logger) *OAuthManager {
	m := &OAuthManager{
		config: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     fbendpoint.Endpoint,
		},
		client:     client,
		repository: repo,
		log:        log.WithComponent("oauth"),
	}

	// Initialize from config if access token provided (env vars)
	if cfg.AccessToken != "" {
		expiry, err := time.Parse(time.RFC3339, cfg.TokenExpiresAt)
		if err != nil {
			expiry = time.Now().Add(60 * 24 * time.Hour) // long-lived tokens last ~60 days
		}

		m.currentToken = &models.OAuthToken{
			Provider:    models.ProviderFacebook,
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
			ExpiresAt:   expiry,
		}
		m.log.Info().
			Time("expires_at", expiry).
			Msg("OAuth token initialized from environment")
	}

	return m
}

// GenerateState creates a random state for OAuth CSRF protection
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetAuthURL returns the OAuth authorization URL
func (m *OAuthManager) GetAuthURL(state string) string {
	return m.config.AuthCodeURL(state)
}

// ExchangeCode exchanges the authorization code for a long-lived user token
func (m *OAuthManager) ExchangeCode(ctx context.Context, code string) (*models.OAuthToken, error) {
	m.log.Info().Msg("Exchanging authorization code for token")

	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to exchange code")
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	oauthToken := &models.OAuthToken{Provider: models.ProviderFacebook}
	oauthToken.FromOAuth2Token(token)

	// short-lived tokens expire within hours; swap for a ~60 day one
	if extended, err := m.extend(ctx, oauthToken); err != nil {
		m.log.Warn().Err(err).Msg("Could not obtain long-lived token, keeping short-lived one")
	} else {
		oauthToken = extended
	}

	m.store(ctx, oauthToken)

	m.log.Info().
		Time("expires_at", oauthToken.ExpiresAt).
		Msg("Token saved successfully")

	return oauthToken, nil
}

// GetValidToken returns the current user token, extending it when it is close to expiry
func (m *OAuthManager) GetValidToken(ctx context.Context) (*models.OAuthToken, error) {
	m.mu.RLock()
	token := m.currentToken
	m.mu.RUnlock()

	if token == nil && m.repository != nil {
		dbToken, err := m.repository.GetToken(ctx, models.ProviderFacebook)
		if err == nil && dbToken != nil {
			m.mu.Lock()
			m.currentToken = dbToken
			m.mu.Unlock()
			token = dbToken
		}
	}

	if token == nil {
		return nil, ErrNotAuthenticated
	}
	if token.IsExpired() {
		return nil, fmt.Errorf("facebook session expired at %s: run 'auth login'", token.ExpiresAt.Format(time.RFC3339))
	}

	if token.NeedsExtension() {
		m.log.Info().Msg("Token expiring soon, extending")
		if extended, err := m.extend(ctx, token); err != nil {
			m.log.Warn().Err(err).Msg("Failed to extend token")
		} else {
			m.store(ctx, extended)
			token = extended
		}
	}

	return token, nil
}

// extend trades a user token for a long-lived one
func (m *OAuthManager) extend(ctx context.Context, token *models.OAuthToken) (*models.OAuthToken, error) {
	if m.client == nil || m.config.ClientID == "" || m.config.ClientSecret == "" {
		return nil, errors.New("app id and secret are required to extend tokens")
	}
	return m.client.ExchangeLongLived(ctx, m.config.ClientID, m.config.ClientSecret, token.AccessToken)
}

func (m *OAuthManager) store(ctx context.Context, token *models.OAuthToken) {
	m.mu.Lock()
	m.currentToken = token
	m.mu.Unlock()

	if m.repository != nil {
		if err := m.repository.SaveToken(ctx, token); err != nil {
			m.log.Warn().Err(err).Msg("Failed to save token to database (using in-memory only)")
		}
	}
}

// IsAuthenticated checks if we have a valid token
func (m *OAuthManager) IsAuthenticated(ctx context.Context) bool {
	token, err := m.GetValidToken(ctx)
	return err == nil && token != nil
}

// GetTokenStatus returns information about the current token
func (m *OAuthManager) GetTokenStatus(ctx context.Context) (bool, time.Time, error) {
	m.mu.RLock()
	token := m.currentToken
	m.mu.RUnlock()

	if token == nil && m.repository != nil {
		var err error
		token, err = m.repository.GetToken(ctx, models.ProviderFacebook)
		if err != nil {
			return false, time.Time{}, err
		}
	}

	if token == nil {
		return false, time.Time{}, fmt.Errorf("no token found")
	}

	return !token.IsExpired(), token.ExpiresAt, nil
}

// Logout forgets the user token in memory and in storage
func (m *OAuthManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.currentToken = nil
	m.mu.Unlock()

	if m.repository != nil {
		return m.repository.DeleteToken(ctx, models.ProviderFacebook)
	}
	return nil
}

// StartOAuthServer serves the redirect URI until the callback arrives, then exchanges the code
func (m *OAuthManager) StartOAuthServer(ctx context.Context, port int) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}

	authURL := m.GetAuthURL(state)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	callbackPath := "/callback"
	if u, err := url.Parse(m.config.RedirectURL); err == nil && u.Path != "" {
		callbackPath = u.Path
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch")
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}

		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("oauth error: %s - %s", errMsg, r.URL.Query().Get("error_description"))
			http.Error(w, errMsg, http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			http.Error(w, "No code", http.StatusBadRequest)
			return
		}

		codeChan <- code

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `
			<html>
			<body style="font-family: sans-serif; text-align: center; padding: 50px;">
				<h1>Facebook connected</h1>
				<p>You can close this window and return to the terminal.</p>
			</body>
			</html>
		`)
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	m.log.Info().
		Str("url", authURL).
		Int("port", port).
		Msg("OAuth server started, waiting for callback")

	select {
	case code := <-codeChan:
		server.Shutdown(ctx)
		_, err := m.ExchangeCode(ctx, code)
		return authURL, err
	case err := <-errChan:
		server.Shutdown(ctx)
		return authURL, err
	case <-ctx.Done():
		server.Shutdown(context.Background())
		return authURL, ctx.Err()
	}
}
