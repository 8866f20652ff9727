package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/fbpage-agent/internal/models"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeLongLived swaps a user token for a long-lived one (fb_exchange_token grant)
func (c *Client) ExchangeLongLived(ctx context.Context, appID, appSecret, userToken string) (*models.OAuthToken, error) {
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", appID)
	query.Set("client_secret", appSecret)
	query.Set("fb_exchange_token", userToken)

	var resp tokenResponse
	if err := c.get(ctx, "/oauth/access_token", "", query, &resp); err != nil {
		return nil, fmt.Errorf("failed to exchange for long-lived token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("token exchange returned empty access token")
	}

	token := &models.OAuthToken{
		Provider:    models.ProviderFacebook,
		AccessToken: resp.AccessToken,
		TokenType:   "Bearer",
	}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return token, nil
}
