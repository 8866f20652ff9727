package models

import (
	"time"

	"golang.org/x/oauth2"
)

// ProviderFacebook is the provider key of the Graph user token
const ProviderFacebook = "facebook"

// OAuthToken stores OAuth tokens for external services
type OAuthToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Provider    string    `gorm:"uniqueIndex;not null" json:"provider"`
	AccessToken string    `gorm:"type:text;not null" json:"access_token"`
	TokenType   string    `gorm:"default:'Bearer'" json:"token_type"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired returns true if the token has expired
func (t *OAuthToken) IsExpired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// NeedsExtension returns true if the token expires within a week. Facebook user
// tokens have no refresh token; they are re-exchanged for a long-lived one instead.
func (t *OAuthToken) NeedsExtension() bool {
	return !t.ExpiresAt.IsZero() && time.Now().Add(7*24*time.Hour).After(t.ExpiresAt)
}

// FromOAuth2Token updates from golang.org/x/oauth2.Token
func (t *OAuthToken) FromOAuth2Token(token *oauth2.Token) {
	t.AccessToken = token.AccessToken
	t.TokenType = token.TokenType
	t.ExpiresAt = token.Expiry
}
