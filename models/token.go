package models

import (
	"time"

	"github.com/lib/pq"
)

// AccessToken is the stateful shadow of a JWT access token. The JWT itself is
// self-contained; this row exists only so revocation can be looked up by jti.
type AccessToken struct {
	ID        string         `json:"id"              db:"id"`
	TokenHash string         `json:"-"               db:"token_hash"`
	ClientID  string         `json:"client_id"       db:"client_id"`
	UserID    string         `json:"user_id"         db:"user_id"`
	OrgID     OrgID          `json:"organization_id" db:"organization_id"`
	Scopes    pq.StringArray `json:"scopes"          db:"scopes"`
	ExpiresAt time.Time      `json:"expires_at"      db:"expires_at"`
	RevokedAt *time.Time     `json:"revoked_at"      db:"revoked_at"`
	CreatedAt time.Time      `json:"created_at"      db:"created_at"`
}

// RefreshToken is an opaque, single-use token paired 1:1 with an access token.
// Only its SHA-256 hash is stored. Once used_at is set, redemption must fail
// permanently - rotation marks the old row used and issues a fresh pair.
type RefreshToken struct {
	TokenHash     string         `json:"-"               db:"token_hash"`
	AccessTokenID string         `json:"access_token_id" db:"access_token_id"`
	ClientID      string         `json:"client_id"       db:"client_id"`
	UserID        string         `json:"user_id"         db:"user_id"`
	OrgID         OrgID          `json:"organization_id" db:"organization_id"`
	Scopes        pq.StringArray `json:"scopes"          db:"scopes"`
	ExpiresAt     time.Time      `json:"expires_at"      db:"expires_at"`
	UsedAt        *time.Time     `json:"used_at"         db:"used_at"`
	RevokedAt     *time.Time     `json:"revoked_at"      db:"revoked_at"`
	CreatedAt     time.Time      `json:"created_at"      db:"created_at"`
}

// TokenPair is what the token endpoint returns on success (RFC 6749 §5.1).
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// AccessTokenClaims are the verified claims extracted from a JWT access token.
type AccessTokenClaims struct {
	UserID     string
	OrgID      OrgID
	Scopes     []string
	TokenID    string
	ClientName string
	ExpiresAt  time.Time
}

// HasScope reports whether the token was granted the named scope.
func (c *AccessTokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
