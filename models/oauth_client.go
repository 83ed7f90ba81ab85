package models

import (
	"time"

	"github.com/lib/pq"
)

// OAuthClient is a registered third-party application. Clients are
// platform-level (not org-scoped) and immutable except for deactivation.
type OAuthClient struct {
	ID               string         `json:"client_id"     db:"id"`
	SecretHash       string         `json:"-"             db:"secret_hash"`
	Name             string         `json:"name"          db:"name"`
	RedirectURIs     pq.StringArray `json:"redirect_uris" db:"redirect_uris"`
	IsActive         bool           `json:"is_active"     db:"is_active"`
	CreatedAt        time.Time      `json:"created_at"    db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"    db:"updated_at"`
}

// HasRedirectURI reports whether uri is on the client's allow-list.
// Matching is exact - no prefix or wildcard semantics.
func (c *OAuthClient) HasRedirectURI(uri string) bool {
	for _, allowed := range c.RedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}
