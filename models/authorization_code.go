package models

import (
	"time"

	"github.com/lib/pq"
)

// AuthorizationCode is a single-use code issued at consent time and exchanged
// for a token pair. Exchange is valid only while used_at IS NULL and the code
// has not expired; consumption is an atomic conditional update.
type AuthorizationCode struct {
	Code                string         `json:"code"                  db:"code"`
	ClientID            string         `json:"client_id"             db:"client_id"`
	UserID              string         `json:"user_id"               db:"user_id"`
	OrgID               OrgID          `json:"organization_id"       db:"organization_id"`
	RedirectURI         string         `json:"redirect_uri"          db:"redirect_uri"`
	Scopes              pq.StringArray `json:"scopes"                db:"scopes"`
	State               string         `json:"state"                 db:"state"`
	CodeChallenge       string         `json:"code_challenge"        db:"code_challenge"`
	CodeChallengeMethod string         `json:"code_challenge_method" db:"code_challenge_method"`
	ExpiresAt           time.Time      `json:"expires_at"            db:"expires_at"`
	UsedAt              *time.Time     `json:"used_at"               db:"used_at"`
	CreatedAt           time.Time      `json:"created_at"            db:"created_at"`
}

// IsExpired reports whether the code is past its expiry at the given time.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
