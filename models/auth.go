package models

import "fmt"

// AuthInfo is the identity attached to a request after bearer validation.
type AuthInfo struct {
	UserID string   `json:"user_id"`
	OrgID  OrgID    `json:"organization_id"`
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the identity was granted the scope.
func (a *AuthInfo) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// RFC 6749 error codes used by the authorization server.
const (
	OAuthErrInvalidClient  = "invalid_client"
	OAuthErrInvalidGrant   = "invalid_grant"
	OAuthErrInvalidRequest = "invalid_request"
	OAuthErrServerError    = "server_error"
)

// OAuthError is an RFC 6749 error response body. It doubles as a Go error so
// services can return it and handlers can map it straight to JSON.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError builds an OAuthError with the given RFC 6749 code.
func NewOAuthError(code, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}
