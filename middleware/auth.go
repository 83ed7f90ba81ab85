package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"flowbackend/appctx"
	"flowbackend/models"
	"flowbackend/services"
	"flowbackend/services/tokenmanager"
)

// Machine-readable bearer validation error codes, surfaced in both the JSON
// body and the WWW-Authenticate header.
const (
	ErrCodeMissingAuthorizationHeader = "missing_authorization_header"
	ErrCodeInvalidAuthorizationHeader = "invalid_authorization_header"
	ErrCodeMissingToken               = "missing_token"
	ErrCodeInvalidToken               = "invalid_token"
	ErrCodeTokenExpired               = "token_expired"
	ErrCodeTokenRevoked               = "token_revoked"
)

var errCodeMessages = map[string]string{
	ErrCodeMissingAuthorizationHeader: "authorization header is required",
	ErrCodeInvalidAuthorizationHeader: "authorization header must be of the form 'Bearer <token>'",
	ErrCodeMissingToken:               "bearer token is empty",
	ErrCodeInvalidToken:               "access token is invalid",
	ErrCodeTokenExpired:               "access token has expired",
	ErrCodeTokenRevoked:               "access token has been revoked",
}

// AuthMiddleware validates bearer access tokens and enforces scopes.
type AuthMiddleware struct {
	tokenManager services.TokenManager
}

func NewAuthMiddleware(tokenManager services.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tokenManager}
}

// ValidateBearerToken parses and verifies an Authorization header. Returns
// the authenticated identity, or an empty identity plus one of the ErrCode
// constants. The header must be exactly "Bearer <token>".
func (m *AuthMiddleware) ValidateBearerToken(ctx context.Context, authHeader string) (*models.AuthInfo, string) {
	if authHeader == "" {
		return nil, ErrCodeMissingAuthorizationHeader
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, ErrCodeInvalidAuthorizationHeader
	}
	if parts[1] == "" {
		return nil, ErrCodeMissingToken
	}

	claims, err := m.tokenManager.VerifyAccessToken(parts[1])
	if err != nil {
		if errors.Is(err, tokenmanager.ErrTokenExpired) {
			return nil, ErrCodeTokenExpired
		}
		return nil, ErrCodeInvalidToken
	}

	if m.tokenManager.IsTokenRevoked(ctx, claims.TokenID) {
		return nil, ErrCodeTokenRevoked
	}

	return &models.AuthInfo{
		UserID: claims.UserID,
		OrgID:  claims.OrgID,
		Scopes: claims.Scopes,
	}, ""
}

// WithAuth wraps an HTTP handler with bearer token authentication. On
// success the identity is attached to the request context.
func (m *AuthMiddleware) WithAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authInfo, errCode := m.ValidateBearerToken(r.Context(), r.Header.Get("Authorization"))
		if errCode != "" {
			log.Printf("❌ Bearer authentication failed: %s", errCode)
			w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q, error=%q", "api", errCode))
			writeJSONError(w, http.StatusUnauthorized, map[string]any{
				"error":   errCode,
				"message": errCodeMessages[errCode],
			})
			return
		}

		ctx := appctx.SetAuthInfo(r.Context(), authInfo)
		next(w, r.WithContext(ctx))
	}
}

// RequireScopes wraps a handler with scope enforcement. Every listed scope
// must be present on the token; partial grants are rejected.
func (m *AuthMiddleware) RequireScopes(requiredScopes []string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authInfo, ok := appctx.GetAuthInfo(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, map[string]any{
				"error":   ErrCodeMissingToken,
				"message": errCodeMessages[ErrCodeMissingToken],
			})
			return
		}

		var missing []string
		for _, scope := range requiredScopes {
			if !authInfo.HasScope(scope) {
				missing = append(missing, scope)
			}
		}
		if len(missing) > 0 {
			log.Printf("❌ Insufficient scope for %s: missing %v", r.URL.Path, missing)
			writeJSONError(w, http.StatusForbidden, map[string]any{
				"error":           "insufficient_scope",
				"message":         "token is missing one or more required scopes",
				"required_scopes": requiredScopes,
				"granted_scopes":  authInfo.Scopes,
				"missing_scopes":  missing,
			})
			return
		}

		next(w, r)
	}
}

func writeJSONError(w http.ResponseWriter, statusCode int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ Failed to encode error response: %v", err)
	}
}
