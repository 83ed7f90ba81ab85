package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbackend/appctx"
	"flowbackend/models"
	"flowbackend/testutils"
)

func issueToken(t *testing.T, store *testutils.StubRevocationStore, tokenID string) string {
	t.Helper()
	tm := testutils.NewTestTokenManager(store)
	signed, _, err := tm.GenerateAccessToken(
		"u_1", models.OrgID("org_1"), []string{"actions", "subscriptions"}, "Zapier", tokenID,
	)
	require.NoError(t, err)
	return signed
}

func expiredToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "u_1",
		"org": "org_1",
		"jti": "at_expired",
		"iss": testutils.TestIssuer,
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(testutils.TestJWTSecret))
	require.NoError(t, err)
	return signed
}

func TestValidateBearerToken(t *testing.T) {
	ctx := context.Background()

	t.Run("ValidToken", func(t *testing.T) {
		m := NewAuthMiddleware(testutils.NewTestTokenManager(nil))
		token := issueToken(t, nil, "at_1")

		authInfo, errCode := m.ValidateBearerToken(ctx, "Bearer "+token)
		require.Empty(t, errCode)
		assert.Equal(t, "u_1", authInfo.UserID)
		assert.Equal(t, models.OrgID("org_1"), authInfo.OrgID)
		assert.Equal(t, []string{"actions", "subscriptions"}, authInfo.Scopes)
	})

	t.Run("ErrorCodes", func(t *testing.T) {
		m := NewAuthMiddleware(testutils.NewTestTokenManager(nil))
		validToken := issueToken(t, nil, "at_1")

		tests := []struct {
			name   string
			header string
			want   string
		}{
			{"NoHeader", "", ErrCodeMissingAuthorizationHeader},
			{"WrongScheme", "Token " + validToken, ErrCodeInvalidAuthorizationHeader},
			{"LowercaseBearer", "bearer " + validToken, ErrCodeInvalidAuthorizationHeader},
			{"OnePart", "Bearer", ErrCodeInvalidAuthorizationHeader},
			{"ThreeParts", "Bearer a b", ErrCodeInvalidAuthorizationHeader},
			{"EmptyToken", "Bearer ", ErrCodeMissingToken},
			{"Garbage", "Bearer not-a-jwt", ErrCodeInvalidToken},
			{"Expired", "Bearer " + expiredToken(t), ErrCodeTokenExpired},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				authInfo, errCode := m.ValidateBearerToken(ctx, tt.header)
				assert.Nil(t, authInfo)
				assert.Equal(t, tt.want, errCode)
			})
		}
	})

	t.Run("RevokedToken", func(t *testing.T) {
		store := &testutils.StubRevocationStore{Revoked: map[string]bool{"at_revoked": true}}
		m := NewAuthMiddleware(testutils.NewTestTokenManager(store))
		token := issueToken(t, store, "at_revoked")

		authInfo, errCode := m.ValidateBearerToken(ctx, "Bearer "+token)
		assert.Nil(t, authInfo)
		assert.Equal(t, ErrCodeTokenRevoked, errCode)
	})
}

func TestWithAuth(t *testing.T) {
	m := NewAuthMiddleware(testutils.NewTestTokenManager(nil))

	t.Run("PassesAuthInfoToHandler", func(t *testing.T) {
		token := issueToken(t, nil, "at_1")

		var seen *models.AuthInfo
		handler := m.WithAuth(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = appctx.GetAuthInfo(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "u_1", seen.UserID)
	})

	t.Run("UnauthorizedCarriesWWWAuthenticate", func(t *testing.T) {
		handler := m.WithAuth(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), ErrCodeMissingAuthorizationHeader)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, ErrCodeMissingAuthorizationHeader, body["error"])
	})
}

func TestRequireScopes(t *testing.T) {
	m := NewAuthMiddleware(testutils.NewTestTokenManager(nil))

	serve := func(granted, required []string) *httptest.ResponseRecorder {
		handler := m.RequireScopes(required, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
		req = req.WithContext(testutils.NewAuthContext("u_1", models.OrgID("org_1"), granted))
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	t.Run("AllScopesPresent", func(t *testing.T) {
		rec := serve([]string{"actions", "subscriptions"}, []string{"actions", "subscriptions"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("PartialGrantFails", func(t *testing.T) {
		rec := serve([]string{"actions"}, []string{"actions", "subscriptions"})
		require.Equal(t, http.StatusForbidden, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "insufficient_scope", body["error"])
		assert.Equal(t, []any{"actions", "subscriptions"}, body["required_scopes"])
		assert.Equal(t, []any{"actions"}, body["granted_scopes"])
		assert.Equal(t, []any{"subscriptions"}, body["missing_scopes"])
	})

	t.Run("NoScopesGranted", func(t *testing.T) {
		rec := serve(nil, []string{"actions"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("NoAuthInfoInContext", func(t *testing.T) {
		handler := m.RequireScopes([]string{"actions"}, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
		rec := httptest.NewRecorder()
		handler(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
