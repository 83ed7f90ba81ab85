package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbackend/models"
	"flowbackend/services"
	"flowbackend/testutils"
)

// In-memory stores so the service logic is tested without a database.

type fakeClientsStore struct {
	clients map[string]*models.OAuthClient
}

func newFakeClientsStore() *fakeClientsStore {
	return &fakeClientsStore{clients: make(map[string]*models.OAuthClient)}
}

func (s *fakeClientsStore) CreateOAuthClient(ctx context.Context, client *models.OAuthClient) error {
	s.clients[client.ID] = client
	return nil
}

func (s *fakeClientsStore) GetOAuthClientByID(ctx context.Context, clientID string) (*models.OAuthClient, error) {
	return s.clients[clientID], nil
}

func (s *fakeClientsStore) ListOAuthClients(ctx context.Context) ([]*models.OAuthClient, error) {
	var out []*models.OAuthClient
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeClientsStore) DeactivateOAuthClient(ctx context.Context, clientID string) (bool, error) {
	client, ok := s.clients[clientID]
	if !ok || !client.IsActive {
		return false, nil
	}
	client.IsActive = false
	return true, nil
}

type fakeCodesStore struct {
	codes map[string]*models.AuthorizationCode
}

func newFakeCodesStore() *fakeCodesStore {
	return &fakeCodesStore{codes: make(map[string]*models.AuthorizationCode)}
}

func (s *fakeCodesStore) CreateAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	s.codes[code.Code] = code
	return nil
}

func (s *fakeCodesStore) GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	return s.codes[code], nil
}

func (s *fakeCodesStore) ConsumeAuthorizationCode(ctx context.Context, code string) (bool, error) {
	row, ok := s.codes[code]
	if !ok || row.UsedAt != nil {
		return false, nil
	}
	now := time.Now()
	row.UsedAt = &now
	return true, nil
}

type fakeTokensStore struct {
	access  map[string]*models.AccessToken  // by jti
	refresh map[string]*models.RefreshToken // by token hash
}

func newFakeTokensStore() *fakeTokensStore {
	return &fakeTokensStore{
		access:  make(map[string]*models.AccessToken),
		refresh: make(map[string]*models.RefreshToken),
	}
}

func (s *fakeTokensStore) CreateAccessToken(ctx context.Context, token *models.AccessToken) error {
	s.access[token.ID] = token
	return nil
}

func (s *fakeTokensStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.refresh[token.TokenHash] = token
	return nil
}

func (s *fakeTokensStore) GetAccessTokenByHash(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	for _, token := range s.access {
		if token.TokenHash == tokenHash {
			return token, nil
		}
	}
	return nil, nil
}

func (s *fakeTokensStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	return s.refresh[tokenHash], nil
}

func (s *fakeTokensStore) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	token, ok := s.access[tokenID]
	if !ok {
		return true, nil
	}
	return token.RevokedAt != nil, nil
}

func (s *fakeTokensStore) RevokeAccessToken(ctx context.Context, tokenID string) (bool, error) {
	token, ok := s.access[tokenID]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	token.RevokedAt = &now
	return true, nil
}

func (s *fakeTokensStore) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error) {
	token, ok := s.refresh[tokenHash]
	if !ok || token.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	token.RevokedAt = &now
	return true, nil
}

func (s *fakeTokensStore) RevokeRefreshTokenByAccessTokenID(ctx context.Context, accessTokenID string) (bool, error) {
	for _, token := range s.refresh {
		if token.AccessTokenID == accessTokenID && token.RevokedAt == nil {
			now := time.Now()
			token.RevokedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeTokensStore) ConsumeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	token, ok := s.refresh[tokenHash]
	if !ok || token.UsedAt != nil || token.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	token.UsedAt = &now
	return true, nil
}

type oauthFixture struct {
	service      *OAuthService
	clients      *fakeClientsStore
	codes        *fakeCodesStore
	tokens       *fakeTokensStore
	client       *models.OAuthClient
	clientSecret string
}

func setupOAuthService(t *testing.T) *oauthFixture {
	clients := newFakeClientsStore()
	codes := newFakeCodesStore()
	tokens := newFakeTokensStore()
	tokenManager := testutils.NewTestTokenManager(nil)
	service := NewOAuthService(clients, codes, tokens, tokenManager, &services.MockTransactionManager{})

	client, secret, err := service.CreateClient(
		context.Background(), "Zapier", []string{"https://zapier.com/oauth/callback"},
	)
	require.NoError(t, err)

	return &oauthFixture{
		service:      service,
		clients:      clients,
		codes:        codes,
		tokens:       tokens,
		client:       client,
		clientSecret: secret,
	}
}

func assertOAuthErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var oauthErr *models.OAuthError
	require.ErrorAs(t, err, &oauthErr)
	assert.Equal(t, code, oauthErr.Code)
}

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func createCode(t *testing.T, f *oauthFixture, verifier string) *models.AuthorizationCode {
	t.Helper()
	params := services.CreateAuthorizationCodeParams{
		ClientID:       f.client.ID,
		UserID:         "u_1",
		OrganizationID: models.OrgID("org_1"),
		RedirectURI:    "https://zapier.com/oauth/callback",
		Scopes:         []string{"actions", "subscriptions"},
		State:          "xyz",
	}
	if verifier != "" {
		params.CodeChallenge = s256Challenge(verifier)
		params.CodeChallengeMethod = "S256"
	}

	code, err := f.service.CreateAuthorizationCode(context.Background(), params)
	require.NoError(t, err)
	return code
}

func TestValidateClient(t *testing.T) {
	f := setupOAuthService(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		client, err := f.service.ValidateClient(ctx, f.client.ID, "https://zapier.com/oauth/callback")
		require.NoError(t, err)
		assert.Equal(t, f.client.ID, client.ID)
	})

	t.Run("MissingClientID", func(t *testing.T) {
		_, err := f.service.ValidateClient(ctx, "", "https://zapier.com/oauth/callback")
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidRequest)
	})

	t.Run("UnknownClient", func(t *testing.T) {
		_, err := f.service.ValidateClient(ctx, "oc_missing", "https://zapier.com/oauth/callback")
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})

	t.Run("UnregisteredRedirectURI", func(t *testing.T) {
		_, err := f.service.ValidateClient(ctx, f.client.ID, "https://evil.example.com/callback")
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidRequest)
	})

	t.Run("InactiveClient", func(t *testing.T) {
		require.NoError(t, f.service.DeactivateClient(ctx, f.client.ID))
		_, err := f.service.ValidateClient(ctx, f.client.ID, "https://zapier.com/oauth/callback")
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})
}

func TestExchangeCodeForTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "the-pkce-verifier")

		pair, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
			CodeVerifier: "the-pkce-verifier",
		})
		require.NoError(t, err)

		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, "Bearer", pair.TokenType)
		assert.Equal(t, 3600, pair.ExpiresIn)
		assert.Equal(t, "actions subscriptions", pair.Scope)
	})

	t.Run("CodeIsSingleUse", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "")
		params := services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		}

		_, err := f.service.ExchangeCodeForTokens(ctx, params)
		require.NoError(t, err)

		_, err = f.service.ExchangeCodeForTokens(ctx, params)
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		f := setupOAuthService(t)
		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         "never-issued",
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("ExpiredCode", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "")
		code.ExpiresAt = time.Now().Add(-time.Minute)

		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("WrongClient", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "")

		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     "oc_other",
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})

	t.Run("WrongRedirectURI", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "")

		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/other/callback",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("WrongClientSecret", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "")

		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: "ocs_wrong",
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})

	t.Run("MissingVerifierWhenChallengePresent", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "the-pkce-verifier")

		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidRequest)
	})

	t.Run("WrongVerifier", func(t *testing.T) {
		f := setupOAuthService(t)
		code := createCode(t, f, "the-pkce-verifier")

		_, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
			CodeVerifier: "a-different-verifier",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})
}

func TestRefreshAccessToken(t *testing.T) {
	ctx := context.Background()

	exchange := func(t *testing.T, f *oauthFixture) *models.TokenPair {
		t.Helper()
		code := createCode(t, f, "")
		pair, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		require.NoError(t, err)
		return pair
	}

	t.Run("RotationIssuesFreshPair", func(t *testing.T) {
		f := setupOAuthService(t)
		original := exchange(t, f)

		rotated, err := f.service.RefreshAccessToken(ctx, services.RefreshTokenParams{
			RefreshToken: original.RefreshToken,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		require.NoError(t, err)

		assert.NotEqual(t, original.AccessToken, rotated.AccessToken)
		assert.NotEqual(t, original.RefreshToken, rotated.RefreshToken)
		assert.Equal(t, original.Scope, rotated.Scope)
		assert.Equal(t, 3600, rotated.ExpiresIn)
	})

	t.Run("RotatedOutTokenNeverSucceedsAgain", func(t *testing.T) {
		f := setupOAuthService(t)
		original := exchange(t, f)

		params := services.RefreshTokenParams{
			RefreshToken: original.RefreshToken,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		}
		_, err := f.service.RefreshAccessToken(ctx, params)
		require.NoError(t, err)

		_, err = f.service.RefreshAccessToken(ctx, params)
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("RotationRevokesOldAccessToken", func(t *testing.T) {
		f := setupOAuthService(t)
		tokenManager := testutils.NewTestTokenManager(nil)
		original := exchange(t, f)

		claims, err := tokenManager.VerifyAccessToken(original.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, f.tokens.access[claims.TokenID])
		require.Nil(t, f.tokens.access[claims.TokenID].RevokedAt)

		_, err = f.service.RefreshAccessToken(ctx, services.RefreshTokenParams{
			RefreshToken: original.RefreshToken,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		require.NoError(t, err)

		assert.NotNil(t, f.tokens.access[claims.TokenID].RevokedAt)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		f := setupOAuthService(t)
		_, err := f.service.RefreshAccessToken(ctx, services.RefreshTokenParams{
			RefreshToken: "never-issued",
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("WrongClient", func(t *testing.T) {
		f := setupOAuthService(t)
		original := exchange(t, f)

		_, err := f.service.RefreshAccessToken(ctx, services.RefreshTokenParams{
			RefreshToken: original.RefreshToken,
			ClientID:     "oc_other",
			ClientSecret: f.clientSecret,
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})

	t.Run("WrongClientSecret", func(t *testing.T) {
		f := setupOAuthService(t)
		original := exchange(t, f)

		_, err := f.service.RefreshAccessToken(ctx, services.RefreshTokenParams{
			RefreshToken: original.RefreshToken,
			ClientID:     f.client.ID,
			ClientSecret: "ocs_wrong",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()

	exchange := func(t *testing.T, f *oauthFixture) *models.TokenPair {
		t.Helper()
		code := createCode(t, f, "")
		pair, err := f.service.ExchangeCodeForTokens(ctx, services.ExchangeCodeParams{
			Code:         code.Code,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
			RedirectURI:  "https://zapier.com/oauth/callback",
		})
		require.NoError(t, err)
		return pair
	}

	t.Run("AccessTokenRevocationCascadesToRefreshToken", func(t *testing.T) {
		f := setupOAuthService(t)
		pair := exchange(t, f)

		err := f.service.RevokeToken(ctx, services.RevokeTokenParams{
			Token:        pair.AccessToken,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		require.NoError(t, err)

		// The paired refresh token must be dead too
		_, err = f.service.RefreshAccessToken(ctx, services.RefreshTokenParams{
			RefreshToken: pair.RefreshToken,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidGrant)
	})

	t.Run("RefreshTokenRevocationCascadesToAccessToken", func(t *testing.T) {
		f := setupOAuthService(t)
		tokenManager := testutils.NewTestTokenManager(nil)
		pair := exchange(t, f)

		err := f.service.RevokeToken(ctx, services.RevokeTokenParams{
			Token:        pair.RefreshToken,
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		require.NoError(t, err)

		claims, err := tokenManager.VerifyAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.NotNil(t, f.tokens.access[claims.TokenID].RevokedAt)
	})

	t.Run("UnknownTokenStillSucceeds", func(t *testing.T) {
		f := setupOAuthService(t)
		err := f.service.RevokeToken(ctx, services.RevokeTokenParams{
			Token:        "never-issued",
			ClientID:     f.client.ID,
			ClientSecret: f.clientSecret,
		})
		assert.NoError(t, err)
	})

	t.Run("InvalidClientCredentials", func(t *testing.T) {
		f := setupOAuthService(t)
		pair := exchange(t, f)

		err := f.service.RevokeToken(ctx, services.RevokeTokenParams{
			Token:        pair.AccessToken,
			ClientID:     f.client.ID,
			ClientSecret: "ocs_wrong",
		})
		assertOAuthErrorCode(t, err, models.OAuthErrInvalidClient)
	})
}

func TestCreateClient(t *testing.T) {
	f := setupOAuthService(t)
	ctx := context.Background()

	t.Run("SecretIsStoredOnlyAsHash", func(t *testing.T) {
		client, secret, err := f.service.CreateClient(ctx, "Make", []string{"https://make.com/callback"})
		require.NoError(t, err)
		assert.NotEmpty(t, secret)
		assert.NotEqual(t, secret, client.SecretHash)
		assert.True(t, client.IsActive)
	})

	t.Run("RejectsEmptyName", func(t *testing.T) {
		_, _, err := f.service.CreateClient(ctx, "", []string{"https://make.com/callback"})
		require.Error(t, err)
	})

	t.Run("RejectsRelativeRedirectURI", func(t *testing.T) {
		_, _, err := f.service.CreateClient(ctx, "Make", []string{"/relative/path"})
		require.Error(t, err)
	})

	t.Run("RejectsNoRedirectURIs", func(t *testing.T) {
		_, _, err := f.service.CreateClient(ctx, "Make", nil)
		require.Error(t, err)
	})
}
