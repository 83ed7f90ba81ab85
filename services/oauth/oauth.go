package oauth

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"flowbackend/core"
	"flowbackend/models"
	"flowbackend/services"
	"flowbackend/services/tokenmanager"
)

const (
	authorizationCodeTTL = 10 * time.Minute
	refreshTokenTTL      = 30 * 24 * time.Hour

	// Raw entropy for opaque credentials, hex-encoded by the token manager
	authorizationCodeBytes = 32
	refreshTokenBytes      = 48
)

// ClientsStore is the persistence interface for registered OAuth clients.
type ClientsStore interface {
	CreateOAuthClient(ctx context.Context, client *models.OAuthClient) error
	GetOAuthClientByID(ctx context.Context, clientID string) (*models.OAuthClient, error)
	ListOAuthClients(ctx context.Context) ([]*models.OAuthClient, error)
	DeactivateOAuthClient(ctx context.Context, clientID string) (bool, error)
}

// CodesStore is the persistence interface for authorization codes.
// ConsumeAuthorizationCode must be an atomic conditional update.
type CodesStore interface {
	CreateAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error)
	ConsumeAuthorizationCode(ctx context.Context, code string) (bool, error)
}

// TokensStore is the persistence interface for access and refresh tokens.
// ConsumeRefreshToken must be an atomic conditional update.
type TokensStore interface {
	CreateAccessToken(ctx context.Context, token *models.AccessToken) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetAccessTokenByHash(ctx context.Context, tokenHash string) (*models.AccessToken, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeAccessToken(ctx context.Context, tokenID string) (bool, error)
	RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) (bool, error)
	RevokeRefreshTokenByAccessTokenID(ctx context.Context, accessTokenID string) (bool, error)
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
}

// OAuthService implements the authorization server: client validation, code
// issuance and exchange, refresh rotation and revocation.
type OAuthService struct {
	clientsRepo  ClientsStore
	codesRepo    CodesStore
	tokensRepo   TokensStore
	tokenManager services.TokenManager
	txManager    services.TransactionManager
}

func NewOAuthService(
	clientsRepo ClientsStore,
	codesRepo CodesStore,
	tokensRepo TokensStore,
	tokenManager services.TokenManager,
	txManager services.TransactionManager,
) *OAuthService {
	return &OAuthService{
		clientsRepo:  clientsRepo,
		codesRepo:    codesRepo,
		tokensRepo:   tokensRepo,
		tokenManager: tokenManager,
		txManager:    txManager,
	}
}

// ValidateClient checks that the client exists, is active, and has the
// redirect URI on its allow-list.
func (s *OAuthService) ValidateClient(
	ctx context.Context,
	clientID, redirectURI string,
) (*models.OAuthClient, error) {
	if clientID == "" {
		return nil, models.NewOAuthError(models.OAuthErrInvalidRequest, "client_id is required")
	}

	client, err := s.clientsRepo.GetOAuthClientByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil || !client.IsActive {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "client not found or inactive")
	}

	if !client.HasRedirectURI(redirectURI) {
		return nil, models.NewOAuthError(models.OAuthErrInvalidRequest, "redirect_uri is not registered for this client")
	}

	return client, nil
}

// CreateAuthorizationCode persists a new single-use code bound to the consent
// parameters. The code is 32 bytes of entropy, valid for 10 minutes.
func (s *OAuthService) CreateAuthorizationCode(
	ctx context.Context,
	params services.CreateAuthorizationCodeParams,
) (*models.AuthorizationCode, error) {
	log.Printf("🔐 Creating authorization code for client: %s, org: %s", params.ClientID, params.OrganizationID)

	code, err := s.tokenManager.GenerateSecureToken(authorizationCodeBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}

	authCode := &models.AuthorizationCode{
		Code:                code,
		ClientID:            params.ClientID,
		UserID:              params.UserID,
		OrgID:               params.OrganizationID,
		RedirectURI:         params.RedirectURI,
		Scopes:              params.Scopes,
		State:               params.State,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		ExpiresAt:           time.Now().Add(authorizationCodeTTL),
	}

	if err := s.codesRepo.CreateAuthorizationCode(ctx, authCode); err != nil {
		return nil, fmt.Errorf("failed to persist authorization code: %w", err)
	}

	log.Printf("✅ Authorization code created for client: %s", params.ClientID)
	return authCode, nil
}

// ExchangeCodeForTokens runs the ordered RFC 6749 checks and, if all pass,
// atomically consumes the code and issues a fresh token pair. Concurrent
// replays of the same code succeed for at most one caller.
func (s *OAuthService) ExchangeCodeForTokens(
	ctx context.Context,
	params services.ExchangeCodeParams,
) (*models.TokenPair, error) {
	log.Printf("🔐 Exchanging authorization code for client: %s", params.ClientID)

	// 1. Code exists and is unused
	authCode, err := s.codesRepo.GetAuthorizationCode(ctx, params.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}
	if authCode == nil || authCode.UsedAt != nil {
		return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "authorization code is invalid or already used")
	}

	// 2. Not expired
	if authCode.IsExpired(time.Now()) {
		return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "authorization code has expired")
	}

	// 3. Client matches
	if authCode.ClientID != params.ClientID {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "authorization code was issued to a different client")
	}

	// 4. Redirect URI matches exactly
	if authCode.RedirectURI != params.RedirectURI {
		return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "redirect_uri does not match the authorization request")
	}

	// 5. Client secret verifies
	client, err := s.clientsRepo.GetOAuthClientByID(ctx, params.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil || !client.IsActive {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "client not found or inactive")
	}
	if !s.tokenManager.VerifyClientSecret(params.ClientSecret, client.SecretHash) {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "invalid client credentials")
	}

	// 6. PKCE
	if authCode.CodeChallenge != "" {
		if params.CodeVerifier == "" {
			return nil, models.NewOAuthError(models.OAuthErrInvalidRequest, "code_verifier is required")
		}
		if !s.tokenManager.VerifyCodeChallenge(params.CodeVerifier, authCode.CodeChallenge, authCode.CodeChallengeMethod) {
			return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "code_verifier does not match the code_challenge")
		}
	}

	// 7-9. Consume the code and persist the new token pair atomically
	var pair *models.TokenPair
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		consumed, err := s.codesRepo.ConsumeAuthorizationCode(txCtx, authCode.Code)
		if err != nil {
			return fmt.Errorf("failed to consume authorization code: %w", err)
		}
		if !consumed {
			// Another exchange won the race
			return models.NewOAuthError(models.OAuthErrInvalidGrant, "authorization code is invalid or already used")
		}

		pair, err = s.issueTokenPair(txCtx, client, authCode.UserID, authCode.OrgID, authCode.Scopes)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Authorization code exchanged for client: %s", params.ClientID)
	return pair, nil
}

// RefreshAccessToken rotates a refresh token: the presented token is marked
// used, its paired access token is revoked, and a brand-new pair inheriting
// the original scopes is issued. A rotated-out token never succeeds again.
func (s *OAuthService) RefreshAccessToken(
	ctx context.Context,
	params services.RefreshTokenParams,
) (*models.TokenPair, error) {
	log.Printf("🔐 Refreshing access token for client: %s", params.ClientID)

	tokenHash := s.tokenManager.HashToken(params.RefreshToken)
	refreshToken, err := s.tokensRepo.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if refreshToken == nil {
		return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "refresh token is invalid")
	}
	if refreshToken.UsedAt != nil || refreshToken.RevokedAt != nil {
		return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "refresh token has been used or revoked")
	}
	if !time.Now().Before(refreshToken.ExpiresAt) {
		return nil, models.NewOAuthError(models.OAuthErrInvalidGrant, "refresh token has expired")
	}
	if refreshToken.ClientID != params.ClientID {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "refresh token was issued to a different client")
	}

	client, err := s.clientsRepo.GetOAuthClientByID(ctx, params.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil || !client.IsActive {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "client not found or inactive")
	}
	if !s.tokenManager.VerifyClientSecret(params.ClientSecret, client.SecretHash) {
		return nil, models.NewOAuthError(models.OAuthErrInvalidClient, "invalid client credentials")
	}

	var pair *models.TokenPair
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		consumed, err := s.tokensRepo.ConsumeRefreshToken(txCtx, tokenHash)
		if err != nil {
			return fmt.Errorf("failed to consume refresh token: %w", err)
		}
		if !consumed {
			// Another rotation won the race
			return models.NewOAuthError(models.OAuthErrInvalidGrant, "refresh token has been used or revoked")
		}

		if _, err := s.tokensRepo.RevokeAccessToken(txCtx, refreshToken.AccessTokenID); err != nil {
			return fmt.Errorf("failed to revoke rotated access token: %w", err)
		}

		pair, err = s.issueTokenPair(txCtx, client, refreshToken.UserID, refreshToken.OrgID, refreshToken.Scopes)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Access token refreshed for client: %s", params.ClientID)
	return pair, nil
}

// RevokeToken revokes the presented token, trying it as an access token
// first, then as a refresh token. Revoking either side cascades to its
// paired counterpart. Per RFC 7009 the operation reports success even when
// the token was never found, so callers cannot probe for valid tokens.
func (s *OAuthService) RevokeToken(ctx context.Context, params services.RevokeTokenParams) error {
	log.Printf("🔐 Revocation request from client: %s", params.ClientID)

	client, err := s.clientsRepo.GetOAuthClientByID(ctx, params.ClientID)
	if err != nil {
		return fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil || !client.IsActive ||
		!s.tokenManager.VerifyClientSecret(params.ClientSecret, client.SecretHash) {
		return models.NewOAuthError(models.OAuthErrInvalidClient, "invalid client credentials")
	}

	tokenHash := s.tokenManager.HashToken(params.Token)

	accessToken, err := s.tokensRepo.GetAccessTokenByHash(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to look up access token: %w", err)
	}
	if accessToken != nil {
		return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := s.tokensRepo.RevokeAccessToken(txCtx, accessToken.ID); err != nil {
				return fmt.Errorf("failed to revoke access token: %w", err)
			}
			if _, err := s.tokensRepo.RevokeRefreshTokenByAccessTokenID(txCtx, accessToken.ID); err != nil {
				return fmt.Errorf("failed to revoke paired refresh token: %w", err)
			}
			log.Printf("✅ Access token revoked (with paired refresh token)")
			return nil
		})
	}

	refreshToken, err := s.tokensRepo.GetRefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if refreshToken != nil {
		return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := s.tokensRepo.RevokeRefreshTokenByHash(txCtx, tokenHash); err != nil {
				return fmt.Errorf("failed to revoke refresh token: %w", err)
			}
			if _, err := s.tokensRepo.RevokeAccessToken(txCtx, refreshToken.AccessTokenID); err != nil {
				return fmt.Errorf("failed to revoke paired access token: %w", err)
			}
			log.Printf("✅ Refresh token revoked (with paired access token)")
			return nil
		})
	}

	// Token not found - still success, no probing
	log.Printf("📋 Revocation request for unknown token, reporting success")
	return nil
}

// issueTokenPair mints a JWT access token plus an opaque refresh token
// paired to the same jti, and persists both rows.
func (s *OAuthService) issueTokenPair(
	ctx context.Context,
	client *models.OAuthClient,
	userID string,
	organizationID models.OrgID,
	scopes []string,
) (*models.TokenPair, error) {
	tokenID := core.NewID("at")

	signedToken, expiresAt, err := s.tokenManager.GenerateAccessToken(
		userID, organizationID, scopes, client.Name, tokenID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	rawRefreshToken, err := s.tokenManager.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	accessToken := &models.AccessToken{
		ID:        tokenID,
		TokenHash: s.tokenManager.HashToken(signedToken),
		ClientID:  client.ID,
		UserID:    userID,
		OrgID:     organizationID,
		Scopes:    scopes,
		ExpiresAt: expiresAt,
	}
	if err := s.tokensRepo.CreateAccessToken(ctx, accessToken); err != nil {
		return nil, fmt.Errorf("failed to persist access token: %w", err)
	}

	refreshToken := &models.RefreshToken{
		TokenHash:     s.tokenManager.HashToken(rawRefreshToken),
		AccessTokenID: tokenID,
		ClientID:      client.ID,
		UserID:        userID,
		OrgID:         organizationID,
		Scopes:        scopes,
		ExpiresAt:     time.Now().Add(refreshTokenTTL),
	}
	if err := s.tokensRepo.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}

	return &models.TokenPair{
		AccessToken:  signedToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(tokenmanager.AccessTokenTTL.Seconds()),
		RefreshToken: rawRefreshToken,
		Scope:        strings.Join(scopes, " "),
	}, nil
}
