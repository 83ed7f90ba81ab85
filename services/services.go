package services

import (
	"context"
	"time"

	"github.com/samber/mo"

	"flowbackend/models"
)

// TokenManager defines the cryptographic primitives of the authorization
// server: random tokens, token hashing, JWT mint/verify, PKCE verification
// and client-secret hashing.
type TokenManager interface {
	GenerateSecureToken(numBytes int) (string, error)
	HashToken(token string) string
	GenerateAccessToken(
		userID string,
		organizationID models.OrgID,
		scopes []string,
		clientName, tokenID string,
	) (string, time.Time, error)
	// VerifyAccessToken fails closed: any signature, issuer or expiry problem
	// yields (nil, err). Expired tokens return ErrTokenExpired.
	VerifyAccessToken(tokenString string) (*models.AccessTokenClaims, error)
	// IsTokenRevoked is fail-secure: a datastore error reports the token as
	// revoked rather than letting it through.
	IsTokenRevoked(ctx context.Context, tokenID string) bool
	VerifyCodeChallenge(verifier, challenge, method string) bool
	HashClientSecret(secret string) (string, error)
	VerifyClientSecret(secret, secretHash string) bool
}

// CreateAuthorizationCodeParams carries the consent-time inputs. UserID and
// OrganizationID come from the session layer, which is an external
// collaborator.
type CreateAuthorizationCodeParams struct {
	ClientID            string
	UserID              string
	OrganizationID      models.OrgID
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

type ExchangeCodeParams struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

type RefreshTokenParams struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
}

type RevokeTokenParams struct {
	Token        string
	ClientID     string
	ClientSecret string
}

// OAuthService defines the RFC 6749 authorization server operations plus
// platform-level client management.
type OAuthService interface {
	ValidateClient(ctx context.Context, clientID, redirectURI string) (*models.OAuthClient, error)
	CreateAuthorizationCode(
		ctx context.Context,
		params CreateAuthorizationCodeParams,
	) (*models.AuthorizationCode, error)
	ExchangeCodeForTokens(ctx context.Context, params ExchangeCodeParams) (*models.TokenPair, error)
	RefreshAccessToken(ctx context.Context, params RefreshTokenParams) (*models.TokenPair, error)
	// RevokeToken never reveals whether the token existed (RFC 7009).
	RevokeToken(ctx context.Context, params RevokeTokenParams) error

	// CreateClient returns the client plus the plaintext secret, which is
	// shown exactly once and stored only as a bcrypt hash.
	CreateClient(ctx context.Context, name string, redirectURIs []string) (*models.OAuthClient, string, error)
	ListClients(ctx context.Context) ([]*models.OAuthClient, error)
	DeactivateClient(ctx context.Context, clientID string) error
}

type CreateSubscriptionParams struct {
	EventType      string
	TargetURL      string
	FilterTags     []string
	FilterOperator models.FilterOperator
}

// SubscriptionsService defines the webhook subscription lifecycle.
type SubscriptionsService interface {
	CreateSubscription(
		ctx context.Context,
		organizationID models.OrgID,
		params CreateSubscriptionParams,
	) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, organizationID models.OrgID) ([]*models.Subscription, error)
	GetSubscriptionByID(
		ctx context.Context,
		organizationID models.OrgID,
		subscriptionID string,
	) (mo.Option[*models.Subscription], error)
	DeactivateSubscription(ctx context.Context, organizationID models.OrgID, subscriptionID string) error
}

// EventsService matches domain events against active subscriptions and fans
// out deliveries without blocking the caller. Returns the number of
// subscriptions triggered, not delivered.
type EventsService interface {
	Emit(
		ctx context.Context,
		organizationID models.OrgID,
		eventType string,
		data map[string]any,
		contactTags []string,
	) (int, error)
}

// WebhookDispatcher owns the delivery state machine: enqueue, attempt,
// retry with backoff, abandon, 410-driven deactivation.
type WebhookDispatcher interface {
	EnqueueDelivery(ctx context.Context, sub *models.Subscription, event *models.WebhookEvent) error
	ProcessRetries(ctx context.Context) error
	Stop()
}

// TransactionManager defines the interface for managing database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(context.Context) error) error
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}
