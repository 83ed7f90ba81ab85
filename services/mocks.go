package services

import (
	"context"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/mock"

	"flowbackend/models"
)

// MockTokenManager is a mock implementation of TokenManager
type MockTokenManager struct {
	mock.Mock
}

func (m *MockTokenManager) GenerateSecureToken(numBytes int) (string, error) {
	args := m.Called(numBytes)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) HashToken(token string) string {
	args := m.Called(token)
	return args.String(0)
}

func (m *MockTokenManager) GenerateAccessToken(
	userID string,
	organizationID models.OrgID,
	scopes []string,
	clientName, tokenID string,
) (string, time.Time, error) {
	args := m.Called(userID, organizationID, scopes, clientName, tokenID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenManager) VerifyAccessToken(tokenString string) (*models.AccessTokenClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessTokenClaims), args.Error(1)
}

func (m *MockTokenManager) IsTokenRevoked(ctx context.Context, tokenID string) bool {
	args := m.Called(ctx, tokenID)
	return args.Bool(0)
}

func (m *MockTokenManager) VerifyCodeChallenge(verifier, challenge, method string) bool {
	args := m.Called(verifier, challenge, method)
	return args.Bool(0)
}

func (m *MockTokenManager) HashClientSecret(secret string) (string, error) {
	args := m.Called(secret)
	return args.String(0), args.Error(1)
}

func (m *MockTokenManager) VerifyClientSecret(secret, secretHash string) bool {
	args := m.Called(secret, secretHash)
	return args.Bool(0)
}

// MockOAuthService is a mock implementation of OAuthService
type MockOAuthService struct {
	mock.Mock
}

func (m *MockOAuthService) ValidateClient(
	ctx context.Context,
	clientID, redirectURI string,
) (*models.OAuthClient, error) {
	args := m.Called(ctx, clientID, redirectURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OAuthClient), args.Error(1)
}

func (m *MockOAuthService) CreateAuthorizationCode(
	ctx context.Context,
	params CreateAuthorizationCodeParams,
) (*models.AuthorizationCode, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthorizationCode), args.Error(1)
}

func (m *MockOAuthService) ExchangeCodeForTokens(
	ctx context.Context,
	params ExchangeCodeParams,
) (*models.TokenPair, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenPair), args.Error(1)
}

func (m *MockOAuthService) RefreshAccessToken(
	ctx context.Context,
	params RefreshTokenParams,
) (*models.TokenPair, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenPair), args.Error(1)
}

func (m *MockOAuthService) RevokeToken(ctx context.Context, params RevokeTokenParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockOAuthService) CreateClient(
	ctx context.Context,
	name string,
	redirectURIs []string,
) (*models.OAuthClient, string, error) {
	args := m.Called(ctx, name, redirectURIs)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*models.OAuthClient), args.String(1), args.Error(2)
}

func (m *MockOAuthService) ListClients(ctx context.Context) ([]*models.OAuthClient, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OAuthClient), args.Error(1)
}

func (m *MockOAuthService) DeactivateClient(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

// MockSubscriptionsService is a mock implementation of SubscriptionsService
type MockSubscriptionsService struct {
	mock.Mock
}

func (m *MockSubscriptionsService) CreateSubscription(
	ctx context.Context,
	organizationID models.OrgID,
	params CreateSubscriptionParams,
) (*models.Subscription, error) {
	args := m.Called(ctx, organizationID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionsService) ListSubscriptions(
	ctx context.Context,
	organizationID models.OrgID,
) ([]*models.Subscription, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionsService) GetSubscriptionByID(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) (mo.Option[*models.Subscription], error) {
	args := m.Called(ctx, organizationID, subscriptionID)
	return args.Get(0).(mo.Option[*models.Subscription]), args.Error(1)
}

func (m *MockSubscriptionsService) DeactivateSubscription(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) error {
	args := m.Called(ctx, organizationID, subscriptionID)
	return args.Error(0)
}

// MockEventsService is a mock implementation of EventsService
type MockEventsService struct {
	mock.Mock
}

func (m *MockEventsService) Emit(
	ctx context.Context,
	organizationID models.OrgID,
	eventType string,
	data map[string]any,
	contactTags []string,
) (int, error) {
	args := m.Called(ctx, organizationID, eventType, data, contactTags)
	return args.Int(0), args.Error(1)
}

// MockWebhookDispatcher is a mock implementation of WebhookDispatcher
type MockWebhookDispatcher struct {
	mock.Mock
}

func (m *MockWebhookDispatcher) EnqueueDelivery(
	ctx context.Context,
	sub *models.Subscription,
	event *models.WebhookEvent,
) error {
	args := m.Called(ctx, sub, event)
	return args.Error(0)
}

func (m *MockWebhookDispatcher) ProcessRetries(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockWebhookDispatcher) Stop() {
	m.Called()
}

// MockTransactionManager is a mock implementation of TransactionManager that
// runs the function directly without a real transaction.
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (m *MockTransactionManager) BeginTransaction(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (m *MockTransactionManager) CommitTransaction(ctx context.Context) error {
	return nil
}

func (m *MockTransactionManager) RollbackTransaction(ctx context.Context) error {
	return nil
}
