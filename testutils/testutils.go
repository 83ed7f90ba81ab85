package testutils

import (
	"context"

	"flowbackend/appctx"
	"flowbackend/core"
	"flowbackend/models"
	"flowbackend/services/tokenmanager"
)

// Signing material shared by unit tests. Never use in production.
const (
	TestJWTSecret = "test-jwt-secret-0123456789abcdef"
	TestIssuer    = "flowbackend-test"
)

// StubRevocationStore is an in-memory revocation lookup for tests.
type StubRevocationStore struct {
	Revoked map[string]bool
	Err     error
}

func (s *StubRevocationStore) IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	return s.Revoked[tokenID], nil
}

// NewTestTokenManager builds a token manager with the shared test secret. A
// nil store means nothing is revoked.
func NewTestTokenManager(store *StubRevocationStore) *tokenmanager.TokenManager {
	if store == nil {
		store = &StubRevocationStore{}
	}
	return tokenmanager.NewTokenManager(TestJWTSecret, TestIssuer, store)
}

// NewAuthContext returns a context carrying an authenticated identity, as
// the auth middleware would produce.
func NewAuthContext(userID string, organizationID models.OrgID, scopes []string) context.Context {
	return appctx.SetAuthInfo(context.Background(), &models.AuthInfo{
		UserID: userID,
		OrgID:  organizationID,
		Scopes: scopes,
	})
}

// NewTestSubscription builds an active subscription with fresh IDs.
func NewTestSubscription(organizationID models.OrgID, eventType, targetURL string) *models.Subscription {
	return &models.Subscription{
		ID:             core.NewID("ws"),
		OrgID:          organizationID,
		EventType:      eventType,
		TargetURL:      targetURL,
		FilterOperator: models.FilterOperatorAnyOf,
		IsActive:       true,
	}
}
