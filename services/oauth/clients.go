package oauth

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"flowbackend/core"
	"flowbackend/models"
)

// CreateClient registers a new OAuth client. The generated secret is
// returned in plaintext exactly once; only its bcrypt hash is stored.
func (s *OAuthService) CreateClient(
	ctx context.Context,
	name string,
	redirectURIs []string,
) (*models.OAuthClient, string, error) {
	log.Printf("📋 Creating OAuth client: %s", name)

	if name == "" {
		return nil, "", fmt.Errorf("client name cannot be empty")
	}
	if len(redirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required")
	}
	for _, uri := range redirectURIs {
		parsed, err := url.Parse(uri)
		if err != nil || !parsed.IsAbs() {
			return nil, "", fmt.Errorf("redirect URI %q is not an absolute URL", uri)
		}
	}

	secret, err := core.NewSecretKey("ocs")
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate client secret: %w", err)
	}

	secretHash, err := s.tokenManager.HashClientSecret(secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	client := &models.OAuthClient{
		ID:           core.NewID("oc"),
		SecretHash:   secretHash,
		Name:         name,
		RedirectURIs: redirectURIs,
		IsActive:     true,
	}

	if err := s.clientsRepo.CreateOAuthClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to create oauth client: %w", err)
	}

	log.Printf("✅ OAuth client created: %s", client.ID)
	return client, secret, nil
}

// ListClients returns all registered clients, active and inactive.
func (s *OAuthService) ListClients(ctx context.Context) ([]*models.OAuthClient, error) {
	clients, err := s.clientsRepo.ListOAuthClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list oauth clients: %w", err)
	}
	return clients, nil
}

// DeactivateClient permanently disables a client. Codes and tokens it issued
// stop working at their next validation.
func (s *OAuthService) DeactivateClient(ctx context.Context, clientID string) error {
	log.Printf("📋 Deactivating OAuth client: %s", clientID)

	deactivated, err := s.clientsRepo.DeactivateOAuthClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to deactivate oauth client: %w", err)
	}
	if !deactivated {
		return fmt.Errorf("oauth client %s: %w", clientID, core.ErrNotFound)
	}

	log.Printf("✅ OAuth client deactivated: %s", clientID)
	return nil
}
