package subscriptions

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/samber/mo"

	"flowbackend/core"
	"flowbackend/models"
	"flowbackend/services"
)

// SubscriptionsStore is the persistence interface for webhook subscriptions.
type SubscriptionsStore interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByID(
		ctx context.Context,
		organizationID models.OrgID,
		subscriptionID string,
	) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, organizationID models.OrgID) ([]*models.Subscription, error)
	DeactivateSubscription(
		ctx context.Context,
		organizationID models.OrgID,
		subscriptionID string,
	) (bool, error)
}

// SubscriptionsService manages the webhook subscription lifecycle.
type SubscriptionsService struct {
	subscriptionsRepo SubscriptionsStore
}

func NewSubscriptionsService(repo SubscriptionsStore) *SubscriptionsService {
	return &SubscriptionsService{subscriptionsRepo: repo}
}

func (s *SubscriptionsService) CreateSubscription(
	ctx context.Context,
	organizationID models.OrgID,
	params services.CreateSubscriptionParams,
) (*models.Subscription, error) {
	log.Printf("📋 Creating subscription for org: %s, event: %s", organizationID, params.EventType)

	if params.EventType == "" {
		return nil, fmt.Errorf("event_type cannot be empty")
	}

	parsed, err := url.Parse(params.TargetURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("target_url must be an absolute http(s) URL")
	}

	operator := params.FilterOperator
	if operator == "" {
		operator = models.FilterOperatorAnyOf
	}
	if !operator.IsValid() {
		return nil, fmt.Errorf("filter_operator %q is not one of any_of, all_of, none_of", operator)
	}

	sub := &models.Subscription{
		ID:             core.NewID("ws"),
		OrgID:          organizationID,
		EventType:      params.EventType,
		TargetURL:      params.TargetURL,
		FilterTags:     params.FilterTags,
		FilterOperator: operator,
		IsActive:       true,
	}

	if err := s.subscriptionsRepo.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	log.Printf("✅ Subscription created: %s", sub.ID)
	return sub, nil
}

func (s *SubscriptionsService) ListSubscriptions(
	ctx context.Context,
	organizationID models.OrgID,
) ([]*models.Subscription, error) {
	subs, err := s.subscriptionsRepo.ListSubscriptions(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionsService) GetSubscriptionByID(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) (mo.Option[*models.Subscription], error) {
	sub, err := s.subscriptionsRepo.GetSubscriptionByID(ctx, organizationID, subscriptionID)
	if err != nil {
		return mo.None[*models.Subscription](), fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return mo.None[*models.Subscription](), nil
	}
	return mo.Some(sub), nil
}

func (s *SubscriptionsService) DeactivateSubscription(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) error {
	log.Printf("📋 Deactivating subscription: %s for org: %s", subscriptionID, organizationID)

	deactivated, err := s.subscriptionsRepo.DeactivateSubscription(ctx, organizationID, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	if !deactivated {
		return fmt.Errorf("subscription %s: %w", subscriptionID, core.ErrNotFound)
	}

	log.Printf("✅ Subscription deactivated: %s", subscriptionID)
	return nil
}
