package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"flowbackend/models"
	"flowbackend/services"
)

// SubscriptionsStore is the slice of subscription persistence the emitter
// needs: the active subscriptions for one org and event type.
type SubscriptionsStore interface {
	GetActiveSubscriptions(
		ctx context.Context,
		organizationID models.OrgID,
		eventType string,
	) ([]*models.Subscription, error)
}

// EventsService turns domain events into webhook deliveries. It matches each
// active subscription's tag filter against the event and hands matches to the
// dispatcher without waiting on the network.
type EventsService struct {
	subscriptionsRepo SubscriptionsStore
	dispatcher        services.WebhookDispatcher
}

func NewEventsService(repo SubscriptionsStore, dispatcher services.WebhookDispatcher) *EventsService {
	return &EventsService{
		subscriptionsRepo: repo,
		dispatcher:        dispatcher,
	}
}

// Emit builds the event envelope, enqueues a delivery per matching
// subscription and returns how many were triggered. A failed enqueue skips
// that subscription but does not fail the emit.
func (s *EventsService) Emit(
	ctx context.Context,
	organizationID models.OrgID,
	eventType string,
	data map[string]any,
	contactTags []string,
) (int, error) {
	subs, err := s.subscriptionsRepo.GetActiveSubscriptions(ctx, organizationID, eventType)
	if err != nil {
		return 0, fmt.Errorf("failed to get active subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	event := &models.WebhookEvent{
		ID:        uuid.New().String(),
		Event:     eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		OrgID:     organizationID,
		Data:      data,
	}

	triggered := 0
	for _, sub := range subs {
		if !MatchesFilters(contactTags, sub.FilterTags, sub.FilterOperator) {
			continue
		}
		if err := s.dispatcher.EnqueueDelivery(ctx, sub, event); err != nil {
			log.Printf("❌ Failed to enqueue delivery for subscription %s: %v", sub.ID, err)
			continue
		}
		triggered++
	}

	if triggered > 0 {
		log.Printf("📤 Event %s (%s) triggered %d subscriptions for org %s", event.ID, eventType, triggered, organizationID)
	}
	return triggered, nil
}

// MatchesFilters decides whether an event's tags satisfy a subscription's
// filter. A subscription with no filter tags matches every event. An
// unrecognized operator matches nothing.
func MatchesFilters(eventTags, filterTags []string, operator models.FilterOperator) bool {
	if len(filterTags) == 0 {
		return true
	}

	tagSet := make(map[string]struct{}, len(eventTags))
	for _, tag := range eventTags {
		tagSet[tag] = struct{}{}
	}

	switch operator {
	case models.FilterOperatorAnyOf:
		for _, tag := range filterTags {
			if _, ok := tagSet[tag]; ok {
				return true
			}
		}
		return false
	case models.FilterOperatorAllOf:
		for _, tag := range filterTags {
			if _, ok := tagSet[tag]; !ok {
				return false
			}
		}
		return true
	case models.FilterOperatorNoneOf:
		for _, tag := range filterTags {
			if _, ok := tagSet[tag]; ok {
				return false
			}
		}
		return true
	default:
		log.Printf("⚠️ Unknown filter operator %q, matching nothing", operator)
		return false
	}
}
