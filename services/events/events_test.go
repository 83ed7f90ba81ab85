package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"flowbackend/models"
	"flowbackend/services"
	"flowbackend/testutils"
)

type fakeSubscriptionsStore struct {
	subs []*models.Subscription
	err  error
}

func (s *fakeSubscriptionsStore) GetActiveSubscriptions(
	ctx context.Context,
	organizationID models.OrgID,
	eventType string,
) ([]*models.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.OrgID == organizationID && sub.EventType == eventType && sub.IsActive {
			out = append(out, sub)
		}
	}
	return out, nil
}

func TestMatchesFilters(t *testing.T) {
	tests := []struct {
		name       string
		eventTags  []string
		filterTags []string
		operator   models.FilterOperator
		want       bool
	}{
		{"NoFilterTagsMatchesEverything", []string{"vip"}, nil, models.FilterOperatorAnyOf, true},
		{"NoFilterTagsMatchesUntaggedEvent", nil, nil, models.FilterOperatorAllOf, true},

		{"AnyOfOneOverlap", []string{"vip", "gold"}, []string{"gold", "silver"}, models.FilterOperatorAnyOf, true},
		{"AnyOfNoOverlap", []string{"vip"}, []string{"gold", "silver"}, models.FilterOperatorAnyOf, false},
		{"AnyOfEmptyEventTags", nil, []string{"gold"}, models.FilterOperatorAnyOf, false},

		{"AllOfSubset", []string{"vip", "gold", "beta"}, []string{"vip", "gold"}, models.FilterOperatorAllOf, true},
		{"AllOfPartial", []string{"vip"}, []string{"vip", "gold"}, models.FilterOperatorAllOf, false},
		{"AllOfExact", []string{"vip", "gold"}, []string{"vip", "gold"}, models.FilterOperatorAllOf, true},

		{"NoneOfDisjoint", []string{"vip"}, []string{"gold", "silver"}, models.FilterOperatorNoneOf, true},
		{"NoneOfOverlap", []string{"vip", "gold"}, []string{"gold"}, models.FilterOperatorNoneOf, false},
		{"NoneOfEmptyEventTags", nil, []string{"gold"}, models.FilterOperatorNoneOf, true},

		{"UnknownOperatorMatchesNothing", []string{"vip"}, []string{"vip"}, models.FilterOperator("some_of"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesFilters(tt.eventTags, tt.filterTags, tt.operator))
		})
	}
}

func TestEmit(t *testing.T) {
	ctx := context.Background()
	orgID := models.OrgID("org_1")

	t.Run("TriggersMatchingSubscriptionsOnly", func(t *testing.T) {
		vipSub := testutils.NewTestSubscription(orgID, "contact.created", "https://hooks.example.com/vip")
		vipSub.FilterTags = []string{"vip"}
		allSub := testutils.NewTestSubscription(orgID, "contact.created", "https://hooks.example.com/all")
		goldSub := testutils.NewTestSubscription(orgID, "contact.created", "https://hooks.example.com/gold")
		goldSub.FilterTags = []string{"gold"}

		store := &fakeSubscriptionsStore{subs: []*models.Subscription{vipSub, allSub, goldSub}}
		dispatcher := &services.MockWebhookDispatcher{}
		dispatcher.On("EnqueueDelivery", ctx, vipSub, mock.Anything).Return(nil)
		dispatcher.On("EnqueueDelivery", ctx, allSub, mock.Anything).Return(nil)

		service := NewEventsService(store, dispatcher)
		triggered, err := service.Emit(ctx, orgID, "contact.created", map[string]any{"name": "Ada"}, []string{"vip"})
		require.NoError(t, err)
		assert.Equal(t, 2, triggered)
		dispatcher.AssertExpectations(t)
		dispatcher.AssertNotCalled(t, "EnqueueDelivery", ctx, goldSub, mock.Anything)
	})

	t.Run("EnvelopeCarriesEventFields", func(t *testing.T) {
		sub := testutils.NewTestSubscription(orgID, "contact.created", "https://hooks.example.com/all")
		store := &fakeSubscriptionsStore{subs: []*models.Subscription{sub}}

		var captured *models.WebhookEvent
		dispatcher := &services.MockWebhookDispatcher{}
		dispatcher.On("EnqueueDelivery", ctx, sub, mock.Anything).
			Run(func(args mock.Arguments) {
				captured = args.Get(2).(*models.WebhookEvent)
			}).
			Return(nil)

		service := NewEventsService(store, dispatcher)
		_, err := service.Emit(ctx, orgID, "contact.created", map[string]any{"name": "Ada"}, nil)
		require.NoError(t, err)

		require.NotNil(t, captured)
		assert.NotEmpty(t, captured.ID)
		assert.Equal(t, "contact.created", captured.Event)
		assert.NotEmpty(t, captured.Timestamp)
		assert.Equal(t, orgID, captured.OrgID)
		assert.Equal(t, map[string]any{"name": "Ada"}, captured.Data)
	})

	t.Run("NoSubscriptions", func(t *testing.T) {
		service := NewEventsService(&fakeSubscriptionsStore{}, &services.MockWebhookDispatcher{})
		triggered, err := service.Emit(ctx, orgID, "contact.created", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, triggered)
	})

	t.Run("EnqueueFailureSkipsSubscription", func(t *testing.T) {
		failing := testutils.NewTestSubscription(orgID, "contact.created", "https://hooks.example.com/bad")
		working := testutils.NewTestSubscription(orgID, "contact.created", "https://hooks.example.com/good")
		store := &fakeSubscriptionsStore{subs: []*models.Subscription{failing, working}}

		dispatcher := &services.MockWebhookDispatcher{}
		dispatcher.On("EnqueueDelivery", ctx, failing, mock.Anything).Return(fmt.Errorf("queue full"))
		dispatcher.On("EnqueueDelivery", ctx, working, mock.Anything).Return(nil)

		service := NewEventsService(store, dispatcher)
		triggered, err := service.Emit(ctx, orgID, "contact.created", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, triggered)
	})

	t.Run("StoreErrorPropagates", func(t *testing.T) {
		store := &fakeSubscriptionsStore{err: fmt.Errorf("db down")}
		service := NewEventsService(store, &services.MockWebhookDispatcher{})
		_, err := service.Emit(ctx, orgID, "contact.created", nil, nil)
		require.Error(t, err)
	})
}
