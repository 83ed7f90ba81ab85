package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gammazero/workerpool"

	"flowbackend/core"
	"flowbackend/models"
)

const (
	// Outbound POSTs are bounded only by this timeout; an attempt in flight
	// cannot be cancelled.
	deliveryTimeout = 15 * time.Second

	// A delivery is abandoned after this many failed attempts.
	maxAttempts = 5

	// ProcessRetries picks up at most this many due deliveries per sweep.
	retryBatchSize = 100

	defaultWorkerCount = 16
)

// retrySchedule maps attempt_count to the delay before the next attempt:
// schedule[attemptCount-1] after attempt N fails.
var retrySchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	300 * time.Second,
	1800 * time.Second,
}

// DeliveriesStore is the persistence interface for delivery rows. All state
// transitions are conditional on status = pending, making them idempotent.
type DeliveriesStore interface {
	CreateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	MarkWebhookDeliveryDelivered(ctx context.Context, deliveryID string, responseStatus int) (bool, error)
	MarkWebhookDeliveryAbandoned(ctx context.Context, deliveryID string, responseStatus *int) (bool, error)
	ScheduleWebhookDeliveryRetry(
		ctx context.Context,
		deliveryID string,
		nextRetryAt time.Time,
		responseStatus *int,
	) (bool, error)
	GetDueWebhookDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error)
}

// SubscriptionsStore is the slice of subscription persistence the dispatcher
// needs: activity checks, 410-driven deactivation and trigger/error counters.
type SubscriptionsStore interface {
	GetSubscriptionByID(
		ctx context.Context,
		organizationID models.OrgID,
		subscriptionID string,
	) (*models.Subscription, error)
	DeactivateSubscription(
		ctx context.Context,
		organizationID models.OrgID,
		subscriptionID string,
	) (bool, error)
	RecordSubscriptionTrigger(ctx context.Context, organizationID models.OrgID, subscriptionID string) error
	RecordSubscriptionError(
		ctx context.Context,
		organizationID models.OrgID,
		subscriptionID string,
		lastError string,
	) error
}

// WebhookService delivers event payloads to subscribers through a bounded
// worker pool. Enqueueing never blocks on the network; the pool performs the
// POSTs and the retry sweep re-attempts due deliveries.
type WebhookService struct {
	deliveriesRepo    DeliveriesStore
	subscriptionsRepo SubscriptionsStore
	httpClient        *http.Client
	pool              *workerpool.WorkerPool
	sharedSecret      string
	userAgent         string
}

func NewWebhookService(
	deliveriesRepo DeliveriesStore,
	subscriptionsRepo SubscriptionsStore,
	sharedSecret, userAgent string,
	workerCount int,
) *WebhookService {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}

	return &WebhookService{
		deliveriesRepo:    deliveriesRepo,
		subscriptionsRepo: subscriptionsRepo,
		httpClient:        &http.Client{Timeout: deliveryTimeout},
		pool:              workerpool.New(workerCount),
		sharedSecret:      sharedSecret,
		userAgent:         userAgent,
	}
}

// EnqueueDelivery records a pending delivery row and submits the first
// attempt to the worker pool. Returns as soon as the row is persisted.
func (s *WebhookService) EnqueueDelivery(
	ctx context.Context,
	sub *models.Subscription,
	event *models.WebhookEvent,
) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	delivery := &models.WebhookDelivery{
		ID:             core.NewID("wd"),
		SubscriptionID: sub.ID,
		OrgID:          sub.OrgID,
		EventID:        event.ID,
		Payload:        payload,
		Status:         models.DeliveryStatusPending,
		AttemptCount:   1,
	}

	if err := s.deliveriesRepo.CreateWebhookDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}

	targetURL := sub.TargetURL
	s.pool.Submit(func() {
		// The originating request is long gone by the time a worker runs
		s.attemptDelivery(context.Background(), delivery, targetURL)
	})

	return nil
}

// attemptDelivery POSTs the payload and advances the delivery state machine:
// 2xx -> delivered, 410 -> abandoned + subscription deactivated, anything
// else -> retry scheduled.
func (s *WebhookService) attemptDelivery(
	ctx context.Context,
	delivery *models.WebhookDelivery,
	targetURL string,
) {
	log.Printf("🪝 Delivering webhook %s (attempt %d) to %s", delivery.ID, delivery.AttemptCount, targetURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(delivery.Payload))
	if err != nil {
		s.scheduleRetry(ctx, delivery, nil, fmt.Sprintf("invalid request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", s.sharedSecret)
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.scheduleRetry(ctx, delivery, nil, fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		// The subscriber has told us to go away permanently
		log.Printf("🪝 Subscriber returned 410, deactivating subscription %s", delivery.SubscriptionID)
		if _, err := s.subscriptionsRepo.DeactivateSubscription(ctx, delivery.OrgID, delivery.SubscriptionID); err != nil {
			log.Printf("❌ Failed to deactivate subscription %s: %v", delivery.SubscriptionID, err)
		}
		status := resp.StatusCode
		if _, err := s.deliveriesRepo.MarkWebhookDeliveryAbandoned(ctx, delivery.ID, &status); err != nil {
			log.Printf("❌ Failed to mark delivery %s abandoned: %v", delivery.ID, err)
		}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if _, err := s.deliveriesRepo.MarkWebhookDeliveryDelivered(ctx, delivery.ID, resp.StatusCode); err != nil {
			log.Printf("❌ Failed to mark delivery %s delivered: %v", delivery.ID, err)
			return
		}
		if err := s.subscriptionsRepo.RecordSubscriptionTrigger(ctx, delivery.OrgID, delivery.SubscriptionID); err != nil {
			log.Printf("❌ Failed to record trigger for subscription %s: %v", delivery.SubscriptionID, err)
		}
		log.Printf("✅ Webhook %s delivered (status %d)", delivery.ID, resp.StatusCode)

	default:
		status := resp.StatusCode
		s.scheduleRetry(ctx, delivery, &status, fmt.Sprintf("received status %d", resp.StatusCode))
	}
}

// scheduleRetry either books the next attempt per the backoff schedule or,
// once attempts are exhausted, abandons the delivery and records the error
// on the subscription.
func (s *WebhookService) scheduleRetry(
	ctx context.Context,
	delivery *models.WebhookDelivery,
	responseStatus *int,
	lastError string,
) {
	if delivery.AttemptCount >= maxAttempts {
		log.Printf("⚠️ Webhook %s failed %d times, abandoning: %s", delivery.ID, delivery.AttemptCount, lastError)
		if _, err := s.deliveriesRepo.MarkWebhookDeliveryAbandoned(ctx, delivery.ID, responseStatus); err != nil {
			log.Printf("❌ Failed to mark delivery %s abandoned: %v", delivery.ID, err)
		}
		if err := s.subscriptionsRepo.RecordSubscriptionError(ctx, delivery.OrgID, delivery.SubscriptionID, lastError); err != nil {
			log.Printf("❌ Failed to record error for subscription %s: %v", delivery.SubscriptionID, err)
		}
		return
	}

	backoff := retrySchedule[delivery.AttemptCount-1]
	nextRetryAt := time.Now().Add(backoff)

	log.Printf("🪝 Webhook %s attempt %d failed (%s), retrying in %s", delivery.ID, delivery.AttemptCount, lastError, backoff)
	if _, err := s.deliveriesRepo.ScheduleWebhookDeliveryRetry(ctx, delivery.ID, nextRetryAt, responseStatus); err != nil {
		log.Printf("❌ Failed to schedule retry for delivery %s: %v", delivery.ID, err)
	}
}

// ProcessRetries picks up due pending deliveries and re-attempts them. A
// delivery whose subscription has gone inactive in the meantime is
// abandoned without an attempt.
func (s *WebhookService) ProcessRetries(ctx context.Context) error {
	due, err := s.deliveriesRepo.GetDueWebhookDeliveries(ctx, retryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to get due webhook deliveries: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	log.Printf("🪝 Processing %d due webhook deliveries", len(due))

	for _, delivery := range due {
		sub, err := s.subscriptionsRepo.GetSubscriptionByID(ctx, delivery.OrgID, delivery.SubscriptionID)
		if err != nil {
			log.Printf("❌ Failed to look up subscription %s: %v", delivery.SubscriptionID, err)
			continue
		}
		if sub == nil || !sub.IsActive {
			if _, err := s.deliveriesRepo.MarkWebhookDeliveryAbandoned(ctx, delivery.ID, nil); err != nil {
				log.Printf("❌ Failed to abandon delivery %s: %v", delivery.ID, err)
			}
			continue
		}

		d := delivery
		targetURL := sub.TargetURL
		s.pool.Submit(func() {
			s.attemptDelivery(context.Background(), d, targetURL)
		})
	}

	return nil
}

// RetrySchedule exposes the backoff schedule for tests and observability.
func RetrySchedule() []time.Duration {
	out := make([]time.Duration, len(retrySchedule))
	copy(out, retrySchedule)
	return out
}

// Stop drains the worker pool, waiting for in-flight deliveries.
func (s *WebhookService) Stop() {
	s.pool.StopWait()
}
