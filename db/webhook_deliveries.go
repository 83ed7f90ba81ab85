package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	dbtx "flowbackend/db/tx"
	"flowbackend/models"
)

type PostgresWebhookDeliveriesRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for webhook_deliveries table
var webhookDeliveriesColumns = []string{
	"id",
	"subscription_id",
	"organization_id",
	"event_id",
	"payload",
	"status",
	"attempt_count",
	"response_status",
	"next_retry_at",
	"created_at",
	"updated_at",
}

func NewPostgresWebhookDeliveriesRepository(db *sqlx.DB, schema string) *PostgresWebhookDeliveriesRepository {
	return &PostgresWebhookDeliveriesRepository{db: db, schema: schema}
}

func (r *PostgresWebhookDeliveriesRepository) CreateWebhookDelivery(
	ctx context.Context,
	delivery *models.WebhookDelivery,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	columnsStr := strings.Join(webhookDeliveriesColumns, ", ")
	returningStr := strings.Join(webhookDeliveriesColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.webhook_deliveries (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, NOW(), NOW())
		RETURNING %s`, r.schema, columnsStr, returningStr)

	err := db.QueryRowxContext(
		ctx,
		query,
		delivery.ID,
		delivery.SubscriptionID,
		delivery.OrgID,
		delivery.EventID,
		delivery.Payload,
		delivery.Status,
		delivery.AttemptCount,
	).StructScan(delivery)
	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}

	return nil
}

func (r *PostgresWebhookDeliveriesRepository) GetWebhookDeliveryByID(
	ctx context.Context,
	deliveryID string,
) (*models.WebhookDelivery, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(webhookDeliveriesColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.webhook_deliveries
		WHERE id = $1`, returningStr, r.schema)

	delivery := &models.WebhookDelivery{}
	err := db.QueryRowxContext(ctx, query, deliveryID).StructScan(delivery)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Delivery not found
		}
		return nil, fmt.Errorf("failed to get webhook delivery: %w", err)
	}

	return delivery, nil
}

// MarkWebhookDeliveryDelivered transitions pending -> delivered. The status
// guard makes the sweep idempotent: re-running over an already-terminal row
// changes nothing.
func (r *PostgresWebhookDeliveriesRepository) MarkWebhookDeliveryDelivered(
	ctx context.Context,
	deliveryID string,
	responseStatus int,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.webhook_deliveries
		SET status = $2, response_status = $3, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4`, r.schema)

	result, err := db.ExecContext(
		ctx, query, deliveryID,
		models.DeliveryStatusDelivered, responseStatus, models.DeliveryStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook delivery delivered: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MarkWebhookDeliveryAbandoned transitions pending -> abandoned.
func (r *PostgresWebhookDeliveriesRepository) MarkWebhookDeliveryAbandoned(
	ctx context.Context,
	deliveryID string,
	responseStatus *int,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.webhook_deliveries
		SET status = $2, response_status = $3, next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4`, r.schema)

	result, err := db.ExecContext(
		ctx, query, deliveryID,
		models.DeliveryStatusAbandoned, responseStatus, models.DeliveryStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook delivery abandoned: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ScheduleWebhookDeliveryRetry bumps attempt_count and sets next_retry_at,
// leaving the row pending for the sweep to pick up.
func (r *PostgresWebhookDeliveriesRepository) ScheduleWebhookDeliveryRetry(
	ctx context.Context,
	deliveryID string,
	nextRetryAt time.Time,
	responseStatus *int,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.webhook_deliveries
		SET attempt_count = attempt_count + 1, next_retry_at = $2, response_status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`, r.schema)

	result, err := db.ExecContext(
		ctx, query, deliveryID,
		nextRetryAt, responseStatus, models.DeliveryStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to schedule webhook delivery retry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetDueWebhookDeliveries selects pending deliveries whose retry time has
// arrived, oldest first, capped at limit.
func (r *PostgresWebhookDeliveriesRepository) GetDueWebhookDeliveries(
	ctx context.Context,
	limit int,
) ([]*models.WebhookDelivery, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(webhookDeliveriesColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.webhook_deliveries
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC
		LIMIT $2`, returningStr, r.schema)

	deliveries := []*models.WebhookDelivery{}
	if err := db.SelectContext(ctx, &deliveries, query, models.DeliveryStatusPending, limit); err != nil {
		return nil, fmt.Errorf("failed to get due webhook deliveries: %w", err)
	}

	return deliveries, nil
}
