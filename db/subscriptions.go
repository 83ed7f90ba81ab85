package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	dbtx "flowbackend/db/tx"
	"flowbackend/models"
)

type PostgresSubscriptionsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for subscriptions table
var subscriptionsColumns = []string{
	"id",
	"organization_id",
	"event_type",
	"target_url",
	"filter_tags",
	"filter_operator",
	"is_active",
	"trigger_count",
	"last_triggered_at",
	"error_count",
	"last_error",
	"created_at",
	"updated_at",
}

func NewPostgresSubscriptionsRepository(db *sqlx.DB, schema string) *PostgresSubscriptionsRepository {
	return &PostgresSubscriptionsRepository{db: db, schema: schema}
}

func (r *PostgresSubscriptionsRepository) CreateSubscription(
	ctx context.Context,
	sub *models.Subscription,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	columnsStr := strings.Join(subscriptionsColumns, ", ")
	returningStr := strings.Join(subscriptionsColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.subscriptions (%s)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, 0, NULL, 0, NULL, NOW(), NOW())
		RETURNING %s`, r.schema, columnsStr, returningStr)

	err := db.QueryRowxContext(
		ctx,
		query,
		sub.ID,
		sub.OrgID,
		sub.EventType,
		sub.TargetURL,
		sub.FilterTags,
		sub.FilterOperator,
	).StructScan(sub)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func (r *PostgresSubscriptionsRepository) GetSubscriptionByID(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) (*models.Subscription, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(subscriptionsColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.subscriptions
		WHERE organization_id = $1 AND id = $2`, returningStr, r.schema)

	sub := &models.Subscription{}
	err := db.QueryRowxContext(ctx, query, organizationID, subscriptionID).StructScan(sub)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Subscription not found
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

func (r *PostgresSubscriptionsRepository) GetActiveSubscriptions(
	ctx context.Context,
	organizationID models.OrgID,
	eventType string,
) ([]*models.Subscription, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(subscriptionsColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.subscriptions
		WHERE organization_id = $1 AND event_type = $2 AND is_active = TRUE`,
		returningStr, r.schema)

	subs := []*models.Subscription{}
	if err := db.SelectContext(ctx, &subs, query, organizationID, eventType); err != nil {
		return nil, fmt.Errorf("failed to get active subscriptions: %w", err)
	}

	return subs, nil
}

func (r *PostgresSubscriptionsRepository) ListSubscriptions(
	ctx context.Context,
	organizationID models.OrgID,
) ([]*models.Subscription, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(subscriptionsColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.subscriptions
		WHERE organization_id = $1
		ORDER BY created_at DESC`, returningStr, r.schema)

	subs := []*models.Subscription{}
	if err := db.SelectContext(ctx, &subs, query, organizationID); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return subs, nil
}

// DeactivateSubscription flips is_active off. Used both for manual
// unsubscription and the 410-driven path. Returns true if a row changed.
func (r *PostgresSubscriptionsRepository) DeactivateSubscription(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.subscriptions
		SET is_active = FALSE, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND is_active = TRUE`, r.schema)

	result, err := db.ExecContext(ctx, query, organizationID, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresSubscriptionsRepository) RecordSubscriptionTrigger(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.subscriptions
		SET trigger_count = trigger_count + 1, last_triggered_at = NOW(), updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`, r.schema)

	if _, err := db.ExecContext(ctx, query, organizationID, subscriptionID); err != nil {
		return fmt.Errorf("failed to record subscription trigger: %w", err)
	}

	return nil
}

func (r *PostgresSubscriptionsRepository) RecordSubscriptionError(
	ctx context.Context,
	organizationID models.OrgID,
	subscriptionID string,
	lastError string,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.subscriptions
		SET error_count = error_count + 1, last_error = $3, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`, r.schema)

	if _, err := db.ExecContext(ctx, query, organizationID, subscriptionID, lastError); err != nil {
		return fmt.Errorf("failed to record subscription error: %w", err)
	}

	return nil
}
