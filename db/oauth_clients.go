package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	dbtx "flowbackend/db/tx"
	"flowbackend/models"
)

type PostgresOAuthClientsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for oauth_clients table
var oauthClientsColumns = []string{
	"id",
	"secret_hash",
	"name",
	"redirect_uris",
	"is_active",
	"created_at",
	"updated_at",
}

func NewPostgresOAuthClientsRepository(db *sqlx.DB, schema string) *PostgresOAuthClientsRepository {
	return &PostgresOAuthClientsRepository{db: db, schema: schema}
}

func (r *PostgresOAuthClientsRepository) CreateOAuthClient(
	ctx context.Context,
	client *models.OAuthClient,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	columnsStr := strings.Join(oauthClientsColumns, ", ")
	returningStr := strings.Join(oauthClientsColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.oauth_clients (%s)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING %s`, r.schema, columnsStr, returningStr)

	err := db.QueryRowxContext(
		ctx,
		query,
		client.ID,
		client.SecretHash,
		client.Name,
		client.RedirectURIs,
		client.IsActive,
	).StructScan(client)
	if err != nil {
		return fmt.Errorf("failed to create oauth client: %w", err)
	}

	return nil
}

func (r *PostgresOAuthClientsRepository) GetOAuthClientByID(
	ctx context.Context,
	clientID string,
) (*models.OAuthClient, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(oauthClientsColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.oauth_clients
		WHERE id = $1`, returningStr, r.schema)

	client := &models.OAuthClient{}
	err := db.QueryRowxContext(ctx, query, clientID).StructScan(client)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Client not found
		}
		return nil, fmt.Errorf("failed to get oauth client: %w", err)
	}

	return client, nil
}

func (r *PostgresOAuthClientsRepository) ListOAuthClients(
	ctx context.Context,
) ([]*models.OAuthClient, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(oauthClientsColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.oauth_clients
		ORDER BY created_at DESC`, returningStr, r.schema)

	clients := []*models.OAuthClient{}
	if err := db.SelectContext(ctx, &clients, query); err != nil {
		return nil, fmt.Errorf("failed to list oauth clients: %w", err)
	}

	return clients, nil
}

// DeactivateOAuthClient flips is_active off. Returns true if a row changed.
func (r *PostgresOAuthClientsRepository) DeactivateOAuthClient(
	ctx context.Context,
	clientID string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.oauth_clients
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE`, r.schema)

	result, err := db.ExecContext(ctx, query, clientID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate oauth client: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
