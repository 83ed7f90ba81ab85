package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	dbtx "flowbackend/db/tx"
	"flowbackend/models"
)

type PostgresTokensRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for access_tokens table
var accessTokensColumns = []string{
	"id",
	"token_hash",
	"client_id",
	"user_id",
	"organization_id",
	"scopes",
	"expires_at",
	"revoked_at",
	"created_at",
}

// Column names for refresh_tokens table
var refreshTokensColumns = []string{
	"token_hash",
	"access_token_id",
	"client_id",
	"user_id",
	"organization_id",
	"scopes",
	"expires_at",
	"used_at",
	"revoked_at",
	"created_at",
}

func NewPostgresTokensRepository(db *sqlx.DB, schema string) *PostgresTokensRepository {
	return &PostgresTokensRepository{db: db, schema: schema}
}

func (r *PostgresTokensRepository) CreateAccessToken(
	ctx context.Context,
	token *models.AccessToken,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	columnsStr := strings.Join(accessTokensColumns, ", ")
	returningStr := strings.Join(accessTokensColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.access_tokens (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NOW())
		RETURNING %s`, r.schema, columnsStr, returningStr)

	err := db.QueryRowxContext(
		ctx,
		query,
		token.ID,
		token.TokenHash,
		token.ClientID,
		token.UserID,
		token.OrgID,
		token.Scopes,
		token.ExpiresAt,
	).StructScan(token)
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}

	return nil
}

func (r *PostgresTokensRepository) CreateRefreshToken(
	ctx context.Context,
	token *models.RefreshToken,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	columnsStr := strings.Join(refreshTokensColumns, ", ")
	returningStr := strings.Join(refreshTokensColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.refresh_tokens (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, NOW())
		RETURNING %s`, r.schema, columnsStr, returningStr)

	err := db.QueryRowxContext(
		ctx,
		query,
		token.TokenHash,
		token.AccessTokenID,
		token.ClientID,
		token.UserID,
		token.OrgID,
		token.Scopes,
		token.ExpiresAt,
	).StructScan(token)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}

	return nil
}

func (r *PostgresTokensRepository) GetAccessTokenByID(
	ctx context.Context,
	tokenID string,
) (*models.AccessToken, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(accessTokensColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.access_tokens
		WHERE id = $1`, returningStr, r.schema)

	token := &models.AccessToken{}
	err := db.QueryRowxContext(ctx, query, tokenID).StructScan(token)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Token not found
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return token, nil
}

func (r *PostgresTokensRepository) GetAccessTokenByHash(
	ctx context.Context,
	tokenHash string,
) (*models.AccessToken, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(accessTokensColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.access_tokens
		WHERE token_hash = $1`, returningStr, r.schema)

	token := &models.AccessToken{}
	err := db.QueryRowxContext(ctx, query, tokenHash).StructScan(token)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Token not found
		}
		return nil, fmt.Errorf("failed to get access token by hash: %w", err)
	}

	return token, nil
}

func (r *PostgresTokensRepository) GetRefreshTokenByHash(
	ctx context.Context,
	tokenHash string,
) (*models.RefreshToken, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(refreshTokensColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.refresh_tokens
		WHERE token_hash = $1`, returningStr, r.schema)

	token := &models.RefreshToken{}
	err := db.QueryRowxContext(ctx, query, tokenHash).StructScan(token)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Token not found
		}
		return nil, fmt.Errorf("failed to get refresh token by hash: %w", err)
	}

	return token, nil
}

// IsAccessTokenRevoked reports whether the access token row with the given
// jti has been revoked. A missing row counts as revoked - a token we never
// issued must not pass the check.
func (r *PostgresTokensRepository) IsAccessTokenRevoked(
	ctx context.Context,
	tokenID string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT revoked_at IS NOT NULL
		FROM %s.access_tokens
		WHERE id = $1`, r.schema)

	var revoked bool
	err := db.GetContext(ctx, &revoked, query, tokenID)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return true, nil // Unknown token is treated as revoked
		}
		return true, fmt.Errorf("failed to check access token revocation: %w", err)
	}

	return revoked, nil
}

func (r *PostgresTokensRepository) RevokeAccessToken(
	ctx context.Context,
	tokenID string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.access_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke access token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresTokensRepository) RevokeRefreshTokenByHash(
	ctx context.Context,
	tokenHash string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresTokensRepository) RevokeRefreshTokenByAccessTokenID(
	ctx context.Context,
	accessTokenID string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.refresh_tokens
		SET revoked_at = NOW()
		WHERE access_token_id = $1 AND revoked_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, accessTokenID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token by access token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ConsumeRefreshToken marks the refresh token used, but only if it is still
// unused and unrevoked. Returns true if this caller won the race - a
// previously rotated-out token sees zero rows affected.
func (r *PostgresTokensRepository) ConsumeRefreshToken(
	ctx context.Context,
	tokenHash string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.refresh_tokens
		SET used_at = NOW()
		WHERE token_hash = $1 AND used_at IS NULL AND revoked_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
