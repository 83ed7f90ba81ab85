package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	dbtx "flowbackend/db/tx"
	"flowbackend/models"
)

type PostgresAuthorizationCodesRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for authorization_codes table
var authorizationCodesColumns = []string{
	"code",
	"client_id",
	"user_id",
	"organization_id",
	"redirect_uri",
	"scopes",
	"state",
	"code_challenge",
	"code_challenge_method",
	"expires_at",
	"used_at",
	"created_at",
}

func NewPostgresAuthorizationCodesRepository(db *sqlx.DB, schema string) *PostgresAuthorizationCodesRepository {
	return &PostgresAuthorizationCodesRepository{db: db, schema: schema}
}

func (r *PostgresAuthorizationCodesRepository) CreateAuthorizationCode(
	ctx context.Context,
	code *models.AuthorizationCode,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	columnsStr := strings.Join(authorizationCodesColumns, ", ")
	returningStr := strings.Join(authorizationCodesColumns, ", ")

	query := fmt.Sprintf(`
		INSERT INTO %s.authorization_codes (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NOW())
		RETURNING %s`, r.schema, columnsStr, returningStr)

	err := db.QueryRowxContext(
		ctx,
		query,
		code.Code,
		code.ClientID,
		code.UserID,
		code.OrgID,
		code.RedirectURI,
		code.Scopes,
		code.State,
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.ExpiresAt,
	).StructScan(code)
	if err != nil {
		return fmt.Errorf("failed to create authorization code: %w", err)
	}

	return nil
}

func (r *PostgresAuthorizationCodesRepository) GetAuthorizationCode(
	ctx context.Context,
	code string,
) (*models.AuthorizationCode, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(authorizationCodesColumns, ", ")

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.authorization_codes
		WHERE code = $1`, returningStr, r.schema)

	authCode := &models.AuthorizationCode{}
	err := db.QueryRowxContext(ctx, query, code).StructScan(authCode)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // Code not found
		}
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	return authCode, nil
}

// ConsumeAuthorizationCode marks the code used, but only if it is still
// unused. Returns true if this caller won the race - concurrent replays of
// the same code see zero rows affected and must fail with invalid_grant.
func (r *PostgresAuthorizationCodesRepository) ConsumeAuthorizationCode(
	ctx context.Context,
	code string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.authorization_codes
		SET used_at = NOW()
		WHERE code = $1 AND used_at IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// DeleteExpiredAuthorizationCodes removes codes past expiry. Used codes are
// kept until expiry so replay attempts remain distinguishable in the logs.
func (r *PostgresAuthorizationCodesRepository) DeleteExpiredAuthorizationCodes(
	ctx context.Context,
) (int64, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		DELETE FROM %s.authorization_codes
		WHERE expires_at < NOW()`, r.schema)

	result, err := db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
