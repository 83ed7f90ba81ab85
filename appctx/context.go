package appctx

import (
	"context"

	"flowbackend/models"
)

// Context key for storing the authenticated identity
type contextKey string

const AuthInfoContextKey contextKey = "auth_info"

// SetAuthInfo adds the authenticated identity to the request context
func SetAuthInfo(ctx context.Context, info *models.AuthInfo) context.Context {
	return context.WithValue(ctx, AuthInfoContextKey, info)
}

// GetAuthInfo extracts the authenticated identity from the request context
func GetAuthInfo(ctx context.Context) (*models.AuthInfo, bool) {
	info, ok := ctx.Value(AuthInfoContextKey).(*models.AuthInfo)
	return info, ok
}
