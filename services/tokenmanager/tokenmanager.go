package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"flowbackend/models"
)

const (
	// AccessTokenTTL is the lifetime of issued JWT access tokens.
	AccessTokenTTL = time.Hour

	// bcrypt cost for client secrets
	secretHashCost = 10
)

// ErrTokenExpired is returned by VerifyAccessToken for structurally valid but
// expired tokens, so callers can report token_expired instead of invalid_token.
var ErrTokenExpired = jwt.ErrTokenExpired

// RevocationStore looks up whether an issued access token has been revoked,
// keyed by jti.
type RevocationStore interface {
	IsAccessTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// TokenManager implements the cryptographic primitives of the authorization
// server. It holds the HMAC signing secret and the revocation store.
type TokenManager struct {
	jwtSecret   []byte
	issuer      string
	revocations RevocationStore
}

func NewTokenManager(jwtSecret, issuer string, revocations RevocationStore) *TokenManager {
	return &TokenManager{
		jwtSecret:   []byte(jwtSecret),
		issuer:      issuer,
		revocations: revocations,
	}
}

// accessTokenClaims is the JWT claim set: {sub, org, scope, jti, iat, exp, iss, aud}.
type accessTokenClaims struct {
	Org   string `json:"org"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateSecureToken returns numBytes of cryptographic randomness,
// hex-encoded. Used for refresh tokens (48 bytes) and authorization codes
// (32 bytes).
func (m *TokenManager) GenerateSecureToken(numBytes int) (string, error) {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest of a token. Hashes are the only
// form in which raw secrets rest in the datastore.
func (m *TokenManager) HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateAccessToken mints an HMAC-signed JWT for the given identity and
// scope set. Returns the signed token and its expiry.
func (m *TokenManager) GenerateAccessToken(
	userID string,
	organizationID models.OrgID,
	scopes []string,
	clientName, tokenID string,
) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(AccessTokenTTL)

	claims := accessTokenClaims{
		Org:   organizationID.String(),
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{clientName},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyAccessToken verifies signature, issuer and expiry. It fails closed:
// any problem yields (nil, err), with ErrTokenExpired distinguishing expiry.
func (m *TokenManager) VerifyAccessToken(tokenString string) (*models.AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		&accessTokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Reject anything but HMAC to prevent algorithm confusion
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.jwtSecret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := parsed.Claims.(*accessTokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	clientName := ""
	if len(claims.Audience) > 0 {
		clientName = claims.Audience[0]
	}

	result := &models.AccessTokenClaims{
		UserID:     claims.Subject,
		OrgID:      models.OrgID(claims.Org),
		Scopes:     strings.Fields(claims.Scope),
		TokenID:    claims.ID,
		ClientName: clientName,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	return result, nil
}

// IsTokenRevoked checks the revocation store for the given jti. Fail-secure:
// a datastore error reports the token as revoked.
func (m *TokenManager) IsTokenRevoked(ctx context.Context, tokenID string) bool {
	revoked, err := m.revocations.IsAccessTokenRevoked(ctx, tokenID)
	if err != nil {
		log.Printf("❌ Revocation check failed, treating token as revoked: %v", err)
		return true
	}
	return revoked
}

// VerifyCodeChallenge checks a PKCE verifier against the stored challenge.
// S256: base64url(SHA256(verifier)) must equal the challenge. plain (or no
// method, per RFC 7636): exact equality. Unknown methods fail.
func (m *TokenManager) VerifyCodeChallenge(verifier, challenge, method string) bool {
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case "plain", "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}

// HashClientSecret hashes a client secret with bcrypt.
func (m *TokenManager) HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), secretHashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// VerifyClientSecret checks a client secret against its bcrypt hash.
func (m *TokenManager) VerifyClientSecret(secret, secretHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)) == nil
}
