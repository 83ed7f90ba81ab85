package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"flowbackend/middleware"
	"flowbackend/models"
	"flowbackend/ratelimit"
	"flowbackend/services"
)

// SessionResolver identifies the end user approving an authorization
// request. Sessions live outside this service; the default resolver trusts
// headers injected by the fronting session layer.
type SessionResolver func(r *http.Request) (userID string, organizationID models.OrgID, err error)

// HeaderSessionResolver reads the identity headers set by the session proxy.
func HeaderSessionResolver(r *http.Request) (string, models.OrgID, error) {
	userID := r.Header.Get("X-User-ID")
	orgID := r.Header.Get("X-Organization-ID")
	if userID == "" || orgID == "" {
		return "", "", fmt.Errorf("no authenticated session")
	}
	return userID, models.OrgID(orgID), nil
}

// OAuthHTTPHandler exposes the authorization server endpoints.
type OAuthHTTPHandler struct {
	oauthService services.OAuthService
	sessions     SessionResolver
}

func NewOAuthHTTPHandler(oauthService services.OAuthService, sessions SessionResolver) *OAuthHTTPHandler {
	if sessions == nil {
		sessions = HeaderSessionResolver
	}
	return &OAuthHTTPHandler{
		oauthService: oauthService,
		sessions:     sessions,
	}
}

// HandleAuthorize implements GET /oauth/authorize. Client and redirect URI
// problems are answered directly; everything after that point redirects back
// to the verified redirect_uri with either a code or an error.
func (h *OAuthHTTPHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔐 Authorization request received from %s", r.RemoteAddr)

	query := r.URL.Query()
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")
	state := query.Get("state")

	// Never redirect to an unverified URI
	client, err := h.oauthService.ValidateClient(r.Context(), clientID, redirectURI)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	if query.Get("response_type") != "code" {
		h.redirectError(w, r, redirectURI, state, "unsupported_response_type", "only response_type=code is supported")
		return
	}

	codeChallenge := query.Get("code_challenge")
	codeChallengeMethod := query.Get("code_challenge_method")
	if codeChallenge != "" {
		if codeChallengeMethod == "" {
			codeChallengeMethod = "plain"
		}
		if codeChallengeMethod != "S256" && codeChallengeMethod != "plain" {
			h.redirectError(w, r, redirectURI, state, models.OAuthErrInvalidRequest, "code_challenge_method must be S256 or plain")
			return
		}
	}

	userID, orgID, err := h.sessions(r)
	if err != nil {
		log.Printf("❌ No authenticated session for authorization request: %v", err)
		h.redirectError(w, r, redirectURI, state, "access_denied", "no authenticated session")
		return
	}

	var scopes []string
	if scope := query.Get("scope"); scope != "" {
		scopes = strings.Fields(scope)
	}

	authCode, err := h.oauthService.CreateAuthorizationCode(r.Context(), services.CreateAuthorizationCodeParams{
		ClientID:            client.ID,
		UserID:              userID,
		OrganizationID:      orgID,
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		State:               state,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	})
	if err != nil {
		log.Printf("❌ Failed to create authorization code: %v", err)
		h.redirectError(w, r, redirectURI, state, models.OAuthErrServerError, "failed to create authorization code")
		return
	}

	target, _ := url.Parse(redirectURI)
	params := target.Query()
	params.Set("code", authCode.Code)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()

	log.Printf("✅ Authorization code issued for client: %s", client.ID)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// HandleToken implements POST /oauth/token for both supported grants. Client
// credentials come from the form body or HTTP Basic auth.
func (h *OAuthHTTPHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔐 Token request received from %s", r.RemoteAddr)

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, models.NewOAuthError(models.OAuthErrInvalidRequest, "request body must be form-encoded"))
		return
	}

	clientID, clientSecret := h.clientCredentials(r)

	var pair *models.TokenPair
	var err error
	switch grantType := r.PostFormValue("grant_type"); grantType {
	case "authorization_code":
		pair, err = h.oauthService.ExchangeCodeForTokens(r.Context(), services.ExchangeCodeParams{
			Code:         r.PostFormValue("code"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  r.PostFormValue("redirect_uri"),
			CodeVerifier: r.PostFormValue("code_verifier"),
		})
	case "refresh_token":
		pair, err = h.oauthService.RefreshAccessToken(r.Context(), services.RefreshTokenParams{
			RefreshToken: r.PostFormValue("refresh_token"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
		})
	default:
		err = models.NewOAuthError("unsupported_grant_type",
			"grant_type must be authorization_code or refresh_token")
	}
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	// Token responses must not be cached
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSONResponse(w, http.StatusOK, pair)
}

// HandleRevoke implements POST /oauth/revoke (RFC 7009). Unknown tokens
// still yield success so callers cannot probe for live ones.
func (h *OAuthHTTPHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔐 Revocation request received from %s", r.RemoteAddr)

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(w, models.NewOAuthError(models.OAuthErrInvalidRequest, "request body must be form-encoded"))
		return
	}

	clientID, clientSecret := h.clientCredentials(r)
	err := h.oauthService.RevokeToken(r.Context(), services.RevokeTokenParams{
		Token:        r.PostFormValue("token"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

// clientCredentials pulls client_id/client_secret from the form body, falling
// back to HTTP Basic auth.
func (h *OAuthHTTPHandler) clientCredentials(r *http.Request) (string, string) {
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	if clientID == "" {
		if basicID, basicSecret, ok := r.BasicAuth(); ok {
			return basicID, basicSecret
		}
	}
	return clientID, clientSecret
}

// writeOAuthError maps service errors to RFC 6749 responses: OAuthError
// values keep their code with 400 (401 for invalid_client), anything else is
// an opaque server_error.
func (h *OAuthHTTPHandler) writeOAuthError(w http.ResponseWriter, err error) {
	var oauthErr *models.OAuthError
	if !errors.As(err, &oauthErr) {
		log.Printf("❌ OAuth endpoint internal error: %v", err)
		oauthErr = models.NewOAuthError(models.OAuthErrServerError, "internal server error")
		writeJSONResponse(w, http.StatusInternalServerError, oauthErr)
		return
	}

	log.Printf("❌ OAuth request rejected: %s", oauthErr.Code)
	statusCode := http.StatusBadRequest
	if oauthErr.Code == models.OAuthErrInvalidClient {
		statusCode = http.StatusUnauthorized
	}
	writeJSONResponse(w, statusCode, oauthErr)
}

// redirectError sends the error back to the client's verified redirect URI,
// preserving state, per RFC 6749 §4.1.2.1.
func (h *OAuthHTTPHandler) redirectError(
	w http.ResponseWriter,
	r *http.Request,
	redirectURI, state, code, description string,
) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		h.writeOAuthError(w, models.NewOAuthError(models.OAuthErrInvalidRequest, "redirect_uri is not a valid URL"))
		return
	}

	params := target.Query()
	params.Set("error", code)
	params.Set("error_description", description)
	if state != "" {
		params.Set("state", state)
	}
	target.RawQuery = params.Encode()

	log.Printf("❌ Authorization request rejected: %s", code)
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *OAuthHTTPHandler) SetupEndpoints(
	router *mux.Router,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
) {
	log.Printf("🚀 Registering OAuth endpoints")

	router.HandleFunc("/oauth/authorize",
		rateLimitMiddleware.WithRateLimit(ratelimit.ClassOAuth, h.HandleAuthorize)).Methods("GET")
	router.HandleFunc("/oauth/token",
		rateLimitMiddleware.WithRateLimit(ratelimit.ClassOAuth, h.HandleToken)).Methods("POST")
	router.HandleFunc("/oauth/revoke",
		rateLimitMiddleware.WithRateLimit(ratelimit.ClassOAuth, h.HandleRevoke)).Methods("POST")

	log.Printf("✅ OAuth endpoints registered")
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("❌ Failed to encode JSON response: %v", err)
	}
}
