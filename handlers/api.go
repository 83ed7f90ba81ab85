package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"flowbackend/appctx"
	"flowbackend/core"
	"flowbackend/middleware"
	"flowbackend/ratelimit"
	"flowbackend/services"
)

type ContactRequest struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Tags  []string `json:"tags"`
}

type ContactResponse struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Email                 string   `json:"email"`
	Tags                  []string `json:"tags"`
	CreatedAt             string   `json:"created_at"`
	SubscriptionsNotified int      `json:"subscriptions_notified"`
}

// ContactsHTTPHandler is the sample protected resource. It stands in for the
// business domain: a contact creation that emits a domain event through the
// webhook pipeline.
type ContactsHTTPHandler struct {
	eventsService services.EventsService
}

func NewContactsHTTPHandler(eventsService services.EventsService) *ContactsHTTPHandler {
	return &ContactsHTTPHandler{eventsService: eventsService}
}

func (h *ContactsHTTPHandler) HandleCreateContact(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Create contact request received from %s", r.RemoteAddr)

	authInfo, ok := appctx.GetAuthInfo(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" && req.Email == "" {
		http.Error(w, "name or email is required", http.StatusBadRequest)
		return
	}

	contact := ContactResponse{
		ID:        core.NewID("ct"),
		Name:      req.Name,
		Email:     req.Email,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}

	triggered, err := h.eventsService.Emit(r.Context(), authInfo.OrgID, "contact.created", map[string]any{
		"contact_id": contact.ID,
		"name":       contact.Name,
		"email":      contact.Email,
		"tags":       contact.Tags,
	}, req.Tags)
	if err != nil {
		log.Printf("❌ Failed to emit contact.created event: %v", err)
		http.Error(w, "failed to emit event", http.StatusInternalServerError)
		return
	}
	contact.SubscriptionsNotified = triggered

	writeJSONResponse(w, http.StatusCreated, contact)
}

func (h *ContactsHTTPHandler) SetupEndpoints(
	router *mux.Router,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	authMiddleware *middleware.AuthMiddleware,
) {
	log.Printf("🚀 Registering contacts API endpoints")

	router.HandleFunc("/api/v1/contacts",
		rateLimitMiddleware.WithRateLimit(ratelimit.ClassActions,
			authMiddleware.WithAuth(
				authMiddleware.RequireScopes([]string{ScopeActions}, h.HandleCreateContact)))).
		Methods("POST")

	log.Printf("✅ Contacts API endpoints registered")
}
