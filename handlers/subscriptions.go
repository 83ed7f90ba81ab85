package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"flowbackend/appctx"
	"flowbackend/core"
	"flowbackend/middleware"
	"flowbackend/models"
	"flowbackend/ratelimit"
	"flowbackend/services"
)

// Scopes granted to API tokens.
const (
	ScopeActions       = "actions"
	ScopeSubscriptions = "subscriptions"
)

type SubscriptionRequest struct {
	EventType      string   `json:"event_type"`
	TargetURL      string   `json:"target_url"`
	FilterTags     []string `json:"filter_tags"`
	FilterOperator string   `json:"filter_operator"`
}

type SubscriptionsHTTPHandler struct {
	subscriptionsService services.SubscriptionsService
}

func NewSubscriptionsHTTPHandler(subscriptionsService services.SubscriptionsService) *SubscriptionsHTTPHandler {
	return &SubscriptionsHTTPHandler{subscriptionsService: subscriptionsService}
}

func (h *SubscriptionsHTTPHandler) HandleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Create subscription request received from %s", r.RemoteAddr)

	authInfo, ok := appctx.GetAuthInfo(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.subscriptionsService.CreateSubscription(r.Context(), authInfo.OrgID, services.CreateSubscriptionParams{
		EventType:      req.EventType,
		TargetURL:      req.TargetURL,
		FilterTags:     req.FilterTags,
		FilterOperator: models.FilterOperator(req.FilterOperator),
	})
	if err != nil {
		log.Printf("❌ Failed to create subscription: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSONResponse(w, http.StatusCreated, sub)
}

func (h *SubscriptionsHTTPHandler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 List subscriptions request received from %s", r.RemoteAddr)

	authInfo, ok := appctx.GetAuthInfo(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	subs, err := h.subscriptionsService.ListSubscriptions(r.Context(), authInfo.OrgID)
	if err != nil {
		log.Printf("❌ Failed to list subscriptions: %v", err)
		http.Error(w, "failed to list subscriptions", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, subs)
}

func (h *SubscriptionsHTTPHandler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 Get subscription request received from %s", r.RemoteAddr)

	authInfo, ok := appctx.GetAuthInfo(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	subscriptionID, ok := vars["id"]
	if !ok || !core.IsValidID(subscriptionID) {
		log.Printf("❌ Missing or invalid subscription ID in URL path")
		http.Error(w, "subscription ID is invalid", http.StatusBadRequest)
		return
	}

	maybeSub, err := h.subscriptionsService.GetSubscriptionByID(r.Context(), authInfo.OrgID, subscriptionID)
	if err != nil {
		log.Printf("❌ Failed to get subscription: %v", err)
		http.Error(w, "failed to get subscription", http.StatusInternalServerError)
		return
	}
	if !maybeSub.IsPresent() {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}

	writeJSONResponse(w, http.StatusOK, maybeSub.MustGet())
}

func (h *SubscriptionsHTTPHandler) HandleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	log.Printf("🗑️ Delete subscription request received from %s", r.RemoteAddr)

	authInfo, ok := appctx.GetAuthInfo(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	subscriptionID, ok := vars["id"]
	if !ok || !core.IsValidID(subscriptionID) {
		log.Printf("❌ Missing or invalid subscription ID in URL path")
		http.Error(w, "subscription ID is invalid", http.StatusBadRequest)
		return
	}

	if err := h.subscriptionsService.DeactivateSubscription(r.Context(), authInfo.OrgID, subscriptionID); err != nil {
		log.Printf("❌ Failed to deactivate subscription: %v", err)
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "subscription not found", http.StatusNotFound)
		} else {
			http.Error(w, "failed to deactivate subscription", http.StatusInternalServerError)
		}
		return
	}

	log.Printf("✅ Subscription deactivated: %s", subscriptionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionsHTTPHandler) SetupEndpoints(
	router *mux.Router,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	authMiddleware *middleware.AuthMiddleware,
) {
	log.Printf("🚀 Registering subscription API endpoints")

	protect := func(next http.HandlerFunc) http.HandlerFunc {
		return rateLimitMiddleware.WithRateLimit(ratelimit.ClassSubscribe,
			authMiddleware.WithAuth(
				authMiddleware.RequireScopes([]string{ScopeSubscriptions}, next)))
	}

	router.HandleFunc("/api/v1/subscriptions", protect(h.HandleCreateSubscription)).Methods("POST")
	router.HandleFunc("/api/v1/subscriptions", protect(h.HandleListSubscriptions)).Methods("GET")
	router.HandleFunc("/api/v1/subscriptions/{id}", protect(h.HandleGetSubscription)).Methods("GET")
	router.HandleFunc("/api/v1/subscriptions/{id}", protect(h.HandleDeleteSubscription)).Methods("DELETE")

	log.Printf("✅ Subscription API endpoints registered")
}
