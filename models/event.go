package models

// WebhookEvent is the envelope POSTed to subscribers.
type WebhookEvent struct {
	ID        string         `json:"id"`
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	OrgID     OrgID          `json:"organization_id"`
	Data      map[string]any `json:"data"`
}
