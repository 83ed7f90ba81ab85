package models

import (
	"time"
)

// DeliveryStatus is the state of a webhook delivery. delivered and abandoned
// are terminal; re-running a sweep over a terminal row is a no-op.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusAbandoned DeliveryStatus = "abandoned"
)

// WebhookDelivery is one event's delivery attempt history for one
// subscription. Attempts update the row in place - there is exactly one row
// per (subscription, event).
type WebhookDelivery struct {
	ID             string         `json:"id"              db:"id"`
	SubscriptionID string         `json:"subscription_id" db:"subscription_id"`
	OrgID          OrgID          `json:"organization_id" db:"organization_id"`
	EventID        string         `json:"event_id"        db:"event_id"`
	Payload        []byte         `json:"payload"         db:"payload"`
	Status         DeliveryStatus `json:"status"          db:"status"`
	AttemptCount   int            `json:"attempt_count"   db:"attempt_count"`
	ResponseStatus *int           `json:"response_status" db:"response_status"`
	NextRetryAt    *time.Time     `json:"next_retry_at"   db:"next_retry_at"`
	CreatedAt      time.Time      `json:"created_at"      db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"      db:"updated_at"`
}
