package models

import (
	"time"

	"github.com/lib/pq"
)

// FilterOperator selects how a subscription's filter tags are compared with
// the tags of the contact an event concerns.
type FilterOperator string

const (
	FilterOperatorAnyOf  FilterOperator = "any_of"
	FilterOperatorAllOf  FilterOperator = "all_of"
	FilterOperatorNoneOf FilterOperator = "none_of"
)

// IsValid reports whether the operator is one of the known values.
func (f FilterOperator) IsValid() bool {
	switch f {
	case FilterOperatorAnyOf, FilterOperatorAllOf, FilterOperatorNoneOf:
		return true
	}
	return false
}

// Subscription is a webhook subscription owned by an organization. It is
// deactivated manually by the owner or automatically when the target responds
// with 410 Gone.
type Subscription struct {
	ID              string         `json:"id"                db:"id"`
	OrgID           OrgID          `json:"organization_id"   db:"organization_id"`
	EventType       string         `json:"event_type"        db:"event_type"`
	TargetURL       string         `json:"target_url"        db:"target_url"`
	FilterTags      pq.StringArray `json:"filter_tags"       db:"filter_tags"`
	FilterOperator  FilterOperator `json:"filter_operator"   db:"filter_operator"`
	IsActive        bool           `json:"is_active"         db:"is_active"`
	TriggerCount    int            `json:"trigger_count"     db:"trigger_count"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at" db:"last_triggered_at"`
	ErrorCount      int            `json:"error_count"       db:"error_count"`
	LastError       *string        `json:"last_error"        db:"last_error"`
	CreatedAt       time.Time      `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"        db:"updated_at"`
}
