package models

import (
	"encoding/json"
	"time"
)

// Spot sources.
const (
	SourceAutomated = "automated"
	SourceUser      = "user"
	SourceDiscovery = "discovery"
)

// Spot statuses. Only approved spots reach the serving layer.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// Spot is the user-visible record projected from gold + venue, with
// curation state layered on top.
type Spot struct {
	ID             int64           `json:"id"`
	VenueID        *string         `json:"venue_id"` // nil for user-submitted
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	Lat            float64         `json:"lat"`
	Lng            float64         `json:"lng"`
	Area           string          `json:"area"`
	Source         string          `json:"source"`
	Status         string          `json:"status"`
	ManualOverride bool            `json:"manual_override"`
	PendingEdit    json.RawMessage `json:"pending_edit,omitempty"`
	PendingDelete  bool            `json:"pending_delete"`
	PhotoURL       *string         `json:"photo_url,omitempty"`
	SourceURL      *string         `json:"source_url,omitempty"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	PromotionTime  *string         `json:"promotion_time,omitempty"`
	Confidence     float64         `json:"confidence"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// VenueKey returns the venue id or "" for user-submitted spots.
func (s Spot) VenueKey() string {
	if s.VenueID == nil {
		return ""
	}
	return *s.VenueID
}

// HasPendingEdit reports whether an admin edit awaits a decision. While one
// is pending the automated path leaves title/description/type alone.
func (s Spot) HasPendingEdit() bool {
	return len(s.PendingEdit) > 0 && string(s.PendingEdit) != "null"
}

// SpotEdit is the shape stored in pending_edit.
type SpotEdit struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Type        *string `json:"type,omitempty"`
}
