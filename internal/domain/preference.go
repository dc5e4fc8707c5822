package domain

import "time"

const (
	// DefaultGroupingWindowSeconds is used when a user has no explicit window set.
	DefaultGroupingWindowSeconds = 300
	MinGroupingWindowSeconds     = 60
	MaxGroupingWindowSeconds     = 3600
)

// ChannelOverride narrows delivery for a single event type. A nil field means
// the global channel toggle governs that channel for the type.
type ChannelOverride struct {
	Email *bool `json:"email,omitempty"`
	Push  *bool `json:"push,omitempty"`
	InApp *bool `json:"in_app,omitempty"`
}

// MutedEntity is one domain object the user opted out of entirely.
type MutedEntity struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// NotificationPreference is the per-user delivery policy. Created lazily with
// defaults on first access.
type NotificationPreference struct {
	UserID                string
	EmailEnabled          bool
	PushEnabled           bool
	InAppEnabled          bool
	TypePreferences       map[EventType]ChannelOverride
	QuietHoursEnabled     bool
	QuietHoursStart       string // "HH:mm", 24h
	QuietHoursEnd         string // "HH:mm", may be earlier than start (wraps midnight)
	MutedEntities         []MutedEntity
	GroupingEnabled       bool
	GroupingWindowSeconds int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// DefaultPreference returns the policy applied to users who never saved one.
func DefaultPreference(userID string) *NotificationPreference {
	return &NotificationPreference{
		UserID:                userID,
		EmailEnabled:          true,
		PushEnabled:           true,
		InAppEnabled:          true,
		TypePreferences:       map[EventType]ChannelOverride{},
		GroupingEnabled:       true,
		GroupingWindowSeconds: DefaultGroupingWindowSeconds,
	}
}

// IsMutedEntity reports whether (entityType, entityID) is in the muted set.
func (p *NotificationPreference) IsMutedEntity(entityType, entityID string) bool {
	if entityType == "" || entityID == "" {
		return false
	}
	for _, m := range p.MutedEntities {
		if m.EntityType == entityType && m.EntityID == entityID {
			return true
		}
	}
	return false
}
