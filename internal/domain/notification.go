package domain

import "time"

// EventType identifies the kind of domain event a notification was raised for.
type EventType string

const (
	DealCreated      EventType = "DEAL_CREATED"
	DealUpdated      EventType = "DEAL_UPDATED"
	DealStageChanged EventType = "DEAL_STAGE_CHANGED"
	ContactCreated   EventType = "CONTACT_CREATED"
	CommentAdded     EventType = "COMMENT_ADDED"
	ActivityAssigned EventType = "ACTIVITY_ASSIGNED"
	ActivityDueSoon  EventType = "ACTIVITY_DUE_SOON"
	Mention          EventType = "MENTION"
	SystemAlert      EventType = "SYSTEM_ALERT"
)

// Channel is a delivery transport for notifications.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// AllChannels in resolution order.
var AllChannels = []Channel{ChannelInApp, ChannelPush, ChannelEmail}

type Notification struct {
	ID           int64
	RequestID    string
	UserID       string
	OwnerScopeID string // tenant/company scope, always carried through to the store
	EventType    EventType
	Title        string
	Message      string
	EntityType   string
	EntityID     string
	GroupKey     *string
	GroupCount   int
	IsRead       bool
	IsMuted      bool
	SnoozedUntil *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the notification shows up in default listings.
func (n *Notification) Active(now time.Time) bool {
	if n.IsMuted {
		return false
	}
	return n.SnoozedUntil == nil || !n.SnoozedUntil.After(now)
}

// PushSubscription is one registered browser/device push endpoint.
// The push adapter deletes rows whose endpoint the transport reports as gone.
type PushSubscription struct {
	ID        int64
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
	CreatedAt time.Time
}
