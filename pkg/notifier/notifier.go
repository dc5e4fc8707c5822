package notifier

import (
	"context"
	"log"
	"sync"
	"time"

	"crm-notification-service/internal/domain"
)

// Payload is the channel-facing view of a persisted notification. Clients use
// the id for read/dismiss actions, so dispatch only happens after the row
// exists.
type Payload struct {
	ID         int64            `json:"id"`
	UserID     string           `json:"user_id"`
	EventType  domain.EventType `json:"event_type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	EntityType string           `json:"entity_type,omitempty"`
	EntityID   string           `json:"entity_id,omitempty"`
	GroupCount int              `json:"group_count"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func PayloadFromNotification(n *domain.Notification) *Payload {
	return &Payload{
		ID:         n.ID,
		UserID:     n.UserID,
		EventType:  n.EventType,
		Title:      n.Title,
		Message:    n.Message,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		GroupCount: n.GroupCount,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}
}

// InAppSender fans a payload out to the user's connected sessions.
// Fire-and-forget, no acknowledgment.
type InAppSender interface {
	PushToUser(userID string, p *Payload)
}

// PushSender fans out to all of the user's registered device endpoints.
type PushSender interface {
	SendToAllDevices(ctx context.Context, userID, title, body string, data map[string]any) error
}

// EmailSender accepts a notification-shaped payload; queuing and retry are the
// adapter's concern.
type EmailSender interface {
	Enqueue(ctx context.Context, p *Payload) error
}

// Notifier holds the channel adapters and dispatches to the enabled subset.
type Notifier struct {
	InApp InAppSender
	Push  PushSender
	Email EmailSender
}

func NewNotifier(inApp InAppSender, push PushSender, email EmailSender) *Notifier {
	return &Notifier{InApp: inApp, Push: push, Email: email}
}

// Dispatch sends the payload to each enabled channel in its own goroutine.
// A slow or failing channel never delays or cancels the others, and no error
// reaches the caller.
func (n *Notifier) Dispatch(ctx context.Context, p *Payload, channels []domain.Channel) {
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[NOTIFIER] panic recovered in %s dispatch: %v", ch, r)
				}
			}()
			n.dispatchOne(ctx, p, ch)
		}(ch)
	}
	wg.Wait()
}

func (n *Notifier) dispatchOne(ctx context.Context, p *Payload, ch domain.Channel) {
	log.Printf("[NOTIFIER] dispatching notification %d to %s for user %s", p.ID, ch, p.UserID)

	switch ch {
	case domain.ChannelInApp:
		if n.InApp != nil {
			n.InApp.PushToUser(p.UserID, p)
		}
	case domain.ChannelPush:
		if n.Push != nil {
			data := map[string]any{
				"notification_id": p.ID,
				"event_type":      p.EventType,
				"entity_type":     p.EntityType,
				"entity_id":       p.EntityID,
			}
			if err := n.Push.SendToAllDevices(ctx, p.UserID, p.Title, p.Message, data); err != nil {
				log.Printf("[NOTIFIER] push dispatch failed for user %s: %v", p.UserID, err)
			}
		}
	case domain.ChannelEmail:
		if n.Email != nil {
			if err := n.Email.Enqueue(ctx, p); err != nil {
				log.Printf("[NOTIFIER] email enqueue failed for user %s: %v", p.UserID, err)
			}
		}
	}
}
