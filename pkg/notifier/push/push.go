package push

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"crm-notification-service/internal/domain"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// SubscriptionStore is the slice of persistence the sender needs. The sender
// owns deletion of endpoints the transport reports as permanently gone.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]*domain.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Sender delivers Web Push messages to every device a user registered.
type Sender struct {
	store           SubscriptionStore
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
}

func NewSender(store SubscriptionStore, vapidPublicKey, vapidPrivateKey, subscriber string) *Sender {
	return &Sender{
		store:           store,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
	}
}

type pushMessage struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// SendToAllDevices fans out to every registered endpoint concurrently. Nothing
// is reported back per device; endpoints answering 404/410 are pruned.
func (s *Sender) SendToAllDevices(ctx context.Context, userID, title, body string, data map[string]any) error {
	subs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	msg, err := json.Marshal(pushMessage{Title: title, Body: body, Data: data})
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *domain.PushSubscription) {
			defer wg.Done()
			s.sendOne(ctx, sub, msg)
		}(sub)
	}
	wg.Wait()
	return nil
}

func (s *Sender) sendOne(ctx context.Context, sub *domain.PushSubscription, msg []byte) {
	resp, err := webpush.SendNotificationWithContext(ctx, msg, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		log.Printf("[PUSH] send failed for user %s endpoint %s: %v", sub.UserID, truncate(sub.Endpoint), err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		log.Printf("[PUSH] pruning expired endpoint for user %s (status %d)", sub.UserID, resp.StatusCode)
		if err := s.store.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			log.Printf("[PUSH] failed to prune endpoint: %v", err)
		}
	}
}

func truncate(endpoint string) string {
	if len(endpoint) <= 48 {
		return endpoint
	}
	return endpoint[:48] + "..."
}
