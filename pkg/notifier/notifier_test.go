package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crm-notification-service/internal/domain"

	"github.com/stretchr/testify/assert"
)

type panickyInApp struct{}

func (panickyInApp) PushToUser(userID string, p *Payload) {
	panic("socket registry exploded")
}

type recordingPush struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *recordingPush) SendToAllDevices(ctx context.Context, userID, title, body string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

type recordingEmail struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingEmail) Enqueue(ctx context.Context, p *Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	pushSender := &recordingPush{err: errors.New("provider down")}
	emailSender := &recordingEmail{}
	n := NewNotifier(panickyInApp{}, pushSender, emailSender)

	payload := &Payload{ID: 1, UserID: "u-1", Title: "t", Message: "m"}

	// A panicking in-app channel and a failing push provider must not stop
	// the email enqueue, and nothing may propagate to the caller.
	assert.NotPanics(t, func() {
		n.Dispatch(context.Background(), payload, domain.AllChannels)
	})

	assert.Equal(t, 1, pushSender.calls)
	assert.Equal(t, 1, emailSender.calls)
}

func TestDispatchOnlyTouchesEnabledChannels(t *testing.T) {
	pushSender := &recordingPush{}
	emailSender := &recordingEmail{}
	n := NewNotifier(nil, pushSender, emailSender)

	n.Dispatch(context.Background(), &Payload{ID: 2, UserID: "u-1"}, []domain.Channel{domain.ChannelPush})

	assert.Equal(t, 1, pushSender.calls)
	assert.Equal(t, 0, emailSender.calls)
}

func TestPayloadFromNotification(t *testing.T) {
	n := &domain.Notification{
		ID:         9,
		UserID:     "u-1",
		EventType:  domain.CommentAdded,
		Title:      "New comment",
		Message:    "2 new comments",
		EntityType: "deal",
		EntityID:   "deal-1",
		GroupCount: 2,
	}
	p := PayloadFromNotification(n)
	assert.Equal(t, int64(9), p.ID)
	assert.Equal(t, domain.CommentAdded, p.EventType)
	assert.Equal(t, 2, p.GroupCount)
	assert.Equal(t, "deal-1", p.EntityID)
}
