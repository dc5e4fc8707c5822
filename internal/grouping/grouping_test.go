package grouping

import (
	"context"
	"testing"
	"time"

	"crm-notification-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	lastSince time.Time
	result    *domain.Notification
	err       error
}

func (s *stubStore) FindMostRecentByGroupKey(ctx context.Context, scopeID, userID, groupKey string, since time.Time) (*domain.Notification, error) {
	s.lastSince = since
	return s.result, s.err
}

func TestIsGroupable(t *testing.T) {
	e := NewEngine(nil)

	assert.True(t, e.IsGroupable(domain.DealCreated))
	assert.True(t, e.IsGroupable(domain.DealUpdated))
	assert.True(t, e.IsGroupable(domain.ContactCreated))
	assert.True(t, e.IsGroupable(domain.CommentAdded))

	// Assignment, due-soon and system events always surface individually.
	assert.False(t, e.IsGroupable(domain.ActivityAssigned))
	assert.False(t, e.IsGroupable(domain.ActivityDueSoon))
	assert.False(t, e.IsGroupable(domain.Mention))
	assert.False(t, e.IsGroupable(domain.SystemAlert))
}

func TestGenerateGroupKey(t *testing.T) {
	e := NewEngine(nil)

	key := e.GenerateGroupKey(domain.CommentAdded, "deal", "deal-1")
	require.NotNil(t, key)
	assert.Equal(t, "COMMENT_ADDED:deal:deal-1", *key)

	key = e.GenerateGroupKey(domain.DealCreated, "", "")
	require.NotNil(t, key)
	assert.Equal(t, "DEAL_CREATED:GENERAL", *key)

	// Half-specified entities fall back to the type-wide key.
	key = e.GenerateGroupKey(domain.DealCreated, "deal", "")
	require.NotNil(t, key)
	assert.Equal(t, "DEAL_CREATED:GENERAL", *key)

	assert.Nil(t, e.GenerateGroupKey(domain.ActivityDueSoon, "activity", "act-9"))
}

func TestClampWindow(t *testing.T) {
	assert.Equal(t, 60, ClampWindow(10))
	assert.Equal(t, 3600, ClampWindow(10000))
	assert.Equal(t, 300, ClampWindow(0))
	assert.Equal(t, 300, ClampWindow(-5))
	assert.Equal(t, 60, ClampWindow(60))
	assert.Equal(t, 3600, ClampWindow(3600))
	assert.Equal(t, 900, ClampWindow(900))
}

func TestComposeGroupedMessage(t *testing.T) {
	assert.Equal(t, "3 new deals created", ComposeGroupedMessage(domain.DealCreated, 3))
	assert.Equal(t, "2 new comments", ComposeGroupedMessage(domain.CommentAdded, 2))
	assert.Equal(t, "5 new contacts added", ComposeGroupedMessage(domain.ContactCreated, 5))
	assert.Equal(t, "4 new notifications", ComposeGroupedMessage(domain.Mention, 4))
}

func TestFindGroupableWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &stubStore{result: &domain.Notification{ID: 7}}
	e := NewEngine(store)
	e.now = func() time.Time { return now }

	got, err := e.FindGroupable(context.Background(), "scope-1", "u-1", "DEAL_CREATED:GENERAL", 600)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)

	// The cutoff is now - window; the repository query compares inclusively.
	assert.Equal(t, now.Add(-600*time.Second), store.lastSince)
}

func TestFindGroupableClampsWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store := &stubStore{}
	e := NewEngine(store)
	e.now = func() time.Time { return now }

	_, err := e.FindGroupable(context.Background(), "scope-1", "u-1", "k", 5)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-60*time.Second), store.lastSince)
}
