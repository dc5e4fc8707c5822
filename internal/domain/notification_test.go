package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationActive(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	n := &Notification{}
	assert.True(t, n.Active(now))

	n = &Notification{IsMuted: true}
	assert.False(t, n.Active(now))

	n = &Notification{SnoozedUntil: &future}
	assert.False(t, n.Active(now))

	// An elapsed snooze no longer hides the notification.
	n = &Notification{SnoozedUntil: &past}
	assert.True(t, n.Active(now))

	// Snoozed-until exactly now counts as elapsed.
	n = &Notification{SnoozedUntil: &now}
	assert.True(t, n.Active(now))
}

func TestDefaultPreference(t *testing.T) {
	p := DefaultPreference("u-1")
	assert.True(t, p.EmailEnabled)
	assert.True(t, p.PushEnabled)
	assert.True(t, p.InAppEnabled)
	assert.True(t, p.GroupingEnabled)
	assert.Equal(t, DefaultGroupingWindowSeconds, p.GroupingWindowSeconds)
	assert.False(t, p.QuietHoursEnabled)
	assert.Empty(t, p.MutedEntities)
}
