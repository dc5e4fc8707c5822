package preference

import (
	"context"
	"testing"
	"time"

	"crm-notification-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	pref  *domain.NotificationPreference
	calls int
}

func (s *stubStore) GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	s.calls++
	return s.pref, nil
}

func boolPtr(b bool) *bool { return &b }

func resolverAt(pref *domain.NotificationPreference, hour, minute int) *Resolver {
	r := NewResolver(&stubStore{pref: pref}, nil)
	r.now = func() time.Time {
		return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
	}
	return r
}

func TestParseHHMM(t *testing.T) {
	m, ok := ParseHHMM("22:00")
	require.True(t, ok)
	assert.Equal(t, 22*60, m)

	m, ok = ParseHHMM("00:05")
	require.True(t, ok)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "22", "24:00", "12:60", "ab:cd", "9:5:1"} {
		_, ok := ParseHHMM(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestQuietHoursWrapAround(t *testing.T) {
	pref := domain.DefaultPreference("u-1")
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"

	cases := []struct {
		hour, minute int
		want         bool
	}{
		{23, 30, true},
		{5, 0, true},
		{12, 0, false},
		{22, 0, true},  // start is inclusive
		{8, 0, false},  // end is exclusive
		{21, 59, false},
	}
	for _, tc := range cases {
		r := resolverAt(pref, tc.hour, tc.minute)
		got, err := r.IsInQuietHours(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Equalf(t, tc.want, got, "at %02d:%02d", tc.hour, tc.minute)
	}
}

func TestQuietHoursSameDayWindow(t *testing.T) {
	pref := domain.DefaultPreference("u-1")
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "12:00"
	pref.QuietHoursEnd = "14:00"

	r := resolverAt(pref, 13, 0)
	got, err := r.IsInQuietHours(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, got)

	r = resolverAt(pref, 15, 0)
	got, err = r.IsInQuietHours(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestQuietHoursDisabledOrInvalid(t *testing.T) {
	pref := domain.DefaultPreference("u-1")
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"

	// Disabled flag wins even with valid bounds.
	r := resolverAt(pref, 23, 0)
	got, err := r.IsInQuietHours(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, got)

	// Enabled but missing a bound: treated as not in quiet hours.
	pref2 := domain.DefaultPreference("u-1")
	pref2.QuietHoursEnabled = true
	pref2.QuietHoursStart = "22:00"
	r = resolverAt(pref2, 23, 0)
	got, err = r.IsInQuietHours(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsEntityMuted(t *testing.T) {
	pref := domain.DefaultPreference("u-1")
	pref.MutedEntities = []domain.MutedEntity{{EntityType: "deal", EntityID: "deal-1"}}
	r := resolverAt(pref, 12, 0)

	got, err := r.IsEntityMuted(context.Background(), "u-1", "deal", "deal-1")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = r.IsEntityMuted(context.Background(), "u-1", "deal", "deal-2")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = r.IsEntityMuted(context.Background(), "u-1", "contact", "deal-1")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestShouldNotifyPrecedence(t *testing.T) {
	ctx := context.Background()

	// Quiet hours suppress every channel regardless of toggles.
	pref := domain.DefaultPreference("u-1")
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	r := resolverAt(pref, 23, 30)
	for _, ch := range domain.AllChannels {
		ok, err := r.ShouldNotify(ctx, "u-1", domain.DealCreated, ch, "", "")
		require.NoError(t, err)
		assert.Falsef(t, ok, "channel %s during quiet hours", ch)
	}

	// Entity mute suppresses every channel.
	pref = domain.DefaultPreference("u-1")
	pref.MutedEntities = []domain.MutedEntity{{EntityType: "deal", EntityID: "d-1"}}
	r = resolverAt(pref, 12, 0)
	for _, ch := range domain.AllChannels {
		ok, err := r.ShouldNotify(ctx, "u-1", domain.CommentAdded, ch, "deal", "d-1")
		require.NoError(t, err)
		assert.Falsef(t, ok, "channel %s for muted entity", ch)
	}

	// Global channel toggle off wins over a widening type override.
	pref = domain.DefaultPreference("u-1")
	pref.EmailEnabled = false
	pref.TypePreferences = map[domain.EventType]domain.ChannelOverride{
		domain.DealCreated: {Email: boolPtr(true)},
	}
	r = resolverAt(pref, 12, 0)
	ok, err := r.ShouldNotify(ctx, "u-1", domain.DealCreated, domain.ChannelEmail, "", "")
	require.NoError(t, err)
	assert.False(t, ok, "override must not widen past global-off")

	// A type override narrows a globally-on channel.
	pref = domain.DefaultPreference("u-1")
	pref.TypePreferences = map[domain.EventType]domain.ChannelOverride{
		domain.CommentAdded: {Push: boolPtr(false)},
	}
	r = resolverAt(pref, 12, 0)
	ok, err = r.ShouldNotify(ctx, "u-1", domain.CommentAdded, domain.ChannelPush, "", "")
	require.NoError(t, err)
	assert.False(t, ok)
	// Other channels of the same type stay governed by globals.
	ok, err = r.ShouldNotify(ctx, "u-1", domain.CommentAdded, domain.ChannelInApp, "", "")
	require.NoError(t, err)
	assert.True(t, ok)
	// Other types are untouched by the override.
	ok, err = r.ShouldNotify(ctx, "u-1", domain.DealCreated, domain.ChannelPush, "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShouldNotifyDeterminism(t *testing.T) {
	pref := domain.DefaultPreference("u-1")
	pref.EmailEnabled = false
	pref.TypePreferences = map[domain.EventType]domain.ChannelOverride{
		domain.DealCreated: {Push: boolPtr(false)},
	}
	r := resolverAt(pref, 12, 0)

	for _, ch := range domain.AllChannels {
		first, err := r.ShouldNotify(context.Background(), "u-1", domain.DealCreated, ch, "deal", "d-1")
		require.NoError(t, err)
		second, err := r.ShouldNotify(context.Background(), "u-1", domain.DealCreated, ch, "deal", "d-1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestGetEnabledChannels(t *testing.T) {
	ctx := context.Background()

	pref := domain.DefaultPreference("u-1")
	pref.EmailEnabled = false
	r := resolverAt(pref, 12, 0)

	channels, err := r.GetEnabledChannels(ctx, "u-1", domain.DealCreated, "", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Channel{domain.ChannelInApp, domain.ChannelPush}, channels)

	// Quiet hours short-circuit to empty.
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	r = resolverAt(pref, 23, 30)
	channels, err = r.GetEnabledChannels(ctx, "u-1", domain.DealCreated, "", "")
	require.NoError(t, err)
	assert.Empty(t, channels)
}
