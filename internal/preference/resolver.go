package preference

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"crm-notification-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix = "notif:pref:"
	cacheTTL       = 5 * time.Minute
)

// Store is the persistence slice the resolver reads from. It never writes
// preferences.
type Store interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreference, error)
}

// Resolver computes per-channel delivery decisions from a user's preference,
// applying precedence: quiet hours > entity mute > global channel toggle >
// per-type override > default on.
type Resolver struct {
	store Store
	cache *redis.Client // optional read-through cache, nil disables
	now   func() time.Time
}

func NewResolver(store Store, cache *redis.Client) *Resolver {
	return &Resolver{store: store, cache: cache, now: time.Now}
}

// GetOrCreate loads the user's preference, consulting the redis cache first.
func (r *Resolver) GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, cacheKeyPrefix+userID).Bytes(); err == nil {
			var p domain.NotificationPreference
			if json.Unmarshal(raw, &p) == nil {
				return &p, nil
			}
		}
	}

	p, err := r.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if raw, err := json.Marshal(p); err == nil {
			if err := r.cache.Set(ctx, cacheKeyPrefix+userID, raw, cacheTTL).Err(); err != nil {
				log.Printf("[PREF] cache set failed for %s: %v", userID, err)
			}
		}
	}
	return p, nil
}

// Invalidate drops the cached preference after a write.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKeyPrefix+userID).Err(); err != nil {
		log.Printf("[PREF] cache invalidate failed for %s: %v", userID, err)
	}
}

// IsInQuietHours reports whether the user's local clock is inside the
// configured window. A window whose start is after its end wraps midnight.
func (r *Resolver) IsInQuietHours(ctx context.Context, userID string) (bool, error) {
	p, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	return r.inQuietHours(p), nil
}

func (r *Resolver) inQuietHours(p *domain.NotificationPreference) bool {
	if !p.QuietHoursEnabled {
		return false
	}
	start, okStart := ParseHHMM(p.QuietHoursStart)
	end, okEnd := ParseHHMM(p.QuietHoursEnd)
	if !okStart || !okEnd {
		return false
	}

	now := r.now()
	minutes := now.Hour()*60 + now.Minute()

	if start > end { // wraps midnight, e.g. 22:00-08:00
		return minutes >= start || minutes < end
	}
	return minutes >= start && minutes < end
}

// ParseHHMM converts "HH:mm" to minutes since midnight.
func ParseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// IsEntityMuted reports whether the user muted this specific entity.
func (r *Resolver) IsEntityMuted(ctx context.Context, userID, entityType, entityID string) (bool, error) {
	p, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.IsMutedEntity(entityType, entityID), nil
}

// ShouldNotify decides one channel for one event. The precedence order is a
// policy decision: quiet hours and entity mutes suppress every channel before
// toggles are consulted, and a global-off channel stays off regardless of any
// per-type override.
func (r *Resolver) ShouldNotify(ctx context.Context, userID string, t domain.EventType, ch domain.Channel, entityType, entityID string) (bool, error) {
	p, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	return r.shouldNotify(p, t, ch, entityType, entityID), nil
}

func (r *Resolver) shouldNotify(p *domain.NotificationPreference, t domain.EventType, ch domain.Channel, entityType, entityID string) bool {
	if r.inQuietHours(p) {
		return false
	}
	if p.IsMutedEntity(entityType, entityID) {
		return false
	}

	var global bool
	switch ch {
	case domain.ChannelEmail:
		global = p.EmailEnabled
	case domain.ChannelPush:
		global = p.PushEnabled
	case domain.ChannelInApp:
		global = p.InAppEnabled
	default:
		return false
	}
	if !global {
		return false
	}

	if override, ok := p.TypePreferences[t]; ok {
		switch ch {
		case domain.ChannelEmail:
			if override.Email != nil {
				return *override.Email
			}
		case domain.ChannelPush:
			if override.Push != nil {
				return *override.Push
			}
		case domain.ChannelInApp:
			if override.InApp != nil {
				return *override.InApp
			}
		}
	}
	return true
}

// GetEnabledChannels returns the subset of channels that should receive the
// event. Quiet hours and entity mutes short-circuit all three to empty.
func (r *Resolver) GetEnabledChannels(ctx context.Context, userID string, t domain.EventType, entityType, entityID string) ([]domain.Channel, error) {
	p, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return r.enabledChannels(p, t, entityType, entityID), nil
}

// EnabledChannelsFor is GetEnabledChannels for an already-loaded preference.
// The orchestrator uses it to avoid a second store round-trip per event.
func (r *Resolver) EnabledChannelsFor(p *domain.NotificationPreference, t domain.EventType, entityType, entityID string) []domain.Channel {
	return r.enabledChannels(p, t, entityType, entityID)
}

func (r *Resolver) enabledChannels(p *domain.NotificationPreference, t domain.EventType, entityType, entityID string) []domain.Channel {
	if r.inQuietHours(p) || p.IsMutedEntity(entityType, entityID) {
		return nil
	}
	var enabled []domain.Channel
	for _, ch := range domain.AllChannels {
		if r.shouldNotify(p, t, ch, entityType, entityID) {
			enabled = append(enabled, ch)
		}
	}
	return enabled
}
