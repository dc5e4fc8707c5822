package orchestrator

import (
	"context"
	"log"
	"time"

	"crm-notification-service/internal/domain"
	"crm-notification-service/internal/grouping"
	"crm-notification-service/pkg/notifier"

	"github.com/oklog/ulid/v2"
)

const dispatchTimeout = 15 * time.Second

// NotificationStore is the persistence slice the orchestrator writes through.
type NotificationStore interface {
	MergeOrCreateGrouped(ctx context.Context, n *domain.Notification, window time.Duration, composeMessage func(count int) string) (*domain.Notification, bool, error)
}

// PreferenceResolver supplies the delivery policy for an event's user.
type PreferenceResolver interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	EnabledChannelsFor(p *domain.NotificationPreference, t domain.EventType, entityType, entityID string) []domain.Channel
}

// Dispatcher fans a persisted notification out to the enabled channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, p *notifier.Payload, channels []domain.Channel)
}

// Orchestrator owns the end-to-end state transition for one incoming event:
// mute check, consolidation, persistence, channel resolution, dispatch.
type Orchestrator struct {
	store    NotificationStore
	prefs    PreferenceResolver
	groups   *grouping.Engine
	dispatch Dispatcher
	timeout  time.Duration
}

func New(store NotificationStore, prefs PreferenceResolver, groups *grouping.Engine, dispatch Dispatcher, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Orchestrator{
		store:    store,
		prefs:    prefs,
		groups:   groups,
		dispatch: dispatch,
		timeout:  timeout,
	}
}

// Notify is the single entry point producers call after their own transaction
// commits. A nil notification with a nil error means the event was suppressed
// (muted entity); suppression is routine, not a failure. A persistence error
// is fatal and nothing is dispatched.
func (o *Orchestrator) Notify(ctx context.Context, ev *domain.Event) (*domain.Notification, error) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}

	// The decision path (steps below through persistence) is bounded; an
	// event that cannot be persisted must not be dispatched, since clients
	// act on the notification id.
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	pref, err := o.prefs.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}

	// An entity mute suppresses the notification's existence, not merely its
	// channels, so it runs before any persistence.
	if ev.EntityType != "" && ev.EntityID != "" && pref.IsMutedEntity(ev.EntityType, ev.EntityID) {
		log.Printf("[ORCHESTRATOR] event %s suppressed: entity %s/%s muted for user %s",
			ev.ID, ev.EntityType, ev.EntityID, ev.UserID)
		return nil, nil
	}

	n := &domain.Notification{
		UserID:       ev.UserID,
		OwnerScopeID: ev.OwnerScopeID,
		EventType:    ev.Type,
		Title:        ev.Title,
		Message:      ev.Message,
		EntityType:   ev.EntityType,
		EntityID:     ev.EntityID,
		GroupCount:   1,
	}
	if pref.GroupingEnabled {
		n.GroupKey = o.groups.GenerateGroupKey(ev.Type, ev.EntityType, ev.EntityID)
	}

	window := time.Duration(grouping.ClampWindow(pref.GroupingWindowSeconds)) * time.Second
	saved, merged, err := o.store.MergeOrCreateGrouped(ctx, n, window, func(count int) string {
		return grouping.ComposeGroupedMessage(ev.Type, count)
	})
	if err != nil {
		return nil, err
	}
	if merged {
		log.Printf("[ORCHESTRATOR] event %s merged into notification %d (count=%d)", ev.ID, saved.ID, saved.GroupCount)
	}

	channels := o.prefs.EnabledChannelsFor(pref, ev.Type, ev.EntityType, ev.EntityID)
	if len(channels) == 0 {
		// Quiet hours or disabled channels: the row exists, nothing delivers.
		log.Printf("[ORCHESTRATOR] event %s persisted as %d with no enabled channels", ev.ID, saved.ID)
		return saved, nil
	}

	payload := notifier.PayloadFromNotification(saved)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[ORCHESTRATOR] panic recovered in dispatch: %v", r)
			}
		}()
		dctx, dcancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer dcancel()
		o.dispatch.Dispatch(dctx, payload, channels)
	}()

	return saved, nil
}
