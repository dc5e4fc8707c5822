package usecase

import (
	"context"
	"time"

	"crm-notification-service/internal/domain"
	"crm-notification-service/internal/preference"
	"crm-notification-service/internal/repository"
	"crm-notification-service/pkg/xerrors"
)

// NotificationUsecase backs the consumer-facing API: listing, read/snooze/mute
// state, preferences and push subscriptions. Event ingestion lives in the
// orchestrator, not here.
type NotificationUsecase struct {
	repo     repository.NotificationRepository
	prefRepo repository.PreferenceRepository
	pushRepo repository.PushSubscriptionRepository
	resolver *preference.Resolver
}

func NewNotificationUsecase(
	repo repository.NotificationRepository,
	prefRepo repository.PreferenceRepository,
	pushRepo repository.PushSubscriptionRepository,
	resolver *preference.Resolver,
) *NotificationUsecase {
	return &NotificationUsecase{
		repo:     repo,
		prefRepo: prefRepo,
		pushRepo: pushRepo,
		resolver: resolver,
	}
}

// -----------------------------
// Notifications
// -----------------------------

func (uc *NotificationUsecase) List(ctx context.Context, scopeID, userID string, limit, offset int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return uc.repo.ListByUser(ctx, scopeID, userID, limit, offset)
}

func (uc *NotificationUsecase) ListUnread(ctx context.Context, scopeID, userID string, limit, offset int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return uc.repo.ListUnread(ctx, scopeID, userID, limit, offset)
}

func (uc *NotificationUsecase) CountUnread(ctx context.Context, scopeID, userID string) (int, error) {
	return uc.repo.CountUnread(ctx, scopeID, userID)
}

func (uc *NotificationUsecase) MarkRead(ctx context.Context, scopeID, userID string, id int64) error {
	if id <= 0 {
		return xerrors.ErrInvalidInput
	}
	return uc.repo.MarkRead(ctx, scopeID, userID, id)
}

func (uc *NotificationUsecase) MarkAllRead(ctx context.Context, scopeID, userID string) error {
	return uc.repo.MarkAllRead(ctx, scopeID, userID)
}

func (uc *NotificationUsecase) Snooze(ctx context.Context, scopeID, userID string, id int64, until time.Time) error {
	if id <= 0 || until.Before(time.Now()) {
		return xerrors.ErrInvalidInput
	}
	return uc.repo.Snooze(ctx, scopeID, userID, id, until)
}

func (uc *NotificationUsecase) SetMuted(ctx context.Context, scopeID, userID string, id int64, muted bool) error {
	if id <= 0 {
		return xerrors.ErrInvalidInput
	}
	return uc.repo.SetMuted(ctx, scopeID, userID, id, muted)
}

func (uc *NotificationUsecase) Delete(ctx context.Context, scopeID, userID string, id int64) error {
	if id <= 0 {
		return xerrors.ErrInvalidInput
	}
	return uc.repo.Delete(ctx, scopeID, userID, id)
}

// -----------------------------
// Preferences
// -----------------------------

func (uc *NotificationUsecase) GetPreference(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	return uc.prefRepo.GetOrCreate(ctx, userID)
}

// UpdatePreference validates and persists the policy, then drops the resolver
// cache. Quiet-hours format and the grouping window are rejected here, at
// write time; only already-stored window values get clamped on read.
func (uc *NotificationUsecase) UpdatePreference(ctx context.Context, p *domain.NotificationPreference) (*domain.NotificationPreference, error) {
	if p.QuietHoursEnabled {
		if _, ok := preference.ParseHHMM(p.QuietHoursStart); !ok {
			return nil, xerrors.ErrInvalidQuietHours
		}
		if _, ok := preference.ParseHHMM(p.QuietHoursEnd); !ok {
			return nil, xerrors.ErrInvalidQuietHours
		}
	}
	if p.GroupingWindowSeconds != 0 &&
		(p.GroupingWindowSeconds < domain.MinGroupingWindowSeconds ||
			p.GroupingWindowSeconds > domain.MaxGroupingWindowSeconds) {
		return nil, xerrors.ErrInvalidGroupingWindow
	}
	if p.GroupingWindowSeconds == 0 {
		p.GroupingWindowSeconds = domain.DefaultGroupingWindowSeconds
	}

	// Ensure the row exists before the update.
	if _, err := uc.prefRepo.GetOrCreate(ctx, p.UserID); err != nil {
		return nil, err
	}

	updated, err := uc.prefRepo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	uc.resolver.Invalidate(ctx, p.UserID)
	return updated, nil
}

// MuteEntity adds one entity to the muted set.
func (uc *NotificationUsecase) MuteEntity(ctx context.Context, userID, entityType, entityID string) (*domain.NotificationPreference, error) {
	if entityType == "" || entityID == "" {
		return nil, xerrors.ErrInvalidInput
	}
	p, err := uc.prefRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.IsMutedEntity(entityType, entityID) {
		return p, nil
	}
	p.MutedEntities = append(p.MutedEntities, domain.MutedEntity{EntityType: entityType, EntityID: entityID})
	updated, err := uc.prefRepo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	uc.resolver.Invalidate(ctx, userID)
	return updated, nil
}

// UnmuteEntity removes one entity from the muted set.
func (uc *NotificationUsecase) UnmuteEntity(ctx context.Context, userID, entityType, entityID string) (*domain.NotificationPreference, error) {
	p, err := uc.prefRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	kept := p.MutedEntities[:0]
	for _, m := range p.MutedEntities {
		if m.EntityType != entityType || m.EntityID != entityID {
			kept = append(kept, m)
		}
	}
	p.MutedEntities = kept
	updated, err := uc.prefRepo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	uc.resolver.Invalidate(ctx, userID)
	return updated, nil
}

// -----------------------------
// Push subscriptions
// -----------------------------

func (uc *NotificationUsecase) RegisterPushSubscription(ctx context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error) {
	if s.Endpoint == "" {
		return nil, xerrors.ErrEndpointRequired
	}
	if s.P256dh == "" || s.Auth == "" {
		return nil, xerrors.ErrInvalidInput
	}
	return uc.pushRepo.Save(ctx, s)
}

func (uc *NotificationUsecase) UnregisterPushSubscription(ctx context.Context, userID, endpoint string) error {
	if endpoint == "" {
		return xerrors.ErrEndpointRequired
	}
	return uc.pushRepo.DeleteByUserEndpoint(ctx, userID, endpoint)
}
