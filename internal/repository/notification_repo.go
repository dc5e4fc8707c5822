package repository

import (
	"context"
	"errors"
	"time"

	"crm-notification-service/internal/domain"
	"crm-notification-service/pkg/xerrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository aggregates all notification row operations. Every call
// is keyed by owner scope + user; the repository never infers the scope.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	// MergeOrCreateGrouped finds the most recent notification with n.GroupKey
	// inside the window and increments it, or inserts a fresh row. The whole
	// find-and-merge-or-create sequence is atomic per (user, group key).
	// composeMessage regenerates the message for the merged count.
	MergeOrCreateGrouped(ctx context.Context, n *domain.Notification, window time.Duration, composeMessage func(count int) string) (*domain.Notification, bool, error)
	FindMostRecentByGroupKey(ctx context.Context, scopeID, userID, groupKey string, since time.Time) (*domain.Notification, error)

	GetByID(ctx context.Context, scopeID, userID string, id int64) (*domain.Notification, error)
	ListByUser(ctx context.Context, scopeID, userID string, limit, offset int) ([]*domain.Notification, error)
	ListUnread(ctx context.Context, scopeID, userID string, limit, offset int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, scopeID, userID string) (int, error)
	MarkRead(ctx context.Context, scopeID, userID string, id int64) error
	MarkAllRead(ctx context.Context, scopeID, userID string) error
	Snooze(ctx context.Context, scopeID, userID string, id int64, until time.Time) error
	SetMuted(ctx context.Context, scopeID, userID string, id int64, muted bool) error
	Delete(ctx context.Context, scopeID, userID string, id int64) error
}

type pgNotificationRepo struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepo{db: db}
}

const notificationColumns = `
	id, request_id, user_id, owner_scope_id, event_type, title, message,
	entity_type, entity_id, group_key, group_count, is_read, is_muted,
	snoozed_until, created_at, updated_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.RequestID,
		&n.UserID,
		&n.OwnerScopeID,
		&n.EventType,
		&n.Title,
		&n.Message,
		&n.EntityType,
		&n.EntityID,
		&n.GroupKey,
		&n.GroupCount,
		&n.IsRead,
		&n.IsMuted,
		&n.SnoozedUntil,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (p *pgNotificationRepo) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	return createNotification(ctx, p.db, n)
}

// querier covers both pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createNotification(ctx context.Context, q querier, n *domain.Notification) (*domain.Notification, error) {
	if n.RequestID == "" {
		n.RequestID = uuid.New().String()
	}
	if n.GroupCount <= 0 {
		n.GroupCount = 1
	}

	query := `
		INSERT INTO notifications (
			request_id, user_id, owner_scope_id, event_type, title, message,
			entity_type, entity_id, group_key, group_count, is_read, is_muted,
			snoozed_until
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, false, false,
			NULL
		)
		RETURNING ` + notificationColumns

	row := q.QueryRow(ctx, query,
		n.RequestID,
		n.UserID,
		n.OwnerScopeID,
		n.EventType,
		n.Title,
		n.Message,
		n.EntityType,
		n.EntityID,
		n.GroupKey,
		n.GroupCount,
	)
	return scanNotification(row)
}

func (p *pgNotificationRepo) MergeOrCreateGrouped(ctx context.Context, n *domain.Notification, window time.Duration, composeMessage func(count int) string) (*domain.Notification, bool, error) {
	if n.GroupKey == nil {
		created, err := createNotification(ctx, p.db, n)
		return created, false, err
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent events for the same (user, group key) so two of
	// them cannot both take the insert branch.
	lockKey := n.OwnerScopeID + ":" + n.UserID + ":" + *n.GroupKey
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, false, err
	}

	cutoff := time.Now().UTC().Add(-window)
	existing, err := findMostRecentByGroupKey(ctx, tx, n.OwnerScopeID, n.UserID, *n.GroupKey, cutoff)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, false, err
	}

	var (
		result *domain.Notification
		merged bool
	)
	if existing != nil {
		newCount := existing.GroupCount + 1
		message := existing.Message
		if composeMessage != nil {
			message = composeMessage(newCount)
		}
		row := tx.QueryRow(ctx, `
			UPDATE notifications
			SET group_count = $1,
			    message = $2,
			    is_read = false,
			    updated_at = NOW()
			WHERE id = $3
			RETURNING `+notificationColumns,
			newCount, message, existing.ID)
		result, err = scanNotification(row)
		if err != nil {
			return nil, false, err
		}
		merged = true
	} else {
		result, err = createNotification(ctx, tx, n)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return result, merged, nil
}

func (p *pgNotificationRepo) FindMostRecentByGroupKey(ctx context.Context, scopeID, userID, groupKey string, since time.Time) (*domain.Notification, error) {
	return findMostRecentByGroupKey(ctx, p.db, scopeID, userID, groupKey, since)
}

func findMostRecentByGroupKey(ctx context.Context, q querier, scopeID, userID, groupKey string, since time.Time) (*domain.Notification, error) {
	// Window boundary is inclusive: created_at == cutoff still merges.
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE owner_scope_id = $1
		  AND user_id = $2
		  AND group_key = $3
		  AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1`

	return scanNotification(q.QueryRow(ctx, query, scopeID, userID, groupKey, since))
}

func (p *pgNotificationRepo) GetByID(ctx context.Context, scopeID, userID string, id int64) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND owner_scope_id = $2 AND user_id = $3`

	return scanNotification(p.db.QueryRow(ctx, query, id, scopeID, userID))
}

func (p *pgNotificationRepo) ListByUser(ctx context.Context, scopeID, userID string, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE owner_scope_id = $1
		  AND user_id = $2
		  AND is_muted = false
		  AND (snoozed_until IS NULL OR snoozed_until <= NOW())
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`

	return p.queryNotifications(ctx, query, scopeID, userID, limit, offset)
}

func (p *pgNotificationRepo) ListUnread(ctx context.Context, scopeID, userID string, limit, offset int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE owner_scope_id = $1
		  AND user_id = $2
		  AND is_read = false
		  AND is_muted = false
		  AND (snoozed_until IS NULL OR snoozed_until <= NOW())
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`

	return p.queryNotifications(ctx, query, scopeID, userID, limit, offset)
}

func (p *pgNotificationRepo) queryNotifications(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return notifications, nil
}

func (p *pgNotificationRepo) CountUnread(ctx context.Context, scopeID, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE owner_scope_id = $1
		  AND user_id = $2
		  AND is_read = false
		  AND is_muted = false
		  AND (snoozed_until IS NULL OR snoozed_until <= NOW())`

	var count int
	if err := p.db.QueryRow(ctx, query, scopeID, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *pgNotificationRepo) MarkRead(ctx context.Context, scopeID, userID string, id int64) error {
	query := `
		UPDATE notifications
		SET is_read = true, updated_at = NOW()
		WHERE id = $1 AND owner_scope_id = $2 AND user_id = $3 AND is_read = false`

	return p.execExpectingRow(ctx, query, id, scopeID, userID)
}

func (p *pgNotificationRepo) MarkAllRead(ctx context.Context, scopeID, userID string) error {
	query := `
		UPDATE notifications
		SET is_read = true, updated_at = NOW()
		WHERE owner_scope_id = $1 AND user_id = $2 AND is_read = false`

	_, err := p.db.Exec(ctx, query, scopeID, userID)
	return err
}

func (p *pgNotificationRepo) Snooze(ctx context.Context, scopeID, userID string, id int64, until time.Time) error {
	query := `
		UPDATE notifications
		SET snoozed_until = $1, updated_at = NOW()
		WHERE id = $2 AND owner_scope_id = $3 AND user_id = $4`

	return p.execExpectingRow(ctx, query, until, id, scopeID, userID)
}

func (p *pgNotificationRepo) SetMuted(ctx context.Context, scopeID, userID string, id int64, muted bool) error {
	query := `
		UPDATE notifications
		SET is_muted = $1, updated_at = NOW()
		WHERE id = $2 AND owner_scope_id = $3 AND user_id = $4`

	return p.execExpectingRow(ctx, query, muted, id, scopeID, userID)
}

func (p *pgNotificationRepo) Delete(ctx context.Context, scopeID, userID string, id int64) error {
	query := `DELETE FROM notifications WHERE id = $1 AND owner_scope_id = $2 AND user_id = $3`
	return p.execExpectingRow(ctx, query, id, scopeID, userID)
}

func (p *pgNotificationRepo) execExpectingRow(ctx context.Context, query string, args ...any) error {
	ct, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
