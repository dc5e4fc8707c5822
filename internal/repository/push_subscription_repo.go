package repository

import (
	"context"

	"crm-notification-service/internal/domain"
	"crm-notification-service/pkg/xerrors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PushSubscriptionRepository stores registered device endpoints. The push
// adapter owns deletion of endpoints the transport reports as gone.
type PushSubscriptionRepository interface {
	Save(ctx context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	DeleteByUserEndpoint(ctx context.Context, userID, endpoint string) error
}

type pgPushSubscriptionRepo struct {
	db *pgxpool.Pool
}

func NewPushSubscriptionRepository(db *pgxpool.Pool) PushSubscriptionRepository {
	return &pgPushSubscriptionRepo{db: db}
}

func (r *pgPushSubscriptionRepo) Save(ctx context.Context, s *domain.PushSubscription) (*domain.PushSubscription, error) {
	// Re-registering an endpoint rebinds it to the latest user and keys.
	query := `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    user_agent = EXCLUDED.user_agent
		RETURNING id, user_id, endpoint, p256dh, auth, user_agent, created_at`

	var saved domain.PushSubscription
	err := r.db.QueryRow(ctx, query, s.UserID, s.Endpoint, s.P256dh, s.Auth, s.UserAgent).Scan(
		&saved.ID,
		&saved.UserID,
		&saved.Endpoint,
		&saved.P256dh,
		&saved.Auth,
		&saved.UserAgent,
		&saved.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *pgPushSubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]*domain.PushSubscription, error) {
	query := `
		SELECT id, user_id, endpoint, p256dh, auth, user_agent, created_at
		FROM push_subscriptions
		WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.PushSubscription
	for rows.Next() {
		var s domain.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.UserAgent, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

func (r *pgPushSubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}

func (r *pgPushSubscriptionRepo) DeleteByUserEndpoint(ctx context.Context, userID, endpoint string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`, userID, endpoint)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
