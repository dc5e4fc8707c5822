package repository

import (
	"context"
	"encoding/json"
	"errors"

	"crm-notification-service/internal/domain"
	"crm-notification-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PreferenceRepository stores per-user delivery policies.
type PreferenceRepository interface {
	// GetOrCreate reads the user's preference row, inserting defaults on first
	// access. The insert is an upsert keyed on user_id, so concurrent callers
	// end up with exactly one row.
	GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreference, error)
	Update(ctx context.Context, p *domain.NotificationPreference) (*domain.NotificationPreference, error)
}

type pgPreferenceRepo struct {
	db *pgxpool.Pool
}

func NewPreferenceRepository(db *pgxpool.Pool) PreferenceRepository {
	return &pgPreferenceRepo{db: db}
}

const preferenceColumns = `
	user_id, email_enabled, push_enabled, in_app_enabled, type_preferences,
	quiet_hours_enabled, quiet_hours_start, quiet_hours_end, muted_entities,
	grouping_enabled, grouping_window_seconds, created_at, updated_at`

func scanPreference(row pgx.Row) (*domain.NotificationPreference, error) {
	var (
		p         domain.NotificationPreference
		typePrefs []byte
		muted     []byte
	)
	err := row.Scan(
		&p.UserID,
		&p.EmailEnabled,
		&p.PushEnabled,
		&p.InAppEnabled,
		&typePrefs,
		&p.QuietHoursEnabled,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&muted,
		&p.GroupingEnabled,
		&p.GroupingWindowSeconds,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}

	p.TypePreferences = map[domain.EventType]domain.ChannelOverride{}
	if len(typePrefs) > 0 {
		if err := json.Unmarshal(typePrefs, &p.TypePreferences); err != nil {
			return nil, err
		}
	}
	if len(muted) > 0 {
		if err := json.Unmarshal(muted, &p.MutedEntities); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (r *pgPreferenceRepo) GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	def := domain.DefaultPreference(userID)

	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_preferences (
			user_id, email_enabled, push_enabled, in_app_enabled,
			type_preferences, grouping_enabled, grouping_window_seconds,
			muted_entities
		) VALUES ($1, $2, $3, $4, '{}'::jsonb, $5, $6, '[]'::jsonb)
		ON CONFLICT (user_id) DO NOTHING`,
		userID,
		def.EmailEnabled,
		def.PushEnabled,
		def.InAppEnabled,
		def.GroupingEnabled,
		def.GroupingWindowSeconds,
	)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + preferenceColumns + ` FROM notification_preferences WHERE user_id = $1`
	return scanPreference(r.db.QueryRow(ctx, query, userID))
}

func (r *pgPreferenceRepo) Update(ctx context.Context, p *domain.NotificationPreference) (*domain.NotificationPreference, error) {
	typePrefs, err := json.Marshal(p.TypePreferences)
	if err != nil {
		return nil, err
	}
	muted := p.MutedEntities
	if muted == nil {
		muted = []domain.MutedEntity{}
	}
	mutedJSON, err := json.Marshal(muted)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE notification_preferences
		SET email_enabled = $1,
		    push_enabled = $2,
		    in_app_enabled = $3,
		    type_preferences = $4,
		    quiet_hours_enabled = $5,
		    quiet_hours_start = $6,
		    quiet_hours_end = $7,
		    muted_entities = $8,
		    grouping_enabled = $9,
		    grouping_window_seconds = $10,
		    updated_at = NOW()
		WHERE user_id = $11
		RETURNING ` + preferenceColumns

	row := r.db.QueryRow(ctx, query,
		p.EmailEnabled,
		p.PushEnabled,
		p.InAppEnabled,
		typePrefs,
		p.QuietHoursEnabled,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		mutedJSON,
		p.GroupingEnabled,
		p.GroupingWindowSeconds,
		p.UserID,
	)
	return scanPreference(row)
}
