package repository

import (
	"context"
	"errors"

	"crm-notification-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory resolves delivery addresses for users. Kept separate from the
// notification repositories because the users table belongs to another module.
type UserDirectory interface {
	EmailByUserID(ctx context.Context, userID string) (string, error)
}

type pgUserDirectory struct {
	db *pgxpool.Pool
}

func NewUserDirectory(db *pgxpool.Pool) UserDirectory {
	return &pgUserDirectory{db: db}
}

func (d *pgUserDirectory) EmailByUserID(ctx context.Context, userID string) (string, error) {
	var email string
	err := d.db.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", xerrors.ErrNotFound
		}
		return "", err
	}
	return email, nil
}
