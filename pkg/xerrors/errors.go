package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input provided")
)

// Preferences
var (
	ErrInvalidQuietHours     = errors.New("quiet hours must be HH:mm in 24h format")
	ErrInvalidGroupingWindow = errors.New("grouping window out of range")
)

// Push subscriptions
var (
	ErrEndpointRequired = errors.New("push endpoint required")
)

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}
