package store

import (
	"errors"
	"fmt"

	"bloodlink/pkg/types"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapPgError turns lock and serialization failures into types.ErrConflict so
// callers can retry with fresh data. Other errors are wrapped with msg.
func mapPgError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDeadlockDetected, pgSerializationFailure:
			return fmt.Errorf("%s: %w: %w", msg, types.ErrConflict, err)
		}
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
