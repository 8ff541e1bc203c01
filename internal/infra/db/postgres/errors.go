package postgres

import (
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/infra/metrics"
)

// translate maps driver errors onto domain errors and counts real failures.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return domain.ErrAlreadyExists
		case "23514", "22P02":
			metrics.IncDBError(op)
			return domain.ErrInvalidArgument
		}
	}
	metrics.IncDBError(op)
	return domain.ErrOperationFailed
}
