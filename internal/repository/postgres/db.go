// internal/repository/postgres/db.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	xerrors "medlink-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both the pool and an open transaction, so a
// repository can be rebound to a transaction without changing its queries.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// inTx runs fn in a transaction on pool. A nested call on a repository
// already bound to a transaction reuses it.
func inTx(ctx context.Context, q Querier, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if tx, ok := q.(pgx.Tx); ok {
		return fn(ctx, tx)
	}
	pool, ok := q.(*pgxpool.Pool)
	if !ok {
		return fmt.Errorf("unsupported querier %T", q)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	exclusionViolation  = "23P01"
)

// mapError converts driver errors into the service's error kinds.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s not found: %w", what, xerrors.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation, exclusionViolation:
			return fmt.Errorf("%s already exists (%s): %w", what, pgErr.ConstraintName, xerrors.ErrConflict)
		case foreignKeyViolation:
			return fmt.Errorf("%s references a missing row (%s): %w", what, pgErr.ConstraintName, xerrors.ErrInvalidInput)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return pageSize, (page - 1) * pageSize
}
