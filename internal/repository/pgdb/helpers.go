package pgdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB — общая часть pgxpool.Pool и pgx.Tx, достаточная для запросов репозиториев.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool — пул соединений, умеющий открывать собственные транзакции.
type Pool interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// conn возвращает транзакцию из контекста, а без неё — пул.
func conn(ctx context.Context, pool DB) DB {
	if tx, err := tr.TxFromCtx(ctx); err == nil {
		return tx
	}

	return pool
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	return ""
}

func postgresDuplicate(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// classify помечает конфликты блокировок как повторяемые.
func classify(err error) error {
	switch pgErrorCode(err) {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return fmt.Errorf("%w: %w", e.ErrTransientConflict, err)
	default:
		return err
	}
}
