package tr

import (
	"context"

	"github.com/DRSN-tech/storefront/pkg/e"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
)

type txKey struct{}

// Tx — управляющая часть открытой транзакции.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	IsActive() bool
}

// Transactor открывает транзакции поверх пула соединений.
type Transactor struct {
	db   transaction.Transactional
	opts pgx.TxOptions
}

// NewTransactor создаёт Transactor с уровнем изоляции READ COMMITTED:
// от потерянных обновлений остатков защищают явные блокировки строк (SELECT ... FOR UPDATE).
func NewTransactor(db transaction.Transactional) *Transactor {
	return &Transactor{
		db:   db,
		opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
	}
}

// Begin открывает транзакцию и кладёт pgx.Tx в возвращаемый контекст.
// Одна транзакция — одно соединение из пула на время вызова.
func (t *Transactor) Begin(ctx context.Context) (context.Context, Tx, error) {
	ctx, tx, err := transaction.NewTransaction(ctx, t.opts, t.db)
	if err != nil {
		return ctx, nil, err
	}

	pgxTx, ok := tx.Transaction().(pgx.Tx)
	if !ok {
		_ = tx.Rollback(ctx)
		return ctx, nil, e.ErrTransactionNotFound
	}

	return WithTx(ctx, pgxTx), tx, nil
}

// WithTx возвращает контекст с привязанной транзакцией.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromCtx извлекает объект транзакции (pgx.Tx) из контекста
func TxFromCtx(ctx context.Context) (pgx.Tx, error) {
	txAny := ctx.Value(txKey{})
	tx, ok := txAny.(pgx.Tx)
	if !ok {
		return nil, e.ErrTransactionNotFound
	}
	return tx, nil
}
