package pgdb

import (
	"context"
	"fmt"
	"time"

	"github.com/DRSN-tech/storefront/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jimlawless/whereami"
)

// OutboxChannel — канал LISTEN/NOTIFY, будящий воркер outbox.
const OutboxChannel = "outbox_pending"

const outboxColumns = `id, event_id, event_type, aggregate_id, payload, status, created_at, processed_at`

// OutboxEventRepo хранит события заказов до их доставки в Kafka.
// Жизненный цикл: pending -> processing -> processed, при сбое отправки processing -> failed.
type OutboxEventRepo struct {
	pool Pool
	conv converter.OutboxEventConverter
}

func NewOutboxEventRepo(pool Pool, conv converter.OutboxEventConverter) *OutboxEventRepo {
	return &OutboxEventRepo{pool: pool, conv: conv}
}

// Create пишет событие в транзакции заказа. NOTIFY доставляется слушателю только после коммита.
func (o *OutboxEventRepo) Create(ctx context.Context, event *usecase.OutboxEvent) (*usecase.OutboxEvent, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	m := o.conv.ToModel(event)
	err = tx.QueryRow(ctx, `
		INSERT INTO outbox_events (event_id, event_type, aggregate_id, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		m.EventID, m.EventType, m.AggregateID, m.Payload, m.Status, m.CreatedAt,
	).Scan(&m.ID, &m.CreatedAt)
	switch {
	case postgresDuplicate(err):
		return nil, fmt.Errorf("%s: duplicate outbox event %s", whereami.WhereAmI(), event.EventID)
	case err != nil:
		return nil, e.Wrap(whereami.WhereAmI(), classify(err))
	}

	if _, err := tx.Exec(ctx, "NOTIFY "+OutboxChannel); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), classify(err))
	}

	return o.conv.ToEntity(m), nil
}

// GetAndMarkAsProcessing захватывает до limit событий в статусе pending или failed, старые первыми.
// SKIP LOCKED не даёт двум воркерам взять одно и то же событие.
func (o *OutboxEventRepo) GetAndMarkAsProcessing(ctx context.Context, limit int) (_ []*usecase.OutboxEvent, err error) {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	rows, err := tx.Query(ctx, `
		UPDATE outbox_events
		SET status = $1, processing_started_at = now()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status IN ($2, $4)
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+outboxColumns,
		string(usecase.Processing), string(usecase.Pending), limit, string(usecase.Failed))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	models, err := pgx.CollectRows(rows, scanOutboxEvent)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return o.conv.ToArrEntity(models), nil
}

// MarkAsProcessed завершает событие. Ноль затронутых строк не ошибка: событие уже закрыл другой воркер.
func (o *OutboxEventRepo) MarkAsProcessed(ctx context.Context, id int64) error {
	return o.finish(ctx, id, `
		UPDATE outbox_events
		SET status = $1, processed_at = NOW()
		WHERE id = $2 AND status = $3`, usecase.Processed)
}

// MarkAsFailed возвращает событие в очередь: failed выбирается следующим проходом вместе с pending.
func (o *OutboxEventRepo) MarkAsFailed(ctx context.Context, id int64) error {
	return o.finish(ctx, id, `
		UPDATE outbox_events
		SET status = $1, processing_started_at = NULL
		WHERE id = $2 AND status = $3`, usecase.Failed)
}

func (o *OutboxEventRepo) finish(ctx context.Context, id int64, query string, to usecase.OutboxStatus) error {
	if _, err := o.pool.Exec(ctx, query, string(to), id, string(usecase.Processing)); err != nil {
		return fmt.Errorf("%s: event %d -> %s: %w", whereami.WhereAmI(), id, to, err)
	}

	return nil
}

// RequeueStale переводит в failed события, зависшие в processing дольше olderThan,
// например после падения воркера между захватом и отправкой.
func (o *OutboxEventRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := o.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, processing_started_at = NULL
		WHERE status = $2 AND processing_started_at < now() - make_interval(secs => $3)`,
		string(usecase.Failed), string(usecase.Processing), olderThan.Seconds())
	if err != nil {
		return 0, e.Wrap(whereami.WhereAmI(), err)
	}

	return tag.RowsAffected(), nil
}

func scanOutboxEvent(row pgx.CollectableRow) (*converter.OutboxEventModel, error) {
	var m converter.OutboxEventModel
	err := row.Scan(&m.ID, &m.EventID, &m.EventType, &m.AggregateID, &m.Payload, &m.Status, &m.CreatedAt, &m.ProcessedAt)

	return &m, err
}
