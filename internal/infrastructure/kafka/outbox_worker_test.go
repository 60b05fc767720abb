package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	mu        sync.Mutex
	pending   []*usecase.OutboxEvent
	processed []int64
	failed    []int64
	fetchErr  error
	fetches   int
	stuck     []*usecase.OutboxEvent
	requeues  int
}

func (f *fakeOutboxRepo) Create(_ context.Context, event *usecase.OutboxEvent) (*usecase.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending = append(f.pending, event)
	return event, nil
}

func (f *fakeOutboxRepo) GetAndMarkAsProcessing(_ context.Context, limit int) ([]*usecase.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	n := min(limit, len(f.pending))
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch, nil
}

func (f *fakeOutboxRepo) MarkAsProcessed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutboxRepo) MarkAsFailed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutboxRepo) RequeueStale(context.Context, time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requeues++
	n := int64(len(f.stuck))
	f.pending = append(f.pending, f.stuck...)
	f.stuck = nil
	return n, nil
}

func (f *fakeOutboxRepo) snapshot() (processed, failed []int64, fetches int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.processed...), append([]int64(nil), f.failed...), f.fetches
}

type fakeProducer struct {
	mu       sync.Mutex
	sent     []*usecase.WriteRawMessageReq
	err      error
	failKeys map[string]bool
}

func (f *fakeProducer) WriteRawMessage(_ context.Context, req *usecase.WriteRawMessageReq) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if f.failKeys[req.Key] {
		delete(f.failKeys, req.Key)
		return errors.New("write to leader: request timed out")
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

func discardLogger() logger.Logger {
	return logger.New(slog.NewTextHandler(io.Discard, nil))
}

func events(ids ...int64) []*usecase.OutboxEvent {
	out := make([]*usecase.OutboxEvent, 0, len(ids))
	for _, id := range ids {
		out = append(out, &usecase.OutboxEvent{
			ID:          id,
			EventID:     "evt",
			EventType:   usecase.OrderCreated,
			AggregateID: id * 10,
			Payload:     []byte(`{}`),
			Status:      usecase.Processing,
		})
	}
	return out
}

func TestOutboxWorkerDrainsAllBatches(t *testing.T) {
	repo := &fakeOutboxRepo{pending: events(1, 2, 3, 4, 5)}
	producer := &fakeProducer{}
	w := NewOutboxWorker(repo, discardLogger(), producer, nil, &cfg.OutboxCfg{BatchSize: 2, PollInterval: time.Hour})

	w.drain(context.Background())

	processed, failed, fetches := repo.snapshot()
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, processed)
	assert.Empty(t, failed)
	assert.Equal(t, 3, fetches)

	require.Len(t, producer.sent, 5)
	assert.Equal(t, "10", producer.sent[0].Key)
	assert.Equal(t, usecase.OrderCreated, producer.sent[0].EventType)
}

func TestOutboxWorkerMarksFailedAndStopsDraining(t *testing.T) {
	repo := &fakeOutboxRepo{pending: events(1, 2, 3, 4)}
	producer := &fakeProducer{err: errors.New("dial tcp: connection refused")}
	w := NewOutboxWorker(repo, discardLogger(), producer, nil, &cfg.OutboxCfg{BatchSize: 2, PollInterval: time.Hour})

	w.drain(context.Background())

	processed, failed, fetches := repo.snapshot()
	assert.Empty(t, processed)
	assert.Equal(t, []int64{1, 2}, failed)
	assert.Equal(t, 1, fetches)
}

func TestOutboxWorkerHoldsBackLaterEventsOfFailedOrder(t *testing.T) {
	batch := events(1, 2, 3, 4)
	batch[2].AggregateID = 10 // тот же заказ, что у события 1
	batch[2].EventType = usecase.OrderStatusChanged
	repo := &fakeOutboxRepo{pending: batch}
	producer := &fakeProducer{failKeys: map[string]bool{"10": true}}
	w := NewOutboxWorker(repo, discardLogger(), producer, nil, &cfg.OutboxCfg{BatchSize: 10, PollInterval: time.Hour})

	w.drain(context.Background())

	processed, failed, _ := repo.snapshot()
	assert.Equal(t, []int64{2, 4}, processed)
	assert.Equal(t, []int64{1, 3}, failed)
	for _, req := range producer.sent {
		assert.NotEqual(t, "10", req.Key)
	}

	// Следующий проход отправляет события заказа в исходном порядке
	repo.mu.Lock()
	repo.pending = []*usecase.OutboxEvent{batch[0], batch[2]}
	repo.mu.Unlock()
	w.drain(context.Background())

	require.Len(t, producer.sent, 4)
	assert.Equal(t, usecase.OrderCreated, producer.sent[2].EventType)
	assert.Equal(t, usecase.OrderStatusChanged, producer.sent[3].EventType)
}

func TestOutboxWorkerFetchErrorStopsDrain(t *testing.T) {
	repo := &fakeOutboxRepo{fetchErr: errors.New("db down")}
	w := NewOutboxWorker(repo, discardLogger(), &fakeProducer{}, nil, &cfg.OutboxCfg{BatchSize: 10, PollInterval: time.Hour})

	w.drain(context.Background())

	_, _, fetches := repo.snapshot()
	assert.Equal(t, 1, fetches)
}

func TestOutboxWorkerWakesOnNotification(t *testing.T) {
	repo := &fakeOutboxRepo{}
	producer := &fakeProducer{}
	notify := make(chan struct{}, 1)
	w := NewOutboxWorker(repo, discardLogger(), producer, notify, &cfg.OutboxCfg{BatchSize: 10, PollInterval: time.Hour})

	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool {
		_, _, fetches := repo.snapshot()
		return fetches >= 1
	}, time.Second, 5*time.Millisecond)

	_, _ = repo.Create(context.Background(), events(7)[0])
	notify <- struct{}{}

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestOutboxWorkerPollsWithoutNotification(t *testing.T) {
	repo := &fakeOutboxRepo{}
	producer := &fakeProducer{}
	w := NewOutboxWorker(repo, discardLogger(), producer, nil, &cfg.OutboxCfg{BatchSize: 10, PollInterval: 10*time.Millisecond})

	w.Start(context.Background())
	defer w.Stop()

	_, _ = repo.Create(context.Background(), events(8)[0])

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestOutboxWorkerStopIsIdempotent(t *testing.T) {
	w := NewOutboxWorker(&fakeOutboxRepo{}, discardLogger(), &fakeProducer{}, nil, &cfg.OutboxCfg{BatchSize: 10, PollInterval: time.Hour})

	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "kafka temporary", err: kafka.LeaderNotAvailable, want: true},
		{name: "kafka permanent", err: kafka.MessageSizeTooLarge, want: false},
		{name: "network", err: errors.New("read: connection reset by peer"), want: true},
		{name: "other", err: errors.New("invalid payload"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestOutboxWorkerRequeuesStuckEventsOnStartup(t *testing.T) {
	repo := &fakeOutboxRepo{stuck: events(7)}
	producer := &fakeProducer{}

	w := NewOutboxWorker(repo, discardLogger(), producer, nil,
		&cfg.OutboxCfg{BatchSize: 10, PollInterval: time.Hour, StaleAfter: time.Minute})
	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool { return producer.count() == 1 }, time.Second, 5*time.Millisecond)
	processed, _, _ := repo.snapshot()
	assert.Equal(t, []int64{7}, processed)
}

func TestOutboxWorkerSkipsRequeueWhenDisabled(t *testing.T) {
	repo := &fakeOutboxRepo{stuck: events(7)}

	w := NewOutboxWorker(repo, discardLogger(), &fakeProducer{}, nil, &cfg.OutboxCfg{BatchSize: 10, PollInterval: time.Hour})
	w.Start(context.Background())
	w.Stop()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Zero(t, repo.requeues)
	assert.Len(t, repo.stuck, 1)
}
