package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/jitter"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	waitTimeout   = 30 * time.Second
)

// PGListener подписывается на LISTEN-канал PostgreSQL и сигналит о новых событиях outbox.
// Несколько уведомлений подряд схлопываются в один сигнал.
type PGListener struct {
	dsn     string
	channel string
	logger  logger.Logger
	notify  chan struct{}
}

func NewPGListener(dsn, channel string, logger logger.Logger) *PGListener {
	return &PGListener{
		dsn:     dsn,
		channel: channel,
		logger:  logger,
		notify:  make(chan struct{}, 1),
	}
}

func (l *PGListener) Notifications() <-chan struct{} {
	return l.notify
}

// Run держит соединение с LISTEN до отмены ctx, переподключаясь с экспоненциальной задержкой.
func (l *PGListener) Run(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := jitter.ExponentialBackoff(reconnectBase, reconnectMax, attempt, jitter.DefaultJitter)
		l.logger.Warnf("Outbox listener connection lost: %v. Reconnecting in %s", err, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return e.Wrap("failed to connect for LISTEN", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return e.Wrap("failed to LISTEN", err)
	}
	l.logger.Infof("Subscribed to '%s' channel", l.channel)

	for {
		waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}

		if notification.Channel == l.channel {
			l.signal()
		}
	}
}

func (l *PGListener) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}
