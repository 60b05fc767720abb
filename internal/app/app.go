package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/storefront/internal/cfg"
	v1Grpc "github.com/DRSN-tech/storefront/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/storefront/internal/delivery/v1/http"
	"github.com/DRSN-tech/storefront/internal/infrastructure/kafka"
	minioInfra "github.com/DRSN-tech/storefront/internal/infrastructure/minio"
	s3Repo "github.com/DRSN-tech/storefront/internal/repository/minio"
	"github.com/DRSN-tech/storefront/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/storefront/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/storefront/internal/repository/redis"
	redisConv "github.com/DRSN-tech/storefront/internal/repository/redis/converter"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/clients"
	"github.com/DRSN-tech/storefront/pkg/closer"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/DRSN-tech/storefront/pkg/metrics"
	"github.com/DRSN-tech/storefront/pkg/postgres"
	"github.com/DRSN-tech/storefront/pkg/tr"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	shutdownTimeout   = 15 * time.Second
	forcedTimeout     = 3 * time.Second
	startupTimeout    = 10 * time.Second
	topicCreationWait = 10 * time.Second
)

type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	httpSrv  *v1Http.Server
	grpcSrv  *v1Grpc.GRPCServer
	listener *kafka.PGListener
	worker   *kafka.OutboxWorker

	// Отменяется при остановке: прерывает фоновые загрузки и LISTEN
	background context.Context
}

// NewApp поднимает все зависимости. Уже открытые ресурсы закрываются, если следующий шаг не удался.
func NewApp(cfg *config.Config, logger logger.Logger) (_ *App, err error) {
	background, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:        cfg,
		logger:     logger,
		closer:     closer.NewCloser(forcedTimeout),
		background: background,
	}
	defer func() {
		if err != nil {
			cancel()
			if closeErr := a.closer.Close(context.Background()); closeErr != nil {
				logger.Warnf("partial startup cleanup: %v", closeErr)
			}
		}
	}()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), startupTimeout)
	defer startupCancel()

	db, err := initPGDB(startupCtx, logger, cfg)
	if err != nil {
		return nil, err
	}
	a.closer.Add("postgres", func(context.Context) error {
		db.Close()
		return nil
	})

	redisClient := clients.NewRedisClient(cfg.Redis)
	a.closer.Add("redis", func(context.Context) error { return redisClient.Close() })

	if err := redisClient.Ping(startupCtx); err != nil {
		logger.Errorf(err, "failed to connect to redis")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minioClient, err := clients.NewMinIOClient(cfg.Minio)
	if err != nil {
		logger.Errorf(err, "failed to initialize minio client")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if err := clients.EnsureReceiptBucket(startupCtx, minioClient, cfg.Minio); err != nil {
		logger.Errorf(err, "failed to initialize MinIO bucket")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	producer := kafka.NewProducer(logger, cfg.Kafka)
	a.closer.Add("kafka producer", func(context.Context) error { return producer.Close() })
	if err := producer.EnsureTopic(topicCreationWait); err != nil {
		logger.Errorf(err, "failed to initialize kafka topic")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	// Закрывается после ожидания загрузок чеков, но раньше клиентов хранилищ
	a.closer.Add("background tasks", func(context.Context) error {
		cancel()
		return nil
	})

	receipts := minioInfra.NewReceiptsInfrastructure(s3Repo.NewReceiptRepo(minioClient), cfg.Minio, logger, background)
	a.closer.Add("receipt uploads", receipts.WaitForUploads)

	cacheRepo := redis.NewCacheRepo(redisClient, redisConv.NewProductConverterImpl(), cfg.Redis, logger)
	productRepo := pgdb.NewProductRepo(db.Pool, pgdbConv.NewProductConverterImpl())
	orderRepo := pgdb.NewOrderRepo(db.Pool, pgdbConv.NewOrderConverterImpl())
	outboxRepo := pgdb.NewOutboxEventRepo(db.Pool, pgdbConv.NewOutboxEventConverterImpl())

	productUC := usecase.NewProductUC(productRepo, cacheRepo, logger)
	orderUC := usecase.NewOrderUC(
		orderRepo,
		productRepo,
		outboxRepo,
		tr.NewTransactor(db.Pool),
		cacheRepo,
		receipts,
		logger,
		cfg.Orders.RollbackTimeout,
	)

	a.listener = kafka.NewPGListener(db.Dsn, pgdb.OutboxChannel, logger)
	a.worker = kafka.NewOutboxWorker(
		outboxRepo,
		logger,
		producer,
		a.listener.Notifications(),
		cfg.Outbox,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := chi.NewRouter()
	v1Http.NewRouter(r, logger, metrics.NewServerMetrics(reg, "http"), cfg.Orders).
		WithReadinessCheck("postgres", db.Ping).
		WithReadinessCheck("redis", func(ctx context.Context) error {
			return redisClient.Client.Ping(ctx).Err()
		}).
		Init(productUC, orderUC)
	a.httpSrv = v1Http.NewServer(r, cfg.Http)

	a.grpcSrv = v1Grpc.NewGRPCServer(cfg.Grpc, logger)
	a.grpcSrv.RegisterServices(orderUC)

	return a, nil
}

// Run запускает воркер outbox и серверы, затем ждёт сигнала или падения сервера.
func (a *App) Run() error {
	go a.listener.Run(a.background)
	a.worker.Start(a.background)
	a.closer.Add("outbox worker", func(context.Context) error {
		a.worker.Stop()
		return nil
	})

	grpcErrCh := make(chan error, 1)
	go func() {
		a.logger.Infof("gRPC server starting on %s:%s", a.cfg.Grpc.NetworkMode, a.cfg.Grpc.Port)
		if err := a.grpcSrv.Start(); err != nil {
			grpcErrCh <- err
		}
	}()
	a.closer.Add("grpc server", a.grpcSrv.Stop)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil {
			errCh <- err
		}
	}()
	a.closer.Add("http server", a.httpSrv.Stop)

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case appErr = <-grpcErrCh:
		a.logger.Errorf(appErr, "gRPC server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	// LIFO: серверы, воркер, загрузки чеков, фоновые задачи, затем клиенты хранилищ
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Errorf(err, "shutdown finished with errors")
		appErr = errors.Join(appErr, err)
	}

	a.logger.Infof("Application shutdown complete")
	return appErr
}

func initPGDB(ctx context.Context, logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(ctx, cfg.Db)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		logger.Errorf(err, "failed to run migrations")
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}

// Migrate применяет миграции и закрывает соединение, не поднимая остальные зависимости.
func Migrate(cfg *config.Config, logger logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	db, err := initPGDB(ctx, logger, cfg)
	if err != nil {
		return err
	}
	db.Close()

	return nil
}
