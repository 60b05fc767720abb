package cfg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/spf13/viper"
)

type Config struct {
	Minio  *MinIOCfg
	Http   *HTTPConfig
	Grpc   *GRPCConfig
	Db     *PGDBCfg
	Redis  *RedisCfg
	Kafka  *KafkaCfg
	Orders *OrdersCfg
	Outbox *OutboxCfg
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Бакет для архивных чеков заказов
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
	Region            string
	UploadTimeout     time.Duration // Таймаут фоновой загрузки одного чека
	// Через сколько дней чеки удаляются правилом жизненного цикла, 0 — хранить всегда
	ReceiptRetentionDays int
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type GRPCConfig struct {
	Port        string
	NetworkMode string
}

type PGDBCfg struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MaxConnIdleTime time.Duration
	MigrationsURL   string
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	PoolSize    int // 0 — значение go-redis по умолчанию
	KeyPrefix   string
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	ProductTTL  time.Duration
}

// OrdersCfg — параметры оформления заказов.
type OrdersCfg struct {
	RequestTimeout  time.Duration // Таймаут всей транзакции оформления
	RollbackTimeout time.Duration // Время на откат после отмены запроса
	RateLimit       float64       // Запросов в секунду на POST /orders, 0 — без ограничения
	RateBurst       int
}

type OutboxCfg struct {
	BatchSize    int
	PollInterval time.Duration
	StaleAfter   time.Duration // Сколько событие может висеть в processing, 0 — не возвращать
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Значения берутся из переменных окружения, поверх необязательного файла app.env.
func Load(log logger.Logger) (*Config, error) {
	env, err := newEnv(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return load(env, log)
}

func load(env *viper.Viper, log logger.Logger) (*Config, error) {
	db, err := loadPGDBCfg(env, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(env, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(env, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(env, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg(env)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	orders, err := loadOrdersCfg(env, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	outbox, err := loadOutboxCfg(env)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Minio:  minio,
		Http:   http,
		Grpc:   loadGRPCConfig(env),
		Db:     db,
		Redis:  redis,
		Kafka:  kafka,
		Orders: orders,
		Outbox: outbox,
	}, nil
}

// newEnv читает app.env из рабочей директории (если он есть) и включает переопределение из окружения.
func newEnv(log logger.Logger) (*viper.Viper, error) {
	env := viper.New()
	env.SetConfigName("app")
	env.SetConfigType("env")
	env.AddConfigPath(".")
	env.AutomaticEnv()

	if err := env.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Infof("no app.env found, using environment variables and defaults")
	}

	return env, nil
}

func loadKafkaCfg(env *viper.Viper) (*KafkaCfg, error) {
	const (
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
	)

	brokerStr := getEnv(env, "KAFKA_BROKERS")
	if brokerStr == "" {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}
	brokers := strings.Split(brokerStr, ",")

	topic := getEnv(env, "KAFKA_TOPIC")
	if topic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC environment variable is required")
	}

	partitions, err := parseIntEnv(env, "KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv(env, "REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             topic,
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault(env, "KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadMinIOCfg(env *viper.Viper, log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL        = false
		defaultEndpoint      = "minio:9000"
		defaultUploadTimeout = 30 * time.Second
		defaultRetentionDays = 0
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault(env, "MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	bucket := getEnv(env, "BUCKET_NAME")
	if bucket == "" {
		err := fmt.Errorf("BUCKET_NAME is required")
		log.Errorf(err, "missing BUCKET_NAME")
		return nil, err
	}

	uploadTimeout, err := parseDurationEnv(env, "MINIO_UPLOAD_TIMEOUT", defaultUploadTimeout)
	if err != nil {
		log.Errorf(err, "invalid MINIO_UPLOAD_TIMEOUT")
		return nil, err
	}

	retention, err := parseIntEnv(env, "RECEIPT_RETENTION_DAYS", defaultRetentionDays)
	if err == nil && retention < 0 {
		err = e.Wrap("RECEIPT_RETENTION_DAYS", e.ErrIncorrectEnvVariable)
	}
	if err != nil {
		log.Errorf(err, "invalid RECEIPT_RETENTION_DAYS")
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnvOrDefault(env, "MINIO_ENDPOINT", defaultEndpoint),
		BucketName:        bucket,
		MinioRootUser:     getEnv(env, "MINIO_ROOT_USER"),
		MinioRootPassword: getEnv(env, "MINIO_ROOT_PASSWORD"),
		MinioUseSSL:          useSSL,
		Region:               getEnv(env, "MINIO_REGION"),
		UploadTimeout:        uploadTimeout,
		ReceiptRetentionDays: retention,
	}, nil
}

func loadHTTPConfig(env *viper.Viper, log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "3000"
		defaultReadTimeout  = 5 * time.Second
		defaultWriteTimeout = 10 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	port := getEnvOrDefault(env, "PORT", defaultPort)

	readTimeout, err := parseDurationEnv(env, "HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv(env, "HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv(env, "KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         port,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

func loadGRPCConfig(env *viper.Viper) *GRPCConfig {
	const (
		defaultPort        = "8091"
		defaultNetworkMode = "tcp"
	)

	return &GRPCConfig{
		Port:        getEnvOrDefault(env, "GRPC_PORT", defaultPort),
		NetworkMode: getEnvOrDefault(env, "GRPC_NETWORK_MODE", defaultNetworkMode),
	}
}

func loadPGDBCfg(env *viper.Viper, log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost            = "localhost"
		defaultPort            = "5432"
		defaultSSLMode         = "disable"
		defaultMaxConns        = 10
		defaultMaxConnIdleTime = 5 * time.Minute
		defaultMigrationsURL   = "file://db/migrations"
	)

	user := getEnv(env, "POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv(env, "POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv(env, "POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	maxConns, err := parseIntEnv(env, "POSTGRES_MAX_CONNS", defaultMaxConns)
	if err != nil || maxConns <= 0 {
		err = e.Wrap("POSTGRES_MAX_CONNS", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid POSTGRES_MAX_CONNS")
		return nil, err
	}

	idleTime, err := parseDurationEnv(env, "POSTGRES_MAX_CONN_IDLE_TIME", defaultMaxConnIdleTime)
	if err != nil {
		log.Errorf(err, "invalid POSTGRES_MAX_CONN_IDLE_TIME")
		return nil, err
	}

	return &PGDBCfg{
		Host:            getEnvOrDefault(env, "POSTGRES_HOST", defaultHost),
		Port:            getEnvOrDefault(env, "POSTGRES_PORT", defaultPort),
		User:            user,
		Password:        password,
		DBName:          dbName,
		SSLMode:         getEnvOrDefault(env, "SSL_MODE", defaultSSLMode),
		MaxConns:        int32(maxConns),
		MaxConnIdleTime: idleTime,
		MigrationsURL:   getEnvOrDefault(env, "MIGRATIONS_URL", defaultMigrationsURL),
	}, nil
}

func loadRedisCfg(env *viper.Viper, log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultProductTTL   = 3 * time.Minute
		defaultPoolSize     = 0
		defaultKeyPrefix    = "storefront"
	)

	db, err := parseIntEnv(env, "REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv(env, "MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv(env, "DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv(env, "READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv(env, "WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	productTTL, err := parseDurationEnv(env, "PRODUCT_TTL", defaultProductTTL)
	if err != nil {
		log.Errorf(err, "invalid PRODUCT_TTL")
		return nil, err
	}

	poolSize, err := parseIntEnv(env, "REDIS_POOL_SIZE", defaultPoolSize)
	if err == nil && poolSize < 0 {
		err = e.Wrap("REDIS_POOL_SIZE", e.ErrIncorrectEnvVariable)
	}
	if err != nil {
		log.Errorf(err, "invalid REDIS_POOL_SIZE")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Addr:        getEnvOrDefault(env, "REDIS_ADDR", defaultAddr),
		Password:    getEnv(env, "REDIS_PASSWORD"),
		User:        getEnv(env, "REDIS_USER"),
		DB:          db,
		PoolSize:    poolSize,
		KeyPrefix:   getEnvOrDefault(env, "REDIS_KEY_PREFIX", defaultKeyPrefix),
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
		ProductTTL:  productTTL,
	}, nil
}

func loadOrdersCfg(env *viper.Viper, log logger.Logger) (*OrdersCfg, error) {
	const (
		defaultRequestTimeout  = 5 * time.Second
		defaultRollbackTimeout = 3 * time.Second
		defaultRateLimit       = "50"
		defaultRateBurst       = 100
	)

	requestTimeout, err := parseDurationEnv(env, "ORDER_TIMEOUT", defaultRequestTimeout)
	if err != nil {
		log.Errorf(err, "invalid ORDER_TIMEOUT")
		return nil, err
	}

	rollbackTimeout, err := parseDurationEnv(env, "ORDER_ROLLBACK_TIMEOUT", defaultRollbackTimeout)
	if err != nil {
		log.Errorf(err, "invalid ORDER_ROLLBACK_TIMEOUT")
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(getEnvOrDefault(env, "ORDER_RATE_LIMIT", defaultRateLimit), 64)
	if err != nil || rateLimit < 0 {
		err = e.Wrap("ORDER_RATE_LIMIT", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid ORDER_RATE_LIMIT")
		return nil, err
	}

	rateBurst, err := parseIntEnv(env, "ORDER_RATE_BURST", defaultRateBurst)
	if err != nil {
		log.Errorf(err, "invalid ORDER_RATE_BURST")
		return nil, err
	}

	return &OrdersCfg{
		RequestTimeout:  requestTimeout,
		RollbackTimeout: rollbackTimeout,
		RateLimit:       rateLimit,
		RateBurst:       rateBurst,
	}, nil
}

func loadOutboxCfg(env *viper.Viper) (*OutboxCfg, error) {
	const (
		defaultBatchSize    = 10
		defaultPollInterval = 30 * time.Second
		defaultStaleAfter   = 5 * time.Minute
	)

	batchSize, err := parseIntEnv(env, "OUTBOX_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, e.Wrap("OUTBOX_BATCH_SIZE", err)
	}

	pollInterval, err := parseDurationEnv(env, "OUTBOX_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return nil, e.Wrap("OUTBOX_POLL_INTERVAL", err)
	}

	staleAfter, err := parseDurationEnv(env, "OUTBOX_STALE_AFTER", defaultStaleAfter)
	if err != nil {
		return nil, e.Wrap("OUTBOX_STALE_AFTER", err)
	}

	if batchSize <= 0 || pollInterval <= 0 {
		return nil, e.Wrap("OUTBOX_BATCH_SIZE and OUTBOX_POLL_INTERVAL must be positive", e.ErrIncorrectEnvVariable)
	}

	return &OutboxCfg{
		BatchSize:    batchSize,
		PollInterval: pollInterval,
		StaleAfter:   staleAfter,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(env *viper.Viper, key string) string {
	return strings.TrimSpace(env.GetString(key))
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(env *viper.Viper, key, defaultValue string) string {
	if value := getEnv(env, key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(env *viper.Viper, key string, defaultValue time.Duration) (time.Duration, error) {
	if v := getEnv(env, key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(env *viper.Viper, key string, defaultValue int) (int, error) {
	v := getEnv(env, key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}
