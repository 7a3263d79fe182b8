package config

import (
	"fmt"
	"os"
	"regexp"
	"slotkeeper/pkg/client"
	"slotkeeper/pkg/logger"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	KafkaEnabled          bool
	KafkaHoldEventsTopic  string
	KafkaAlertEventsTopic string
	KafkaDLQTopic         string
	KafkaConsumerGroup    string

	LockBackend       string
	LockTTL           time.Duration
	LockRetryAttempts int
	LockRetryBackoff  time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int

	AvailabilityServiceURL string
	DependencyMaxDepth     int
	MaxEvaluationWindow    time.Duration

	HoldSweepCron                 string
	HoldSweepBatchSize            int
	DefaultHoldDurationMin        int
	DefaultMinHoldDurationMin     int
	DefaultMaxHoldDurationMin     int
	TransitionRetryAttempts       int
	DefaultMaxActiveHoldsPerOwner int
	DefaultActFastCount           int
	DefaultActFastUniqueOwners    int

	AlertRecomputeCron string
	AlertWindowMin     int
	AlertGraceMin      int
	AlertMaxAge        time.Duration

	TraceBufferSize   int
	TraceWorkers      int
	TraceWriteTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		KafkaEnabled:          getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		KafkaHoldEventsTopic:  getEnvStr(EnvKafkaHoldEventsTopic, DefaultKafkaHoldEventsTopic),
		KafkaAlertEventsTopic: getEnvStr(EnvKafkaAlertEventsTopic, DefaultKafkaAlertEventsTopic),
		KafkaDLQTopic:         getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),
		KafkaConsumerGroup:    getEnvStr(EnvKafkaConsumerGroup, DefaultKafkaConsumerGroup),

		LockBackend:       getEnvStr(EnvLockBackend, DefaultLockBackend),
		LockTTL:           getEnvDuration(EnvLockTTL, DefaultLockTTL),
		LockRetryAttempts: getEnvNum(EnvLockRetryAttempts, DefaultLockRetryAttempts),
		LockRetryBackoff:  getEnvDuration(EnvLockRetryBackoff, DefaultLockRetryBackoff),
		RedisAddr:         getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:     getEnvStr(EnvRedisPassword, ""),
		RedisDB:           getEnvNum(EnvRedisDB, DefaultRedisDB),

		AvailabilityServiceURL: getEnvStr(EnvAvailabilityServiceURL, DefaultAvailabilityServiceURL),
		DependencyMaxDepth:     getEnvNum(EnvDependencyMaxDepth, DefaultDependencyMaxDepth),
		MaxEvaluationWindow:    getEnvDuration(EnvMaxEvaluationWindow, DefaultMaxEvaluationWindow),

		HoldSweepCron:                 getEnvStr(EnvHoldSweepCron, DefaultHoldSweepCron),
		HoldSweepBatchSize:            getEnvNum(EnvHoldSweepBatchSize, DefaultHoldSweepBatchSize),
		DefaultHoldDurationMin:        getEnvNum(EnvDefaultHoldDurationMin, DefaultDefaultHoldDurationMin),
		DefaultMinHoldDurationMin:     getEnvNum(EnvDefaultMinHoldDurationMin, DefaultDefaultMinHoldDurationMin),
		DefaultMaxHoldDurationMin:     getEnvNum(EnvDefaultMaxHoldDurationMin, DefaultDefaultMaxHoldDurationMin),
		TransitionRetryAttempts:       getEnvNum(EnvTransitionRetryAttempts, DefaultTransitionRetryAttempts),
		DefaultMaxActiveHoldsPerOwner: getEnvNum(EnvDefaultMaxHoldsPerOwner, DefaultDefaultMaxHoldsPerOwner),
		DefaultActFastCount:           getEnvNum(EnvDefaultActFastCount, DefaultDefaultActFastCount),
		DefaultActFastUniqueOwners:    getEnvNum(EnvDefaultActFastUniqueOwners, DefaultDefaultActFastUniqueOwners),

		AlertRecomputeCron: getEnvStr(EnvAlertRecomputeCron, DefaultAlertRecomputeCron),
		AlertWindowMin:     getEnvNum(EnvAlertWindowMin, DefaultAlertWindowMin),
		AlertGraceMin:      getEnvNum(EnvAlertGraceMin, DefaultAlertGraceMin),
		AlertMaxAge:        getEnvDuration(EnvAlertMaxAge, DefaultAlertMaxAge),

		TraceBufferSize:   getEnvNum(EnvTraceBufferSize, DefaultTraceBufferSize),
		TraceWorkers:      getEnvNum(EnvTraceWorkers, DefaultTraceWorkers),
		TraceWriteTimeout: getEnvDuration(EnvTraceWriteTimeout, DefaultTraceWriteTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

// SetRedis connects the Redis client; only the redis lock backend needs it.
func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"LockTTL", cfg.LockTTL},
		{"LockRetryBackoff", cfg.LockRetryBackoff},
		{"MaxEvaluationWindow", cfg.MaxEvaluationWindow},
		{"AlertMaxAge", cfg.AlertMaxAge},
		{"TraceWriteTimeout", cfg.TraceWriteTimeout},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"RateLimitRequests", cfg.RateLimitRequests},
		{"MaxRequestSize", cfg.MaxRequestSize},
		{"LockRetryAttempts", cfg.LockRetryAttempts},
		{"HoldSweepBatchSize", cfg.HoldSweepBatchSize},
		{"DefaultHoldDurationMin", cfg.DefaultHoldDurationMin},
		{"DefaultMaxHoldDurationMin", cfg.DefaultMaxHoldDurationMin},
		{"TransitionRetryAttempts", cfg.TransitionRetryAttempts},
		{"AlertWindowMin", cfg.AlertWindowMin},
		{"TraceBufferSize", cfg.TraceBufferSize},
		{"TraceWorkers", cfg.TraceWorkers},
	}
	for _, n := range positiveInts {
		if n.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %d", n.name, n.value))
		}
	}

	switch cfg.LockBackend {
	case LockBackendMemory, LockBackendMongo, LockBackendRedis:
	default:
		errors = append(errors, fmt.Sprintf("LockBackend must be one of [memory, mongo, redis], got: %s", cfg.LockBackend))
	}
	if cfg.LockBackend == LockBackendRedis && cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty when LockBackend is redis")
	}

	if cfg.DefaultMinHoldDurationMin < 0 {
		errors = append(errors, fmt.Sprintf("DefaultMinHoldDurationMin cannot be negative, got: %d", cfg.DefaultMinHoldDurationMin))
	}
	if cfg.DefaultMaxHoldDurationMin < cfg.DefaultMinHoldDurationMin {
		errors = append(errors, fmt.Sprintf("DefaultMaxHoldDurationMin (%d) must be >= DefaultMinHoldDurationMin (%d)", cfg.DefaultMaxHoldDurationMin, cfg.DefaultMinHoldDurationMin))
	}
	if cfg.DefaultHoldDurationMin < cfg.DefaultMinHoldDurationMin || cfg.DefaultHoldDurationMin > cfg.DefaultMaxHoldDurationMin {
		errors = append(errors, fmt.Sprintf("DefaultHoldDurationMin (%d) must be between %d and %d", cfg.DefaultHoldDurationMin, cfg.DefaultMinHoldDurationMin, cfg.DefaultMaxHoldDurationMin))
	}
	if cfg.DefaultMaxActiveHoldsPerOwner < 0 {
		errors = append(errors, fmt.Sprintf("DefaultMaxActiveHoldsPerOwner cannot be negative, got: %d", cfg.DefaultMaxActiveHoldsPerOwner))
	}
	if cfg.DependencyMaxDepth < 1 {
		errors = append(errors, fmt.Sprintf("DependencyMaxDepth must be at least 1, got: %d", cfg.DependencyMaxDepth))
	}
	if cfg.AlertGraceMin < 0 {
		errors = append(errors, fmt.Sprintf("AlertGraceMin cannot be negative, got: %d", cfg.AlertGraceMin))
	}

	for name, spec := range map[string]string{"HoldSweepCron": cfg.HoldSweepCron, "AlertRecomputeCron": cfg.AlertRecomputeCron} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errors = append(errors, fmt.Sprintf("%s is not a valid cron spec (%s): %v", name, spec, err))
		}
	}

	if cfg.KafkaEnabled {
		if cfg.KafkaHoldEventsTopic == "" {
			errors = append(errors, "KafkaHoldEventsTopic cannot be empty when Kafka is enabled")
		}
		if cfg.KafkaAlertEventsTopic == "" {
			errors = append(errors, "KafkaAlertEventsTopic cannot be empty when Kafka is enabled")
		}
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"kafka_enabled", cfg.KafkaEnabled,
		"kafka_hold_events_topic", cfg.KafkaHoldEventsTopic,
		"kafka_alert_events_topic", cfg.KafkaAlertEventsTopic,
		"kafka_dlq_topic", cfg.KafkaDLQTopic,
		"kafka_consumer_group", cfg.KafkaConsumerGroup,
		"lock_backend", cfg.LockBackend,
		"lock_ttl", cfg.LockTTL,
		"lock_retry_attempts", cfg.LockRetryAttempts,
		"lock_retry_backoff", cfg.LockRetryBackoff,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"availability_service_url", cfg.AvailabilityServiceURL,
		"dependency_max_depth", cfg.DependencyMaxDepth,
		"max_evaluation_window", cfg.MaxEvaluationWindow,
		"hold_sweep_cron", cfg.HoldSweepCron,
		"default_hold_duration_min", cfg.DefaultHoldDurationMin,
		"default_min_hold_duration_min", cfg.DefaultMinHoldDurationMin,
		"default_max_hold_duration_min", cfg.DefaultMaxHoldDurationMin,
		"alert_recompute_cron", cfg.AlertRecomputeCron,
		"alert_window_min", cfg.AlertWindowMin,
		"alert_grace_min", cfg.AlertGraceMin,
		"trace_buffer_size", cfg.TraceBufferSize,
		"trace_workers", cfg.TraceWorkers,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
