package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvKafkaEnabled          = "KAFKA_ENABLED"
	EnvKafkaHoldEventsTopic  = "KAFKA_HOLD_EVENTS_TOPIC"
	EnvKafkaAlertEventsTopic = "KAFKA_ALERT_EVENTS_TOPIC"
	EnvKafkaDLQTopic         = "KAFKA_DLQ_TOPIC"
	EnvKafkaConsumerGroup    = "KAFKA_CONSUMER_GROUP"

	EnvLockBackend       = "LOCK_BACKEND"
	EnvLockTTL           = "LOCK_TTL"
	EnvLockRetryAttempts = "LOCK_RETRY_ATTEMPTS"
	EnvLockRetryBackoff  = "LOCK_RETRY_BACKOFF"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"

	EnvAvailabilityServiceURL = "AVAILABILITY_SERVICE_URL"
	EnvDependencyMaxDepth     = "DEPENDENCY_MAX_DEPTH"
	EnvMaxEvaluationWindow    = "MAX_EVALUATION_WINDOW"

	EnvHoldSweepCron              = "HOLD_SWEEP_CRON"
	EnvHoldSweepBatchSize         = "HOLD_SWEEP_BATCH_SIZE"
	EnvDefaultHoldDurationMin     = "DEFAULT_HOLD_DURATION_MIN"
	EnvDefaultMinHoldDurationMin  = "DEFAULT_MIN_HOLD_DURATION_MIN"
	EnvDefaultMaxHoldDurationMin  = "DEFAULT_MAX_HOLD_DURATION_MIN"
	EnvTransitionRetryAttempts    = "TRANSITION_RETRY_ATTEMPTS"
	EnvDefaultMaxHoldsPerOwner    = "DEFAULT_MAX_ACTIVE_HOLDS_PER_OWNER"
	EnvDefaultActFastCount        = "DEFAULT_ACT_FAST_THRESHOLD_COUNT"
	EnvDefaultActFastUniqueOwners = "DEFAULT_ACT_FAST_THRESHOLD_UNIQUE_OWNERS"

	EnvAlertRecomputeCron = "ALERT_RECOMPUTE_CRON"
	EnvAlertWindowMin     = "ALERT_WINDOW_MIN"
	EnvAlertGraceMin      = "ALERT_GRACE_MIN"
	EnvAlertMaxAge        = "ALERT_MAX_AGE"

	EnvTraceBufferSize   = "TRACE_BUFFER_SIZE"
	EnvTraceWorkers      = "TRACE_WORKERS"
	EnvTraceWriteTimeout = "TRACE_WRITE_TIMEOUT"
)
