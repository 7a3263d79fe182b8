package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "slotkeeper"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultKafkaEnabled          = false
	DefaultKafkaHoldEventsTopic  = "slotkeeper.hold-events"
	DefaultKafkaAlertEventsTopic = "slotkeeper.alert-events"
	DefaultKafkaDLQTopic         = "slotkeeper.dlq"
	DefaultKafkaConsumerGroup    = "slotkeeper-alerts"

	LockBackendMemory = "memory"
	LockBackendMongo  = "mongo"
	LockBackendRedis  = "redis"

	DefaultLockBackend       = LockBackendMongo
	DefaultLockTTL           = 10 * time.Second
	DefaultLockRetryAttempts = 20
	DefaultLockRetryBackoff  = 25 * time.Millisecond
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisDB           = 0

	DefaultAvailabilityServiceURL = ""
	DefaultDependencyMaxDepth     = 1
	DefaultMaxEvaluationWindow    = 31 * 24 * time.Hour

	DefaultHoldSweepCron              = "@every 30s"
	DefaultHoldSweepBatchSize         = 200
	DefaultDefaultHoldDurationMin     = 15
	DefaultDefaultMinHoldDurationMin  = 1
	DefaultDefaultMaxHoldDurationMin  = 60
	DefaultTransitionRetryAttempts    = 3
	DefaultDefaultMaxHoldsPerOwner    = 5
	DefaultDefaultActFastCount        = 10
	DefaultDefaultActFastUniqueOwners = 5

	DefaultAlertRecomputeCron = "@every 1m"
	DefaultAlertWindowMin     = 60
	DefaultAlertGraceMin      = 10
	DefaultAlertMaxAge        = 24 * time.Hour

	DefaultTraceBufferSize   = 1024
	DefaultTraceWorkers      = 4
	DefaultTraceWriteTimeout = 5 * time.Second
)
