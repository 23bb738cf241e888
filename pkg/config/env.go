package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvJWTSecret = "JWT_SECRET"

	EnvKafkaBrokers            = "KAFKA_BROKERS"
	EnvKafkaClientTopic        = "KAFKA_CLIENT_NOTIFICATIONS_TOPIC"
	EnvKafkaSupportTopic       = "KAFKA_SUPPORT_NOTIFICATIONS_TOPIC"
	EnvKafkaDLQTopic           = "KAFKA_DLQ_TOPIC"
	EnvKafkaProducerMaxRetries = "KAFKA_PRODUCER_MAX_RETRIES"
	EnvKafkaBatchTimeout       = "KAFKA_BATCH_TIMEOUT"
	EnvNotifyTimeout           = "NOTIFY_TIMEOUT"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvDefaultMinLeadHours     = "DEFAULT_MIN_LEAD_HOURS"
	EnvDefaultMaxLeadHours     = "DEFAULT_MAX_LEAD_HOURS"
	EnvDefaultRescheduleLimit  = "DEFAULT_RESCHEDULE_LIMIT"
	EnvDefaultSuggestionCount  = "DEFAULT_SUGGESTION_COUNT"
	EnvRescheduleLockTTL       = "RESCHEDULE_LOCK_TTL"
)
