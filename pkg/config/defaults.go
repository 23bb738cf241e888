package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "tripdesk"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultKafkaBrokers            = "localhost:9092"
	DefaultKafkaClientTopic        = "tripdesk.reschedule.client"
	DefaultKafkaSupportTopic       = "tripdesk.reschedule.support"
	DefaultKafkaDLQTopic           = "tripdesk.reschedule.dlq"
	DefaultKafkaProducerMaxRetries = 3
	DefaultKafkaBatchTimeout       = 100 * time.Millisecond
	DefaultNotifyTimeout           = 5 * time.Second

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB
	DefaultIdempotencyTTL = 24 * time.Hour

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Engine fallbacks used when no rule of the matching type is configured.
	DefaultDefaultMinLeadHours    = 24
	DefaultDefaultMaxLeadHours    = 8760 // one year
	DefaultDefaultRescheduleLimit = 3
	DefaultDefaultSuggestionCount = 5

	DefaultRescheduleLockTTL = 10 * time.Second

	DefaultPaginationLimit = 100
)
