package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	"tripdesk/pkg/client"
	"tripdesk/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	JWTSecret string

	KafkaBrokers            []string
	KafkaClientTopic        string
	KafkaSupportTopic       string
	KafkaDLQTopic           string
	KafkaProducerMaxRetries int
	KafkaBatchTimeout       time.Duration
	NotifyTimeout           time.Duration

	RequestTimeout time.Duration
	MaxRequestSize int
	IdempotencyTTL time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DefaultMinLeadHours    int
	DefaultMaxLeadHours    int
	DefaultRescheduleLimit int
	DefaultSuggestionCount int

	RescheduleLockTTL time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	// Missing .env is fine, deployments set real environment variables.
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret: getEnvStr(EnvJWTSecret, ""),

		KafkaBrokers:            splitAndTrim(getEnvStr(EnvKafkaBrokers, DefaultKafkaBrokers)),
		KafkaClientTopic:        getEnvStr(EnvKafkaClientTopic, DefaultKafkaClientTopic),
		KafkaSupportTopic:       getEnvStr(EnvKafkaSupportTopic, DefaultKafkaSupportTopic),
		KafkaDLQTopic:           getEnvStr(EnvKafkaDLQTopic, DefaultKafkaDLQTopic),
		KafkaProducerMaxRetries: getEnvNum(EnvKafkaProducerMaxRetries, DefaultKafkaProducerMaxRetries),
		KafkaBatchTimeout:       getEnvDuration(EnvKafkaBatchTimeout, DefaultKafkaBatchTimeout),
		NotifyTimeout:           getEnvDuration(EnvNotifyTimeout, DefaultNotifyTimeout),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		DefaultMinLeadHours:    getEnvNum(EnvDefaultMinLeadHours, DefaultDefaultMinLeadHours),
		DefaultMaxLeadHours:    getEnvNum(EnvDefaultMaxLeadHours, DefaultDefaultMaxLeadHours),
		DefaultRescheduleLimit: getEnvNum(EnvDefaultRescheduleLimit, DefaultDefaultRescheduleLimit),
		DefaultSuggestionCount: getEnvNum(EnvDefaultSuggestionCount, DefaultDefaultSuggestionCount),

		RescheduleLockTTL: getEnvDuration(EnvRescheduleLockTTL, DefaultRescheduleLockTTL),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if len(cfg.KafkaBrokers) == 0 {
		errors = append(errors, "At least one Kafka broker is required")
	}
	for i, broker := range cfg.KafkaBrokers {
		if broker == "" {
			errors = append(errors, fmt.Sprintf("Kafka broker %d cannot be empty", i))
		}
	}
	if cfg.KafkaClientTopic == "" || cfg.KafkaSupportTopic == "" {
		errors = append(errors, "Kafka notification topics cannot be empty")
	}
	if cfg.KafkaProducerMaxRetries <= 0 {
		errors = append(errors, fmt.Sprintf("KafkaProducerMaxRetries must be positive, got: %d", cfg.KafkaProducerMaxRetries))
	}
	if cfg.NotifyTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("NotifyTimeout must be positive, got: %s", cfg.NotifyTimeout))
	}

	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.DefaultMinLeadHours < 0 {
		errors = append(errors, fmt.Sprintf("DefaultMinLeadHours cannot be negative, got: %d", cfg.DefaultMinLeadHours))
	}
	if cfg.DefaultMaxLeadHours <= cfg.DefaultMinLeadHours {
		errors = append(errors, fmt.Sprintf("DefaultMaxLeadHours (%d) must be greater than DefaultMinLeadHours (%d)", cfg.DefaultMaxLeadHours, cfg.DefaultMinLeadHours))
	}
	if cfg.DefaultRescheduleLimit <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultRescheduleLimit must be positive, got: %d", cfg.DefaultRescheduleLimit))
	}
	if cfg.DefaultSuggestionCount <= 0 {
		errors = append(errors, fmt.Sprintf("DefaultSuggestionCount must be positive, got: %d", cfg.DefaultSuggestionCount))
	}
	if cfg.RescheduleLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("RescheduleLockTTL must be positive, got: %s", cfg.RescheduleLockTTL))
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
		"jwt_secret_set", cfg.JWTSecret != "",
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_client_topic", cfg.KafkaClientTopic,
		"kafka_support_topic", cfg.KafkaSupportTopic,
		"kafka_dlq_topic", cfg.KafkaDLQTopic,
		"notify_timeout", cfg.NotifyTimeout,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"default_min_lead_hours", cfg.DefaultMinLeadHours,
		"default_max_lead_hours", cfg.DefaultMaxLeadHours,
		"default_reschedule_limit", cfg.DefaultRescheduleLimit,
		"default_suggestion_count", cfg.DefaultSuggestionCount,
		"reschedule_lock_ttl", cfg.RescheduleLockTTL,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
