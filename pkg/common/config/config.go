package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServiceName    string
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers           []string
	KafkaGroupID           string
	KafkaNotificationTopic string
	KafkaSMSTopic          string

	// Tokens
	TokenStore    string
	TokenTTL      time.Duration
	PublicBaseURL string

	// Dispatch
	DispatchConcurrency int
	SMSTimeout          time.Duration

	// SMS transport
	SMSTransport     string
	SMSGatewayURL    string
	SMSSenderID      string
	SMSClientID      string
	SMSClientSecret  string
	SMSTokenURL      string
	SMSRetryAttempts int
	SMSTemplatesPath string

	// Auth
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration

	// Live updates
	LiveHeartbeat time.Duration
	LiveBuffer    int

	// Gateway specific
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int

	CleanupInterval time.Duration
}

func Load() *Config {
	return &Config{
		ServiceName:    getEnv("SERVICE_NAME", "dispatch-service"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "bloodbridge"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "bloodbridge"),
		PostgresDB:       getEnv("POSTGRES_DB", "bloodbridge"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:           getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "bloodbridge-sms-relay"),
		KafkaNotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", ""),
		KafkaSMSTopic:          getEnv("KAFKA_SMS_TOPIC", "sms-outbox"),

		TokenStore:    strings.ToLower(getEnv("TOKEN_STORE", "postgres")),
		TokenTTL:      getDuration("TOKEN_TTL", 24*time.Hour),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		DispatchConcurrency: getIntEnv("DISPATCH_CONCURRENCY", 8),
		SMSTimeout:          getDuration("SMS_TIMEOUT", 10*time.Second),

		SMSTransport:     strings.ToLower(getEnv("SMS_TRANSPORT", "log")),
		SMSGatewayURL:    getEnv("SMS_GATEWAY_URL", ""),
		SMSSenderID:      getEnv("SMS_SENDER_ID", "BLOODBRIDGE"),
		SMSClientID:      getEnv("SMS_CLIENT_ID", ""),
		SMSClientSecret:  getEnv("SMS_CLIENT_SECRET", ""),
		SMSTokenURL:      getEnv("SMS_TOKEN_URL", ""),
		SMSRetryAttempts: getIntEnv("SMS_RETRY_ATTEMPTS", 2),
		SMSTemplatesPath: getEnv("SMS_TEMPLATES_PATH", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "bloodbridge"),
		JWTAudience: getEnv("JWT_AUDIENCE", "bloodbridge-hospitals"),
		JWTTTL:      getDuration("JWT_TTL", 12*time.Hour),

		LiveHeartbeat: getDuration("LIVE_HEARTBEAT", 25*time.Second),
		LiveBuffer:    getIntEnv("LIVE_BUFFER", 64),

		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),

		CleanupInterval: getDuration("CLEANUP_INTERVAL", 12*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
