// Package config loads router configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment identifies a deployment tier, used as the first half of
// composite routing-table keys and the SSM active-color path.
type Environment string

const (
	EnvProd    Environment = "prod"
	EnvBeta    Environment = "beta"
	EnvStaging Environment = "staging"
)

// Config holds all operator-tunable settings for the router process.
type Config struct {
	Environment Environment
	Port        string
	LogLevel    string

	CORSAllowedOrigins []string

	EventBusURL                  string
	EventBusMaxReconnectAttempts int
	EventBusReconnectInterval    time.Duration
	EventBusPingInterval         time.Duration

	TimeoutSeconds int

	SQSMaxMessageSize int

	S3OverflowBucket         string
	S3OverflowPrefix         string
	CompilationResultsBucket string
	CompilationResultsPrefix string

	AWSRegion           string
	AWSEndpointOverride string

	RoutingTableName string

	QueueURLBlueByEnv  map[string]string
	QueueURLGreenByEnv map[string]string

	MetricsAddr string
}

// SubscribeSettleDelay is the fixed pause the facade waits after issuing a
// bus subscribe before it is safe to publish the correlated queue message.
const SubscribeSettleDelay = 50 * time.Millisecond

// Load reads configuration from environment variables, applying the
// defaults enumerated in the specification.
func Load() (*Config, error) {
	env := Environment(strings.ToLower(strings.TrimSpace(getEnv("ENVIRONMENT", ""))))
	switch env {
	case EnvProd, EnvBeta, EnvStaging:
	default:
		return nil, fmt.Errorf("config: ENVIRONMENT must be one of prod|beta|staging, got %q", env)
	}

	corsOrigins := []string{"*"}
	if raw := strings.TrimSpace(getEnv("CORS_ALLOWED_ORIGINS", "")); raw != "" {
		corsOrigins = nil
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			corsOrigins = append(corsOrigins, origin)
		}
	}

	cfg := &Config{
		Environment:        env,
		Port:               getEnv("PORT", "10240"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: corsOrigins,

		EventBusURL:                  getEnv("WEBSOCKET_URL", defaultEventBusURL(env)),
		EventBusMaxReconnectAttempts: getEnvAsInt("EVENTBUS_MAX_RECONNECT_ATTEMPTS", 10),
		EventBusReconnectInterval:    getEnvAsDuration("EVENTBUS_RECONNECT_INTERVAL", 5*time.Second),
		EventBusPingInterval:         getEnvAsDuration("EVENTBUS_PING_INTERVAL", 30*time.Second),

		TimeoutSeconds: getEnvAsInt("TIMEOUT_SECONDS", 60),

		SQSMaxMessageSize: getEnvAsInt("SQS_MAX_MESSAGE_SIZE", 262144),

		S3OverflowBucket:         getEnv("S3_OVERFLOW_BUCKET", "temp-storage.godbolt.org"),
		S3OverflowPrefix:         getEnv("S3_OVERFLOW_PREFIX", "sqs-overflow/"),
		CompilationResultsBucket: getEnv("COMPILATION_RESULTS_BUCKET", "storage.godbolt.org"),
		CompilationResultsPrefix: getEnv("COMPILATION_RESULTS_PREFIX", "cache/"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RoutingTableName: getEnv("ROUTING_TABLE_NAME", "CompilerRouting"),

		QueueURLBlueByEnv:  queueURLMap("BLUE"),
		QueueURLGreenByEnv: queueURLMap("GREEN"),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	return cfg, nil
}

func defaultEventBusURL(env Environment) string {
	return fmt.Sprintf("wss://events.godbolt.org/%s", env)
}

// queueURLMap reads per-environment queue URL overrides of the shape
// QUEUE_URL_<COLOR>_<ENV>, e.g. QUEUE_URL_BLUE_PROD.
func queueURLMap(color string) map[string]string {
	out := map[string]string{}
	for _, env := range []Environment{EnvProd, EnvBeta, EnvStaging} {
		key := fmt.Sprintf("QUEUE_URL_%s_%s", color, strings.ToUpper(string(env)))
		if v := getEnv(key, ""); v != "" {
			out[string(env)] = v
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(raw); err == nil {
		return value
	}
	return defaultValue
}
