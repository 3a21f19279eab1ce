package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadRequiresEnvironment(t *testing.T) {
	clearEnv(t, "ENVIRONMENT")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "ENVIRONMENT", "PORT", "SQS_MAX_MESSAGE_SIZE", "TIMEOUT_SECONDS")
	os.Setenv("ENVIRONMENT", "prod")
	t.Cleanup(func() { os.Unsetenv("ENVIRONMENT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProd, cfg.Environment)
	assert.Equal(t, "10240", cfg.Port)
	assert.Equal(t, 262144, cfg.SQSMaxMessageSize)
	assert.Equal(t, 60, cfg.TimeoutSeconds)
	assert.Equal(t, 5*time.Second, cfg.EventBusReconnectInterval)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	clearEnv(t, "ENVIRONMENT")
	os.Setenv("ENVIRONMENT", "dev")
	t.Cleanup(func() { os.Unsetenv("ENVIRONMENT") })

	_, err := Load()
	require.Error(t, err)
}

func TestQueueURLMapReadsPerEnvironmentOverrides(t *testing.T) {
	clearEnv(t, "ENVIRONMENT", "QUEUE_URL_BLUE_PROD", "QUEUE_URL_GREEN_PROD")
	os.Setenv("ENVIRONMENT", "prod")
	os.Setenv("QUEUE_URL_BLUE_PROD", "https://sqs.example/prod-compilation-queue-blue.fifo")
	t.Cleanup(func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("QUEUE_URL_BLUE_PROD")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://sqs.example/prod-compilation-queue-blue.fifo", cfg.QueueURLBlueByEnv["prod"])
	assert.Empty(t, cfg.QueueURLGreenByEnv["prod"])
}

func TestCORSAllowedOriginsParsesCommaList(t *testing.T) {
	clearEnv(t, "ENVIRONMENT", "CORS_ALLOWED_ORIGINS")
	os.Setenv("ENVIRONMENT", "staging")
	os.Setenv("CORS_ALLOWED_ORIGINS", "https://godbolt.org, https://beta.godbolt.org")
	t.Cleanup(func() {
		os.Unsetenv("ENVIRONMENT")
		os.Unsetenv("CORS_ALLOWED_ORIGINS")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://godbolt.org", "https://beta.godbolt.org"}, cfg.CORSAllowedOrigins)
}
