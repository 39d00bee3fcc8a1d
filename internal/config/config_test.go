package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 100000, cfg.Jobs.MaxTextChars)
	assert.Equal(t, 3, cfg.Jobs.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Jobs.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Notify.Keepalive)
	assert.Equal(t, time.Hour, cfg.Storage.URLTTL)
	assert.Equal(t, "minio", cfg.Storage.Driver)
	assert.Equal(t, "X-Owner-ID", cfg.Auth.OwnerHeader)
	assert.Equal(t, 4, cfg.Worker.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.Jobs.LockTTL)
	assert.Equal(t, time.Minute, cfg.Jobs.LockWait)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9999")
	t.Setenv("JOBS_MAX_RETRIES", "5")
	t.Setenv("JOBS_RETRY_DELAY", "250ms")
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("API_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Jobs.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Jobs.RetryDelay)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"WORKER_POOL_SIZE":    "0",
		"JOBS_MAX_TEXT_CHARS": "0",
		"JOBS_SUMMARY_RATIO":  "1.5",
		"STORAGE_DRIVER":      "ftp",
		"NOTIFY_KEEPALIVE":    "0s",
		"JOBS_LOCK_TTL":       "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_PendingTimeoutMustExceedRetryWindow(t *testing.T) {
	t.Setenv("JOBS_MAX_RETRIES", "10")
	t.Setenv("JOBS_RETRY_DELAY", "5m")
	t.Setenv("JOBS_PENDING_TIMEOUT", "30m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBS_PENDING_TIMEOUT")
}

func TestValidate_LockWaitMustCoverLockTTL(t *testing.T) {
	t.Setenv("JOBS_LOCK_TTL", "2m")
	t.Setenv("JOBS_LOCK_WAIT", "1m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBS_LOCK_WAIT")
}
