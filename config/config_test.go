package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/config"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "09:00:00", cfg.BirthdayDeliveryTime)
	assert.Equal(t, "10:00:00", cfg.AnniversaryDeliveryTime)
	assert.Equal(t, time.Duration(0), cfg.FastTestDeliveryOffset)
	assert.Equal(t, 10*time.Second, cfg.SchedulerClaimInterval)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerLease)
	assert.Equal(t, 3, cfg.ExecutorMaxRetries)
	assert.Equal(t, 90, cfg.RetentionDays)
}

func TestLoad_ReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("SCHEDULER_BIRTHDAY_DELIVERY_TIME", "08:30:00")
	t.Setenv("SCHEDULER_FAST_TEST_DELIVERY_OFFSET", "72h")
	t.Setenv("SCHEDULER_EXECUTOR_MAX_RETRIES", "5")
	t.Setenv("SCHEDULER_RETENTION_DAYS", "30")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "08:30:00", cfg.BirthdayDeliveryTime)
	assert.Equal(t, 72*time.Hour, cfg.FastTestDeliveryOffset)
	assert.Equal(t, 5, cfg.ExecutorMaxRetries)
	assert.Equal(t, 30, cfg.RetentionDays)
}
