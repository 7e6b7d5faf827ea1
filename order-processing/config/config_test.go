package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stripe", cfg.Payments.DefaultProvider)
	assert.Equal(t, time.Duration(0), cfg.SLA.OrderCreated)
	assert.Equal(t, 24*time.Hour, cfg.SLA.OrderBooked)
	assert.Equal(t, 3*time.Hour, cfg.SLA.RecordReady)
	assert.Equal(t, 17*time.Hour, cfg.SLA.RecordProcessing)
	assert.Equal(t, time.Hour, cfg.Schedule.TransientRetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.Schedule.InitialFulfillmentDelay)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ORDER_BOOKED_SLA", "2h")
	t.Setenv("ORDER_CREATED_SLA", "15m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ENTITIES", "render,upscale")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.SLA.OrderBooked)
	assert.Equal(t, 15*time.Minute, cfg.SLA.OrderCreated)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"render", "upscale"}, cfg.Entities)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("ORDER_BOOKED_SLA", "a day")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ORDER_BOOKED_SLA", "")
	t.Setenv("STORE_BACKEND", "postgres")
	_, err = Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("STORE_BACKEND", "mongo")
	_, err = Load()
	assert.ErrorContains(t, err, "STORE_BACKEND")
}
