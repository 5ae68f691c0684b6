package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BROKER", "")
	t.Setenv("SESSION_TTL", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "amqp", cfg.Broker)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadKafkaRequiresBrokers(t *testing.T) {
	t.Setenv("BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SESSION_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
}

func TestLoadRejectsBadBool(t *testing.T) {
	t.Setenv("DEBUG_ROUTES", "maybe")

	_, err := Load()
	require.Error(t, err)
}
