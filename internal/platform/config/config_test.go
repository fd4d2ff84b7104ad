package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COUNTRIES_ADDR", "PORT", "COUNTRIES_STORE", "COUNTRIES_MAX_PAGE_LIMIT", "COUNTRIES_MAX_OFFSET",
		"ASTRA_DB_BUNDLE_PATH", "ASTRA_DB_CLIENT_ID", "ASTRA_DB_SECRET", "ASTRA_DB_KEYSPACE",
		"CASSANDRA_HOSTS", "CASSANDRA_CONSISTENCY", "CASSANDRA_TIMEOUT",
		"DATABASE_URL", "REDIS_URL", "REDIS_CACHE_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CASSANDRA_HOSTS", "10.0.0.1, 10.0.0.2 ,")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, StoreCassandra, cfg.Store)
	assert.Equal(t, 100, cfg.MaxPageLimit)
	assert.Equal(t, 100_000, cfg.MaxOffset)
	assert.Equal(t, "countries", cfg.Cassandra.Keyspace)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Cassandra.Hosts)
	assert.Equal(t, "LOCAL_QUORUM", cfg.Cassandra.Consistency)
	assert.Equal(t, 10*time.Second, cfg.Cassandra.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "countries.changes", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("COUNTRIES_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/countries")
	t.Setenv("COUNTRIES_MAX_PAGE_LIMIT", "25")
	t.Setenv("COUNTRIES_MAX_OFFSET", "5000")
	t.Setenv("REDIS_CACHE_TTL", "30s")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 25, cfg.MaxPageLimit)
	assert.Equal(t, 5000, cfg.MaxOffset)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnvAddrWinsOverPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("COUNTRIES_STORE", "memory")
	t.Setenv("PORT", "8081")
	t.Setenv("COUNTRIES_ADDR", "127.0.0.1:9000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
}

func TestFromEnvRejectsInvalidConfig(t *testing.T) {
	cases := map[string]map[string]string{
		"cassandra without endpoints": {"COUNTRIES_STORE": "cassandra"},
		"postgres without dsn":        {"COUNTRIES_STORE": "postgres"},
		"unknown store":               {"COUNTRIES_STORE": "mongo"},
		"bad page limit":              {"COUNTRIES_STORE": "memory", "COUNTRIES_MAX_PAGE_LIMIT": "many"},
		"zero page limit":             {"COUNTRIES_STORE": "memory", "COUNTRIES_MAX_PAGE_LIMIT": "0"},
		"negative max offset":         {"COUNTRIES_STORE": "memory", "COUNTRIES_MAX_OFFSET": "-1"},
		"bad timeout":                 {"COUNTRIES_STORE": "memory", "CASSANDRA_TIMEOUT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
