package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgstrings "countries/pkg/platform/strings"
)

// StoreDriver selects the country store backend.
type StoreDriver string

const (
	StoreCassandra StoreDriver = "cassandra"
	StorePostgres  StoreDriver = "postgres"
	StoreMemory    StoreDriver = "memory"
)

// Server captures process level configuration.
type Server struct {
	Addr         string
	Store        StoreDriver
	MaxPageLimit int
	MaxOffset    int
	LogLevel     string
	LogFormat    string
	Cassandra    CassandraConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
}

// CassandraConfig describes how to reach the column store. Either BundlePath
// (Astra secure connect bundle) or Hosts must be set. A relative
// ASTRA_DB_BUNDLE_PATH is resolved against the process working directory, so
// deployments that start the binary elsewhere should pass an absolute path.
type CassandraConfig struct {
	BundlePath  string
	Username    string
	Password    string
	Keyspace    string
	Hosts       []string
	Consistency string
	Timeout     time.Duration
}

// PostgresConfig holds the DSN for the alternative relational store.
type PostgresConfig struct {
	URL string
}

// RedisConfig enables the lookup cache when URL is non-empty.
type RedisConfig struct {
	URL          string
	CacheTTL     time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the change-event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads an optional .env file and then builds the config from the environment.
func Load() (Server, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Server{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	addr := os.Getenv("COUNTRIES_ADDR")
	if addr == "" {
		addr = ":" + envOr("PORT", "5000")
	}

	maxLimit, err := envInt("COUNTRIES_MAX_PAGE_LIMIT", 100)
	if err != nil {
		return Server{}, err
	}
	maxOffset, err := envInt("COUNTRIES_MAX_OFFSET", 100_000)
	if err != nil {
		return Server{}, err
	}
	cassTimeout, err := envDuration("CASSANDRA_TIMEOUT", 10*time.Second)
	if err != nil {
		return Server{}, err
	}
	cacheTTL, err := envDuration("REDIS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:         addr,
		Store:        StoreDriver(strings.ToLower(envOr("COUNTRIES_STORE", string(StoreCassandra)))),
		MaxPageLimit: maxLimit,
		MaxOffset:    maxOffset,
		LogLevel:     envOr("LOG_LEVEL", "info"),
		LogFormat:    envOr("LOG_FORMAT", "json"),
		Cassandra: CassandraConfig{
			BundlePath:  os.Getenv("ASTRA_DB_BUNDLE_PATH"),
			Username:    os.Getenv("ASTRA_DB_CLIENT_ID"),
			Password:    os.Getenv("ASTRA_DB_SECRET"),
			Keyspace:    envOr("ASTRA_DB_KEYSPACE", "countries"),
			Hosts:       pkgstrings.SplitList(os.Getenv("CASSANDRA_HOSTS")),
			Consistency: envOr("CASSANDRA_CONSISTENCY", "LOCAL_QUORUM"),
			Timeout:     cassTimeout,
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			CacheTTL:     cacheTTL,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "countries.changes"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start a server.
func (s Server) Validate() error {
	if s.MaxPageLimit < 1 {
		return fmt.Errorf("COUNTRIES_MAX_PAGE_LIMIT must be positive, got %d", s.MaxPageLimit)
	}
	if s.MaxOffset < 1 {
		return fmt.Errorf("COUNTRIES_MAX_OFFSET must be positive, got %d", s.MaxOffset)
	}
	switch s.Store {
	case StoreCassandra:
		if s.Cassandra.BundlePath == "" && len(s.Cassandra.Hosts) == 0 {
			return errors.New("cassandra store requires ASTRA_DB_BUNDLE_PATH or CASSANDRA_HOSTS")
		}
		if s.Cassandra.Keyspace == "" {
			return errors.New("cassandra store requires ASTRA_DB_KEYSPACE")
		}
	case StorePostgres:
		if s.Postgres.URL == "" {
			return errors.New("postgres store requires DATABASE_URL")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown COUNTRIES_STORE %q", s.Store)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
