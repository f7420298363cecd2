package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"pacer/internal/cache"
	"pacer/internal/database"
	"pacer/internal/messaging"
)

// Config holds the application configuration
type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	RequestTimeout time.Duration

	// Performance monitoring
	PprofEnabled bool
	PprofPort    string

	StoreDriver string
	DemoSeed    bool

	Database      database.Config
	NATS          messaging.Config
	Valkey        cache.Config
	Elasticsearch ElasticsearchConfig
	Engine        EngineConfig
}

// EngineConfig tunes the pacing engine
type EngineConfig struct {
	Workers         int
	CacheTTL        time.Duration
	RefreshInterval time.Duration
}

// Load reads configuration from the environment, after applying .env if present
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8081"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,

		PprofEnabled: getEnv("PPROF_ENABLED", "false") == "true",
		PprofPort:    getEnv("PPROF_PORT", "6060"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		DemoSeed:    getEnvBool("DEMO_SEED", false),

		Database: database.Config{
			Host:               getEnv("DB_HOST", "localhost"),
			Port:               getEnvInt("DB_PORT", 5432),
			User:               getEnv("DB_USER", "pacer"),
			Password:           getEnv("DB_PASSWORD", "pacer123"),
			DBName:             getEnv("DB_NAME", "pacer"),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetimeMin: getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 5),
			ConnMaxIdleTimeMin: getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", 1),
		},

		NATS: messaging.Config{
			Enabled:   getEnvBool("NATS_ENABLED", false),
			URL:       getEnv("NATS_URL", "nats://localhost:4222"),
			ClusterID: getEnv("NATS_CLUSTER_ID", "pacer"),
			ClientID:  getEnv("NATS_CLIENT_ID", "pacer-api"),
		},

		Valkey: cache.Config{
			Enabled:  getEnvBool("VALKEY_ENABLED", false),
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: os.Getenv("VALKEY_PASSWORD"),
		},

		Elasticsearch: LoadElasticsearchConfig(),

		Engine: EngineConfig{
			Workers:         getEnvInt("ENGINE_WORKERS", 8),
			CacheTTL:        time.Duration(getEnvInt("ANALYSIS_CACHE_TTL_SEC", 60)) * time.Second,
			RefreshInterval: time.Duration(getEnvInt("REFRESH_INTERVAL_SEC", 300)) * time.Second,
		},
	}
}

// getEnv returns the environment value or the default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer environment value or the default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
