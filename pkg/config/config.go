// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Chain     ChainConfig
	Directory DirectoryConfig
	Reconcile ReconcileConfig
	Resolver  ResolverConfig
	Forex     ForexConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    int
	RateWindow   time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	// AddressClaim names the token claim that carries the caller's wallet address.
	AddressClaim string
}

type ChainConfig struct {
	Network         string
	ChainID         int64
	RPCURL          string
	ExplorerURL     string
	ExplorerAPIKey  string
	TokenContract   string
	TokenSymbol     string
	TokenDecimals   int32
	SenderKey       string
	ConfirmInterval time.Duration
}

type DirectoryConfig struct {
	BaseURL     string
	InternalKey string
	Timeout     time.Duration
}

// Configured reports whether both the directory URL and its internal key are set.
func (d DirectoryConfig) Configured() bool {
	return strings.TrimSpace(d.BaseURL) != "" && strings.TrimSpace(d.InternalKey) != ""
}

type ReconcileConfig struct {
	PollAttempts int
	PollInterval time.Duration
	LockTTL      time.Duration

	// Failed deliveries are retried every RedeliverInterval; zero disables it.
	RedeliverInterval time.Duration
	RedeliverBatch    int
	MaxAttempts       int
}

type ResolverConfig struct {
	Debounce time.Duration
}

type ForexConfig struct {
	LocalCurrency   string
	ProviderURL     string
	StaticRate      string
	CacheTTL        time.Duration
	RefreshInterval time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

// Load reads configuration from the environment, after loading an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	network := NetworkFor(getEnv("DOTPAY_NETWORK", "sepolia"))

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimit:    getIntEnv("RATE_LIMIT_REQUESTS", 60),
			RateWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:       getEnv("JWT_SECRET", "change-this-secret"),
			AddressClaim: getEnv("JWT_ADDRESS_CLAIM", "address"),
		},
		Chain: ChainConfig{
			Network:         network.Name,
			ChainID:         int64(getIntEnv("CHAIN_ID", int(network.ChainID))),
			RPCURL:          getEnv("CHAIN_RPC_URL", network.RPCURL),
			ExplorerURL:     getEnv("EXPLORER_API_URL", "https://api.etherscan.io/v2/api"),
			ExplorerAPIKey:  getEnv("EXPLORER_API_KEY", ""),
			TokenContract:   getEnv("USDC_CONTRACT_ADDRESS", network.USDC),
			TokenSymbol:     getEnv("TOKEN_SYMBOL", "USDC"),
			TokenDecimals:   int32(getIntEnv("TOKEN_DECIMALS", 6)),
			SenderKey:       getEnv("SENDER_PRIVATE_KEY", ""),
			ConfirmInterval: getDurationEnv("CONFIRM_POLL_INTERVAL", 2*time.Second),
		},
		Directory: DirectoryConfig{
			BaseURL:     strings.TrimRight(getEnv("DOTPAY_BACKEND_URL", ""), "/"),
			InternalKey: getEnv("DOTPAY_INTERNAL_API_KEY", ""),
			Timeout:     getDurationEnv("DOTPAY_BACKEND_TIMEOUT", 10*time.Second),
		},
		Reconcile: ReconcileConfig{
			PollAttempts: getIntEnv("RECEIPT_POLL_ATTEMPTS", 6),
			PollInterval: getDurationEnv("RECEIPT_POLL_INTERVAL", 900*time.Millisecond),
			LockTTL:      getDurationEnv("DELIVERY_LOCK_TTL", 30*time.Second),

			RedeliverInterval: getDurationEnv("REDELIVERY_INTERVAL", time.Minute),
			RedeliverBatch:    getIntEnv("REDELIVERY_BATCH", 50),
			MaxAttempts:       getIntEnv("MAX_DELIVERY_ATTEMPTS", 10),
		},
		Resolver: ResolverConfig{
			Debounce: getDurationEnv("RESOLVER_DEBOUNCE", 350*time.Millisecond),
		},
		Forex: ForexConfig{
			LocalCurrency:   strings.ToUpper(getEnv("LOCAL_CURRENCY", "KES")),
			ProviderURL:     getEnv("FOREX_PROVIDER_URL", ""),
			StaticRate:      getEnv("FOREX_STATIC_RATE", ""),
			CacheTTL:        getDurationEnv("FOREX_CACHE_TTL", 5*time.Minute),
			RefreshInterval: getDurationEnv("FOREX_REFRESH_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
