package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOTPAY_NETWORK", "sepolia")
	t.Setenv("DOTPAY_BACKEND_URL", "")

	cfg := Load()

	assert.Equal(t, int64(421614), cfg.Chain.ChainID)
	assert.Equal(t, ArbitrumSepolia.USDC, cfg.Chain.TokenContract)
	assert.Equal(t, int32(6), cfg.Chain.TokenDecimals)
	assert.Equal(t, 6, cfg.Reconcile.PollAttempts)
	assert.Equal(t, 900*time.Millisecond, cfg.Reconcile.PollInterval)
	assert.Equal(t, 350*time.Millisecond, cfg.Resolver.Debounce)
	assert.False(t, cfg.Directory.Configured())
}

func TestLoad_MainnetAndOverrides(t *testing.T) {
	t.Setenv("DOTPAY_NETWORK", "production")
	t.Setenv("DOTPAY_BACKEND_URL", "https://api.dotpay.test/")
	t.Setenv("DOTPAY_INTERNAL_API_KEY", "k")
	t.Setenv("RECEIPT_POLL_INTERVAL", "250ms")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	cfg := Load()

	assert.Equal(t, "mainnet", cfg.Chain.Network)
	assert.Equal(t, int64(42161), cfg.Chain.ChainID)
	assert.Equal(t, ArbitrumOne.USDC, cfg.Chain.TokenContract)
	assert.Equal(t, "https://api.dotpay.test", cfg.Directory.BaseURL)
	assert.True(t, cfg.Directory.Configured())
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.PollInterval)
	assert.Equal(t, "cache:6379", cfg.Redis.URL)
}

func TestNetworkFor(t *testing.T) {
	assert.Equal(t, ArbitrumOne, NetworkFor("prod"))
	assert.Equal(t, ArbitrumOne, NetworkFor("MAINNET"))
	assert.Equal(t, ArbitrumSepolia, NetworkFor("testnet"))
	assert.Equal(t, ArbitrumSepolia, NetworkFor(""))
}

func TestValidateCore(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: "8080"},
		Redis:  RedisConfig{URL: "localhost:6379"},
		JWT:    JWTConfig{Secret: "change-this-secret"},
		Chain:  ChainConfig{RPCURL: "http://rpc", TokenContract: ArbitrumSepolia.USDC},
	}

	err := cfg.ValidateCore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.Database.URL = "postgres://localhost/dotpay"
	cfg.JWT.Secret = "s3cret"
	assert.NoError(t, cfg.ValidateCore())

	assert.Error(t, cfg.ValidateSender())
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("FLAG_ON", "yes")
	t.Setenv("FLAG_OFF", "off")
	assert.True(t, getBoolEnv("FLAG_ON", false))
	assert.False(t, getBoolEnv("FLAG_OFF", true))
	assert.True(t, getBoolEnv("FLAG_MISSING", true))
}
