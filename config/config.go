// Package config loads the bridge configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration
type Config struct {
	Port            uint16        `env:"PORT" envDefault:"9000"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Optional infrastructure, in-memory fallbacks are used when empty
	RedisURL    string `env:"REDIS_URL"`
	PostgresDSN string `env:"PG_DSN"`

	Auth   AuthConfig
	Solana SolanaConfig
	Unity  UnityConfig
}

// AuthConfig configures wallet login and service access
type AuthConfig struct {
	AppName        string        `env:"AUTH_APP_NAME" envDefault:"Booh Marketplace"`
	JWTPrivateKey  string        `env:"AUTH_JWT_PRIVATE_KEY"` // PEM encoded P-256 key
	SessionTTL     time.Duration `env:"AUTH_SESSION_TTL" envDefault:"1h"`
	NonceTTL       time.Duration `env:"AUTH_NONCE_TTL" envDefault:"5m"`
	ServiceAPIKey  string        `env:"SERVICE_API_KEY,required"`
	AdminWallets   []string      `env:"AUTH_ADMIN_WALLETS" envSeparator:","`
	RateLimitRPS   float64       `env:"AUTH_RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int           `env:"AUTH_RATE_LIMIT_BURST" envDefault:"5"`
}

// SolanaConfig configures the token side of the bridge
type SolanaConfig struct {
	RPCURL         string        `env:"SOLANA_NODE,required"`
	Mint           string        `env:"BOOH_MINT,required"`
	Decimals       uint8         `env:"BOOH_DECIMALS" envDefault:"9"`
	TreasurySecret string        `env:"TREASURY_OWNER_SECRET,required"` // base58
	ConfirmPoll    time.Duration `env:"SOLANA_CONFIRM_POLL" envDefault:"1s"`
}

// UnityConfig configures the ledger provider
type UnityConfig struct {
	AuthURL       string        `env:"UNITY_AUTH_URL" envDefault:"https://services.api.unity.com/auth"`
	CloudSaveURL  string        `env:"UNITY_CLOUD_SAVE_URL" envDefault:"https://cloud-save.services.api.unity.com"`
	ProjectID     string        `env:"BB_PROJECT_ID,required"`
	EnvironmentID string        `env:"BB_ENVIRONMENT_ID,required"`
	KeyID         string        `env:"BB_KEY_ID"`
	SecretKey     string        `env:"BB_SECRET_KEY"`
	AuthHeader    string        `env:"BB_AUTH"` // preformatted Authorization header, wins over key id/secret
	RecordKey     string        `env:"BB_RECORD_KEY" envDefault:"CryptoData"`
	WalletField   string        `env:"BB_WALLET_FIELD" envDefault:"WalletAddress"`
	BalanceField  string        `env:"BB_BALANCE_FIELD" envDefault:"BabyBoohCoin"`
	Timeout       time.Duration `env:"BB_TIMEOUT" envDefault:"10s"`
	SafetyMargin  time.Duration `env:"BB_TOKEN_SAFETY_MARGIN" envDefault:"60s"`
	FallbackTTL   time.Duration `env:"BB_TOKEN_FALLBACK_TTL" envDefault:"10m"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Unity.AuthHeader == "" && (cfg.Unity.KeyID == "" || cfg.Unity.SecretKey == "") {
		return nil, fmt.Errorf("either BB_AUTH or BB_KEY_ID and BB_SECRET_KEY must be set")
	}

	return cfg, nil
}
