package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RPCURL          string
	ContractAddress string
	OwnerPrivateKey string
	ChainID         int64

	LedgerCallTimeout    time.Duration
	LedgerConfirmTimeout time.Duration
	LedgerPollInterval   time.Duration
	LedgerPollStartBlock uint64
	LedgerAvailableScan  int

	AbandonCleanupDelay time.Duration

	RedisURL    string
	DatabaseURL string

	SettlementWebhookURL string
	MessagesDir          string

	Log LogConfig
}

// LogConfig drives obslog.Init.
type LogConfig struct {
	Level      string
	Format     string
	ToConsole  bool
	ToFile     bool
	File       string
	Caller     bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LedgerEnabled reports whether all on-chain settings are present.
func (c *AppConfig) LedgerEnabled() bool {
	return c.RPCURL != "" && c.ContractAddress != "" && c.OwnerPrivateKey != ""
}

// LedgerPartial reports a half-configured ledger (some but not all settings).
func (c *AppConfig) LedgerPartial() bool {
	set := 0
	for _, v := range []string{c.RPCURL, c.ContractAddress, c.OwnerPrivateKey} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 3
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":5000")
	v.SetDefault("ALLOWED_ORIGINS", "localhost:3000")
	v.SetDefault("CHAIN_ID", 0)
	v.SetDefault("LEDGER_CALL_TIMEOUT", "15s")
	v.SetDefault("LEDGER_CONFIRM_TIMEOUT", "2m")
	v.SetDefault("LEDGER_POLL_INTERVAL", "5s")
	v.SetDefault("LEDGER_POLL_START_BLOCK", 0)
	v.SetDefault("LEDGER_AVAILABLE_SCAN", 50)
	v.SetDefault("ABANDON_CLEANUP_DELAY", "5m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "legacy")
	v.SetDefault("LOG_TO_CONSOLE", true)
	v.SetDefault("LOG_TO_FILE", false)
	v.SetDefault("LOG_FILE", "logs/wager.log")
	v.SetDefault("LOG_CALLER", false)
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 14)
}

// Load reads the environment (and the optional WAGER_CONFIG yaml file).
func Load() (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("WAGER_CONFIG")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:           strings.TrimSpace(v.GetString("LISTEN_ADDR")),
		AllowedOrigins:       splitList(v.GetString("ALLOWED_ORIGINS")),
		RPCURL:               strings.TrimSpace(v.GetString("RPC_URL")),
		ContractAddress:      strings.TrimSpace(v.GetString("CONTRACT_ADDRESS")),
		OwnerPrivateKey:      strings.TrimPrefix(strings.TrimSpace(v.GetString("OWNER_PRIVATE_KEY")), "0x"),
		ChainID:              v.GetInt64("CHAIN_ID"),
		LedgerPollStartBlock: v.GetUint64("LEDGER_POLL_START_BLOCK"),
		LedgerAvailableScan:  v.GetInt("LEDGER_AVAILABLE_SCAN"),
		RedisURL:             strings.TrimSpace(v.GetString("REDIS_URL")),
		DatabaseURL:          strings.TrimSpace(v.GetString("DATABASE_URL")),
		SettlementWebhookURL: strings.TrimSpace(v.GetString("SETTLEMENT_WEBHOOK_URL")),
		MessagesDir:          strings.TrimSpace(v.GetString("MESSAGES_DIR")),
		Log: LogConfig{
			Level:      strings.TrimSpace(v.GetString("LOG_LEVEL")),
			Format:     strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
			ToConsole:  v.GetBool("LOG_TO_CONSOLE"),
			ToFile:     v.GetBool("LOG_TO_FILE"),
			File:       strings.TrimSpace(v.GetString("LOG_FILE")),
			Caller:     v.GetBool("LOG_CALLER"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LEDGER_CALL_TIMEOUT", &cfg.LedgerCallTimeout},
		{"LEDGER_CONFIRM_TIMEOUT", &cfg.LedgerConfirmTimeout},
		{"LEDGER_POLL_INTERVAL", &cfg.LedgerPollInterval},
		{"ABANDON_CLEANUP_DELAY", &cfg.AbandonCleanupDelay},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(v.GetString(d.key))
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration, got %q", d.key, raw)
		}
		*d.dst = parsed
	}

	if cfg.ListenAddr == "" {
		return nil, errors.New("LISTEN_ADDR is required")
	}
	if cfg.ContractAddress != "" && !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("CONTRACT_ADDRESS is not a hex address: %q", cfg.ContractAddress)
	}
	if cfg.ChainID < 0 {
		return nil, errors.New("CHAIN_ID must not be negative")
	}
	if cfg.LedgerAvailableScan <= 0 {
		cfg.LedgerAvailableScan = 50
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
