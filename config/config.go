package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddress   = ":8661"
	defaultMaxIterations   = 16
	defaultRateLimitPerMin = 600
	defaultLogLevel        = "info"
)

// Config is the daemon's service configuration.
type Config struct {
	// ListenAddress is the RPC listen address, host:port.
	ListenAddress string `yaml:"listenAddress"`
	// DataDir is the LevelDB directory; empty selects the in-memory store.
	DataDir string `yaml:"dataDir"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"logLevel"`
	// LogFile enables rotating file output when set; empty logs to stdout.
	LogFile string `yaml:"logFile"`
	// DefaultMaxIterations is the matching budget applied when a request
	// does not carry its own.
	DefaultMaxIterations uint64 `yaml:"defaultMaxIterations"`
	// RateLimitPerMinute bounds RPC requests per client address.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
	// Markets are created at startup if absent.
	Markets []MarketConfig `yaml:"markets"`
}

// MarketConfig bootstraps one market and its pool reserve mirror.
type MarketConfig struct {
	Asset            string `yaml:"asset"`
	RiskCategory     uint8  `yaml:"riskCategory"`
	P2PEnabled       bool   `yaml:"p2pEnabled"`
	SupplyCap        string `yaml:"supplyCap"`
	BorrowCap        string `yaml:"borrowCap"`
	Decimals         uint8  `yaml:"decimals"`
	BorrowingEnabled bool   `yaml:"borrowingEnabled"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress:        defaultListenAddress,
		LogLevel:             defaultLogLevel,
		DefaultMaxIterations: defaultMaxIterations,
		RateLimitPerMinute:   defaultRateLimitPerMin,
	}
}

// Load reads, normalizes and validates the configuration at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	if c.ListenAddress == "" {
		c.ListenAddress = defaultListenAddress
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.LogFile = strings.TrimSpace(c.LogFile)
	if c.DefaultMaxIterations == 0 {
		c.DefaultMaxIterations = defaultMaxIterations
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = defaultRateLimitPerMin
	}
	for i := range c.Markets {
		m := &c.Markets[i]
		m.Asset = strings.TrimSpace(m.Asset)
		m.SupplyCap = strings.TrimSpace(m.SupplyCap)
		m.BorrowCap = strings.TrimSpace(m.BorrowCap)
	}
}

// Validate checks the normalized configuration.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	for _, m := range c.Markets {
		if !common.IsHexAddress(m.Asset) {
			return fmt.Errorf("config: market asset %q is not a hex address", m.Asset)
		}
		if _, err := parseAmount(m.SupplyCap); err != nil {
			return fmt.Errorf("config: market %s supply cap: %w", m.Asset, err)
		}
		if _, err := parseAmount(m.BorrowCap); err != nil {
			return fmt.Errorf("config: market %s borrow cap: %w", m.Asset, err)
		}
	}
	return nil
}

// AssetAddress returns the parsed asset address. Call after validation.
func (m MarketConfig) AssetAddress() common.Address {
	return common.HexToAddress(m.Asset)
}

// SupplyCapAmount returns the parsed supply cap; zero means uncapped.
func (m MarketConfig) SupplyCapAmount() *big.Int {
	v, _ := parseAmount(m.SupplyCap)
	return v
}

// BorrowCapAmount returns the parsed borrow cap; zero means uncapped.
func (m MarketConfig) BorrowCapAmount() *big.Int {
	v, _ := parseAmount(m.BorrowCap)
	return v
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
