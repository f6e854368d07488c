package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peerlendd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "dataDir: /var/lib/peerlend\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8661" {
		t.Fatalf("listen address = %q", cfg.ListenAddress)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.DefaultMaxIterations != 16 {
		t.Fatalf("max iterations = %d", cfg.DefaultMaxIterations)
	}
	if cfg.RateLimitPerMinute != 600 {
		t.Fatalf("rate limit = %d", cfg.RateLimitPerMinute)
	}
	if cfg.DataDir != "/var/lib/peerlend" {
		t.Fatalf("data dir = %q", cfg.DataDir)
	}
}

func TestLoadParsesMarkets(t *testing.T) {
	path := writeConfig(t, `
listenAddress: ":9000"
logLevel: DEBUG
markets:
  - asset: "0x00000000000000000000000000000000000000aa"
    riskCategory: 2
    p2pEnabled: true
    supplyCap: "1000000"
    borrowCap: "500000"
    decimals: 18
    borrowingEnabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if len(cfg.Markets) != 1 {
		t.Fatalf("markets = %d", len(cfg.Markets))
	}
	m := cfg.Markets[0]
	if m.AssetAddress() != common.HexToAddress("0x00000000000000000000000000000000000000aa") {
		t.Fatalf("asset = %s", m.AssetAddress().Hex())
	}
	if m.SupplyCapAmount().Cmp(big.NewInt(1000000)) != 0 {
		t.Fatalf("supply cap = %v", m.SupplyCapAmount())
	}
	if m.BorrowCapAmount().Cmp(big.NewInt(500000)) != 0 {
		t.Fatalf("borrow cap = %v", m.BorrowCapAmount())
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad log level": "logLevel: loud\n",
		"bad asset": `
markets:
  - asset: "not-an-address"
`,
		"bad cap": `
markets:
  - asset: "0x00000000000000000000000000000000000000aa"
    supplyCap: "many"
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, contents)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
