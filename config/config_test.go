package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dineledger/crypto"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, uint32(250), cfg.FeeBps)
	require.Equal(t, filepath.Join(dir, "operator.keystore"), cfg.OperatorKeystorePath)
	require.FileExists(t, path)
	require.FileExists(t, cfg.OperatorKeystorePath)

	addr, err := crypto.KeystoreAddress(cfg.OperatorKeystorePath)
	require.NoError(t, err)
	require.False(t, crypto.IsZeroAddress(addr))

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.OperatorKeystorePath, reloaded.OperatorKeystorePath)
	require.Equal(t, cfg.RPC.IdempotencyPath, reloaded.RPC.IdempotencyPath)
}

func TestLoadAppliesDefaultsAndKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
RPCAddress = "127.0.0.1:9000"
DataDir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"
FeeBps = 300

[kafka]
Enabled = true
Brokers = ["localhost:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.RPCAddress)
	require.Equal(t, uint32(300), cfg.FeeBps)
	require.Equal(t, "dineledger.events", cfg.Kafka.Topic)
	require.Equal(t, "sqlite", cfg.Indexer.Driver)
	require.FileExists(t, cfg.OperatorKeystorePath)

	identity, err := cfg.LedgerIdentityAddress()
	require.NoError(t, err)
	require.Equal(t, crypto.ModuleAddress("payments"), identity)

	recipient, err := cfg.FeeRecipientAddress()
	require.NoError(t, err)
	require.True(t, crypto.IsZeroAddress(recipient))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("GenesisFile = \"x\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "GenesisFile")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults("config.toml")
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fee above cap", func(c *Config) { c.FeeBps = 1001 }},
		{"bad identity", func(c *Config) { c.LedgerIdentity = "nope" }},
		{"zero recipient", func(c *Config) { c.FeeRecipient = "0x0000000000000000000000000000000000000000" }},
		{"bad driver", func(c *Config) { c.Indexer.Driver = "mysql" }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }},
		{"bad token contract", func(c *Config) { c.EVM.TokenContract = "0x12" }},
	}
	require.NoError(t, base().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	body := `restaurants:
  - address: "0x1111111111111111111111111111111111111111"
    name: "Bella Napoli"
  - address: "0x2222222222222222222222222222222222222222"
    name: "Closed Diner"
    active: false
balances:
  - address: "0x3333333333333333333333333333333333333333"
    stable: "250.00"
    native: "5"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Restaurants, 2)
	require.True(t, seed.Restaurants[0].IsActive())
	require.False(t, seed.Restaurants[1].IsActive())
	require.Equal(t, "250.00", seed.Balances[0].Stable)

	require.NoError(t, os.WriteFile(path, []byte("restaurants:\n  - name: nameless\n"), 0o644))
	_, err = LoadSeed(path)
	require.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, os.WriteFile(path, []byte("owners: []\n"), 0o644))
	_, err = LoadSeed(path)
	require.Error(t, err)
}
