package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dineledger/crypto"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultPassphraseEnv names the variable consulted for the operator
	// keystore passphrase when the config does not override it.
	DefaultPassphraseEnv = "DINE_OPERATOR_PASSPHRASE"
	// DefaultJWTSecretEnv names the variable holding the API signing secret.
	DefaultJWTSecretEnv = "DINE_JWT_SECRET"
)

type Config struct {
	RPCAddress            string `toml:"RPCAddress"`
	DataDir               string `toml:"DataDir"`
	Environment           string `toml:"Environment"`
	OperatorKeystorePath  string `toml:"OperatorKeystorePath"`
	OperatorPassphraseEnv string `toml:"OperatorPassphraseEnv"`
	// LedgerIdentity is the account allowed to mint review records for
	// settled bills. Empty derives the payments module address.
	LedgerIdentity string `toml:"LedgerIdentity"`
	FeeRecipient   string `toml:"FeeRecipient"`
	FeeBps         uint32 `toml:"FeeBps"`
	BaseImageURI   string `toml:"BaseImageURI"`

	RPC       RPC       `toml:"rpc"`
	Log       Log       `toml:"log"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
	Kafka     Kafka     `toml:"kafka"`
	EVM       EVM       `toml:"evm"`
	Webhook   Webhook   `toml:"webhook"`
}

// Load loads the configuration from the given path, creating a default file
// and operator keystore when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if _, err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(cfg.passphraseEnv())); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystorePath != keystorePath {
		cfg.OperatorKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.applyDefaults(path)
	if _, err := crypto.SaveToKeystore(cfg.OperatorKeystorePath, key, os.Getenv(cfg.passphraseEnv())); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./dine-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.OperatorKeystorePath == "" {
		c.OperatorKeystorePath = defaultKeystorePath(path)
	}
	if c.OperatorPassphraseEnv == "" {
		c.OperatorPassphraseEnv = DefaultPassphraseEnv
	}
	if c.FeeBps == 0 {
		c.FeeBps = 250
	}
	if c.RPC.JWTSecretEnv == "" {
		c.RPC.JWTSecretEnv = DefaultJWTSecretEnv
	}
	if c.RPC.JWTIssuer == "" {
		c.RPC.JWTIssuer = "dineledger"
	}
	if c.RPC.RateLimitPerSec == 0 {
		c.RPC.RateLimitPerSec = 20
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.IdempotencyPath == "" {
		c.RPC.IdempotencyPath = filepath.Join(c.DataDir, "idempotency.db")
	}
	if c.RPC.IdempotencyTTL == 0 {
		c.RPC.IdempotencyTTL = 24 * 60 * 60
	}
	if c.RPC.ReadTimeout == 0 {
		c.RPC.ReadTimeout = 15
	}
	if c.RPC.WriteTimeout == 0 {
		c.RPC.WriteTimeout = 15
	}
	if c.RPC.MaxBodyBytes == 0 {
		c.RPC.MaxBodyBytes = 1 << 20
	}
	if c.RPC.EventBacklog == 0 {
		c.RPC.EventBacklog = 256
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Telemetry.SampleRatio == 0 {
		c.Telemetry.SampleRatio = 1
	}
	if c.Indexer.Driver == "" {
		c.Indexer.Driver = "sqlite"
	}
	if c.Indexer.DSN == "" && c.Indexer.Driver == "sqlite" {
		c.Indexer.DSN = filepath.Join(c.DataDir, "index.sqlite")
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "dineledger.events"
	}
	if c.Webhook.SecretEnv == "" {
		c.Webhook.SecretEnv = "DINE_WEBHOOK_SECRET"
	}
	if c.Kafka.Brokers == nil {
		c.Kafka.Brokers = []string{}
	}
}

func (c *Config) passphraseEnv() string {
	if c.OperatorPassphraseEnv != "" {
		return c.OperatorPassphraseEnv
	}
	return DefaultPassphraseEnv
}

// OperatorPassphrase returns the keystore passphrase from the configured
// environment variable.
func (c *Config) OperatorPassphrase() string {
	return os.Getenv(c.passphraseEnv())
}

// JWTSecret returns the API signing secret from the configured environment
// variable.
func (c *Config) JWTSecret() []byte {
	return []byte(os.Getenv(c.RPC.JWTSecretEnv))
}

// WebhookSecret returns the webhook signing secret from the configured
// environment variable.
func (c *Config) WebhookSecret() []byte {
	return []byte(os.Getenv(c.Webhook.SecretEnv))
}

// LedgerIdentityAddress resolves the configured ledger identity.
func (c *Config) LedgerIdentityAddress() ([20]byte, error) {
	if strings.TrimSpace(c.LedgerIdentity) == "" {
		return crypto.ModuleAddress("payments"), nil
	}
	return crypto.ParseAddress(c.LedgerIdentity)
}

// FeeRecipientAddress resolves the configured fee recipient. The zero address
// is returned when unset so the node falls back to the operator.
func (c *Config) FeeRecipientAddress() ([20]byte, error) {
	if strings.TrimSpace(c.FeeRecipient) == "" {
		return [20]byte{}, nil
	}
	return crypto.ParseAddress(c.FeeRecipient)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
