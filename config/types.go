package config

// RPC configures the HTTP API.
type RPC struct {
	// JWTSecretEnv names the environment variable holding the HS256 secret
	// bearer tokens are signed with.
	JWTSecretEnv    string   `toml:"JWTSecretEnv"`
	JWTIssuer       string   `toml:"JWTIssuer"`
	RateLimitPerSec float64  `toml:"RateLimitPerSec"`
	RateLimitBurst  int      `toml:"RateLimitBurst"`
	IdempotencyPath string   `toml:"IdempotencyPath"`
	IdempotencyTTL  int      `toml:"IdempotencyTTLSeconds"`
	ReadTimeout     int      `toml:"ReadTimeoutSeconds"`
	WriteTimeout    int      `toml:"WriteTimeoutSeconds"`
	MaxBodyBytes    int64    `toml:"MaxBodyBytes"`
	EventBacklog    int      `toml:"EventBacklog"`
	AllowedOrigins  []string `toml:"AllowedOrigins"`
}

// Log configures structured logging.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Indexer configures the SQL projection of ledger events.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// Kafka configures the optional event sink.
type Kafka struct {
	Enabled bool     `toml:"Enabled"`
	Brokers []string `toml:"Brokers"`
	Topic   string   `toml:"Topic"`
}

// EVM points at the chain hosting the real settlement token.
type EVM struct {
	RPCURL        string `toml:"RPCURL"`
	TokenContract string `toml:"TokenContract"`
}

// Webhook configures signed HTTP delivery of ledger events.
type Webhook struct {
	URL        string   `toml:"URL"`
	SecretEnv  string   `toml:"SecretEnv"`
	EventTypes []string `toml:"EventTypes"`
}
