package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"dineledger/crypto"
)

// MaxFeeBps mirrors the ledger's upper bound on the platform fee.
const MaxFeeBps = 1000

var ErrInvalidConfig = errors.New("config: invalid")

// Validate checks the loaded values for internal consistency.
func (c *Config) Validate() error {
	if c.FeeBps > MaxFeeBps {
		return fmt.Errorf("%w: FeeBps %d exceeds %d", ErrInvalidConfig, c.FeeBps, MaxFeeBps)
	}
	if strings.TrimSpace(c.LedgerIdentity) != "" {
		if _, err := crypto.ParseAddress(c.LedgerIdentity); err != nil {
			return fmt.Errorf("%w: LedgerIdentity: %v", ErrInvalidConfig, err)
		}
	}
	if strings.TrimSpace(c.FeeRecipient) != "" {
		addr, err := crypto.ParseAddress(c.FeeRecipient)
		if err != nil {
			return fmt.Errorf("%w: FeeRecipient: %v", ErrInvalidConfig, err)
		}
		if crypto.IsZeroAddress(addr) {
			return fmt.Errorf("%w: FeeRecipient is the zero address", ErrInvalidConfig)
		}
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("%w: rpc rate limit must not be negative", ErrInvalidConfig)
	}
	if c.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: rpc MaxBodyBytes must not be negative", ErrInvalidConfig)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: telemetry SampleRatio must be within [0,1]", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Indexer.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: indexer driver %q", ErrInvalidConfig, c.Indexer.Driver)
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("%w: indexer DSN required", ErrInvalidConfig)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: kafka brokers required", ErrInvalidConfig)
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			return fmt.Errorf("%w: kafka topic required", ErrInvalidConfig)
		}
	}
	if c.Webhook.URL != "" {
		parsed, err := url.ParseRequestURI(c.Webhook.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("%w: webhook URL must be http(s)", ErrInvalidConfig)
		}
	}
	if c.EVM.RPCURL != "" {
		if _, err := url.ParseRequestURI(c.EVM.RPCURL); err != nil {
			return fmt.Errorf("%w: evm RPCURL: %v", ErrInvalidConfig, err)
		}
	}
	if c.EVM.TokenContract != "" {
		if _, err := crypto.ParseAddress(c.EVM.TokenContract); err != nil {
			return fmt.Errorf("%w: evm TokenContract: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}
