package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dineledger/cmd/internal/passphrase"
	"dineledger/config"
	"dineledger/core"
	"dineledger/core/events"
	"dineledger/crypto"
	"dineledger/indexer"
	"dineledger/integrations/kafka"
	"dineledger/integrations/webhooks"
	"dineledger/observability/logging"
	telemetry "dineledger/observability/otel"
	"dineledger/rpc"
	"dineledger/storage"
)

const idempotencyPruneInterval = 10 * time.Minute

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "dined: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup(logging.Config{
		Service:    "dined",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "dined",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	operator, err := loadOperator(cfg)
	if err != nil {
		return err
	}
	ledgerIdentity, err := cfg.LedgerIdentityAddress()
	if err != nil {
		return fmt.Errorf("ledger identity: %w", err)
	}
	feeRecipient, err := cfg.FeeRecipientAddress()
	if err != nil {
		return fmt.Errorf("fee recipient: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	bus := events.NewBus(cfg.RPC.EventBacklog)
	node, err := core.NewNode(db, bus, core.Options{
		Operator:       operator,
		LedgerIdentity: ledgerIdentity,
		FeeRecipient:   feeRecipient,
		FeeBps:         cfg.FeeBps,
		BaseImageURI:   cfg.BaseImageURI,
		Logger:         logger,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()
	logger.Info("ledger ready",
		"operator", crypto.FormatAddress(operator),
		"ledger_identity", crypto.FormatAddress(node.LedgerIdentity()))

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background worker stopped", "worker", name, "error", err)
			}
		}()
	}

	var serverOpts []rpc.Option
	serverOpts = append(serverOpts, rpc.WithLogger(logger))

	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		ix, err := indexer.New(gdb, logger)
		if err != nil {
			return fmt.Errorf("migrate indexer: %w", err)
		}
		spawn("indexer", func(ctx context.Context) error { return ix.Run(ctx, bus) })
		serverOpts = append(serverOpts, rpc.WithIndex(ix))
	}

	if cfg.Kafka.Enabled {
		sink, err := kafka.NewSink(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer sink.Close()
		spawn("kafka", func(ctx context.Context) error { return sink.Run(ctx, bus) })
	}

	if cfg.Webhook.URL != "" {
		dispatcher, err := webhooks.NewDispatcher(cfg.Webhook.URL, cfg.WebhookSecret(),
			webhooks.WithEventTypes(cfg.Webhook.EventTypes...),
			webhooks.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("webhook dispatcher: %w", err)
		}
		defer dispatcher.Close()
		spawn("webhooks", func(ctx context.Context) error { return dispatcher.Run(ctx, bus) })
	}

	idem, err := rpc.OpenIdempotencyStore(cfg.RPC.IdempotencyPath, time.Duration(cfg.RPC.IdempotencyTTL)*time.Second)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	defer idem.Close()
	serverOpts = append(serverOpts, rpc.WithIdempotencyStore(idem))
	spawn("idempotency-prune", func(ctx context.Context) error {
		return pruneLoop(ctx, idem, logger)
	})

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		Auth: rpc.AuthConfig{
			HMACSecret: cfg.JWTSecret(),
			Issuer:     cfg.RPC.JWTIssuer,
		},
		RateLimitPerSec: cfg.RPC.RateLimitPerSec,
		RateLimitBurst:  cfg.RPC.RateLimitBurst,
		MaxBodyBytes:    cfg.RPC.MaxBodyBytes,
		EventBacklog:    cfg.RPC.EventBacklog,
		AllowedOrigins:  cfg.RPC.AllowedOrigins,
	}, serverOpts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	serveErr := server.ListenAndServe(ctx, cfg.RPCAddress,
		time.Duration(cfg.RPC.ReadTimeout)*time.Second,
		time.Duration(cfg.RPC.WriteTimeout)*time.Second)
	stop()
	wg.Wait()
	logger.Info("shutdown complete")
	return serveErr
}

func loadOperator(cfg *config.Config) ([20]byte, error) {
	pass, err := passphrase.NewSource(cfg.OperatorPassphraseEnv).Get()
	if err != nil {
		return [20]byte{}, err
	}
	key, err := crypto.LoadFromKeystore(cfg.OperatorKeystorePath, pass)
	if err != nil {
		return [20]byte{}, fmt.Errorf("unlock operator keystore: %w", err)
	}
	return key.PubKey().Address(), nil
}

func pruneLoop(ctx context.Context, store *rpc.IdempotencyStore, logger *slog.Logger) error {
	ticker := time.NewTicker(idempotencyPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := store.Prune()
			if err != nil {
				logger.Warn("idempotency prune failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("pruned idempotency keys", "count", removed)
			}
		}
	}
}
