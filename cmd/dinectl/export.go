package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"dineledger/config"
	"dineledger/crypto"
	"dineledger/indexer"
	"dineledger/integrations/exports"
)

func runExport(args []string) error {
	fs := flag.NewFlagSet(exportCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the config file")
	format := fs.String("format", "csv", "Output format: csv, jsonl or parquet")
	out := fs.String("out", "", "Output file")
	restaurant := fs.String("restaurant", "", "Only payments to this restaurant")
	customer := fs.String("customer", "", "Only payments from this customer")
	fs.Parse(args)

	if *out == "" {
		return errors.New("--out is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if !cfg.Indexer.Enabled {
		return errors.New("indexer is disabled in the config")
	}
	filter, err := exportFilter(*customer, *restaurant)
	if err != nil {
		return err
	}
	gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
	if err != nil {
		return err
	}
	ix, err := indexer.New(gdb, nil)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *format == "parquet" {
		n, err := ix.ExportPaymentsParquet(ctx, *out, filter)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d payments to %s\n", n, *out)
		return nil
	}

	filter.Limit = 1000
	var rows []indexer.PaymentRow
	for {
		page, err := ix.ListPayments(ctx, filter)
		if err != nil {
			return err
		}
		rows = append(rows, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}

	var (
		data     []byte
		checksum string
	)
	switch *format {
	case "csv":
		data, checksum, err = exports.PaymentsCSV(rows)
	case "jsonl":
		data, checksum, err = exports.PaymentsJSONL(rows)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d payments to %s (sha256 %s)\n", len(rows), *out, checksum)
	return nil
}

func exportFilter(customer, restaurant string) (indexer.PaymentFilter, error) {
	var filter indexer.PaymentFilter
	if customer != "" {
		addr, err := crypto.ParseAddress(customer)
		if err != nil {
			return filter, err
		}
		filter.Customer = crypto.FormatAddress(addr)
	}
	if restaurant != "" {
		addr, err := crypto.ParseAddress(restaurant)
		if err != nil {
			return filter, err
		}
		filter.Restaurant = crypto.FormatAddress(addr)
	}
	return filter, nil
}
