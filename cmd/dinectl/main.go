package main

import (
	"fmt"
	"os"
)

const (
	keygenCommand = "keygen"
	tokenCommand  = "token"
	seedCommand   = "seed"
	exportCommand = "export"
	pyusdCommand  = "pyusd-balance"

	defaultConfig = "./config.toml"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:])
	case tokenCommand:
		err = runToken(os.Args[2:])
	case seedCommand:
		err = runSeed(os.Args[2:])
	case exportCommand:
		err = runExport(os.Args[2:])
	case pyusdCommand:
		err = runPYUSDBalance(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: dinectl <command> [options]

Commands:
  %-14s Generate an operator keystore
  %-14s Issue an API bearer token for an address
  %-14s Apply a YAML seed file through the HTTP API
  %-14s Export indexed payments as csv, jsonl or parquet
  %-14s Read a PYUSD balance from an EVM endpoint
`, keygenCommand, tokenCommand, seedCommand, exportCommand, pyusdCommand)
}
