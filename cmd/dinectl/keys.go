package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"dineledger/cmd/internal/passphrase"
	"dineledger/config"
	"dineledger/crypto"
	"dineledger/rpc"
)

func runKeygen(args []string) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	keystorePath := fs.String("keystore", "operator.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", config.DefaultPassphraseEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	addr, err := crypto.SaveToKeystore(*keystorePath, key, pass)
	if err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Printf("Wrote %s for %s\n", *keystorePath, crypto.FormatAddress(addr))
	return nil
}

func runToken(args []string) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ExitOnError)
	subject := fs.String("address", "", "Address the token authenticates")
	secretEnv := fs.String("secret-env", config.DefaultJWTSecretEnv, "Environment variable containing the signing secret")
	issuer := fs.String("issuer", "dineledger", "Token issuer")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	fs.Parse(args)

	token, err := issueToken(*secretEnv, *issuer, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func issueToken(secretEnv, issuer, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("--address is required")
	}
	addr, err := crypto.ParseAddress(subject)
	if err != nil {
		return "", err
	}
	secret := os.Getenv(secretEnv)
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is not set", secretEnv)
	}
	return rpc.IssueToken([]byte(secret), issuer, addr, ttl, time.Now())
}
