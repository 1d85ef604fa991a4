package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dineledger/config"
)

type apiClient struct {
	base   string
	token  string
	client *http.Client
}

func (c *apiClient) post(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet(seedCommand, flag.ExitOnError)
	file := fs.String("file", "seed.yaml", "YAML seed file")
	endpoint := fs.String("endpoint", "http://127.0.0.1:8080", "API base URL")
	operator := fs.String("operator", "", "Operator address the requests authenticate as")
	secretEnv := fs.String("secret-env", config.DefaultJWTSecretEnv, "Environment variable containing the signing secret")
	issuer := fs.String("issuer", "dineledger", "Token issuer")
	fs.Parse(args)

	seed, err := config.LoadSeed(*file)
	if err != nil {
		return err
	}
	token, err := issueToken(*secretEnv, *issuer, *operator, 10*time.Minute)
	if err != nil {
		return err
	}
	client := &apiClient{
		base:   strings.TrimRight(*endpoint, "/") + "/v1",
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
	return applySeed(client, seed)
}

func applySeed(c *apiClient, seed *config.Seed) error {
	for _, r := range seed.Restaurants {
		if err := c.post("/restaurants", map[string]string{"address": r.Address, "name": r.Name}); err != nil {
			return err
		}
		if !r.IsActive() {
			if err := c.post("/restaurants/"+r.Address+"/status", map[string]bool{"active": false}); err != nil {
				return err
			}
		}
	}
	for _, b := range seed.Balances {
		if b.Stable != "" {
			if err := c.post("/admin/mint/stable", map[string]string{"to": b.Address, "amount": b.Stable}); err != nil {
				return err
			}
		}
		if b.Native != "" {
			if err := c.post("/admin/mint/native", map[string]string{"to": b.Address, "amount": b.Native}); err != nil {
				return err
			}
		}
	}
	fmt.Printf("Seeded %d restaurants and %d balances\n", len(seed.Restaurants), len(seed.Balances))
	return nil
}
