// Package vault fetches the Binance API key pair from HashiCorp Vault.
// The bot is single-operator, so exactly one secret is read. With Vault
// disabled the credentials come straight from config.
package vault

import (
	"context"
	"fmt"

	"breakout-trading-bot/config"

	"github.com/hashicorp/vault/api"
)

// Credentials is the Binance key pair stored in Vault
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetCredentials reads the key pair from the KV v2 engine. With Vault
// disabled the fallback credentials are returned unchanged.
func (c *Client) GetCredentials(ctx context.Context, fallback Credentials) (Credentials, error) {
	if !c.config.Enabled {
		return fallback, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("no credentials at vault path %s", path)
	}

	// KV v2 wraps the payload in a "data" field
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := Credentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf("incomplete credentials at %s", path)
	}
	return creds, nil
}
