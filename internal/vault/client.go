package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"fvg-liquidity-bot/config"
)

// Credentials are the exchange API credentials stored in Vault.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	IsTestnet bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault client as a credential provider. When
// Vault is disabled, credentials fall back to the static configuration; that
// keeps development setups free of a Vault dependency.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// GetCredentials reads the exchange credentials from Vault, caching the first
// successful read. With Vault disabled it returns empty credentials and the
// caller falls back to configuration.
func (c *Client) GetCredentials(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("vault disabled")
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := &Credentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.SecretKey = v
	}
	if v, ok := data["is_testnet"].(bool); ok {
		creds.IsTestnet = v
	}
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("incomplete credentials at %s", path)
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()
	return creds, nil
}

// StoreCredentials writes the exchange credentials to Vault.
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if !c.config.Enabled {
		return fmt.Errorf("vault disabled")
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"is_testnet": creds.IsTestnet,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}
