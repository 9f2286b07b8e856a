package vaulttransit

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/locker"
)

const (
	EnvVaultAddr      = "VAULT_ADDR"
	EnvVaultNamespace = "VAULT_NAMESPACE"
	EnvVaultToken     = "VAULT_TOKEN"
	EnvVaultRoleID    = "VAULT_ROLE_ID"
	EnvVaultSecretID  = "VAULT_SECRET_ID"
)

// ConfigFromEnvironment returns a Config for keyName with the connection
// settings read from the environment.
//
// Environment Variables:
//   - VAULT_ADDR: Vault server address (required, e.g., "https://vault.example.com")
//   - VAULT_NAMESPACE: Vault namespace for HCP Vault (optional, e.g., "admin/example")
//   - VAULT_TOKEN: Direct Vault token (optional, alternative to AppRole)
//   - VAULT_ROLE_ID: AppRole role ID for authentication (optional, requires VAULT_SECRET_ID)
//   - VAULT_SECRET_ID: AppRole secret ID for authentication (optional, requires VAULT_ROLE_ID)
func ConfigFromEnvironment(keyName string) Config {
	return Config{
		Address:   os.Getenv(EnvVaultAddr),
		Namespace: os.Getenv(EnvVaultNamespace),
		Token:     os.Getenv(EnvVaultToken),
		RoleID:    os.Getenv(EnvVaultRoleID),
		SecretID:  os.Getenv(EnvVaultSecretID),
		KeyName:   keyName,
	}
}

// newVaultClient creates an authenticated Vault client.
//
// Authentication Priority:
//  1. If Token is set, uses token directly
//  2. If RoleID and SecretID are set, uses AppRole authentication
//  3. Otherwise, returns error (no authentication method available)
func newVaultClient(ctx context.Context, cfg Config) (*api.Client, error) {
	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required (set %s)", locker.ErrInvalidArgument, EnvVaultAddr)
	}

	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %w", locker.ErrInvalidArgument, err)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
		return client, nil
	}

	if cfg.RoleID != "" && cfg.SecretID != "" {
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to login with AppRole: %w", locker.ErrInvalidArgument, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("%w: no auth info returned from AppRole login", locker.ErrInvalidArgument)
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication method configured (set %s or %s+%s)",
		locker.ErrInvalidArgument, EnvVaultToken, EnvVaultRoleID, EnvVaultSecretID)
}
