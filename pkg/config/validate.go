// Package config loads and validates service configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidateCore ensures critical configuration is present.
// The directory service is optional here; callers short-circuit when it is absent.
func (c *Config) ValidateCore() error {
	var missing []string

	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Redis.URL) == "" {
		missing = append(missing, "REDIS_URL")
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" || c.JWT.Secret == "change-this-secret" {
		missing = append(missing, "JWT_SECRET")
	}
	if strings.TrimSpace(c.Chain.RPCURL) == "" && strings.TrimSpace(c.Chain.ExplorerAPIKey) == "" {
		missing = append(missing, "CHAIN_RPC_URL or EXPLORER_API_KEY")
	}
	if strings.TrimSpace(c.Chain.TokenContract) == "" {
		missing = append(missing, "USDC_CONTRACT_ADDRESS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// ValidateSender ensures a signing key is present for submitting transfers.
func (c *Config) ValidateSender() error {
	if strings.TrimSpace(c.Chain.SenderKey) == "" {
		return fmt.Errorf("missing required configuration: SENDER_PRIVATE_KEY")
	}
	return nil
}
