package chain

import (
	"dotpay/internal/domain"
	"dotpay/pkg/config"
)

// TokenFromConfig describes the configured stable-value token.
func TokenFromConfig(cfg config.ChainConfig) domain.Token {
	return domain.Token{
		Contract: cfg.TokenContract,
		Symbol:   cfg.TokenSymbol,
		Decimals: cfg.TokenDecimals,
		ChainID:  cfg.ChainID,
	}
}
