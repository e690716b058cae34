package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DisplayCurrency is the currency an amount is entered in.
type DisplayCurrency string

const (
	CurrencyLocal DisplayCurrency = "LOCAL"
	CurrencyToken DisplayCurrency = "TOKEN"
)

// AmountSpec holds an entered amount and its token base-unit equivalent.
// TokenBaseUnits is nil when the input is empty or non-positive.
type AmountSpec struct {
	DisplayCurrency DisplayCurrency `json:"displayCurrency"`
	DisplayValue    string          `json:"displayValue"`
	TokenBaseUnits  *big.Int        `json:"tokenBaseUnits"`
}

// ExchangeRate is the number of local currency units per one token.
type ExchangeRate struct {
	LocalCurrency string          `json:"local_currency"`
	TokenSymbol   string          `json:"token_symbol"`
	Rate          decimal.Decimal `json:"rate"`
	Source        string          `json:"source"`
	FetchedAt     int64           `json:"fetched_at"`
	ValidUntil    int64           `json:"valid_until"`
}
