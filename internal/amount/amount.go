// Package amount converts between display amounts and token base units.
//
// Conversions truncate toward zero so a transfer is never larger than what
// the sender typed.
package amount

import (
	"math/big"
	"regexp"
	"strings"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"

	"github.com/shopspring/decimal"
)

// maxDigits bounds user input well above any real token amount.
const maxDigits = 64

var plainDecimal = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// Sanitize strips thousands separators and surrounding whitespace.
func Sanitize(input string) string {
	return strings.TrimSpace(strings.ReplaceAll(input, ",", ""))
}

// Parse reads a positive finite decimal from user input.
func Parse(input string) (decimal.Decimal, error) {
	s := Sanitize(input)
	if s == "" {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	// Exponent notation would let a short input expand into a huge exact value.
	if len(s) > maxDigits || !plainDecimal.MatchString(s) {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrap(errors.ErrInvalidAmount, err.Error())
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount
	}
	return d, nil
}

// ToBaseUnits converts a display value to token base units.
// rate is local units per token and is only consulted for LOCAL amounts.
func ToBaseUnits(display string, currency domain.DisplayCurrency, rate decimal.Decimal, decimals int32) (*big.Int, error) {
	d, err := Parse(display)
	if err != nil {
		return nil, err
	}

	value := d.Rat()
	switch currency {
	case domain.CurrencyToken:
	case domain.CurrencyLocal:
		if !rate.IsPositive() {
			return nil, errors.ErrRateNotAvailable
		}
		value.Quo(value, rate.Rat())
	default:
		return nil, errors.Wrap(errors.ErrInvalidAmount, "unknown currency "+string(currency))
	}

	value.Mul(value, new(big.Rat).SetInt(scale(decimals)))
	base := new(big.Int).Quo(value.Num(), value.Denom())
	if base.Sign() <= 0 {
		return nil, errors.ErrInvalidAmount
	}
	return base, nil
}

// ToDisplay converts base units back to an exact decimal string in the given currency.
func ToDisplay(base *big.Int, currency domain.DisplayCurrency, rate decimal.Decimal, decimals int32) string {
	if base == nil {
		return ""
	}
	token := decimal.NewFromBigInt(base, -decimals)
	if currency == domain.CurrencyLocal {
		return token.Mul(rate).String()
	}
	return token.String()
}

// Format renders base units for presentation with at most places fractional digits.
func Format(base *big.Int, decimals int32, places int32) string {
	if base == nil {
		return "0"
	}
	return decimal.NewFromBigInt(base, -decimals).RoundDown(places).StringFixed(places)
}

// Spec builds an AmountSpec. TokenBaseUnits is nil when the input does not convert.
func Spec(display string, currency domain.DisplayCurrency, rate decimal.Decimal, decimals int32) domain.AmountSpec {
	spec := domain.AmountSpec{
		DisplayCurrency: currency,
		DisplayValue:    Sanitize(display),
	}
	if base, err := ToBaseUnits(display, currency, rate, decimals); err == nil {
		spec.TokenBaseUnits = base
	}
	return spec
}

// CheckBalance fails when base exceeds a known balance. A nil balance is unknown and passes.
func CheckBalance(base, balance *big.Int) error {
	if base == nil || base.Sign() <= 0 {
		return errors.ErrInvalidAmount
	}
	if balance != nil && base.Cmp(balance) > 0 {
		return errors.ErrInsufficientBalance
	}
	return nil
}

func scale(decimals int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
