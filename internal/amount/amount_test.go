package amount

import (
	"math/big"
	"strings"
	"testing"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var kesRate = decimal.NewFromInt(150)

func TestToBaseUnits_LocalWithSeparators(t *testing.T) {
	base, err := ToBaseUnits("1,234.5", domain.CurrencyLocal, kesRate, 6)
	require.NoError(t, err)

	// floor(1234.5 / 150 * 1e6)
	assert.Equal(t, "8230000", base.String())
}

func TestToBaseUnits_Truncates(t *testing.T) {
	base, err := ToBaseUnits("1", domain.CurrencyLocal, decimal.NewFromInt(3), 6)
	require.NoError(t, err)
	assert.Equal(t, "333333", base.String())

	base, err = ToBaseUnits(" 0.0000019 ", domain.CurrencyToken, decimal.Zero, 6)
	require.NoError(t, err)
	assert.Equal(t, "1", base.String())

	base, err = ToBaseUnits("2.9999999", domain.CurrencyToken, decimal.Zero, 6)
	require.NoError(t, err)
	assert.Equal(t, "2999999", base.String())
}

func TestToBaseUnits_Invalid(t *testing.T) {
	cases := []string{"", "   ", "abc", "-5", "0", "0.0000001", "1.2.3",
		"1e5000000", "1E6", "0x10", "+5", "Infinity", strings.Repeat("9", 65)}
	for _, in := range cases {
		_, err := ToBaseUnits(in, domain.CurrencyToken, decimal.Zero, 6)
		assert.ErrorIs(t, err, errors.ErrInvalidAmount, "input %q", in)
	}

	_, err := ToBaseUnits("10", domain.CurrencyLocal, decimal.Zero, 6)
	assert.ErrorIs(t, err, errors.ErrRateNotAvailable)
}

func TestParse_PlainDecimals(t *testing.T) {
	for in, want := range map[string]string{"5.": "5", ".5": "0.5", "1,000.25": "1000.25"} {
		d, err := Parse(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, d.String())
	}
}

func TestRoundTrip(t *testing.T) {
	rate := decimal.RequireFromString("129.37")
	for _, raw := range []int64{1, 999_999, 8_230_000, 123_456_789} {
		x := big.NewInt(raw)

		tok := ToDisplay(x, domain.CurrencyToken, rate, 6)
		back, err := ToBaseUnits(tok, domain.CurrencyToken, rate, 6)
		require.NoError(t, err)
		assert.Equal(t, x.String(), back.String(), "token display %s", tok)

		local := ToDisplay(x, domain.CurrencyLocal, rate, 6)
		back, err = ToBaseUnits(local, domain.CurrencyLocal, rate, 6)
		require.NoError(t, err)
		assert.Equal(t, x.String(), back.String(), "local display %s", local)
	}
}

func TestSpec(t *testing.T) {
	spec := Spec("1,000", domain.CurrencyToken, decimal.Zero, 6)
	assert.Equal(t, "1000", spec.DisplayValue)
	require.NotNil(t, spec.TokenBaseUnits)
	assert.Equal(t, "1000000000", spec.TokenBaseUnits.String())

	assert.Nil(t, Spec("", domain.CurrencyToken, decimal.Zero, 6).TokenBaseUnits)
	assert.Nil(t, Spec("-1", domain.CurrencyLocal, kesRate, 6).TokenBaseUnits)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "8.23", Format(big.NewInt(8_230_000), 6, 2))
	assert.Equal(t, "0.99", Format(big.NewInt(999_999), 6, 2))
	assert.Equal(t, "0", Format(nil, 6, 2))
}

func TestCheckBalance(t *testing.T) {
	assert.NoError(t, CheckBalance(big.NewInt(10), big.NewInt(10)))
	assert.NoError(t, CheckBalance(big.NewInt(10), nil))
	assert.ErrorIs(t, CheckBalance(big.NewInt(11), big.NewInt(10)), errors.ErrInsufficientBalance)
	assert.ErrorIs(t, CheckBalance(nil, big.NewInt(10)), errors.ErrInvalidAmount)
}
