package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	err := Wrap(ErrLookupFailed, "lookup @alice")
	assert.EqualError(t, err, "lookup @alice: recipient lookup failed")
	assert.True(t, errors.Is(err, ErrLookupFailed))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Wrap(ErrReceiptNotYetAvailable, "poll")))
	assert.True(t, IsRetryable(ErrLookupFailed))
	assert.False(t, IsRetryable(ErrOnChainFailure))
	assert.False(t, IsRetryable(ErrRecipientNotFound))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t,
		"Transaction receipt not available yet. Try again in a few seconds.",
		UserMessage(Wrap(ErrReceiptNotYetAvailable, "tx 0xabc")))
	assert.Equal(t, "No DotPay user found.", UserMessage(ErrRecipientNotFound))
	assert.Equal(t, "Something went wrong.", UserMessage(errors.New("boom")))
}

func TestShapeErrorsAreInvalidInput(t *testing.T) {
	assert.True(t, errors.Is(ErrInvalidAddress, ErrInvalidInput))
	assert.True(t, errors.Is(ErrInvalidTxHash, ErrInvalidInput))
	assert.Equal(t, "Invalid recipient address.", UserMessage(ErrInvalidAddress))
}
