// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Input errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAddress      = fmt.Errorf("invalid wallet address: %w", ErrInvalidInput)
	ErrInvalidTxHash       = fmt.Errorf("invalid transaction hash: %w", ErrInvalidInput)
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfSend            = errors.New("cannot send to your own account")
	ErrUnauthorized        = errors.New("unauthorized")
)

// Directory errors
var (
	ErrRecipientNotFound      = errors.New("recipient not found")
	ErrLookupFailed           = errors.New("recipient lookup failed")
	ErrDirectoryNotConfigured = errors.New("directory service not configured")
)

// Ledger and reconciliation errors
var (
	ErrOnChainFailure         = errors.New("transaction failed on-chain")
	ErrNoMatchingTransfer     = errors.New("no matching transfer event found")
	ErrInvalidEventData       = errors.New("invalid transfer event data")
	ErrReceiptNotYetAvailable = errors.New("transaction receipt not available yet")
	ErrDeliveryFailed         = errors.New("notification delivery failed")
	ErrDeliveryNotFound       = errors.New("delivery record not found")
	ErrExplorerNotConfigured  = errors.New("explorer api key not configured")
	ErrActivityUnavailable    = errors.New("activity unavailable")
)

// Send flow errors
var (
	ErrSubmissionInProgress = errors.New("a transfer is already being submitted")
	ErrSubmissionFailed     = errors.New("transfer submission failed")
	ErrInvalidTransition    = errors.New("invalid send flow transition")
	ErrRateNotAvailable     = errors.New("exchange rate not available")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryable reports whether the caller may try the same operation again later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrReceiptNotYetAvailable) || errors.Is(err, ErrLookupFailed)
}

// UserMessage returns a short message suitable for showing to an end user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReceiptNotYetAvailable):
		return "Transaction receipt not available yet. Try again in a few seconds."
	case errors.Is(err, ErrOnChainFailure):
		return "Transaction failed on-chain."
	case errors.Is(err, ErrNoMatchingTransfer):
		return "No matching USDC transfer found in transaction logs."
	case errors.Is(err, ErrInvalidEventData):
		return "Invalid transfer event data."
	case errors.Is(err, ErrDeliveryFailed):
		return "Failed to send notification."
	case errors.Is(err, ErrDirectoryNotConfigured):
		return "Backend is not configured."
	case errors.Is(err, ErrExplorerNotConfigured):
		return "Explorer API key is not configured."
	case errors.Is(err, ErrActivityUnavailable):
		return "Failed to load activity."
	case errors.Is(err, ErrRecipientNotFound):
		return "No DotPay user found."
	case errors.Is(err, ErrLookupFailed):
		return "Lookup failed. Try again."
	case errors.Is(err, ErrSelfSend):
		return "You can't send to yourself."
	case errors.Is(err, ErrInsufficientBalance):
		return "Insufficient balance."
	case errors.Is(err, ErrInvalidAmount):
		return "Enter a valid amount."
	case errors.Is(err, ErrInvalidAddress):
		return "Invalid recipient address."
	case errors.Is(err, ErrInvalidTxHash):
		return "Invalid transaction hash."
	case errors.Is(err, ErrSubmissionInProgress):
		return "A transfer is already in progress."
	case errors.Is(err, ErrRateNotAvailable):
		return "Exchange rate unavailable."
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrInvalidInput):
		return "Invalid input."
	default:
		return "Something went wrong."
	}
}
