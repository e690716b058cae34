package chain

import (
	"context"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
)

// ReceiptReader fetches a receipt, returning nil, nil while it is not indexed.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txID string) (*domain.TransferReceipt, error)
}

// WaitForReceipt blocks until the receipt for txID is available or ctx ends.
// Read errors are treated like a missing receipt. A reverted transaction
// returns its receipt together with ErrOnChainFailure.
func WaitForReceipt(ctx context.Context, reader ReceiptReader, txID string, interval time.Duration) (*domain.TransferReceipt, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, txID)
		if err == nil && receipt != nil {
			if !receipt.Succeeded {
				return receipt, errors.ErrOnChainFailure
			}
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Confirmer waits for receipts at a fixed polling interval.
type Confirmer struct {
	reader   ReceiptReader
	interval time.Duration
}

func NewConfirmer(reader ReceiptReader, interval time.Duration) *Confirmer {
	return &Confirmer{reader: reader, interval: interval}
}

func (c *Confirmer) WaitConfirmed(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
	return WaitForReceipt(ctx, c.reader, txID, c.interval)
}
