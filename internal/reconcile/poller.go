package reconcile

import (
	"context"
	"time"

	"dotpay/internal/domain"
	"dotpay/internal/metrics"
	"dotpay/pkg/logger"
)

const (
	DefaultPollAttempts = 6
	DefaultPollInterval = 900 * time.Millisecond
)

// ReceiptReader fetches a receipt, returning nil, nil while it is not indexed.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txID string) (*domain.TransferReceipt, error)
}

// Poller retries receipt lookups a fixed number of times with a fixed delay.
type Poller struct {
	reader   ReceiptReader
	attempts int
	interval time.Duration
	logger   logger.Logger
}

func NewPoller(reader ReceiptReader, attempts int, interval time.Duration, log logger.Logger) *Poller {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval < 0 {
		interval = DefaultPollInterval
	}
	return &Poller{reader: reader, attempts: attempts, interval: interval, logger: log}
}

// Poll returns the receipt, or nil, nil when every attempt came back empty.
// Per-attempt read errors count as an empty attempt. Only ctx cancellation is an error.
func (p *Poller) Poll(ctx context.Context, txID string) (*domain.TransferReceipt, error) {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		receipt, err := p.reader.TransactionReceipt(ctx, txID)
		switch {
		case err == nil && receipt != nil:
			metrics.ReceiptPolls.WithLabelValues("found").Inc()
			return receipt, nil
		case err != nil:
			metrics.ReceiptPolls.WithLabelValues("error").Inc()
			p.logger.Debug("Receipt lookup failed", map[string]interface{}{
				"tx_hash": txID,
				"attempt": attempt,
				"error":   err.Error(),
			})
		default:
			metrics.ReceiptPolls.WithLabelValues("pending").Inc()
		}

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}
	}
	return nil, nil
}
