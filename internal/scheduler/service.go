// Package scheduler periodically retries payment notifications whose delivery
// failed, e.g. because the directory service was down.
package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"dotpay/internal/domain"
	"dotpay/internal/reconcile"
	"dotpay/pkg/config"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"
)

// DeliveryStore lists retry candidates and counts attempts that failed before
// reaching the directory.
type DeliveryStore interface {
	ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.DeliveryRecord, error)
	RecordAttempt(ctx context.Context, rec *domain.DeliveryRecord) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// Redeliverer re-runs reconciliation for undelivered records. The ledger is
// read again on every attempt, so a retry never trusts stored values.
type Redeliverer struct {
	store      DeliveryStore
	reconciler Reconciler
	interval   time.Duration
	batch      int
	maxAttempt int
	logger     logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewRedeliverer(store DeliveryStore, reconciler Reconciler, cfg config.ReconcileConfig, log logger.Logger) *Redeliverer {
	batch := cfg.RedeliverBatch
	if batch <= 0 {
		batch = 50
	}
	maxAttempt := cfg.MaxAttempts
	if maxAttempt <= 0 {
		maxAttempt = 10
	}
	return &Redeliverer{
		store:      store,
		reconciler: reconciler,
		interval:   cfg.RedeliverInterval,
		batch:      batch,
		maxAttempt: maxAttempt,
		logger:     log,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the sweep every interval until Stop. A non-positive interval
// leaves redelivery disabled.
func (s *Redeliverer) Start() {
	if s.interval <= 0 {
		close(s.done)
		s.logger.Info("Notification redelivery disabled", nil)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.RunOnce(ctx)
				cancel()
			}
		}
	}()
	s.logger.Info("Notification redelivery started", map[string]interface{}{
		"interval":     s.interval.String(),
		"max_attempts": s.maxAttempt,
	})
}

// Stop ends the sweep loop and waits for an in-progress sweep to return.
func (s *Redeliverer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// RunOnce retries one batch and reports how many were delivered.
func (s *Redeliverer) RunOnce(ctx context.Context) int {
	records, err := s.store.ListUndelivered(ctx, s.maxAttempt, s.batch)
	if err != nil {
		s.logger.Error("Failed to list undelivered notifications", map[string]interface{}{"error": err.Error()})
		return 0
	}

	delivered := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if s.redeliver(ctx, rec) {
			delivered++
		}
	}
	if len(records) > 0 {
		s.logger.Info("Redelivery sweep finished", map[string]interface{}{
			"candidates": len(records),
			"delivered":  delivered,
		})
	}
	return delivered
}

func (s *Redeliverer) redeliver(ctx context.Context, rec *domain.DeliveryRecord) bool {
	req := reconcile.Request{
		Sender:    rec.FromAddress,
		Recipient: rec.ToAddress,
		TxHash:    rec.TxHash,
	}
	if rec.Note != nil {
		req.Note = *rec.Note
	}

	if _, err := s.reconciler.Reconcile(ctx, req); err != nil {
		fields := map[string]interface{}{
			"tx_hash":   rec.TxHash,
			"log_index": rec.LogIndex,
			"attempts":  rec.Attempts,
			"error":     err.Error(),
		}
		if errors.IsRetryable(err) {
			s.logger.Debug("Redelivery deferred", fields)
		} else {
			s.logger.Warn("Redelivery failed", fields)
		}
		s.countFailure(rec, err)
		return false
	}
	return true
}

// countFailure records attempts the dispatcher never saw, so every retry
// counts toward maxAttempt. Ledger outcomes that cannot change end retries.
func (s *Redeliverer) countFailure(rec *domain.DeliveryRecord, err error) {
	switch {
	case stderrors.Is(err, errors.ErrDeliveryFailed):
		// Recorded by the dispatcher.
		return
	case stderrors.Is(err, errors.ErrDirectoryNotConfigured):
		return
	}

	status := domain.DeliveryFailed
	if terminal(err) {
		status = domain.DeliveryAbandoned
	}
	msg := err.Error()
	attempt := *rec
	attempt.Status = status
	attempt.LastError = &msg
	attempt.DeliveredAt = nil
	attempt.UpdatedAt = time.Now().UTC()

	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.RecordAttempt(storeCtx, &attempt); err != nil {
		s.logger.Error("Failed to record redelivery attempt", map[string]interface{}{
			"tx_hash": rec.TxHash,
			"error":   err.Error(),
		})
		return
	}
	if status == domain.DeliveryAbandoned {
		s.logger.Warn("Redelivery abandoned", map[string]interface{}{
			"tx_hash": rec.TxHash,
			"reason":  msg,
		})
	}
}

func terminal(err error) bool {
	return stderrors.Is(err, errors.ErrNoMatchingTransfer) ||
		stderrors.Is(err, errors.ErrOnChainFailure) ||
		stderrors.Is(err, errors.ErrInvalidEventData) ||
		stderrors.Is(err, errors.ErrInvalidInput) ||
		stderrors.Is(err, errors.ErrUnauthorized)
}
