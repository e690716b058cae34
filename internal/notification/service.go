// Package notification delivers payment notifications to the directory service,
// at most once per (transaction hash, log index).
package notification

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/internal/metrics"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/google/uuid"
)

// Downstream is the privileged endpoint that stores notifications for recipients.
type Downstream interface {
	DeliveryConfigured() bool
	DeliverPaymentNotification(ctx context.Context, payload domain.PaymentNotification) (json.RawMessage, error)
}

// DeliveryStore records delivery attempts.
type DeliveryStore interface {
	Get(ctx context.Context, txHash string, logIndex int64) (*domain.DeliveryRecord, error)
	RecordAttempt(ctx context.Context, rec *domain.DeliveryRecord) error
}

// Locker serialises deliveries for the same key across processes. Acquire
// returns an empty token when the key is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

const (
	lockRetryInterval = 200 * time.Millisecond
	lockWait          = 5 * time.Second
)

// Dispatcher is the concrete delivery implementation. store and locker are optional.
type Dispatcher struct {
	downstream Downstream
	store      DeliveryStore
	locker     Locker
	lockTTL    time.Duration
	logger     logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(downstream Downstream, store DeliveryStore, locker Locker, lockTTL time.Duration, log logger.Logger) *Dispatcher {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Dispatcher{
		downstream: downstream,
		store:      store,
		locker:     locker,
		lockTTL:    lockTTL,
		logger:     log,
	}
}

func (d *Dispatcher) Configured() bool {
	return d.downstream != nil && d.downstream.DeliveryConfigured()
}

// Deliver sends payload unless it has already been delivered. Failures are
// returned wrapped in ErrDeliveryFailed and never affect the transfer itself.
func (d *Dispatcher) Deliver(ctx context.Context, payload domain.PaymentNotification) (json.RawMessage, error) {
	if !d.Configured() {
		return nil, errors.ErrDirectoryNotConfigured
	}

	key := "notification:delivery:" + payload.IdempotencyKey()
	if d.locker != nil {
		release, err := d.lock(ctx, key)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	if rec := d.previous(ctx, payload); rec != nil && rec.Status == domain.DeliveryDelivered {
		metrics.Deliveries.WithLabelValues("duplicate").Inc()
		d.logger.Info("Notification already delivered", map[string]interface{}{
			"tx_hash":   payload.TxHash,
			"log_index": payload.LogIndex,
			"attempts":  rec.Attempts,
		})
		return nil, nil
	}

	data, err := d.downstream.DeliverPaymentNotification(ctx, payload)
	if stderrors.Is(err, errors.ErrDirectoryNotConfigured) {
		return nil, err
	}
	d.record(payload, err)
	if err != nil {
		metrics.Deliveries.WithLabelValues("failed").Inc()
		d.logger.Warn("Notification delivery failed", map[string]interface{}{
			"tx_hash":   payload.TxHash,
			"log_index": payload.LogIndex,
			"error":     err.Error(),
		})
		if !stderrors.Is(err, errors.ErrDeliveryFailed) {
			err = errors.Wrap(errors.ErrDeliveryFailed, err.Error())
		}
		return nil, err
	}

	metrics.Deliveries.WithLabelValues("delivered").Inc()
	d.logger.Info("Notification delivered", map[string]interface{}{
		"tx_hash":   payload.TxHash,
		"log_index": payload.LogIndex,
		"to":        payload.ToAddress,
	})
	return data, nil
}

// lock waits briefly for a concurrent delivery of the same key to finish.
// A broken lock backend degrades to unlocked delivery.
func (d *Dispatcher) lock(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(lockWait)
	for {
		token, err := d.locker.Acquire(ctx, key, d.lockTTL)
		if err != nil {
			d.logger.Warn("Delivery lock unavailable", map[string]interface{}{"key": key, "error": err.Error()})
			return func() {}, nil
		}
		if token != "" {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = d.locker.Release(releaseCtx, key, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrap(errors.ErrDeliveryFailed, "delivery already in progress")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (d *Dispatcher) previous(ctx context.Context, payload domain.PaymentNotification) *domain.DeliveryRecord {
	if d.store == nil {
		return nil
	}
	rec, err := d.store.Get(ctx, strings.ToLower(payload.TxHash), int64(payload.LogIndex))
	if err != nil {
		if !stderrors.Is(err, errors.ErrDeliveryNotFound) {
			d.logger.Error("Failed to load delivery record", map[string]interface{}{
				"tx_hash": payload.TxHash,
				"error":   err.Error(),
			})
		}
		return nil
	}
	return rec
}

// record writes the attempt on a fresh context so it survives request cancellation.
func (d *Dispatcher) record(payload domain.PaymentNotification, deliveryErr error) {
	if d.store == nil {
		return
	}

	now := time.Now().UTC()
	rec := &domain.DeliveryRecord{
		ID:          uuid.New().String(),
		TxHash:      strings.ToLower(payload.TxHash),
		LogIndex:    int64(payload.LogIndex),
		ToAddress:   payload.ToAddress,
		FromAddress: payload.FromAddress,
		Value:       payload.Value,
		Note:        payload.Note,
		Status:      domain.DeliveryDelivered,
		Attempts:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		rec.Status = domain.DeliveryFailed
		rec.LastError = &msg
	} else {
		rec.DeliveredAt = &now
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.RecordAttempt(storeCtx, rec); err != nil {
		d.logger.Error("Failed to record delivery attempt", map[string]interface{}{
			"tx_hash":   payload.TxHash,
			"log_index": payload.LogIndex,
			"error":     err.Error(),
		})
	}
}
