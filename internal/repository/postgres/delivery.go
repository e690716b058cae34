package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
)

type DeliveryRepository struct {
	db *sqlx.DB
}

func NewDeliveryRepository(db *sqlx.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) Get(ctx context.Context, txHash string, logIndex int64) (*domain.DeliveryRecord, error) {
	rec := &domain.DeliveryRecord{}
	query := `
		SELECT id, tx_hash, log_index, to_address, from_address, value::text AS value, note,
		       status, attempts, last_error, delivered_at, created_at, updated_at
		FROM payment_notification_deliveries
		WHERE tx_hash = $1 AND log_index = $2
	`
	err := r.db.GetContext(ctx, rec, query, txHash, logIndex)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrDeliveryNotFound
		}
		return nil, errors.Wrap(err, "failed to find delivery record")
	}
	return rec, nil
}

// RecordAttempt upserts on (tx_hash, log_index). A delivered row stays delivered.
func (r *DeliveryRepository) RecordAttempt(ctx context.Context, rec *domain.DeliveryRecord) error {
	query := `
		INSERT INTO payment_notification_deliveries (
			id, tx_hash, log_index, to_address, from_address, value, note, status, attempts, last_error, delivered_at, created_at, updated_at
		) VALUES (
			:id, :tx_hash, :log_index, :to_address, :from_address, CAST(:value AS NUMERIC), :note, :status, 1, :last_error, :delivered_at, :created_at, :updated_at
		)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			attempts = payment_notification_deliveries.attempts + 1,
			status = CASE WHEN payment_notification_deliveries.status = 'delivered'
				THEN payment_notification_deliveries.status ELSE EXCLUDED.status END,
			last_error = CASE WHEN payment_notification_deliveries.status = 'delivered'
				THEN payment_notification_deliveries.last_error ELSE EXCLUDED.last_error END,
			delivered_at = COALESCE(payment_notification_deliveries.delivered_at, EXCLUDED.delivered_at),
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	return errors.Wrap(err, "failed to record delivery attempt")
}

// ListUndelivered returns pending or failed deliveries with fewer than
// maxAttempts attempts, oldest first.
func (r *DeliveryRepository) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*domain.DeliveryRecord, error) {
	var recs []*domain.DeliveryRecord
	query := `
		SELECT id, tx_hash, log_index, to_address, from_address, value::text AS value, note,
		       status, attempts, last_error, delivered_at, created_at, updated_at
		FROM payment_notification_deliveries
		WHERE status IN ('pending', 'failed') AND attempts < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	err := r.db.SelectContext(ctx, &recs, query, maxAttempts, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list undelivered notifications")
	}
	return recs, nil
}
