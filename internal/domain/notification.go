package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	NotificationTypePaymentReceived = "payment_received"
	MaxNoteLength                   = 180
)

// PaymentNotification is the payload delivered to the directory service.
type PaymentNotification struct {
	ToAddress       string  `json:"toAddress"`
	FromAddress     string  `json:"fromAddress"`
	Type            string  `json:"type"`
	ChainID         int64   `json:"chainId"`
	ContractAddress string  `json:"contractAddress"`
	TxHash          string  `json:"txHash"`
	LogIndex        uint64  `json:"logIndex"`
	Value           string  `json:"value"`
	TokenSymbol     string  `json:"tokenSymbol"`
	TokenDecimal    int32   `json:"tokenDecimal"`
	Note            *string `json:"note"`
	EventAt         string  `json:"eventAt"`
}

// IdempotencyKey is unique per transfer leg.
func (p PaymentNotification) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(p.TxHash), p.LogIndex)
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	// DeliveryAbandoned marks a record whose transaction can never produce a
	// notification, e.g. no matching transfer on the ledger.
	DeliveryAbandoned DeliveryStatus = "abandoned"
)

// DeliveryRecord tracks delivery attempts for one (tx hash, log index) pair.
type DeliveryRecord struct {
	ID          string         `json:"id" db:"id"`
	TxHash      string         `json:"tx_hash" db:"tx_hash"`
	LogIndex    int64          `json:"log_index" db:"log_index"`
	ToAddress   string         `json:"to_address" db:"to_address"`
	FromAddress string         `json:"from_address" db:"from_address"`
	Value       string         `json:"value" db:"value"`
	Note        *string        `json:"note,omitempty" db:"note"`
	Status      DeliveryStatus `json:"status" db:"status"`
	Attempts    int            `json:"attempts" db:"attempts"`
	LastError   *string        `json:"last_error,omitempty" db:"last_error"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}
