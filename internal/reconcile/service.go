// Package reconcile turns a bare transaction hash into a verified payment
// notification for the recipient.
//
// ==============================================================================
// RECONCILIATION SERVICE - internal/reconcile/service.go
// ==============================================================================
package reconcile

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"regexp"
	"strings"
	"time"

	"dotpay/internal/domain"
	"dotpay/internal/metrics"
	"dotpay/pkg/config"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"
	"dotpay/pkg/validator"
)

// eventAtLayout matches JavaScript's Date.toISOString.
const eventAtLayout = "2006-01-02T15:04:05.000Z07:00"

var whitespace = regexp.MustCompile(`\s+`)

// Ledger is the read side of the ledger used during reconciliation.
type Ledger interface {
	ReceiptReader
	BlockClock
}

// Dispatcher delivers a notification payload downstream.
type Dispatcher interface {
	Configured() bool
	Deliver(ctx context.Context, payload domain.PaymentNotification) (json.RawMessage, error)
}

// Request identifies the transfer to reconcile.
type Request struct {
	Sender    string
	Recipient string
	TxHash    string
	Note      string
}

// Result is what was delivered.
type Result struct {
	Notification domain.PaymentNotification `json:"notification"`
	Data         json.RawMessage            `json:"data"`
}

type Service struct {
	poller     *Poller
	times      *TimeResolver
	dispatcher Dispatcher
	token      domain.Token
	logger     logger.Logger
}

func NewService(ledger Ledger, dispatcher Dispatcher, token domain.Token, cfg config.ReconcileConfig, log logger.Logger) *Service {
	return &Service{
		poller:     NewPoller(ledger, cfg.PollAttempts, cfg.PollInterval, log),
		times:      NewTimeResolver(ledger, log),
		dispatcher: dispatcher,
		token:      token,
		logger:     log,
	}
}

// Reconcile waits for the receipt of req.TxHash, verifies it contains a token
// transfer from req.Sender to req.Recipient and delivers the notification.
func (s *Service) Reconcile(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := s.reconcile(ctx, req)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	metrics.ReconcileOutcomes.WithLabelValues(outcome(err)).Inc()
	return result, err
}

func (s *Service) reconcile(ctx context.Context, req Request) (*Result, error) {
	sender := strings.ToLower(strings.TrimSpace(req.Sender))
	recipient := strings.ToLower(strings.TrimSpace(req.Recipient))
	txHash := strings.ToLower(strings.TrimSpace(req.TxHash))

	if sender == "" {
		return nil, errors.ErrUnauthorized
	}
	if !validator.IsEVMAddress(recipient) {
		return nil, errors.ErrInvalidAddress
	}
	if !validator.IsTxHash(txHash) {
		return nil, errors.ErrInvalidTxHash
	}
	if !s.dispatcher.Configured() {
		return nil, errors.ErrDirectoryNotConfigured
	}

	receipt, err := s.poller.Poll(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, errors.ErrReceiptNotYetAvailable
	}

	event, matches, err := Extract(receipt, domain.TransferExpectation{
		TokenContract: s.token.Contract,
		Sender:        sender,
		Recipient:     recipient,
	})
	if err != nil {
		s.logger.Info("Transfer not reconciled", map[string]interface{}{
			"tx_hash": txHash,
			"reason":  err.Error(),
		})
		return nil, err
	}
	if matches > 1 {
		s.logger.Warn("Multiple matching transfer legs, using the first", map[string]interface{}{
			"tx_hash":   txHash,
			"matches":   matches,
			"log_index": event.LogIndex,
		})
	}
	event.EventAt = s.times.Resolve(ctx, receipt.BlockReference)

	payload := domain.PaymentNotification{
		ToAddress:       recipient,
		FromAddress:     sender,
		Type:            domain.NotificationTypePaymentReceived,
		ChainID:         s.token.ChainID,
		ContractAddress: strings.ToLower(s.token.Contract),
		TxHash:          txHash,
		LogIndex:        event.LogIndex,
		Value:           event.Amount.String(),
		TokenSymbol:     s.token.Symbol,
		TokenDecimal:    s.token.Decimals,
		Note:            NormalizeNote(req.Note),
		EventAt:         event.EventAt.UTC().Format(eventAtLayout),
	}

	data, err := s.dispatcher.Deliver(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &Result{Notification: payload, Data: data}, nil
}

// NormalizeNote trims, collapses whitespace and caps a note. An empty note is nil.
func NormalizeNote(note string) *string {
	n := whitespace.ReplaceAllString(strings.TrimSpace(note), " ")
	if n == "" {
		return nil
	}
	if r := []rune(n); len(r) > domain.MaxNoteLength {
		n = string(r[:domain.MaxNoteLength])
	}
	return &n
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case stderrors.Is(err, errors.ErrReceiptNotYetAvailable):
		return "receipt_pending"
	case stderrors.Is(err, errors.ErrOnChainFailure):
		return "onchain_failure"
	case stderrors.Is(err, errors.ErrNoMatchingTransfer):
		return "no_match"
	case stderrors.Is(err, errors.ErrInvalidEventData):
		return "invalid_event"
	case stderrors.Is(err, errors.ErrDeliveryFailed):
		return "delivery_failed"
	case stderrors.Is(err, errors.ErrInvalidInput), stderrors.Is(err, errors.ErrUnauthorized):
		return "invalid_request"
	case stderrors.Is(err, errors.ErrDirectoryNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}
