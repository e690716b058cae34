// Package sendflow drives one compose session from amount entry to a confirmed
// transfer: compose, review, submitting, submitted, confirmed.
package sendflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"dotpay/internal/amount"
	"dotpay/internal/domain"
	"dotpay/internal/recipient"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateCompose    State = "compose"
	StateReview     State = "review"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateConfirmed  State = "confirmed"
)

// RecipientSource exposes the current recipient resolution.
type RecipientSource interface {
	Snapshot() recipient.Snapshot
}

type Submitter interface {
	SubmitTransfer(ctx context.Context, contract, to string, amount *big.Int) (domain.TransferReference, error)
}

// Confirmer blocks until the transfer is mined or ctx ends.
type Confirmer interface {
	WaitConfirmed(ctx context.Context, txID string) (*domain.TransferReceipt, error)
}

// NotifyRequest identifies a submitted transfer for the recipient notification.
type NotifyRequest struct {
	Recipient string
	TxHash    string
	Note      string
}

type Notifier interface {
	NotifyPayment(ctx context.Context, req NotifyRequest) error
}

// Flow is a single-flight send session. Methods are safe for concurrent use;
// listeners are called without the lock held.
type Flow struct {
	recipients RecipientSource
	submitter  Submitter
	confirmer  Confirmer
	notifier   Notifier
	token      domain.Token
	logger     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	session   uint64
	state     State
	spec      domain.AmountSpec
	rate      decimal.Decimal
	balance   *big.Int
	note      string
	recipient *domain.ResolvedRecipient
	ref       *domain.TransferReference
	lastErr   error
	listeners []Listener
}

// New creates a flow in compose. notifier may be nil.
func New(recipients RecipientSource, submitter Submitter, confirmer Confirmer, notifier Notifier, token domain.Token, log logger.Logger) *Flow {
	ctx, cancel := context.WithCancel(context.Background())
	return &Flow{
		recipients: recipients,
		submitter:  submitter,
		confirmer:  confirmer,
		notifier:   notifier,
		token:      token,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateCompose,
	}
}

func (f *Flow) OnEvent(l Listener) {
	f.mu.Lock()
	f.listeners = append(f.listeners, l)
	f.mu.Unlock()
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// SetAmount records the entered amount at rate local units per token.
func (f *Flow) SetAmount(display string, currency domain.DisplayCurrency, rate decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateCompose {
		return errors.ErrInvalidTransition
	}
	f.rate = rate
	f.spec = amount.Spec(display, currency, rate, f.token.Decimals)
	return nil
}

// SetRate refreshes the exchange rate and recomputes base units for the
// entered amount. Submit re-checks the balance against the new value.
func (f *Flow) SetRate(rate decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateCompose && f.state != StateReview {
		return errors.ErrInvalidTransition
	}
	f.rate = rate
	if f.spec.DisplayCurrency != "" {
		f.spec = amount.Spec(f.spec.DisplayValue, f.spec.DisplayCurrency, rate, f.token.Decimals)
	}
	return nil
}

// SetBalance records the sender's known token balance. nil means unknown.
func (f *Flow) SetBalance(balance *big.Int) {
	f.mu.Lock()
	f.balance = balance
	f.mu.Unlock()
}

func (f *Flow) SetNote(note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateCompose && f.state != StateReview {
		return errors.ErrInvalidTransition
	}
	f.note = note
	return nil
}

// Review moves compose to review once the recipient and amount guards pass.
func (f *Flow) Review() error {
	snap := f.recipients.Snapshot()

	f.mu.Lock()
	if f.state != StateCompose {
		f.mu.Unlock()
		return errors.ErrInvalidTransition
	}
	if err := recipientGuard(snap); err != nil {
		f.mu.Unlock()
		return err
	}
	if err := amount.CheckBalance(f.spec.TokenBaseUnits, f.balance); err != nil {
		f.mu.Unlock()
		return err
	}
	resolved := *snap.Recipient
	f.recipient = &resolved
	f.lastErr = nil
	f.state = StateReview
	ev := f.eventLocked(EventReview, "")
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// Edit returns from review to compose.
func (f *Flow) Edit() error {
	f.mu.Lock()
	if f.state != StateReview {
		f.mu.Unlock()
		return errors.ErrInvalidTransition
	}
	f.state = StateCompose
	f.recipient = nil
	ev := f.eventLocked(EventCompose, "")
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// Submit broadcasts the reviewed transfer. On success the flow is submitted and
// confirmation plus notification continue in the background. On failure the
// flow returns to compose with the error recorded.
func (f *Flow) Submit(ctx context.Context) (domain.TransferReference, error) {
	f.mu.Lock()
	switch f.state {
	case StateReview:
	case StateSubmitting:
		f.mu.Unlock()
		return domain.TransferReference{}, errors.ErrSubmissionInProgress
	default:
		f.mu.Unlock()
		return domain.TransferReference{}, errors.ErrInvalidTransition
	}
	// The recipient may have changed since review.
	snap := f.recipients.Snapshot()
	guardErr := recipientGuard(snap)
	if guardErr == nil && !strings.EqualFold(snap.Recipient.SettlementAddress, f.recipient.SettlementAddress) {
		guardErr = errors.ErrInvalidInput
	}
	if guardErr != nil {
		f.state = StateCompose
		f.lastErr = guardErr
		ev := f.eventLocked(EventFailed, "Recipient not resolved.")
		f.mu.Unlock()
		f.emit(ev)
		return domain.TransferReference{}, guardErr
	}
	// Balance or rate may have been refreshed since review.
	if err := amount.CheckBalance(f.spec.TokenBaseUnits, f.balance); err != nil {
		f.state = StateCompose
		f.lastErr = err
		ev := f.eventLocked(EventFailed, errors.UserMessage(err))
		f.mu.Unlock()
		f.emit(ev)
		return domain.TransferReference{}, err
	}
	f.state = StateSubmitting
	session := f.session
	to := f.recipient.SettlementAddress
	value := new(big.Int).Set(f.spec.TokenBaseUnits)
	note := f.note
	ev := f.eventLocked(EventSubmitting, "")
	f.mu.Unlock()
	f.emit(ev)

	ref, err := f.submitter.SubmitTransfer(ctx, f.token.Contract, to, value)

	f.mu.Lock()
	if session != f.session {
		f.mu.Unlock()
		return ref, err
	}
	if err != nil {
		submitErr := fmt.Errorf("%w: %w", errors.ErrSubmissionFailed, err)
		f.state = StateCompose
		f.lastErr = submitErr
		ev := f.eventLocked(EventFailed, "Payment failed.")
		f.mu.Unlock()
		f.emit(ev)
		f.logger.Warn("Transfer submission failed", map[string]interface{}{
			"to":    to,
			"error": err.Error(),
		})
		return domain.TransferReference{}, submitErr
	}
	f.state = StateSubmitted
	f.ref = &ref
	ev = f.eventLocked(EventSubmitted, "Payment sent.")
	f.mu.Unlock()
	f.emit(ev)

	f.logger.Info("Transfer submitted", map[string]interface{}{
		"tx_hash": ref.TransactionID,
		"to":      to,
		"value":   value.String(),
	})

	req := NotifyRequest{Recipient: to, TxHash: ref.TransactionID, Note: note}
	f.wg.Add(2)
	go func() {
		defer f.wg.Done()
		// The receipt is usually not indexed yet; failures here are expected.
		if err := f.notify(req); err != nil {
			f.logger.Debug("Early payment notification not delivered", map[string]interface{}{
				"tx_hash": ref.TransactionID,
				"error":   err.Error(),
			})
		}
	}()
	go func() {
		defer f.wg.Done()
		f.confirm(session, req)
	}()
	return ref, nil
}

func (f *Flow) confirm(session uint64, req NotifyRequest) {
	_, err := f.confirmer.WaitConfirmed(f.ctx, req.TxHash)

	f.mu.Lock()
	if session != f.session {
		f.mu.Unlock()
		return
	}
	if err != nil {
		// The transfer was broadcast and cannot be recalled; stay submitted.
		var ev Event
		if stderrors.Is(err, errors.ErrOnChainFailure) {
			f.lastErr = err
			ev = f.eventLocked(EventReverted, errors.UserMessage(err))
		} else {
			ev = f.eventLocked(EventConfirmUnknown, "")
		}
		f.mu.Unlock()
		f.emit(ev)
		f.logger.Warn("Transfer confirmation not observed", map[string]interface{}{
			"tx_hash": req.TxHash,
			"error":   err.Error(),
		})
		return
	}
	f.state = StateConfirmed
	ev := f.eventLocked(EventConfirmed, "")
	f.mu.Unlock()
	f.emit(ev)

	if err := f.notify(req); err != nil {
		f.logger.Warn("Payment notification failed after confirmation", map[string]interface{}{
			"tx_hash": req.TxHash,
			"error":   err.Error(),
		})
		if strings.TrimSpace(req.Note) == "" {
			return
		}
		f.mu.Lock()
		if session != f.session {
			f.mu.Unlock()
			return
		}
		ev := f.eventLocked(EventNotifyFailed, "Payment sent, but your note could not be delivered.")
		f.mu.Unlock()
		f.emit(ev)
	}
}

func (f *Flow) notify(req NotifyRequest) error {
	if f.notifier == nil {
		return nil
	}
	return f.notifier.NotifyPayment(f.ctx, req)
}

// Reset starts a fresh compose session. Background work of the previous
// session keeps running but its results are ignored. A submission in flight
// cannot be abandoned.
func (f *Flow) Reset() error {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return errors.ErrSubmissionInProgress
	}
	f.session++
	f.state = StateCompose
	f.spec = domain.AmountSpec{}
	f.note = ""
	f.recipient = nil
	f.ref = nil
	f.lastErr = nil
	ev := f.eventLocked(EventCompose, "")
	f.mu.Unlock()

	f.emit(ev)
	return nil
}

// Close cancels background confirmation and waits for it to stop.
func (f *Flow) Close() {
	f.cancel()
	f.wg.Wait()
}

// Wait blocks until background confirmation and notification finish.
func (f *Flow) Wait() {
	f.wg.Wait()
}

func (f *Flow) emit(ev Event) {
	f.mu.Lock()
	listeners := make([]Listener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

// recipientGuard maps a resolver snapshot to the reason a transfer cannot proceed.
func recipientGuard(snap recipient.Snapshot) error {
	if snap.Ready() {
		return nil
	}
	switch {
	case snap.SelfSend:
		return errors.ErrSelfSend
	case snap.State == recipient.StateNotFound:
		return errors.ErrRecipientNotFound
	case snap.State == recipient.StateLookupError && snap.Err != nil:
		return snap.Err
	case snap.State == recipient.StateLookupError:
		return errors.ErrLookupFailed
	default:
		return errors.ErrInvalidInput
	}
}
