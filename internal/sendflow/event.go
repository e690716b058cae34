package sendflow

import (
	"math/big"

	"dotpay/internal/domain"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventCompose        EventType = "compose"
	EventReview         EventType = "review"
	EventSubmitting     EventType = "submitting"
	EventSubmitted      EventType = "submitted"
	EventFailed         EventType = "failed"
	EventConfirmed      EventType = "confirmed"
	EventConfirmUnknown EventType = "confirm_unknown"
	EventReverted       EventType = "reverted"
	EventNotifyFailed   EventType = "notify_failed"
)

// Event is delivered to listeners on every transition. Notice is a short
// user-facing message and is empty when nothing should be shown.
type Event struct {
	Type     EventType
	Notice   string
	Snapshot Snapshot
}

type Listener func(Event)

type Snapshot struct {
	State     State
	Amount    domain.AmountSpec
	Rate      decimal.Decimal
	Note      string
	Recipient *domain.ResolvedRecipient
	Transfer  *domain.TransferReference
	LastError error
}

// TokenBaseUnits returns a copy of the amount to transfer, or nil.
func (s Snapshot) TokenBaseUnits() *big.Int {
	if s.Amount.TokenBaseUnits == nil {
		return nil
	}
	return new(big.Int).Set(s.Amount.TokenBaseUnits)
}

func (f *Flow) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     f.state,
		Amount:    f.spec,
		Rate:      f.rate,
		Note:      f.note,
		LastError: f.lastErr,
	}
	if f.recipient != nil {
		r := *f.recipient
		snap.Recipient = &r
	}
	if f.ref != nil {
		ref := *f.ref
		snap.Transfer = &ref
	}
	return snap
}

func (f *Flow) eventLocked(t EventType, notice string) Event {
	return Event{Type: t, Notice: notice, Snapshot: f.snapshotLocked()}
}
