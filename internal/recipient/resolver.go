package recipient

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"dotpay/internal/domain"
	"dotpay/pkg/errors"
	"dotpay/pkg/logger"
)

// State is the resolver's progress for the current input.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StateInvalid     State = "invalid"
	StateResolving   State = "resolving"
	StateResolved    State = "resolved"
	StateNotFound    State = "not_found"
	StateLookupError State = "lookup_error"
)

const DefaultDebounce = 350 * time.Millisecond

// Snapshot is an immutable view of the resolver.
type Snapshot struct {
	Kind      domain.RecipientKind
	Input     string
	State     State
	Recipient *domain.ResolvedRecipient
	Message   string
	Err       error
	SelfSend  bool
	Seq       uint64
}

// Ready reports whether a transfer may proceed to this recipient.
func (s Snapshot) Ready() bool {
	return s.State == StateResolved && s.Recipient != nil && !s.SelfSend
}

// Resolver tracks one recipient input field. Lookups are debounced and every
// issued lookup carries a sequence number; only the latest one is applied.
type Resolver struct {
	directory Directory
	debounce  time.Duration
	logger    logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sender    string
	seq       uint64
	timer     *time.Timer
	snap      Snapshot
	listeners []func(Snapshot)
}

// NewResolver creates a resolver. A nil directory behaves as not configured.
func NewResolver(directory Directory, sender string, debounce time.Duration, log logger.Logger) *Resolver {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		directory: directory,
		debounce:  debounce,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
		sender:    strings.TrimSpace(sender),
		snap:      Snapshot{State: StateIdle},
	}
}

// OnChange registers a listener. Listeners run with the resolver locked and
// must not call back into it.
func (r *Resolver) OnChange(fn func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// SetSender updates the connected sender address and re-evaluates self-send.
func (r *Resolver) SetSender(addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = strings.TrimSpace(addr)
	r.snap.SelfSend = CheckNotSelf(r.snap.Recipient, r.sender) != nil
	r.emit()
}

func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Clear resets to idle and cancels any pending lookup.
func (r *Resolver) Clear() {
	r.Update(r.Snapshot().Kind, "")
}

// Close cancels pending timers and in-flight lookups.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.stopTimer()
	r.seq++
	r.mu.Unlock()
	r.cancel()
}

// Update applies new input for kind. Any pending debounce timer is cancelled and
// any in-flight lookup becomes stale.
func (r *Resolver) Update(kind domain.RecipientKind, input string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTimer()
	r.seq++
	seq := r.seq

	q := strings.TrimSpace(input)
	r.snap = Snapshot{Kind: kind, Input: q, State: StateIdle, Seq: seq}
	if q == "" {
		r.emit()
		return
	}

	r.snap.State = StateValidating
	r.emit()

	query, err := Validate(kind, q)
	if err != nil {
		r.snap.State = StateInvalid
		r.snap.Err = err
		r.snap.Message = err.Error()
		r.emit()
		return
	}

	if kind == domain.RecipientWallet {
		r.setResolved(FromAddress(query))
		r.emit()
		if directoryConfigured(r.directory) {
			r.schedule(func(ctx context.Context) { r.enrich(ctx, seq, query) })
		}
		return
	}

	if !directoryConfigured(r.directory) {
		r.snap.State = StateLookupError
		r.snap.Err = errors.ErrDirectoryNotConfigured
		r.snap.Message = "Recipient lookup is unavailable (backend not configured)."
		r.emit()
		return
	}

	r.snap.State = StateResolving
	r.emit()
	r.schedule(func(ctx context.Context) { r.lookup(ctx, seq, query) })
}

func (r *Resolver) schedule(fn func(ctx context.Context)) {
	r.timer = time.AfterFunc(r.debounce, func() {
		if r.ctx.Err() != nil {
			return
		}
		fn(r.ctx)
	})
}

func (r *Resolver) lookup(ctx context.Context, seq uint64, query string) {
	user, err := r.directory.Lookup(ctx, query)

	r.apply(seq, func() {
		switch {
		case err == nil && user != nil && user.Address != "":
			r.setResolved(FromUser(user))
		case err == nil || stderrors.Is(err, errors.ErrRecipientNotFound):
			r.snap.State = StateNotFound
			r.snap.Err = errors.ErrRecipientNotFound
			r.snap.Message = "No DotPay user found for that identifier."
		default:
			r.logger.Warn("Recipient lookup failed", map[string]interface{}{
				"kind":  r.snap.Kind,
				"error": err.Error(),
			})
			r.snap.State = StateLookupError
			r.snap.Err = err
			r.snap.Message = "Could not lookup recipient. Try again."
		}
	})
}

func (r *Resolver) enrich(ctx context.Context, seq uint64, address string) {
	user, err := r.directory.GetByAddress(ctx, address)
	if err != nil || user == nil || !domain.SameAddress(user.Address, address) {
		return
	}
	r.apply(seq, func() { r.setResolved(FromUser(user)) })
}

// apply runs fn only if seq is still the latest issued sequence number.
func (r *Resolver) apply(seq uint64, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq != r.seq {
		r.logger.Debug("Discarding stale recipient lookup", map[string]interface{}{
			"seq":     seq,
			"current": r.seq,
		})
		return
	}
	fn()
	r.emit()
}

func (r *Resolver) setResolved(resolved *domain.ResolvedRecipient) {
	r.snap.State = StateResolved
	r.snap.Recipient = resolved
	r.snap.Err = nil
	r.snap.Message = ""
	r.snap.SelfSend = CheckNotSelf(resolved, r.sender) != nil
	if r.snap.SelfSend {
		r.snap.Message = errors.UserMessage(errors.ErrSelfSend)
	}
}

func (r *Resolver) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Resolver) emit() {
	snap := r.snap
	for _, fn := range r.listeners {
		fn(snap)
	}
}
