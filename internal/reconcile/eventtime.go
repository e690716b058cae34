package reconcile

import (
	"context"
	"strings"
	"time"

	"dotpay/pkg/logger"
)

// BlockClock looks up a block's timestamp.
type BlockClock interface {
	BlockTimestamp(ctx context.Context, blockRef string) (time.Time, error)
}

// TimeResolver maps a block reference to a wall-clock time, falling back to now.
type TimeResolver struct {
	clock  BlockClock
	now    func() time.Time
	logger logger.Logger
}

func NewTimeResolver(clock BlockClock, log logger.Logger) *TimeResolver {
	return &TimeResolver{clock: clock, now: time.Now, logger: log}
}

// Resolve never fails; a missing or unreadable block yields the current time.
func (r *TimeResolver) Resolve(ctx context.Context, blockRef string) time.Time {
	if r.clock == nil || !strings.HasPrefix(blockRef, "0x") {
		return r.now().UTC()
	}
	ts, err := r.clock.BlockTimestamp(ctx, blockRef)
	if err != nil || ts.IsZero() || ts.Unix() <= 0 {
		if err != nil {
			r.logger.Debug("Block timestamp unavailable", map[string]interface{}{
				"block": blockRef,
				"error": err.Error(),
			})
		}
		return r.now().UTC()
	}
	return ts.UTC()
}
