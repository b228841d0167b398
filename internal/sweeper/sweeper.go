// Package sweeper runs the periodic maintenance loops: expiring coupons
// whose expiry date has passed and abandoning carts that went stale.
package sweeper

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/glowmart/coupon-engine/internal/domain/cart"
	"github.com/glowmart/coupon-engine/internal/domain/coupon"
)

// Config controls sweep timing.
type Config struct {
	// Interval between sweep runs.
	Interval time.Duration
	// AbandonAfter is how long a cart may stay untouched before it is
	// marked abandoned. Zero disables the cart sweep.
	AbandonAfter time.Duration
}

// Sweeper expires due coupons and abandons stale carts on a fixed
// interval. Both sweeps are conditional updates at the storage layer, so
// running them concurrently or repeatedly is safe; the interval only
// bounds staleness. Eligibility never depends on the sweep: an expired
// coupon is rejected by date regardless of its stored status.
type Sweeper struct {
	coupons coupon.Repository
	carts   cart.Repository
	cfg     Config
	now     func() time.Time
	lg      *zap.Logger
}

// New creates a Sweeper. A zero interval defaults to one minute.
func New(coupons coupon.Repository, carts cart.Repository, cfg Config, lg *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Sweeper{coupons: coupons, carts: carts, cfg: cfg, now: time.Now, lg: lg}
}

// Run sweeps once immediately, then on every interval tick until the
// context is cancelled. A failed sweep is logged and retried on the next
// tick; it never stops the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.SweepExpired(ctx); err != nil {
		s.lg.Error("coupon expiry sweep failed", zap.Error(err))
	}
	if _, err := s.SweepAbandoned(ctx); err != nil {
		s.lg.Error("cart abandonment sweep failed", zap.Error(err))
	}
}

// SweepExpired transitions Active coupons past their expiry date to
// Expired and returns how many changed. Idempotent.
func (s *Sweeper) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.coupons.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "expire due coupons")
	}
	if n > 0 {
		s.lg.Info("expired coupons", zap.Int64("count", n))
	}
	return n, nil
}

// SweepAbandoned marks carts untouched past the abandonment threshold as
// Abandoned and returns how many changed. Disabled when no threshold is
// configured.
func (s *Sweeper) SweepAbandoned(ctx context.Context) (int64, error) {
	if s.cfg.AbandonAfter <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.AbandonAfter)
	n, err := s.carts.AbandonStale(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "abandon stale carts")
	}
	if n > 0 {
		s.lg.Info("abandoned stale carts", zap.Int64("count", n))
	}
	return n, nil
}
