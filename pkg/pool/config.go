package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds the pool sizing and recycling policy. Immutable after New.
type Config struct {
	// Name tags logs and metrics emitted by the pool.
	Name string
	// MaxSize bounds the number of objects concurrently in use or being
	// created. 0 means unbounded.
	MaxSize int
	// MinSize is the baseline of warm available objects the housekeeper
	// maintains.
	MinSize int
	// MaxUse retires an object once it has been acquired this many times.
	// 0 means unlimited.
	MaxUse int64
	// MaxIdleAge destroys available objects idle longer than this, never
	// shrinking below MinSize available objects. 0 disables the sweep.
	MaxIdleAge time.Duration
	// MaxBorrowWarn flags in-use objects held longer than this.
	// Defaults to MaxBorrowKill when only the kill threshold is set.
	MaxBorrowWarn time.Duration
	// MaxBorrowKill forcibly destroys in-use objects held longer than this,
	// even though they are still logically borrowed. The borrower's handle is
	// invalidated; its eventual Release is a no-op. 0 disables the reclaim.
	MaxBorrowKill time.Duration
	// HealthCheckEvery runs the health sweep every N housekeeping rounds.
	// Defaults to 1.
	HealthCheckEvery int
	// HousekeepingInterval is the period of the background cycle. 0 derives
	// a default from the recycling delays, or 60s when only a health hook
	// is configured.
	HousekeepingInterval time.Duration
	// AcquireTimeout is the default bounded wait for a capacity token when
	// the caller's context carries no deadline. Only used on bounded pools.
	AcquireTimeout time.Duration
}

// Hooks are caller-supplied seams to the surrounding functionality, e.g. a
// browser-session factory or a rotating-egress-credential factory. All hooks
// except Create are optional; their panics are recovered and logged, never
// propagated to pool callers.
type Hooks[T any] struct {
	// Create builds a new object. seq is the pool-instance creation sequence
	// number. Failures propagate to whoever requested the creation.
	Create func(ctx context.Context, seq int64) (T, error)
	// OnCreate runs after Create succeeds, before the object is usable.
	OnCreate func(T)
	// OnAcquire runs when an object is handed to a caller.
	OnAcquire func(T)
	// OnRelease runs when a caller returns an object.
	OnRelease func(T)
	// OnDestroy runs just before an object is discarded.
	OnDestroy func(T)
	// IsHealthy reports whether an available object is still usable. A panic
	// counts as unhealthy.
	IsHealthy func(T) bool
	// Describe produces per-object data for Stats snapshots.
	Describe func(T) map[string]any
}

func (c *Config) normalize() error {
	if c.MaxSize < 0 || c.MinSize < 0 || c.MaxUse < 0 {
		return fmt.Errorf("%w: sizes must be non-negative", ErrInvalidConfig)
	}
	if c.MaxSize > 0 && c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: min_size %d exceeds max_size %d", ErrInvalidConfig, c.MinSize, c.MaxSize)
	}
	if c.Name == "" {
		c.Name = "pool"
	}
	if c.MaxBorrowWarn == 0 {
		c.MaxBorrowWarn = c.MaxBorrowKill
	}
	if c.MaxBorrowKill > 0 && c.MaxBorrowWarn > c.MaxBorrowKill {
		log.Warn().Str("pool", c.Name).Msg("inconsistent max_borrow_warn > max_borrow_kill")
	}
	if c.HealthCheckEvery <= 0 {
		c.HealthCheckEvery = 1
	}
	return nil
}

// housekeepingInterval derives the cycle period when none is configured:
// half the shortest recycling delay, or a slow default when only health
// checking is requested.
func (c *Config) housekeepingInterval(hasHealthHook bool) time.Duration {
	if c.HousekeepingInterval > 0 {
		return c.HousekeepingInterval
	}
	if c.MaxIdleAge > 0 || c.MaxBorrowWarn > 0 {
		d := c.MaxIdleAge
		if d == 0 || (c.MaxBorrowWarn > 0 && d > c.MaxBorrowWarn) {
			d = c.MaxBorrowWarn
		}
		return d / 2
	}
	if hasHealthHook {
		return time.Minute
	}
	return 0
}
