package pool

import (
	"time"

	"github.com/rs/zerolog/log"
)

// ObjectStats is a point-in-time descriptor of one tracked object.
type ObjectStats struct {
	Seq            int64          `json:"seq"`
	Uses           int64          `json:"uses"`
	AgeSeconds     float64        `json:"age_seconds"`
	LastGetSeconds float64        `json:"last_get_seconds"`
	LastRetSeconds float64        `json:"last_ret_seconds"`
	Describe       map[string]any `json:"describe,omitempty"`
}

// Snapshot is a JSON-serializable point-in-time view of the pool, intended
// for external monitoring collectors.
type Snapshot struct {
	Name    string    `json:"name"`
	Started time.Time `json:"started"`
	Now     time.Time `json:"now"`

	MinSize                     int     `json:"min_size"`
	MaxSize                     int     `json:"max_size"`
	MaxUse                      int64   `json:"max_use"`
	AcquireTimeoutSeconds       float64 `json:"acquire_timeout_seconds"`
	HousekeepingIntervalSeconds float64 `json:"housekeeping_interval_seconds"`
	MaxIdleAgeSeconds           float64 `json:"max_idle_age_seconds"`
	MaxBorrowWarnSeconds        float64 `json:"max_borrow_warn_seconds"`
	MaxBorrowKillSeconds        float64 `json:"max_borrow_kill_seconds"`
	HealthCheckEvery            int     `json:"health_check_every"`

	Available    int  `json:"navail"`
	InUse        int  `json:"nusing"`
	Condemned    int  `json:"ncondemned"`
	ShuttingDown bool `json:"shutting_down"`

	RunningSeconds          float64 `json:"running_seconds"`
	LastHousekeepingSeconds float64 `json:"last_housekeeping_seconds"`
	TimePerHousekeeping     float64 `json:"time_per_housekeeping_seconds"`

	Creating     int64 `json:"ncreating"`
	Created      int64 `json:"ncreated"`
	Uses         int64 `json:"nuses"`
	Killed       int64 `json:"nkilled"`
	Recycled     int64 `json:"nrecycled"`
	WornOut      int64 `json:"nwornout"`
	Borrows      int64 `json:"nborrows"`
	Returns      int64 `json:"nreturns"`
	Destroyed    int64 `json:"ndestroys"`
	HealthChecks int64 `json:"nhealth"`
	BadHealth    int64 `json:"bad_health"`

	HousekeepingRounds int64 `json:"hk_rounds"`
	HousekeepingErrors int64 `json:"hk_errors"`
	HealthCheckRounds  int64 `json:"hc_rounds"`
	HealthCheckErrors  int64 `json:"hc_errors"`

	AvailableObjects []ObjectStats `json:"avail"`
	InUseObjects     []ObjectStats `json:"using"`
}

// Stats takes a snapshot under the lock. The Describe hook runs inside the
// critical section, so hook authors are responsible for keeping it fast.
func (p *Pool[T]) Stats() Snapshot {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		Name:    p.cfg.Name,
		Started: p.startedAt,
		Now:     now,

		MinSize:                     p.minSize,
		MaxSize:                     p.cfg.MaxSize,
		MaxUse:                      p.cfg.MaxUse,
		AcquireTimeoutSeconds:       p.cfg.AcquireTimeout.Seconds(),
		HousekeepingIntervalSeconds: p.interval.Seconds(),
		MaxIdleAgeSeconds:           p.cfg.MaxIdleAge.Seconds(),
		MaxBorrowWarnSeconds:        p.cfg.MaxBorrowWarn.Seconds(),
		MaxBorrowKillSeconds:        p.cfg.MaxBorrowKill.Seconds(),
		HealthCheckEvery:            p.cfg.HealthCheckEvery,

		Available:    len(p.available),
		InUse:        len(p.inUse),
		Condemned:    len(p.condemned),
		ShuttingDown: p.down,

		RunningSeconds: now.Sub(p.startedAt).Seconds(),

		Creating:     p.ctr.creating,
		Created:      p.ctr.created,
		Uses:         p.ctr.uses,
		Killed:       p.ctr.killed,
		Recycled:     p.ctr.recycled,
		WornOut:      p.ctr.wornOut,
		Borrows:      p.ctr.borrows,
		Returns:      p.ctr.returns,
		Destroyed:    p.ctr.destroyed,
		HealthChecks: p.ctr.healthChecks,
		BadHealth:    p.ctr.badHealth,

		HousekeepingRounds: p.ctr.hkRounds,
		HousekeepingErrors: p.ctr.hkErrors,
		HealthCheckRounds:  p.ctr.hcRounds,
		HealthCheckErrors:  p.ctr.hcErrors,
	}
	if !p.hkLast.IsZero() {
		s.LastHousekeepingSeconds = now.Sub(p.hkLast).Seconds()
	}
	if p.ctr.hkRounds > 0 {
		s.TimePerHousekeeping = p.hkTotal.Seconds() / float64(p.ctr.hkRounds)
	}

	s.AvailableObjects = make([]ObjectStats, 0, len(p.available))
	for o := range p.available {
		s.AvailableObjects = append(s.AvailableObjects, p.objectStats(o, now))
	}
	s.InUseObjects = make([]ObjectStats, 0, len(p.inUse))
	for o := range p.inUse {
		s.InUseObjects = append(s.InUseObjects, p.objectStats(o, now))
	}
	return s
}

func (p *Pool[T]) objectStats(o *Object[T], now time.Time) ObjectStats {
	return ObjectStats{
		Seq:            o.seq,
		Uses:           o.uses,
		AgeSeconds:     now.Sub(o.createdAt).Seconds(),
		LastGetSeconds: now.Sub(o.lastAcquired).Seconds(),
		LastRetSeconds: now.Sub(o.lastReleased).Seconds(),
		Describe:       p.describe(o),
	}
}

func (p *Pool[T]) describe(o *Object[T]) (data map[string]any) {
	if p.hooks.Describe == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("pool", p.cfg.Name).Interface("panic", r).Msg("describe hook panicked")
			data = nil
		}
	}()
	return p.hooks.Describe(o.value)
}
