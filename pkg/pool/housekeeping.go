package pool

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/metric"
)

func (p *Pool[T]) housekeeper() {
	defer close(p.done)
	log.Info().Str("pool", p.cfg.Name).Msgf("housekeeper running every %s", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
		p.runRound()
	}
}

func (p *Pool[T]) runRound() {
	start := time.Now()

	p.mu.Lock()
	p.ctr.hkRounds++
	round := p.ctr.hkRounds
	p.hkLast = start
	killed, recycled := p.sweepLocked(start)
	navail := len(p.available)
	nusing := len(p.inUse)
	p.mu.Unlock()

	metric.ObservePoolDestroy(p.cfg.Name, metric.TagValueReasonKilled, killed)
	metric.ObservePoolDestroy(p.cfg.Name, metric.TagValueReasonIdle, recycled)

	// health checks borrow objects one at a time outside the lock, so a
	// stuck health hook cannot freeze the pool
	if p.hooks.IsHealthy != nil && round%int64(p.cfg.HealthCheckEvery) == 0 {
		p.healthSweep()
	}

	p.drain()
	p.fill()

	elapsed := time.Since(start)
	p.mu.Lock()
	p.hkTotal += elapsed
	p.mu.Unlock()

	metric.ObservePoolSizes(p.cfg.Name, navail, nusing)
	metric.Timing(metric.PoolHousekeepingLatency, elapsed, p.tags())
}

// sweepLocked runs the borrow-age and idle sweeps. Caller holds mu; the
// sweeps only move objects between sets, actual destruction is deferred to
// drain to keep the critical section short.
func (p *Pool[T]) sweepLocked(now time.Time) (killed, recycled int64) {
	defer func() {
		if r := recover(); r != nil {
			p.ctr.hkErrors++
			log.Error().Str("pool", p.cfg.Name).Interface("panic", r).Msg("housekeeper round error")
		}
	}()

	if p.cfg.MaxBorrowWarn > 0 {
		var longRun, longKill int
		var longTime time.Duration
		for o := range p.inUse {
			held := now.Sub(o.lastAcquired)
			if held >= p.cfg.MaxBorrowWarn {
				longRun++
				longTime += held
			}
			if p.cfg.MaxBorrowKill > 0 && held >= p.cfg.MaxBorrowKill {
				// The borrower may still be using the object, so it cannot
				// simply be returned: condemn it while logically borrowed.
				// The borrower's eventual Release becomes a no-op.
				longKill++
				p.ctr.killed++
				delete(p.inUse, o)
				o.state = stateCondemned
				p.condemned = append(p.condemned, o)
				// the borrower will never give this token back
				p.releaseToken()
			}
		}
		if longRun > 0 || longKill > 0 {
			avg := time.Duration(0)
			if longRun > 0 {
				avg = longTime / time.Duration(longRun)
			}
			log.Warn().Str("pool", p.cfg.Name).
				Msgf("long running objects: %d (%s avg, %d to kill)", longRun, avg, longKill)
		}
		killed = int64(longKill)
	}

	if p.cfg.MaxIdleAge > 0 {
		for o := range p.available {
			if len(p.available) <= p.minSize {
				break
			}
			if now.Sub(o.lastReleased) >= p.cfg.MaxIdleAge {
				delete(p.available, o)
				o.state = stateCondemned
				p.condemned = append(p.condemned, o)
				p.ctr.recycled++
				recycled++
			}
		}
	}
	return killed, recycled
}

// healthSweep transiently borrows each available object and asks the health
// hook about it. Objects in use are skipped, coverage is best-effort.
func (p *Pool[T]) healthSweep() {
	p.mu.Lock()
	p.ctr.hcRounds++
	objs := make([]*Object[T], 0, len(p.available))
	for o := range p.available {
		objs = append(objs, o)
	}
	p.mu.Unlock()

	for _, o := range objs {
		if !p.borrowForCheck(o) {
			continue
		}
		healthy := p.checkHealth(o)

		p.mu.Lock()
		delete(p.inUse, o)
		if healthy {
			o.state = stateAvailable
			p.available[o] = struct{}{}
			p.ctr.returns++
		} else {
			o.state = stateCondemned
			p.condemned = append(p.condemned, o)
			p.ctr.badHealth++
		}
		p.mu.Unlock()
		p.releaseToken()

		if !healthy {
			log.Error().Str("pool", p.cfg.Name).Int64("seq", o.seq).Msg("bad health, removing object")
			metric.ObservePoolDestroy(p.cfg.Name, metric.TagValueReasonUnhealthy, 1)
		}
	}
}

// borrowForCheck is a special acquisition that bypasses the caller hooks,
// used only by the health sweep. Best-effort: reports false when the object
// was taken meanwhile or no capacity token is free.
func (p *Pool[T]) borrowForCheck(o *Object[T]) bool {
	if p.sem != nil && !p.sem.TryAcquire(1) {
		return false
	}
	p.mu.Lock()
	if _, ok := p.available[o]; !ok {
		p.mu.Unlock()
		p.releaseToken()
		return false
	}
	delete(p.available, o)
	o.state = stateInUse
	p.inUse[o] = struct{}{}
	p.ctr.borrows++
	p.mu.Unlock()
	return true
}

// checkHealth treats a panicking health hook as unhealthy: an erroring check
// gives no evidence the object is usable.
func (p *Pool[T]) checkHealth(o *Object[T]) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.ctr.hcErrors++
			p.mu.Unlock()
			log.Error().Str("pool", p.cfg.Name).Interface("panic", r).Msg("health check error")
			healthy = false
		}
	}()
	p.mu.Lock()
	p.ctr.healthChecks++
	p.mu.Unlock()
	return p.hooks.IsHealthy(o.value)
}
