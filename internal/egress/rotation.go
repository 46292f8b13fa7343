package egress

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	egresserrors "github.com/Meesho/BharatMLStack/proxy-pool/internal/errors"
	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/metric"
)

// RotationConfig holds the give-out policy for the rotation registry.
// Zero values disable the corresponding limit.
type RotationConfig struct {
	// MaxGiveOuts caps how many leases may hold one endpoint concurrently.
	MaxGiveOuts int64
	// MaxTimeouts retires an endpoint after it has been cooled down this
	// many times.
	MaxTimeouts int64
	// MaxUses retires an endpoint after this many uses.
	MaxUses int64
	// CooldownOnUse puts an endpoint on cooldown after every use.
	CooldownOnUse time.Duration
	// Replenish is called when every endpoint is exhausted. It should push
	// a fresh set via Add. Pickers block while a replenish is in flight.
	Replenish func(*Rotation) error
}

// RetryAfterError reports that every candidate endpoint is only cooling
// down, and when the earliest becomes usable again.
type RetryAfterError struct {
	At time.Time
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("egress: next endpoint available at %s", e.At.Format(time.RFC3339))
}

// Rotation is a registry of named egress endpoints with per-endpoint
// give-out, cooldown and ban state. Safe for concurrent use.
type Rotation struct {
	cfg RotationConfig

	mu           sync.Mutex
	cond         *sync.Cond
	replenishing bool
	endpoints    map[string]*endpointState
}

func NewRotation(cfg RotationConfig, endpoints []Endpoint) *Rotation {
	r := &Rotation{
		cfg:       cfg,
		endpoints: make(map[string]*endpointState, len(endpoints)),
	}
	r.cond = sync.NewCond(&r.mu)
	for _, ep := range endpoints {
		r.endpoints[ep.Name] = &endpointState{info: ep}
	}
	return r
}

// Add registers or overwrites endpoints, resetting their state.
func (r *Rotation) Add(endpoints []Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range endpoints {
		r.endpoints[ep.Name] = &endpointState{info: ep}
	}
}

// Remove drops endpoints by name.
func (r *Rotation) Remove(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.endpoints, name)
	}
}

// ClearUnusable drops every endpoint that can no longer be used at all.
func (r *Rotation) ClearUnusable() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	removed := 0
	for name, s := range r.endpoints {
		if !r.validToUse(s, now) {
			delete(r.endpoints, name)
			removed++
		}
	}
	return removed
}

// AvailableCount reports how many endpoints are currently valid to give out.
func (r *Rotation) AvailableCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	n := 0
	for _, s := range r.endpoints {
		if r.validToGive(s, now, false) {
			n++
		}
	}
	return n
}

// Pick selects a random valid endpoint and records the give-out, handing
// back prev when the caller is rotating away from a previous assignment.
// When every endpoint is exhausted it replenishes once via the configured
// callback; when candidates are merely cooling down it returns a
// *RetryAfterError carrying the earliest availability.
func (r *Rotation) Pick(prev string) (string, error) {
	return r.pick(prev, true)
}

func (r *Rotation) pick(prev string, allowReplenish bool) (string, error) {
	r.mu.Lock()
	for r.replenishing {
		r.cond.Wait()
	}
	now := time.Now()

	valid := make([]string, 0, len(r.endpoints))
	for name, s := range r.endpoints {
		if r.validToGive(s, now, false) {
			valid = append(valid, name)
		}
	}
	if len(valid) > 0 {
		name := valid[rand.Intn(len(valid))]
		if prev != "" {
			if s, ok := r.endpoints[prev]; ok {
				s.givenOut--
			}
		}
		s := r.endpoints[name]
		s.givenOut++
		ep := s.info
		r.mu.Unlock()
		metric.Incr(metric.EgressEndpointPicked, metric.BuildTag(
			metric.NewTag(metric.TagEndpoint, ep.Name),
			metric.NewTag(metric.TagEndpointType, ep.Type),
		))
		return name, nil
	}

	// nothing valid right now, check whether anything is merely cooling down
	var earliest time.Time
	coolingDown := false
	for _, s := range r.endpoints {
		if r.validToGive(s, now, true) {
			if !coolingDown || s.cooldownUntil.Before(earliest) {
				earliest = s.cooldownUntil
			}
			coolingDown = true
		}
	}

	if coolingDown {
		r.mu.Unlock()
		return "", &RetryAfterError{At: earliest}
	}

	if r.cfg.Replenish != nil && allowReplenish {
		r.replenishing = true
		r.mu.Unlock()

		start := time.Now()
		err := r.cfg.Replenish(r)

		r.mu.Lock()
		r.replenishing = false
		r.cond.Broadcast()
		r.mu.Unlock()

		metric.Incr(metric.EgressReplenishCount, nil)
		metric.Timing(metric.EgressReplenishLatency, time.Since(start), nil)
		if err != nil {
			log.Error().Err(err).Msg("error during replenishing endpoints")
			return "", fmt.Errorf("%w: %v", egresserrors.ErrReplenishFailed, err)
		}
		return r.pick(prev, false)
	}

	r.mu.Unlock()
	metric.Incr(metric.EgressEndpointExhaust, nil)
	log.Warn().Msg("no valid egress endpoints available")
	return "", egresserrors.ErrNoneAvailable
}

// Return hands back a give-out without rotating to a new endpoint, e.g.
// when a pooled session holding the lease is destroyed.
func (r *Rotation) Return(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.endpoints[name]; ok {
		s.givenOut--
	}
}

// Use records a use of the endpoint, applying the configured cooldown.
func (r *Rotation) Use(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[name]
	if !ok {
		return fmt.Errorf("%w: %s", egresserrors.ErrUnknownEndpoint, name)
	}
	s.use(r.cfg.CooldownOnUse)
	return nil
}

// Cooldown puts the endpoint on cooldown for d.
func (r *Rotation) Cooldown(name string, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[name]
	if !ok {
		return fmt.Errorf("%w: %s", egresserrors.ErrUnknownEndpoint, name)
	}
	s.giveCooldown(d)
	return nil
}

func (r *Rotation) Ban(name string) error {
	return r.setBanned(name, true)
}

func (r *Rotation) Unban(name string) error {
	return r.setBanned(name, false)
}

func (r *Rotation) setBanned(name string, banned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[name]
	if !ok {
		return fmt.Errorf("%w: %s", egresserrors.ErrUnknownEndpoint, name)
	}
	s.banned = banned
	if banned {
		metric.Incr(metric.EgressEndpointBanned, metric.BuildTag(
			metric.NewTag(metric.TagEndpoint, name),
		))
	}
	return nil
}

// Endpoint returns the endpoint entry by name.
func (r *Rotation) Endpoint(name string) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", egresserrors.ErrUnknownEndpoint, name)
	}
	return s.info, nil
}

// ValidToUse reports whether the named endpoint may still serve traffic.
func (r *Rotation) ValidToUse(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.endpoints[name]
	if !ok {
		return false
	}
	return r.validToUse(s, time.Now())
}

// Status lists every endpoint with its rotation state.
func (r *Rotation) Status() []EndpointStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EndpointStatus, 0, len(r.endpoints))
	for _, s := range r.endpoints {
		out = append(out, EndpointStatus{
			Endpoint:      s.info,
			Banned:        s.banned,
			CooldownUntil: s.cooldownUntil,
			GivenOut:      s.givenOut,
			TimedOut:      s.timedOut,
			Used:          s.used,
		})
	}
	return out
}

func (r *Rotation) validToGive(s *endpointState, now time.Time, ignoreCooldown bool) bool {
	return (r.cfg.MaxGiveOuts <= 0 || s.givenOut < r.cfg.MaxGiveOuts) &&
		(r.cfg.MaxTimeouts <= 0 || s.timedOut < r.cfg.MaxTimeouts) &&
		(r.cfg.MaxUses <= 0 || s.used < r.cfg.MaxUses) &&
		s.usable(now, ignoreCooldown)
}

func (r *Rotation) validToUse(s *endpointState, now time.Time) bool {
	return (r.cfg.MaxUses <= 0 || s.used < r.cfg.MaxUses) &&
		(r.cfg.MaxTimeouts <= 0 || s.timedOut < r.cfg.MaxTimeouts) &&
		s.usable(now, false)
}
