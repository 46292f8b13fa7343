package egress

import (
	"context"
	"time"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/pool"
)

// Session is the pooled object tying one lease to a resolved endpoint. It is
// what callers borrow from the pool when they need an egress identity for a
// unit of work.
type Session struct {
	lease     *Lease
	endpoint  Endpoint
	createdAt time.Time
}

// Endpoint returns the egress endpoint the session is currently routed
// through, refreshing the assignment when the lease had to rotate.
func (s *Session) Endpoint() (Endpoint, error) {
	ep, err := s.lease.Use()
	if err != nil {
		return Endpoint{}, err
	}
	s.endpoint = ep
	return ep, nil
}

// Ban flags the session's current endpoint as unusable for every lease.
func (s *Session) Ban() error {
	return s.lease.Ban()
}

// Cooldown puts the session's current endpoint on cooldown.
func (s *Session) Cooldown(d time.Duration) error {
	return s.lease.Cooldown(d)
}

// PoolHooks wires the rotation into the generic pool: created sessions take
// a lease and resolve an endpoint, health checks revalidate the lease, and
// destroyed sessions hand their give-out back.
func PoolHooks(r *Rotation) pool.Hooks[*Session] {
	return pool.Hooks[*Session]{
		Create: func(_ context.Context, _ int64) (*Session, error) {
			lease := NewLease(r)
			ep, err := lease.Use()
			if err != nil {
				return nil, err
			}
			return &Session{
				lease:     lease,
				endpoint:  ep,
				createdAt: time.Now(),
			}, nil
		},
		IsHealthy: func(s *Session) bool {
			return s.lease.Valid()
		},
		OnDestroy: func(s *Session) {
			s.lease.Close()
		},
		Describe: func(s *Session) map[string]any {
			return map[string]any{
				"endpoint": s.endpoint.Name,
				"type":     s.endpoint.Type,
				"addr":     s.endpoint.Addr(),
			}
		},
	}
}
