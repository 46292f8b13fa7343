package egress

import (
	"sync"
	"time"
)

// Lease is a per-client handle on the rotation: the assignment is sticky and
// revalidated on every Use, rotating to a fresh endpoint once the current
// one is banned, cooled down or worn out.
type Lease struct {
	rotation *Rotation

	mu       sync.Mutex
	assigned string
}

func NewLease(r *Rotation) *Lease {
	return &Lease{rotation: r}
}

// Use resolves a usable endpoint for this lease, rotating when needed, and
// records the use against it.
func (l *Lease) Use() (Endpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.assigned == "" || !l.rotation.ValidToUse(l.assigned) {
		name, err := l.rotation.Pick(l.assigned)
		if err != nil {
			return Endpoint{}, err
		}
		l.assigned = name
	}
	ep, err := l.rotation.Endpoint(l.assigned)
	if err != nil {
		return Endpoint{}, err
	}
	if err := l.rotation.Use(l.assigned); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// Valid reports whether the current assignment may still serve traffic.
func (l *Lease) Valid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.assigned != "" && l.rotation.ValidToUse(l.assigned)
}

// Assigned returns the current endpoint name, empty before the first Use.
func (l *Lease) Assigned() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.assigned
}

// Ban bans the currently assigned endpoint for every lease.
func (l *Lease) Ban() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.assigned == "" {
		return nil
	}
	return l.rotation.Ban(l.assigned)
}

// Cooldown puts the currently assigned endpoint on cooldown.
func (l *Lease) Cooldown(d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.assigned == "" {
		return nil
	}
	return l.rotation.Cooldown(l.assigned, d)
}

// Close hands the give-out back to the rotation.
func (l *Lease) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.assigned != "" {
		l.rotation.Return(l.assigned)
		l.assigned = ""
	}
}
