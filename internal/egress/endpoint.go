package egress

import (
	"fmt"
	"time"
)

// Endpoint is one rotating egress proxy entry, as distributed by a
// subscription provider or the etcd registry.
type Endpoint struct {
	Name   string `json:"name" yaml:"name"`
	Type   string `json:"type" yaml:"type"`
	Server string `json:"server" yaml:"server"`
	Port   int    `json:"port" yaml:"port"`

	// per-type credentials
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	UUID     string `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Cipher   string `json:"cipher,omitempty" yaml:"cipher,omitempty"`
}

func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Server, e.Port)
}

// endpointState tracks the rotation bookkeeping for one endpoint.
type endpointState struct {
	info          Endpoint
	cooldownUntil time.Time
	banned        bool
	givenOut      int64
	timedOut      int64
	used          int64
}

func (s *endpointState) use(cooldown time.Duration) {
	s.used++
	if cooldown > 0 {
		s.giveCooldown(cooldown)
	}
}

func (s *endpointState) giveCooldown(d time.Duration) {
	s.cooldownUntil = time.Now().Add(d)
	s.timedOut++
}

func (s *endpointState) usable(now time.Time, ignoreCooldown bool) bool {
	return !s.banned && (ignoreCooldown || s.cooldownUntil.Before(now))
}

// EndpointStatus is the externally visible state of one endpoint, served by
// the admin API.
type EndpointStatus struct {
	Endpoint      Endpoint  `json:"endpoint"`
	Banned        bool      `json:"banned"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	GivenOut      int64     `json:"given_out"`
	TimedOut      int64     `json:"timed_out"`
	Used          int64     `json:"used"`
}
