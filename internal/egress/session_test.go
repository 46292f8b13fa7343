package egress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/pool"
)

func newSessionPool(t *testing.T, r *Rotation, cfg pool.Config) *pool.Pool[*Session] {
	t.Helper()
	p, err := pool.New(cfg, PoolHooks(r))
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestSessionPoolCreatesLeasedSessions(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))
	p := newSessionPool(t, r, pool.Config{Name: "sessions"})

	obj, err := p.Acquire(context.Background())
	require.NoError(t, err)
	sess := obj.Value()

	ep, err := sess.Endpoint()
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b"}, ep.Name)
	assert.NotEmpty(t, ep.Addr())

	p.Release(obj)
}

func TestSessionPoolGiveOutAccounting(t *testing.T) {
	r := NewRotation(RotationConfig{MaxGiveOuts: 2}, testEndpoints("only"))
	p := newSessionPool(t, r, pool.Config{Name: "sessions"})

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)

	// both give-out slots taken, a third session cannot be created
	_, err = p.Acquire(context.Background())
	require.Error(t, err)

	p.Release(a)
	p.Release(b)
	p.Shutdown()

	// destroyed sessions handed their give-outs back
	assert.Equal(t, 1, r.AvailableCount())
}

func TestSessionHealthTracksLease(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("only"))
	hooks := PoolHooks(r)

	sess, err := hooks.Create(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, hooks.IsHealthy(sess))

	require.NoError(t, sess.Ban())
	assert.False(t, hooks.IsHealthy(sess))
}

func TestSessionCooldownMakesUnhealthy(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("only"))
	hooks := PoolHooks(r)

	sess, err := hooks.Create(context.Background(), 0)
	require.NoError(t, err)

	require.NoError(t, sess.Cooldown(time.Hour))
	assert.False(t, hooks.IsHealthy(sess))
}

func TestSessionDescribe(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("only"))
	hooks := PoolHooks(r)

	sess, err := hooks.Create(context.Background(), 0)
	require.NoError(t, err)

	data := hooks.Describe(sess)
	assert.Equal(t, "only", data["endpoint"])
	assert.Equal(t, "trojan", data["type"])
	assert.Equal(t, "10.0.0.1:443", data["addr"])
}

func TestSessionCreateFailsWithoutEndpoints(t *testing.T) {
	r := NewRotation(RotationConfig{}, nil)
	hooks := PoolHooks(r)

	_, err := hooks.Create(context.Background(), 0)
	assert.Error(t, err)
}
