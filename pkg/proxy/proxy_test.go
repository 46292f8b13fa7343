package proxy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Meesho/BharatMLStack/proxy-pool/pkg/pool"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

func newTestPool(t *testing.T, cfg pool.Config) *pool.Pool[int] {
	t.Helper()
	var next int64
	p, err := pool.New(cfg, pool.Hooks[int]{
		Create: func(context.Context, int64) (int, error) {
			return int(atomic.AddInt64(&next, 1)), nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(p.Shutdown)
	return p
}

func TestUnboundProxy(t *testing.T) {
	px := New[int]()
	_, err := px.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnbound)
	assert.False(t, px.HasObject("k"))
}

func TestSharedScope(t *testing.T) {
	px := NewShared(42)
	assert.Equal(t, ScopeShared, px.Scope())

	a, err := px.Get(context.Background(), "one")
	require.NoError(t, err)
	b, err := px.Get(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, 42, a)
	assert.Equal(t, 42, b)
	assert.True(t, px.HasObject("anything"))

	// releasing a key never disturbs the shared object
	px.Release("one")
	c, err := px.Get(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, 42, c)
}

func TestContextScopeBindsPerKey(t *testing.T) {
	pl := newTestPool(t, pool.Config{Name: "test"})
	px := NewPooled(pl)
	assert.Equal(t, ScopeContext, px.Scope())

	a1, err := px.Get(context.Background(), "a")
	require.NoError(t, err)
	b1, err := px.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.NotEqual(t, a1, b1, "distinct keys get distinct objects")

	a2, err := px.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "a key reuses its bound object until released")
	assert.Equal(t, 2, pl.Stats().InUse)

	px.Release("a")
	px.Release("b")
	assert.Equal(t, 0, pl.Stats().InUse)
	assert.False(t, px.HasObject("a"))
}

func TestReleaseReturnsObjectToPool(t *testing.T) {
	pl := newTestPool(t, pool.Config{Name: "test", MaxSize: 1, AcquireTimeout: 50 * time.Millisecond})
	px := NewPooled(pl)

	_, err := px.Get(context.Background(), "a")
	require.NoError(t, err)

	// the single capacity token is held by key "a"
	_, err = px.Get(context.Background(), "b")
	assert.ErrorIs(t, err, pool.ErrTimeout)

	px.Release("a")
	_, err = px.Get(context.Background(), "b")
	require.NoError(t, err)
	px.Release("b")
}

func TestRebindAfterUseFails(t *testing.T) {
	px := NewShared(1)
	_, err := px.Get(context.Background(), "k")
	require.NoError(t, err)

	assert.ErrorIs(t, px.Bind(2), ErrAlreadyBound)
	pl := newTestPool(t, pool.Config{Name: "test"})
	assert.ErrorIs(t, px.BindPool(pl), ErrAlreadyBound)

	v, err := px.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, v, "binding unchanged after failed rebind")
}

func TestRebindBeforeUseAllowed(t *testing.T) {
	px := NewShared(1)
	require.NoError(t, px.Bind(2))

	v, err := px.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestDoForwardsErrors(t *testing.T) {
	px := NewShared(7)
	boom := errors.New("downstream")
	err := px.Do(context.Background(), "k", func(v int) error {
		assert.Equal(t, 7, v)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithReleasesBinding(t *testing.T) {
	pl := newTestPool(t, pool.Config{Name: "test"})
	px := NewPooled(pl)

	boom := errors.New("unit of work failed")
	err := px.With(context.Background(), "job-1", func(int) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, px.HasObject("job-1"))
	assert.Equal(t, 0, pl.Stats().InUse)
}

func TestReleaseUnknownKeyIsNoop(t *testing.T) {
	pl := newTestPool(t, pool.Config{Name: "test"})
	px := NewPooled(pl)
	px.Release("never-bound")
	assert.Equal(t, 0, pl.Stats().InUse)
}

func TestPoolErrorsPropagate(t *testing.T) {
	boom := errors.New("factory down")
	pl, err := pool.New(pool.Config{Name: "test"}, pool.Hooks[int]{
		Create: func(context.Context, int64) (int, error) { return 0, boom },
	})
	require.NoError(t, err)
	t.Cleanup(pl.Shutdown)

	px := NewPooled(pl)
	_, err = px.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	assert.False(t, px.HasObject("k"))
}
