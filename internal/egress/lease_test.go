package egress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	egresserrors "github.com/Meesho/BharatMLStack/proxy-pool/internal/errors"
)

func TestLeaseStickyAssignment(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))
	l := NewLease(r)

	assert.Empty(t, l.Assigned())
	assert.False(t, l.Valid())

	first, err := l.Use()
	require.NoError(t, err)
	assert.Equal(t, first.Name, l.Assigned())
	assert.True(t, l.Valid())

	for i := 0; i < 5; i++ {
		ep, err := l.Use()
		require.NoError(t, err)
		assert.Equal(t, first.Name, ep.Name, "assignment is sticky while usable")
	}
}

func TestLeaseRotatesWhenAssignmentDies(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))
	l := NewLease(r)

	first, err := l.Use()
	require.NoError(t, err)
	require.NoError(t, l.Ban())

	second, err := l.Use()
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, second.Name, l.Assigned())
}

func TestLeaseRotatesAfterCooldown(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))
	l := NewLease(r)

	first, err := l.Use()
	require.NoError(t, err)
	require.NoError(t, l.Cooldown(time.Hour))

	second, err := l.Use()
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, second.Name)
}

func TestLeaseUseFailsWhenExhausted(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("only"))
	l := NewLease(r)

	_, err := l.Use()
	require.NoError(t, err)
	require.NoError(t, l.Ban())

	_, err = l.Use()
	assert.ErrorIs(t, err, egresserrors.ErrNoneAvailable)
}

func TestLeaseCloseReturnsGiveOut(t *testing.T) {
	r := NewRotation(RotationConfig{MaxGiveOuts: 1}, testEndpoints("only"))
	l := NewLease(r)

	_, err := l.Use()
	require.NoError(t, err)

	other := NewLease(r)
	_, err = other.Use()
	require.Error(t, err, "single give-out slot is taken")

	l.Close()
	assert.Empty(t, l.Assigned())

	_, err = other.Use()
	require.NoError(t, err)
}

func TestLeaseBanBeforeUseIsNoop(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a"))
	l := NewLease(r)
	assert.NoError(t, l.Ban())
	assert.NoError(t, l.Cooldown(time.Second))
	l.Close()
}
