package egress

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	egresserrors "github.com/Meesho/BharatMLStack/proxy-pool/internal/errors"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	m.Run()
}

func testEndpoints(names ...string) []Endpoint {
	out := make([]Endpoint, 0, len(names))
	for i, name := range names {
		out = append(out, Endpoint{Name: name, Type: "trojan", Server: "10.0.0.1", Port: 443 + i, Password: "pw"})
	}
	return out
}

func TestPickRecordsGiveOut(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))

	name, err := r.Pick("")
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b"}, name)

	for _, s := range r.Status() {
		if s.Endpoint.Name == name {
			assert.Equal(t, int64(1), s.GivenOut)
		} else {
			assert.Equal(t, int64(0), s.GivenOut)
		}
	}
}

func TestPickRotatesAwayFromPrev(t *testing.T) {
	r := NewRotation(RotationConfig{MaxGiveOuts: 1}, testEndpoints("a", "b"))

	first, err := r.Pick("")
	require.NoError(t, err)
	second, err := r.Pick(first)
	require.NoError(t, err)

	// handing prev back frees its slot, so with two endpoints and one
	// give-out allowed each, a rotation is always satisfiable
	assert.Equal(t, 1, r.AvailableCount())
	_ = second
}

func TestPickExhaustsGiveOuts(t *testing.T) {
	r := NewRotation(RotationConfig{MaxGiveOuts: 1}, testEndpoints("a"))

	_, err := r.Pick("")
	require.NoError(t, err)

	_, err = r.Pick("")
	assert.ErrorIs(t, err, egresserrors.ErrNoneAvailable)
}

func TestReturnFreesGiveOut(t *testing.T) {
	r := NewRotation(RotationConfig{MaxGiveOuts: 1}, testEndpoints("a"))

	name, err := r.Pick("")
	require.NoError(t, err)
	r.Return(name)

	again, err := r.Pick("")
	require.NoError(t, err)
	assert.Equal(t, name, again)
}

func TestBannedEndpointIsNeverPicked(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))
	require.NoError(t, r.Ban("a"))

	for i := 0; i < 10; i++ {
		name, err := r.Pick("")
		require.NoError(t, err)
		assert.Equal(t, "b", name)
		r.Return(name)
	}

	require.NoError(t, r.Unban("a"))
	assert.Equal(t, 2, r.AvailableCount())
}

func TestBanUnknownEndpoint(t *testing.T) {
	r := NewRotation(RotationConfig{}, nil)
	assert.ErrorIs(t, r.Ban("ghost"), egresserrors.ErrUnknownEndpoint)
	assert.ErrorIs(t, r.Unban("ghost"), egresserrors.ErrUnknownEndpoint)
	assert.ErrorIs(t, r.Use("ghost"), egresserrors.ErrUnknownEndpoint)
	assert.ErrorIs(t, r.Cooldown("ghost", time.Second), egresserrors.ErrUnknownEndpoint)
	_, err := r.Endpoint("ghost")
	assert.ErrorIs(t, err, egresserrors.ErrUnknownEndpoint)
}

func TestCooldownYieldsRetryAfter(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a"))
	require.NoError(t, r.Cooldown("a", time.Hour))

	_, err := r.Pick("")
	require.Error(t, err)
	var retry *RetryAfterError
	require.ErrorAs(t, err, &retry)
	assert.WithinDuration(t, time.Now().Add(time.Hour), retry.At, time.Minute)
}

func TestRetryAfterReportsEarliest(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("slow", "fast"))
	require.NoError(t, r.Cooldown("slow", time.Hour))
	require.NoError(t, r.Cooldown("fast", time.Minute))

	_, err := r.Pick("")
	var retry *RetryAfterError
	require.ErrorAs(t, err, &retry)
	assert.WithinDuration(t, time.Now().Add(time.Minute), retry.At, 30*time.Second)
}

func TestCooldownExpires(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a"))
	require.NoError(t, r.Cooldown("a", 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)
	name, err := r.Pick("")
	require.NoError(t, err)
	assert.Equal(t, "a", name)
}

func TestUseAppliesCooldownAndWearsOut(t *testing.T) {
	r := NewRotation(RotationConfig{MaxUses: 2, CooldownOnUse: 5 * time.Millisecond}, testEndpoints("a"))

	require.NoError(t, r.Use("a"))
	assert.False(t, r.ValidToUse("a"), "cooling down right after use")
	time.Sleep(10 * time.Millisecond)
	assert.True(t, r.ValidToUse("a"))

	require.NoError(t, r.Use("a"))
	time.Sleep(10 * time.Millisecond)
	assert.False(t, r.ValidToUse("a"), "worn out after max uses")
}

func TestReplenishOnExhaustion(t *testing.T) {
	calls := 0
	cfg := RotationConfig{
		MaxUses: 1,
		Replenish: func(r *Rotation) error {
			calls++
			r.Add(testEndpoints("fresh"))
			return nil
		},
	}
	r := NewRotation(cfg, testEndpoints("worn"))
	require.NoError(t, r.Use("worn"))

	name, err := r.Pick("")
	require.NoError(t, err)
	assert.Equal(t, "fresh", name)
	assert.Equal(t, 1, calls)
}

func TestReplenishRunsAtMostOncePerPick(t *testing.T) {
	calls := 0
	cfg := RotationConfig{
		Replenish: func(*Rotation) error {
			calls++
			return nil // adds nothing
		},
	}
	r := NewRotation(cfg, nil)

	_, err := r.Pick("")
	assert.ErrorIs(t, err, egresserrors.ErrNoneAvailable)
	assert.Equal(t, 1, calls)
}

func TestReplenishFailure(t *testing.T) {
	boom := errors.New("subscription fetch failed")
	r := NewRotation(RotationConfig{
		Replenish: func(*Rotation) error { return boom },
	}, nil)

	_, err := r.Pick("")
	assert.ErrorIs(t, err, egresserrors.ErrReplenishFailed)
}

func TestAddResetsState(t *testing.T) {
	r := NewRotation(RotationConfig{MaxUses: 1}, testEndpoints("a"))
	require.NoError(t, r.Use("a"))
	assert.False(t, r.ValidToUse("a"))

	r.Add(testEndpoints("a"))
	assert.True(t, r.ValidToUse("a"))
}

func TestClearUnusable(t *testing.T) {
	r := NewRotation(RotationConfig{MaxUses: 1}, testEndpoints("worn", "banned", "ok"))
	require.NoError(t, r.Use("worn"))
	require.NoError(t, r.Ban("banned"))

	removed := r.ClearUnusable()
	assert.Equal(t, 2, removed)
	require.Len(t, r.Status(), 1)
	assert.Equal(t, "ok", r.Status()[0].Endpoint.Name)
}

func TestRemove(t *testing.T) {
	r := NewRotation(RotationConfig{}, testEndpoints("a", "b"))
	r.Remove([]string{"a", "ghost"})
	require.Len(t, r.Status(), 1)
	assert.Equal(t, "b", r.Status()[0].Endpoint.Name)
}
