package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := New(3, 1, 50*time.Millisecond)
	require.Equal(t, swarm.CircuitClosed, b.State())

	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}
	require.Equal(t, swarm.CircuitClosed, b.State())

	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, swarm.CircuitOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenRecoversOnSuccess(t *testing.T) {
	b := New(1, 1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	require.Equal(t, swarm.CircuitOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, swarm.CircuitHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, swarm.CircuitClosed, b.State())
}

func TestBreakerHalfOpenAdmitsOnlyOneProbe(t *testing.T) {
	b := New(1, 1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	require.True(t, b.Allow())
	require.Equal(t, swarm.CircuitHalfOpen, b.State())

	assert.False(t, b.Allow(), "a second concurrent caller must be refused while the probe is in flight")

	b.RecordSuccess()
	assert.Equal(t, swarm.CircuitClosed, b.State())
	assert.True(t, b.Allow(), "closed state admits calls again")
}

func TestBreakerHalfOpenAdmitsNewProbeAfterFailure(t *testing.T) {
	b := New(1, 1, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, swarm.CircuitOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow(), "a fresh probe is admitted once the circuit reopens and cools down again")
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	b := New(1, 2, 10*time.Millisecond)
	b.Allow()
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, swarm.CircuitHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, swarm.CircuitOpen, b.State())
}
