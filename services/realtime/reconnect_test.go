package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_ExponentialWithCap(t *testing.T) {
	p := NewReconnectPolicy(100*time.Millisecond, 800*time.Millisecond, 0)
	p.jitter = func() float64 { return 1 }

	var got []time.Duration
	for i := 0; i < 6; i++ {
		d, ok := p.Next()
		assert.True(t, ok)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
	}, got)
}

func TestReconnectPolicy_JitterStaysInUpperHalf(t *testing.T) {
	p := NewReconnectPolicy(time.Second, time.Second, 0)
	p.jitter = func() float64 { return 0 }

	d, ok := p.Next()
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestReconnectPolicy_MaxAttemptsAndReset(t *testing.T) {
	p := NewReconnectPolicy(10*time.Millisecond, 10*time.Millisecond, 2)

	_, ok := p.Next()
	assert.True(t, ok)
	_, ok = p.Next()
	assert.True(t, ok)
	_, ok = p.Next()
	assert.False(t, ok)

	p.Reset()
	assert.Zero(t, p.Attempts())
	_, ok = p.Next()
	assert.True(t, ok)
}
