package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedByDefault(t *testing.T) {
	l := New(Config{})

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/a"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitPacesPerDomain(t *testing.T) {
	l := New(Config{DefaultRPS: 20, DefaultBurst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://slow.example.com/a"))
	}
	// Burst of 1 at 20 rps means two waits of ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestDomainsAreIndependent(t *testing.T) {
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/"))
	require.NoError(t, l.Wait(context.Background(), "https://b.example.com/"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDomainOverride(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
		DomainRPS:    map[string]float64{"fast.example.com": 1000},
	})

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://fast.example.com/"))
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestWaitRespectsContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})

	require.NoError(t, l.Wait(context.Background(), "https://example.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://example.com/")
	assert.Error(t, err)
}
