package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitPacesSameSite(t *testing.T) {
	p := NewPerSite(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx, "ozon"))
	require.NoError(t, p.Wait(ctx, "ozon"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond,
		"second navigation on the same site must be delayed")
}

func TestWaitDoesNotCoupleSites(t *testing.T) {
	p := NewPerSite(time.Second, time.Second)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx, "ozon"))

	start := time.Now()
	require.NoError(t, p.Wait(ctx, "wildberries"))
	assert.Less(t, time.Since(start), 200*time.Millisecond,
		"a different site must get its own cadence")
}

func TestWaitHonoursContext(t *testing.T) {
	p := NewPerSite(10*time.Second, 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Wait(ctx, "ozon"))
	err := p.Wait(ctx, "ozon")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffGrowsAndUnwinds(t *testing.T) {
	p := NewPerSite(10*time.Millisecond, 10*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, p.Wait(ctx, "ozon"))
	p.ReportBlocked("ozon")
	p.ReportBlocked("ozon")

	start := time.Now()
	require.NoError(t, p.Wait(ctx, "ozon"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond,
		"two blocks quadruple the base delay")

	p.ReportOK("ozon")
	p.ReportOK("ozon")

	start = time.Now()
	require.NoError(t, p.Wait(ctx, "ozon"))
	assert.Less(t, time.Since(start), 25*time.Millisecond)
}

func TestNop(t *testing.T) {
	var l Limiter = Nop{}

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "ozon"))
	l.ReportBlocked("ozon")
	l.ReportOK("ozon")

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
