package cache

import (
	"testing"
	"time"

	"github.com/newsmint/kiosk/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestTTLExpiry(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTL[string, bool](time.Minute, fake)

	c.Set("a", true)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.True(t, v)

	fake.Advance(time.Minute + time.Second)
	_, ok = c.Get("a")
	require.False(t, ok)
}

func TestTTLDelete(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	c := NewTTL[string, int](time.Minute, fake)

	c.Set("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}
