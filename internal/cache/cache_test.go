package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/streamgate/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTTLCache[string, string](clk.Now)

	c.Set("example.com", "zone-1", time.Minute)
	c.Set("forever", "zone-2", 0)

	got, ok := c.Get("example.com")
	assert.True(t, ok)
	assert.Equal(t, "zone-1", got)

	clk.Advance(2 * time.Minute)
	_, ok = c.Get("example.com")
	assert.False(t, ok)

	got, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, "zone-2", got)

	c.Delete("forever")
	_, ok = c.Get("forever")
	assert.False(t, ok)
}
