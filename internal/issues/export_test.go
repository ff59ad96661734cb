package issues

import "time"

// SetClock replaces the clock used to stamp cache entries.
func SetClock(c *Cache, now func() time.Time) {
	c.now = now
}
