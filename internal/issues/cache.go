package issues

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"aisum/internal/stats"
)

// DefaultCapacity is used when a Cache is built with a non-positive capacity.
const DefaultCapacity = 10000

// Cache memoizes issues by key with least-recently-used eviction. Concurrent
// misses for the same key share one fetch.
type Cache struct {
	source   Source
	logger   *slog.Logger
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	gen     uint64
	hits    int64
	misses  int64

	group singleflight.Group
}

// key is the key the entry was requested under; a tracker may answer with
// the canonical key of a moved issue instead.
type cacheEntry struct {
	key       string
	issue     *Issue
	fetchedAt time.Time
}

// CacheStats is a snapshot of the cache counters.
type CacheStats struct {
	Hits  int64 `json:"hits"`
	Tries int64 `json:"tries"`
	Size  int   `json:"size"`
}

func (s CacheStats) String() string {
	pct := 0.0
	if s.Tries > 0 {
		pct = 100 * float64(s.Hits) / float64(s.Tries)
	}
	return fmt.Sprintf("Hits: %d (%.1f%%), Tries: %d, Size: %d", s.Hits, pct, s.Tries, s.Size)
}

// NewCache creates a cache backed by src.
func NewCache(src Source, capacity int, logger *slog.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		source:   src,
		logger:   logger,
		capacity: capacity,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Source returns the source the cache fetches from.
func (c *Cache) Source() Source {
	return c.source
}

// Get returns the cached issue for key, fetching it on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*Issue, error) {
	defer stats.Track(ctx, stats.Cache)()

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.hits++
		c.order.MoveToFront(el)
		issue := el.Value.(*cacheEntry).issue
		c.mu.Unlock()
		return issue, nil
	}
	c.misses++
	gen := c.gen
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, key, gen)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Issue), nil
}

func (c *Cache) fetch(ctx context.Context, key string, gen uint64) (*Issue, error) {
	fields, err := c.source.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	issue := NewIssue(fields, c.source, c.logger)
	if _, ok := LevelOf(issue.IssueType); !ok {
		c.logger.Warn("Unknown hierarchy level", "key", key, "type", issue.IssueType)
	}
	c.logger.Debug("Retrieved issue", "issue", issue.String())

	c.mu.Lock()
	defer c.mu.Unlock()
	// An invalidation while the fetch was in flight makes the result unsafe to keep.
	if gen != c.gen {
		return issue, nil
	}
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).issue, nil
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, issue: issue, fetchedAt: c.now()})
	return issue, nil
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// forget invalidates every entry holding issue, whatever key it was
// requested under.
func (c *Cache) forget(issue *Issue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.group.Forget(issue.Key)
	if el, ok := c.entries[issue.Key]; ok {
		c.removeElement(el)
	}
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if ent := el.Value.(*cacheEntry); ent.issue == issue {
			c.group.Forget(ent.key)
			c.removeElement(el)
		}
		el = next
	}
}

// Remove invalidates key. Removing an absent key is a no-op.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.group.Forget(key)
	if el, ok := c.entries[key]; ok {
		c.removeElement(el)
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for key := range c.entries {
		c.group.Forget(key)
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// RemoveOlderThan drops entries fetched before t and returns how many went.
func (c *Cache) RemoveOlderThan(t time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*cacheEntry).fetchedAt.Before(t) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Contains reports whether key is cached, without touching recency or counters.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Len returns the number of cached issues.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the hit and try counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Tries: c.hits + c.misses, Size: c.order.Len()}
}

// UpdateStatusSummary writes value into the issue's status summary field and
// invalidates the cached copy. The issue is only updated locally once the
// write succeeds.
func (c *Cache) UpdateStatusSummary(ctx context.Context, issue *Issue, value string) error {
	err := c.source.UpdateFields(ctx, issue.Key, map[string]interface{}{FieldStatusSummary: value})
	if err != nil {
		return fmt.Errorf("update status summary of %s: %w", issue.Key, err)
	}
	issue.StatusSummary = value
	c.forget(issue)
	return nil
}

// UpdateLabels replaces the issue's labels and invalidates the cached copy.
func (c *Cache) UpdateLabels(ctx context.Context, issue *Issue, labels []string) error {
	err := c.source.UpdateFields(ctx, issue.Key, map[string]interface{}{FieldLabels: labels})
	if err != nil {
		return fmt.Errorf("update labels of %s: %w", issue.Key, err)
	}
	issue.setLabels(labels)
	c.forget(issue)
	return nil
}

// Ancestors returns the chain of parents above key, nearest first. A key seen
// twice ends the walk.
func (c *Cache) Ancestors(ctx context.Context, key string) ([]*Issue, error) {
	issue, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	visited := map[string]struct{}{key: {}}
	var out []*Issue
	for {
		parentKey, err := issue.Parent(ctx)
		if err != nil {
			return nil, err
		}
		if parentKey == "" {
			return out, nil
		}
		if _, seen := visited[parentKey]; seen {
			c.logger.Warn("Parent cycle detected", "key", key, "at", parentKey)
			return out, nil
		}
		visited[parentKey] = struct{}{}
		if issue, err = c.Get(ctx, parentKey); err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
}

// DescendantSearchLimit caps each level of the descendant search.
const DescendantSearchLimit = 200

// Descendants returns every issue below key that links to its parent through
// an Epic Link or Parent Link, breadth first.
func (c *Cache) Descendants(ctx context.Context, key string) ([]*Issue, error) {
	visited := map[string]struct{}{key: {}}
	queue := []string{key}
	var out []*Issue
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		jql := fmt.Sprintf("'Epic Link' = '%s' or 'Parent Link' = '%s'", current, current)
		hits, err := c.source.Search(ctx, jql, []string{"key"}, DescendantSearchLimit)
		if err != nil {
			return nil, fmt.Errorf("descendants of %s: %w", current, err)
		}
		for _, hit := range hits {
			if _, seen := visited[hit.Key]; seen {
				continue
			}
			visited[hit.Key] = struct{}{}
			issue, err := c.Get(ctx, hit.Key)
			if err != nil {
				return nil, err
			}
			out = append(out, issue)
			queue = append(queue, hit.Key)
		}
	}
	return out, nil
}
