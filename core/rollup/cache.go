package rollup

import (
	"context"
	"time"

	"github.com/repoflux/repoflux/internal/store"
)

// defaultCacheSize bounds the memo cache; a repository with years of history
// stays well under this, and anything bigger just recomputes.
const defaultCacheSize = 4096

type cacheKey struct {
	kind     string
	repoID   int64
	authorID int64 // -1 for team scope
	start    string
	end      string
}

// Cache memoizes the aggregate counts the rollup engine asks the store for
// repeatedly across interval passes. It is created per rollup run and passed
// explicitly to every computation that reads through it; after any write
// that could change an answer, callers invalidate it.
type Cache struct {
	store   *store.Store
	entries map[cacheKey]int
	max     int
}

// NewCache builds an empty memo cache over the store.
func NewCache(st *store.Store) *Cache {
	return &Cache{
		store:   st,
		entries: make(map[cacheKey]int),
		max:     defaultCacheSize,
	}
}

// Invalidate drops every memoized value. Called after each statistic flush.
func (c *Cache) Invalidate() {
	c.entries = make(map[cacheKey]int)
}

// Len reports the number of memoized values.
func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) key(kind string, repoID int64, authorID *int64, start, end *time.Time) cacheKey {
	k := cacheKey{kind: kind, repoID: repoID, authorID: -1}
	if authorID != nil {
		k.authorID = *authorID
	}
	if start != nil {
		k.start = start.UTC().Format(time.RFC3339)
	}
	if end != nil {
		k.end = end.UTC().Format(time.RFC3339)
	}
	return k
}

func (c *Cache) memo(k cacheKey, compute func() (int, error)) (int, error) {
	if v, ok := c.entries[k]; ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return 0, err
	}
	if len(c.entries) >= c.max {
		// Full: start over rather than track recency.
		c.entries = make(map[cacheKey]int)
	}
	c.entries[k] = v
	return v, nil
}

// AuthorCount memoizes store.AuthorCountInRange.
func (c *Cache) AuthorCount(ctx context.Context, repoID int64, start, end *time.Time) (int, error) {
	k := c.key("authors", repoID, nil, start, end)
	return c.memo(k, func() (int, error) {
		return c.store.AuthorCountInRange(ctx, repoID, start, end)
	})
}

// FileCount memoizes store.DistinctFileCount.
func (c *Cache) FileCount(ctx context.Context, repoID int64, authorID *int64, start, end *time.Time) (int, error) {
	k := c.key("files", repoID, authorID, start, end)
	return c.memo(k, func() (int, error) {
		return c.store.DistinctFileCount(ctx, repoID, authorID, start, end)
	})
}
