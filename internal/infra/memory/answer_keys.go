package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-api/internal/app"

	"golang.org/x/sync/singleflight"
)

// AnswerKeyCache caches correct-answer indexes with TTL to avoid repeated
// store hits while grading.
type AnswerKeyCache struct {
	loader app.AnswerKeyLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedKey
}

type cachedKey struct {
	index     int
	expiresAt time.Time
}

func NewAnswerKeyCache(loader app.AnswerKeyLoader, ttl time.Duration) *AnswerKeyCache {
	return &AnswerKeyCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedKey),
	}
}

// AnswerKeys resolves ids from the cache and loads the misses in one batch.
func (c *AnswerKeyCache) AnswerKeys(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	misses := c.lookup(ids, out)
	if len(misses) == 0 {
		return out, nil
	}

	sort.Strings(misses)
	result, err, _ := c.sf.Do(strings.Join(misses, ","), func() (interface{}, error) {
		loaded := make(map[string]int, len(misses))
		stillMissing := c.lookup(misses, loaded)
		if len(stillMissing) == 0 {
			return loaded, nil
		}

		questions, err := c.loader.FindByIDs(ctx, stillMissing)
		if err != nil {
			return nil, err
		}

		now := c.clock()
		c.mu.Lock()
		for _, q := range questions {
			loaded[q.ID] = q.CorrectIndex
			if c.ttl > 0 {
				c.cache[q.ID] = cachedKey{index: q.CorrectIndex, expiresAt: now.Add(c.ttlWithJitterLocked())}
			}
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	for id, idx := range result.(map[string]int) {
		out[id] = idx
	}
	return out, nil
}

// Invalidate drops cached keys so the next read reloads them.
func (c *AnswerKeyCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.cache, id)
	}
	return nil
}

// Purge drops every cached key.
func (c *AnswerKeyCache) Purge(context.Context) error {
	c.mu.Lock()
	c.cache = make(map[string]cachedKey)
	c.mu.Unlock()
	return nil
}

// lookup copies fresh entries into out and returns the ids it could not serve.
func (c *AnswerKeyCache) lookup(ids []string, out map[string]int) []string {
	now := c.clock()
	var misses []string
	c.mu.RLock()
	for _, id := range ids {
		if entry, ok := c.cache[id]; ok && entry.expiresAt.After(now) {
			out[id] = entry.index
			continue
		}
		misses = append(misses, id)
	}
	c.mu.RUnlock()
	return misses
}

func (c *AnswerKeyCache) ttlWithJitterLocked() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
