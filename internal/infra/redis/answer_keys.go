package redis

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"quiz-api/internal/app"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AnswerKeyCache caches correct-answer indexes in Redis and falls back to a
// loader on cache miss.
// Keys are stored as: SET question:{questionID}:answer {index} EX ttl
type AnswerKeyCache struct {
	client *redis.Client
	loader app.AnswerKeyLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAnswerKeyCache(client *redis.Client, loader app.AnswerKeyLoader, ttl time.Duration) *AnswerKeyCache {
	return &AnswerKeyCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *AnswerKeyCache) AnswerKeys(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int, len(ids))
	misses := c.lookup(ctx, ids, out)
	if len(misses) == 0 {
		return out, nil
	}

	sort.Strings(misses)
	result, err, _ := c.sf.Do(strings.Join(misses, ","), func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		loaded := make(map[string]int, len(misses))
		stillMissing := c.lookup(ctx, misses, loaded)
		if len(stillMissing) == 0 {
			return loaded, nil
		}

		questions, err := c.loader.FindByIDs(ctx, stillMissing)
		if err != nil {
			return nil, err
		}

		for _, q := range questions {
			loaded[q.ID] = q.CorrectIndex
		}
		// A non-positive TTL disables caching.
		if c.ttl <= 0 || len(questions) == 0 {
			return loaded, nil
		}
		ttl := c.ttlWithJitter()
		pipe := c.client.Pipeline()
		for _, q := range questions {
			pipe.Set(ctx, answerKey(q.ID), q.CorrectIndex, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("cache answer keys: %v", err)
		}
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

func (c *AnswerKeyCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, answerKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

// Purge removes every cached answer key.
func (c *AnswerKeyCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "question:*:answer", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}

// lookup copies cached entries into out and returns the ids it could not
// serve. A Redis failure turns every id into a miss.
func (c *AnswerKeyCache) lookup(ctx context.Context, ids []string, out map[string]int) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, answerKey(id))
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return append([]string(nil), ids...)
	}
	var misses []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		idx, err := strconv.Atoi(s)
		if err != nil {
			misses = append(misses, ids[i])
			continue
		}
		out[ids[i]] = idx
	}
	return misses
}

func answerKey(questionID string) string {
	return "question:" + questionID + ":answer"
}

func (c *AnswerKeyCache) ttlWithJitter() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
