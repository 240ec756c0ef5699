package embedder

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheKey returns the content-addressed key for one normalized text
// under one embedding model. Hashing happens after normalization and
// truncation, so two records that truncate to the same text share one
// entry regardless of what was cut off.
func CacheKey(modelID, text string) string {
	h := sha256.New()
	h.Write([]byte(modelID))
	h.Write([]byte{'\n'})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a bounded TTL cache from content hash to embedding vector.
// Safe for concurrent use by the pipeline workers.
type Cache struct {
	lru *expirable.LRU[string, []float32]
}

func NewCache(capacity int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, []float32](capacity, nil, ttl)}
}

func (c *Cache) Get(key string) ([]float32, bool) {
	return c.lru.Get(key)
}

func (c *Cache) Add(key string, vector []float32) {
	c.lru.Add(key, vector)
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
