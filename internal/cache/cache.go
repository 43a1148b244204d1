// Package cache is a short-lived in-process memo of operation results. It is
// never a source of truth: entries simply age out.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value   json.RawMessage
	expires time.Time
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// New returns a cache whose janitor sweeps expired entries every interval.
// A non-positive interval disables the janitor; expiry still applies on read.
func New(interval time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if interval > 0 {
		go c.janitor(interval)
	}
	return c
}

func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.stop:
			return
		}
	}
}

// Stop terminates the janitor. It is safe to call more than once.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key string, value json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expires: c.now().Add(ttl)}
}

// Purge drops expired entries and returns how many were removed.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key derives the cache key of an invocation. Arguments are canonicalized
// (object keys sorted, whitespace dropped) and the bucket is now divided by
// ttl, so a key never outlives its time-to-live window.
func Key(name string, args json.RawMessage, now time.Time, ttl time.Duration) (string, error) {
	canonical, err := Canonical(args)
	if err != nil {
		return "", err
	}
	var bucket int64
	if ttl > 0 {
		bucket = now.UnixNano() / int64(ttl)
	}
	return fmt.Sprintf("%s|%s|%d", name, canonical, bucket), nil
}

// Canonical re-encodes a JSON document with sorted object keys. Empty input
// is treated as an empty object.
func Canonical(args json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		return "{}", nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	// encoding/json sorts map keys.
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
