// Package ttlcache provides a small expiring map keyed by string.
package ttlcache

import (
	"sync"
	"time"
)

type node struct {
	obj     interface{}
	dietime time.Time
}

type TTLCache struct {
	timeout time.Duration
	lock    sync.RWMutex
	cache   map[string]*node
}

func NewTTLCache(timeout time.Duration) *TTLCache {
	return &TTLCache{
		timeout: timeout,
		cache:   make(map[string]*node),
	}
}

func (c *TTLCache) Put(key string, obj interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.cache[key] = &node{
		obj:     obj,
		dietime: time.Now().Add(c.timeout),
	}
}

func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.lock.RLock()
	n, ok := c.cache[key]
	c.lock.RUnlock()
	if !ok {
		return nil, false
	}
	if n.dietime.After(time.Now()) {
		return n.obj, true
	}

	// expired, drop it under the write lock
	c.lock.Lock()
	defer c.lock.Unlock()
	if n, ok = c.cache[key]; ok {
		if n.dietime.After(time.Now()) {
			return n.obj, true
		}
		delete(c.cache, key)
	}
	return nil, false
}

func (c *TTLCache) Delete(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.cache, key)
}
