// Copyright 2020 Presidenza del Consiglio dei Ministri
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache implements an in-memory cache with per-entry expiration.
package cache

import (
	"errors"
	"sync"
	"time"
)

var ErrInvalidDuration = errors.New("expireAfter duration cannot be negative")

const initialSize = 16

// Cache is a TTL cache keyed by string.
type Cache[T any] struct {
	data        map[string]item[T]
	expireAfter time.Duration
	mu          sync.RWMutex
}

type item[T any] struct {
	object    T
	expiresAt int64
}

func (i *item[T]) expired() bool {
	return i.expiresAt < time.Now().UnixNano()
}

// New creates a new in memory cache.
func New[T any](expireAfter time.Duration) (*Cache[T], error) {
	if expireAfter < 0 {
		return nil, ErrInvalidDuration
	}

	return &Cache[T]{
		data:        make(map[string]item[T], initialSize),
		expireAfter: expireAfter,
	}, nil
}

// Size returns the number of items in the cache.
func (c *Cache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear removes all items from the cache, regardless of their expiration.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]item[T], initialSize)
}

// WriteThruLookup checks the cache for the value associated with name, and if
// not found or expired, invokes the provided lookup function to resolve the
// value and stores it.
func (c *Cache[T]) WriteThruLookup(name string, primaryLookup func() (T, error)) (T, error) {
	c.mu.RLock()
	val, hit := c.lookup(name)
	if hit {
		c.mu.RUnlock()
		return val, nil
	}
	c.mu.RUnlock()

	// Ensure the value hasn't been set by another goroutine by escalating to a
	// write lock. We need the write lock anyway if we're about to store.
	c.mu.Lock()
	defer c.mu.Unlock()
	val, hit = c.lookup(name)
	if hit {
		return val, nil
	}

	newData, err := primaryLookup()
	if err != nil {
		var empty T
		return empty, err
	}

	c.data[name] = item[T]{
		object:    newData,
		expiresAt: time.Now().Add(c.expireAfter).UnixNano(),
	}
	return newData, nil
}

// Lookup checks the cache for a non-expired object by the supplied key name.
// The bool return informs the caller whether there was a cache hit.
func (c *Cache[T]) Lookup(name string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lookup(name)
}

// Set saves the current value of an object in the cache, expiring after the
// cache's configured duration.
func (c *Cache[T]) Set(name string, object T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[name] = item[T]{
		object:    object,
		expiresAt: time.Now().Add(c.expireAfter).UnixNano(),
	}
}

// lookup finds an unexpired item at the given name. The bool indicates if a
// hit occurred. Not safe for concurrent use, callers hold a lock.
func (c *Cache[T]) lookup(name string) (T, bool) {
	if item, ok := c.data[name]; ok && item.expired() {
		// Cache hit, but expired. The removal from the cache is deferred.
		go c.purgeExpired(name, item.expiresAt)
	} else if ok {
		return item.object, true
	}

	var empty T
	return empty, false
}

// purgeExpired removes an item by name and expiry time when the purge was
// scheduled. If there is a race and the item has been refreshed, it is kept.
func (c *Cache[T]) purgeExpired(name string, expectedExpiryTime int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.data[name]; ok && item.expiresAt == expectedExpiryTime {
		delete(c.data, name)
	}
}
