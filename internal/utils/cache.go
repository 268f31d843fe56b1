package utils

import (
	"sync"
	"time"

	"qbeAdmin/internal/models"
)

// CacheEntry represents a cached value with expiration
type CacheEntry struct {
	Value     interface{}
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache represents an in-memory cache with TTL support
type Cache struct {
	data       map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCache creates a new in-memory cache. Expired entries are dropped on read
// and by Sweep.
func NewCache(defaultTTL time.Duration) *Cache {
	return &Cache{
		data:       make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get retrieves a value from the cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if entry.IsExpired(c.now()) {
		c.Delete(key)
		return nil, false
	}

	return entry.Value, true
}

// Set stores a value in the cache with default TTL
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value in the cache with custom TTL
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &CacheEntry{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Delete removes a value from the cache
func (c *Cache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.data)
}

// Sweep removes expired entries
func (c *Cache) Sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if entry.IsExpired(now) {
			delete(c.data, key)
		}
	}
}

// StartSweeper runs Sweep every interval until stop is closed
func (c *Cache) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// UserCache keeps resolved users by email so every admin request does not
// hit the users table. Role changes show up after the TTL.
type UserCache struct {
	cache *Cache
}

// NewUserCache creates a user cache with the given TTL
func NewUserCache(ttl time.Duration) *UserCache {
	return &UserCache{cache: NewCache(ttl)}
}

// Get returns a copy of the cached user for email
func (uc *UserCache) Get(email string) (*models.User, bool) {
	value, exists := uc.cache.Get("user:" + email)
	if !exists {
		return nil, false
	}

	user, ok := value.(models.User)
	if !ok {
		return nil, false
	}
	return &user, true
}

// Set caches a copy of user
func (uc *UserCache) Set(user *models.User) {
	uc.cache.Set("user:"+user.Email, *user)
}

// Invalidate drops the cached user for email
func (uc *UserCache) Invalidate(email string) {
	uc.cache.Delete("user:" + email)
}

// Cache exposes the underlying cache, e.g. to start its sweeper
func (uc *UserCache) Cache() *Cache {
	return uc.cache
}
