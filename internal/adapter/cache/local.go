package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// LocalCache implements ports.Cache in process memory.
// Used when Redis is not configured or unreachable.
type LocalCache struct {
	data   map[string]cacheEntry
	mu     sync.RWMutex
	log    *zap.Logger
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

var _ ports.Cache = (*LocalCache)(nil)

// NewLocalCache creates an in-memory cache with periodic cleanup
func NewLocalCache(cleanupInterval time.Duration, log *zap.Logger) *LocalCache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	c := &LocalCache{
		data:   make(map[string]cacheEntry),
		log:    log,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)

	log.Info("Local in-memory cache initialized",
		zap.Duration("cleanup_interval", cleanupInterval),
	)
	return c
}

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || c.expired(entry) {
		return "", ports.ErrCacheMiss
	}
	return entry.value, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	encoded, err := encode(value)
	if err != nil {
		return err
	}

	entry := cacheEntry{value: encoded}
	if expiration > 0 {
		entry.expiresAt = c.now().Add(expiration)
	}

	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *LocalCache) Ping() error {
	return nil
}

func (c *LocalCache) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

func (c *LocalCache) expired(e cacheEntry) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(c.now())
}

func (c *LocalCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

func (c *LocalCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	for key, entry := range c.data {
		if c.expired(entry) {
			delete(c.data, key)
			expired++
		}
	}

	if expired > 0 {
		c.log.Debug("Cache cleanup completed", zap.Int("expired_entries", expired))
	}
}

// encode stores strings and bytes as-is and everything else as JSON
func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(data), nil
	}
}
