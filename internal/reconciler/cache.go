package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-viewer/internal/models"
)

// ErrCacheMiss indicates no full record is cached for the document.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores full (payload-bearing) document records.
type Cache interface {
	Get(ctx context.Context, documentID string) (*models.Document, error)
	Set(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, documentID string) error
}

// MemoryCache keeps full records in process memory.
type MemoryCache struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{docs: make(map[string]*models.Document)}
}

func (c *MemoryCache) Get(ctx context.Context, documentID string) (*models.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[documentID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return doc.Clone(), nil
}

func (c *MemoryCache) Set(ctx context.Context, doc *models.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[doc.ID] = doc.Clone()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, documentID)
	return nil
}

// RedisCache stores full records as JSON under a key prefix, so a restarted
// server keeps showing full data instead of falling back to summaries.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheConfig holds Redis connection configuration.
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "docview:document:"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, documentID string) (*models.Document, error) {
	data, err := c.client.Get(ctx, c.prefix+documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached document: %w", err)
	}
	return &doc, nil
}

func (c *RedisCache) Set(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+doc.ID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, c.prefix+documentID).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
