package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"imagine-rag-backend/logger"
)

// QueryCache stores query embeddings by key
type QueryCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// NewRedisClient connects to the Redis server at url and verifies it answers
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisQueryCache keeps query embeddings in Redis as little-endian float32 blobs
type RedisQueryCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisQueryCache(rdb *redis.Client, prefix string, ttl time.Duration) *RedisQueryCache {
	if prefix == "" {
		prefix = "rag:qemb:"
	}
	return &RedisQueryCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisQueryCache) Set(ctx context.Context, key string, vec []float32) error {
	return c.rdb.Set(ctx, c.prefix+key, encodeVector(vec), c.ttl).Err()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached embedding of %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

// CachedEmbedder serves repeated queries from a cache. Cache failures are
// logged and fall through to the wrapped embedder; embedding failures are never cached.
type CachedEmbedder struct {
	Embedder
	cache QueryCache
	log   *logger.Logger
}

func NewCachedEmbedder(inner Embedder, cache QueryCache, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedEmbedder{Embedder: inner, cache: cache, log: log}
}

// CacheKey identifies a query embedding by model, dimension and normalized text
func CacheKey(model string, dimension int, text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(text), " "))))
	return fmt.Sprintf("%s:%d:%s", model, dimension, hex.EncodeToString(sum[:]))
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(e.Name(), e.Dimension(), text)

	vec, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Warn("Query embedding cache read failed", "error", err)
	} else if ok && len(vec) == e.Dimension() {
		return vec, nil
	}

	vec, err = e.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, key, vec); err != nil {
		e.log.Warn("Query embedding cache write failed", "error", err)
	}
	return vec, nil
}
