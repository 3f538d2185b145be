package neighbors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor"
)

// RedisConfig configures a RedisSource. Zero values mean defaults.
type RedisConfig struct {
	Prefix    string        // key prefix, default "tutor:neighbors:"
	Timeout   time.Duration // per-lookup deadline, default 50ms
	CacheSize int           // cached lookups before the cache is reset, default 10000
	TTL       time.Duration // expiry for published keys, 0 keeps them
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Prefix == "" {
		c.Prefix = "tutor:neighbors:"
	}
	if c.Timeout <= 0 {
		c.Timeout = 50 * time.Millisecond
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 10000
	}
	return c
}

// DialRedis parses a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

type cached struct {
	n  tutor.Neighbors
	ok bool
}

// RedisSource serves neighbor records stored as JSON under prefix+id.
// Results, including misses, are cached in process until Invalidate.
type RedisSource struct {
	client *redis.Client
	cfg    RedisConfig
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// NewRedisSource wraps client. A nil logger disables logging.
func NewRedisSource(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSource{
		client: client,
		cfg:    cfg.withDefaults(),
		logger: logger,
		cache:  make(map[string]cached),
	}
}

func (s *RedisSource) key(id string) string {
	return s.cfg.Prefix + id
}

// Get fetches the neighbors of id. A missing key is (zero, false, nil).
func (s *RedisSource) Get(ctx context.Context, id string) (tutor.Neighbors, bool, error) {
	if c, hit := s.fromCache(id); hit {
		return c.n, c.ok, nil
	}

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.remember(id, cached{})
		return tutor.Neighbors{}, false, nil
	}
	if err != nil {
		return tutor.Neighbors{}, false, fmt.Errorf("get %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return tutor.Neighbors{}, false, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, id, err)
	}
	n, err := normalize(id, rec.neighbors(), DefaultTopK)
	if err != nil {
		return tutor.Neighbors{}, false, err
	}
	s.remember(id, cached{n: n, ok: true})
	return n, true, nil
}

// Lookup adapts the source to the engine's lookup signature. Each call
// runs under the configured timeout; failures are logged and reported as
// "no neighbors" so selection continues without similarity terms.
func (s *RedisSource) Lookup() tutor.NeighborLookup {
	return func(id string) (tutor.Neighbors, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		n, ok, err := s.Get(ctx, id)
		if err != nil {
			s.logger.Warn("neighbor lookup failed", zap.String("item_id", id), zap.Error(err))
			return tutor.Neighbors{}, false
		}
		return n, ok
	}
}

// Publish writes every record of ix in one pipeline and clears the cache.
func (s *RedisSource) Publish(ctx context.Context, ix *Index) (int, error) {
	records := ix.Records()
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %s: %w", rec.ID, err)
			}
			pipe.Set(ctx, s.key(rec.ID), data, s.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("publish neighbors: %w", err)
	}
	s.Invalidate()
	s.logger.Info("neighbors published", zap.Int("items", len(records)), zap.String("prefix", s.cfg.Prefix))
	return len(records), nil
}

// Invalidate drops all cached lookups.
func (s *RedisSource) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]cached)
	s.mu.Unlock()
}

func (s *RedisSource) fromCache(id string) (cached, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[id]
	return c, ok
}

func (s *RedisSource) remember(id string, c cached) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) >= s.cfg.CacheSize {
		s.cache = make(map[string]cached)
	}
	s.cache[id] = c
}
