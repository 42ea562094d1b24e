package apiclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheStore is a CacheStore backed by Redis, for operators who run
// the autoscaler itself as a replicated deployment and want cached
// orchestrator reads shared across replicas instead of refetched by each
// one. Grounded in the teacher's store/redis.go dual in-memory/Redis split
// and its fencing-epoch pattern (coordination/leader.go), adapted here into
// a cache generation rather than a leadership term.
//
// Entries are namespaced by generation in the key itself
// (autoscaler:cache:<gen>:<path>) and carry a TTL as a backstop, so EvictAll
// only has to bump a counter: it never needs to enumerate or delete the
// previous generation's keys, which Redis reclaims on its own via TTL.
type RedisCacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCacheStore connects to addr and verifies connectivity with a
// bounded PING, mirroring store.NewRedisStore's startup check.
func NewRedisCacheStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCacheStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &RedisCacheStore{client: client, ttl: ttl}, nil
}

func (r *RedisCacheStore) generation(ctx context.Context) int64 {
	gen, err := r.client.Get(ctx, "autoscaler:cache:gen").Int64()
	if err != nil {
		// Missing key or transient error: treat as generation 0. A
		// concurrent EvictAll will still move every reader forward as
		// soon as the INCR below is visible.
		return 0
	}
	return gen
}

func (r *RedisCacheStore) key(gen int64, path string) string {
	return fmt.Sprintf("autoscaler:cache:%d:%s", gen, path)
}

func (r *RedisCacheStore) Get(path string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	gen := r.generation(ctx)
	body, err := r.client.Get(ctx, r.key(gen, path)).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

func (r *RedisCacheStore) Set(path string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	gen := r.generation(ctx)
	if err := r.client.Set(ctx, r.key(gen, path), body, r.ttl).Err(); err != nil {
		log.Printf("apiclient: redis cache set failed for %s: %v", path, err)
	}
}

func (r *RedisCacheStore) EvictAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Incr(ctx, "autoscaler:cache:gen").Err(); err != nil {
		log.Printf("apiclient: redis cache generation bump failed: %v", err)
	}
}
