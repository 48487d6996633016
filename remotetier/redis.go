/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package remotetier

import (
	"context"
	"fmt"
	"time"

	redis "github.com/go-redis/redis"

	"github.com/tiercache/tiercache/internal/config"
)

// redisStore is a Store backed by Redis, supporting single-node, sentinel,
// and cluster topologies via redis.UniversalClient exactly as the
// enrichment corpus's llmux redis cache client selects a client shape from
// config. Lease acquisition uses SETNX, the same primitive the enrichment
// corpus's dcache client uses for its lock key.
type redisStore struct {
	client redis.UniversalClient
	avail  *availability

	// testForceMultiGetErr and testForceMultiPutErr let tests drive the C3
	// pipeline-failure fallback without fabricating an actual Redis
	// failure; production code never sets them.
	testForceMultiGetErr error
	testForceMultiPutErr error
}

func newRedisStore(cfg config.RedisCacheConfig) (*redisStore, error) {
	opts := &redis.UniversalOptions{
		Addrs:        redisAddrs(cfg),
		MasterName:   cfg.SentinelMaster,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  time.Duration(cfg.DialTimeoutMS) * time.Millisecond,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	client := redis.NewUniversalClient(opts)

	s := &redisStore{client: client, avail: newAvailability()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		s.avail.markDown()
	}
	return s, nil
}

func redisAddrs(cfg config.RedisCacheConfig) []string {
	if len(cfg.Endpoints) > 0 {
		return cfg.Endpoints
	}
	if cfg.Endpoint != "" {
		return []string{cfg.Endpoint}
	}
	return []string{"localhost:6379"}
}

// go-redis v6 predates context-taking command methods; ctx is accepted on
// every Store method for interface symmetry with the other backends and to
// bound the dial/read/write timeouts already configured on the client, but
// is not threaded into individual v6 command calls.

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	val, err := s.client.Get(key).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.avail.markUp()
			return nil, nil
		}
		s.avail.markDown()
		return nil, fmt.Errorf("redis get: %w", err)
	}
	s.avail.markUp()
	return val, nil
}

func (s *redisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(key, value, ttl).Err(); err != nil {
		s.avail.markDown()
		return fmt.Errorf("redis set: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *redisStore) Evict(ctx context.Context, key string) error {
	if err := s.client.Del(key).Err(); err != nil {
		s.avail.markDown()
		return fmt.Errorf("redis del: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *redisStore) MultiGetPipelined(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	if s.testForceMultiGetErr != nil {
		return fallbackMultiGet(ctx, "redis", keys, s.testForceMultiGetErr, s.Get), nil
	}
	vals, err := s.client.MGet(keys...).Result()
	if err != nil {
		s.avail.markDown()
		return fallbackMultiGet(ctx, "redis", keys, err, s.Get), nil
	}
	s.avail.markUp()
	for i, val := range vals {
		switch v := val.(type) {
		case string:
			result[keys[i]] = []byte(v)
		case []byte:
			result[keys[i]] = v
		}
	}
	return result, nil
}

func (s *redisStore) MultiPutPipelined(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}
	if s.testForceMultiPutErr != nil {
		fallbackMultiPut(ctx, "redis", entries, ttl, s.testForceMultiPutErr, s.Put)
		return nil
	}
	pipe := s.client.Pipeline()
	for key, value := range entries {
		pipe.Set(key, value, ttl)
	}
	if _, err := pipe.Exec(); err != nil {
		s.avail.markDown()
		fallbackMultiPut(ctx, "redis", entries, ttl, err, s.Put)
		return nil
	}
	s.avail.markUp()
	return nil
}

func (s *redisStore) TryAcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(leaseKey(key), "1", ttl).Result()
	if err != nil {
		s.avail.markDown()
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	s.avail.markUp()
	return ok, nil
}

func (s *redisStore) ReleaseLease(ctx context.Context, key string) error {
	if err := s.client.Del(leaseKey(key)).Err(); err != nil {
		s.avail.markDown()
		return fmt.Errorf("redis del lease: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *redisStore) IsAvailable() bool { return s.avail.isUp() }

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping().Err(); err != nil {
		s.avail.markDown()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.avail.markUp()
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
