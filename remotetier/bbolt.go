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
	"encoding/binary"
	"fmt"
	"time"

	bolt "github.com/coreos/bbolt"

	"github.com/tiercache/tiercache/internal/config"
)

// bboltStore is a Store backed by a single-file bbolt database, the
// embedded-store option Trickster's configuration surface names
// (coreos/bbolt) for single-node deployments with no external dependency.
// Every value is stored as an 8-byte big-endian expiry deadline (UnixNano,
// 0 meaning none) followed by the raw bytes; expired reads are deleted
// lazily on Get.
type bboltStore struct {
	db     *bolt.DB
	bucket []byte
	avail  *availability

	// testForceMultiGetErr and testForceMultiPutErr let tests drive the C3
	// pipeline-failure fallback without fabricating an actual bbolt
	// failure; production code never sets them.
	testForceMultiGetErr error
	testForceMultiPutErr error
}

func newBBoltStore(cfg config.BBoltCacheConfig) (*bboltStore, error) {
	db, err := bolt.Open(cfg.Filename, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	bucket := []byte(cfg.Bucket)
	if len(bucket) == 0 {
		bucket = []byte("tiercache")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucket)
		return e
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt create bucket: %w", err)
	}
	return &bboltStore{db: db, bucket: bucket, avail: newAvailability()}, nil
}

func encodeBBoltValue(value []byte, ttl time.Duration) []byte {
	var deadline int64
	if ttl > 0 {
		deadline = time.Now().Add(ttl).UnixNano()
	}
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], uint64(deadline))
	copy(out[8:], value)
	return out
}

func decodeBBoltValue(raw []byte) (value []byte, expired bool) {
	if len(raw) < 8 {
		return nil, true
	}
	deadline := int64(binary.BigEndian.Uint64(raw[:8]))
	if deadline != 0 && time.Now().UnixNano() >= deadline {
		return nil, true
	}
	return raw[8:], false
}

func (s *bboltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	var isExpired bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		v, expired := decodeBBoltValue(raw)
		if expired {
			isExpired = true
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		s.avail.markDown()
		return nil, fmt.Errorf("bbolt get: %w", err)
	}
	s.avail.markUp()
	if isExpired {
		_ = s.Evict(ctx, key)
		return nil, nil
	}
	return out, nil
}

func (s *bboltStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), encodeBBoltValue(value, ttl))
	})
	if err != nil {
		s.avail.markDown()
		return fmt.Errorf("bbolt put: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *bboltStore) Evict(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		s.avail.markDown()
		return fmt.Errorf("bbolt delete: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *bboltStore) MultiGetPipelined(ctx context.Context, keys []string) (map[string][]byte, error) {
	if s.testForceMultiGetErr != nil {
		return fallbackMultiGet(ctx, "bbolt", keys, s.testForceMultiGetErr, s.Get), nil
	}
	result := make(map[string][]byte, len(keys))
	expiredKeys := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, key := range keys {
			raw := b.Get([]byte(key))
			if raw == nil {
				continue
			}
			v, expired := decodeBBoltValue(raw)
			if expired {
				expiredKeys = append(expiredKeys, key)
				continue
			}
			result[key] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		s.avail.markDown()
		return fallbackMultiGet(ctx, "bbolt", keys, err, s.Get), nil
	}
	s.avail.markUp()
	for _, key := range expiredKeys {
		_ = s.Evict(ctx, key)
	}
	return result, nil
}

func (s *bboltStore) MultiPutPipelined(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if s.testForceMultiPutErr != nil {
		fallbackMultiPut(ctx, "bbolt", entries, ttl, s.testForceMultiPutErr, s.Put)
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for key, value := range entries {
			if err := b.Put([]byte(key), encodeBBoltValue(value, ttl)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.avail.markDown()
		fallbackMultiPut(ctx, "bbolt", entries, ttl, err, s.Put)
		return nil
	}
	s.avail.markUp()
	return nil
}

// TryAcquireLease emulates SETNX with a transactional read-then-write:
// bbolt serializes writers, so this check-and-set cannot race with another
// writer in the same process.
func (s *bboltStore) TryAcquireLease(_ context.Context, key string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		lk := []byte(leaseKey(key))
		raw := b.Get(lk)
		if raw != nil {
			if _, expired := decodeBBoltValue(raw); !expired {
				return nil
			}
		}
		acquired = true
		return b.Put(lk, encodeBBoltValue(leaseValue, ttl))
	})
	if err != nil {
		s.avail.markDown()
		return false, fmt.Errorf("bbolt lease: %w", err)
	}
	s.avail.markUp()
	return acquired, nil
}

func (s *bboltStore) ReleaseLease(ctx context.Context, key string) error {
	return s.Evict(ctx, leaseKey(key))
}

func (s *bboltStore) IsAvailable() bool { return s.avail.isUp() }

func (s *bboltStore) Ping(context.Context) error {
	if s.db == nil {
		return ErrUnavailable
	}
	return nil
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}
