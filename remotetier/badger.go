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

	badger "github.com/dgraph-io/badger"

	"github.com/tiercache/tiercache/internal/config"
)

// badgerStore is a Store backed by an embedded BadgerDB, the other
// single-node embedded option Trickster's configuration surface names.
// Unlike bbolt, Badger has native per-key TTL via SetWithTTL, so no manual
// expiry encoding is needed.
type badgerStore struct {
	db    *badger.DB
	avail *availability

	// testForceMultiGetErr and testForceMultiPutErr let tests drive the C3
	// pipeline-failure fallback without fabricating an actual Badger
	// failure; production code never sets them.
	testForceMultiGetErr error
	testForceMultiPutErr error
}

func newBadgerStore(cfg config.BadgerCacheConfig) (*badgerStore, error) {
	opts := badger.DefaultOptions
	opts.Dir = cfg.Directory
	opts.ValueDir = cfg.ValueDirectory
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &badgerStore{db: db, avail: newAvailability()}, nil
}

func (s *badgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		s.avail.markDown()
		return nil, fmt.Errorf("badger get: %w", err)
	}
	s.avail.markUp()
	return out, nil
}

func (s *badgerStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if ttl > 0 {
			return txn.SetWithTTL([]byte(key), value, ttl)
		}
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		s.avail.markDown()
		return fmt.Errorf("badger put: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *badgerStore) Evict(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		s.avail.markDown()
		return fmt.Errorf("badger delete: %w", err)
	}
	s.avail.markUp()
	return nil
}

func (s *badgerStore) MultiGetPipelined(ctx context.Context, keys []string) (map[string][]byte, error) {
	if s.testForceMultiGetErr != nil {
		return fallbackMultiGet(ctx, "badger", keys, s.testForceMultiGetErr, s.Get), nil
	}
	result := make(map[string][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[key] = v
		}
		return nil
	})
	if err != nil {
		s.avail.markDown()
		return fallbackMultiGet(ctx, "badger", keys, err, s.Get), nil
	}
	s.avail.markUp()
	return result, nil
}

func (s *badgerStore) MultiPutPipelined(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	if s.testForceMultiPutErr != nil {
		fallbackMultiPut(ctx, "badger", entries, ttl, s.testForceMultiPutErr, s.Put)
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for key, value := range entries {
			var err error
			if ttl > 0 {
				err = txn.SetWithTTL([]byte(key), value, ttl)
			} else {
				err = txn.Set([]byte(key), value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.avail.markDown()
		fallbackMultiPut(ctx, "badger", entries, ttl, err, s.Put)
		return nil
	}
	s.avail.markUp()
	return nil
}

// TryAcquireLease relies on Badger's transaction conflict detection: both
// the read and the write happen in the same managed transaction, so a
// concurrent racer's commit fails with ErrConflict and this caller loses
// the lease instead of silently overwriting it.
func (s *badgerStore) TryAcquireLease(_ context.Context, key string, ttl time.Duration) (bool, error) {
	lk := []byte(leaseKey(key))
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(lk)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		acquired = true
		return txn.SetWithTTL(lk, leaseValue, ttl)
	})
	if err == badger.ErrConflict {
		s.avail.markUp()
		return false, nil
	}
	if err != nil {
		s.avail.markDown()
		return false, fmt.Errorf("badger lease: %w", err)
	}
	s.avail.markUp()
	return acquired, nil
}

func (s *badgerStore) ReleaseLease(ctx context.Context, key string) error {
	return s.Evict(ctx, leaseKey(key))
}

func (s *badgerStore) IsAvailable() bool { return s.avail.isUp() }

func (s *badgerStore) Ping(context.Context) error {
	if s.db == nil {
		return ErrUnavailable
	}
	return nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
