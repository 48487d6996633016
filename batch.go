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

package tiercache

import (
	"context"
	"fmt"

	"github.com/tiercache/tiercache/codec"
	"github.com/tiercache/tiercache/expr"
	"github.com/tiercache/tiercache/internal/log"
	"github.com/tiercache/tiercache/internal/metrics"
)

// Identifiable is implemented by the item type a batch descriptor's bulk
// loader returns, so LoadBatch can extract each fresh item's id without
// reflection — the Go-idiomatic stand-in for the source's "results
// carrying an extractable id field".
type Identifiable[ID comparable] interface {
	CacheID() ID
}

// BulkLoader is the named receiver callable §3 describes: given the missed
// identifier subsequence, it returns the corresponding items in any order.
type BulkLoader[ID comparable, T Identifiable[ID]] func(ctx context.Context, missed []ID) ([]T, error)

// LoadBatch implements the batch engine (C7). The pivot's enumerated
// elements (ids) are supplied directly by the caller/binding layer — step 1
// of §4.7 ("identify the pivot argument, enumerate its elements") is the
// external interception layer's job per §9's design note that the engine is
// invariant to how that call shape is produced; LoadBatch picks up from the
// per-element key projection (step 2) onward. Reads and writes target the
// remote tier only, per §4.7's explicit local-tier exclusion.
func LoadBatch[ID comparable, T Identifiable[ID]](
	ctx context.Context,
	eng *Engine,
	desc *BatchDescriptor,
	ec *expr.MapContext,
	ids []ID,
	bulkLoader BulkLoader[ID, T],
) ([]T, error) {
	results := make([]T, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	metrics.BatchSize.WithLabelValues(desc.Namespace()).Observe(float64(len(ids)))

	// Step 2: projection. id -> qualified key, preserving input order. A
	// null id is skipped here: it never reaches key evaluation or the bulk
	// loader, and its results slot stays the zero value.
	keys := make([]string, len(ids))
	keyToID := make(map[string]ID, len(ids))
	for i, id := range ids {
		if isNilViaReflection(id) {
			continue
		}
		rebound := ec.RebindPivot(desc.PivotName, id)
		suffix, err := evalKey(eng.Evaluator, desc.ItemKeyExpr, rebound)
		if err != nil {
			return nil, fmt.Errorf("tiercache.LoadBatch: item_key_expr: %w", err)
		}
		qualifiedKey := desc.QualifiedKey(suffix)
		keys[i] = qualifiedKey
		keyToID[qualifiedKey] = id
	}

	// readKeys excludes the empty slots left by skipped null ids; a
	// qualified key is never itself empty since QualifiedKey always
	// prefixes the namespace.
	readKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			readKeys = append(readKeys, k)
		}
	}

	// Step 3: bulk read. The remote tier's MultiGetPipelined already owns
	// the C3 pipeline-failure fallback internally, so a returned error here
	// means the backend is genuinely unavailable, not merely that its
	// pipeline path failed.
	cachedBytes, err := eng.Tier.Remote().MultiGetPipelined(ctx, readKeys)
	if err != nil {
		return nil, fmt.Errorf("tiercache.LoadBatch: multi-get: %w", err)
	}

	decoded := make(map[ID]T, len(cachedBytes))
	for k, b := range cachedBytes {
		id := keyToID[k]
		if codec.IsNull(b) {
			continue
		}
		var item T
		if derr := codec.Decode(b, &item); derr != nil {
			log.Warn("tiercache: batch decode failed, treating as miss", log.Pairs{"namespace": desc.Namespace(), "key": k, "detail": derr.Error()})
			continue
		}
		decoded[id] = item
	}

	// Step 4: miss set, preserving input order. Null ids never reach here:
	// they were never projected to a key, so they can neither be decoded
	// nor regenerated.
	missed := make([]ID, 0, len(ids)-len(decoded))
	for _, id := range ids {
		if isNilViaReflection(id) {
			continue
		}
		if _, ok := decoded[id]; !ok {
			missed = append(missed, id)
		}
	}

	// Step 5: bulk regenerate.
	fresh := make(map[ID]T, len(missed))
	if len(missed) > 0 {
		items, err := bulkLoader(ctx, missed)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			id := item.CacheID()
			if _, exists := fresh[id]; !exists {
				fresh[id] = item
			}
		}
	}

	// idToKey inverts keyToID so the write path addresses each fresh item
	// under the exact qualified key it was looked up by.
	idToKey := make(map[ID]string, len(keyToID))
	for k, id := range keyToID {
		idToKey[id] = k
	}

	// Step 6: bulk write. As with the read path, MultiPutPipelined owns its
	// own per-key fallback on pipeline failure; an error here means the
	// write genuinely could not be retained anywhere.
	if len(fresh) > 0 {
		toWrite := make(map[string][]byte, len(fresh))
		for id, item := range fresh {
			b, err := codec.Encode(item, desc.Compress, desc.CompressThreshold)
			if err != nil {
				log.Warn("tiercache: batch encode failed, skipping write for id", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
				continue
			}
			toWrite[idToKey[id]] = b
		}

		ttl := desc.RemoteTTLDuration()
		if ttl <= 0 {
			ttl = eng.Defaults.DefaultExpire
		}
		if err := eng.Tier.Remote().MultiPutPipelined(ctx, toWrite, ttl); err != nil {
			log.Warn("tiercache: batch multi-put failed", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
		}
	}

	// Step 7: merge, preserving order and length.
	for i, id := range ids {
		if v, ok := decoded[id]; ok {
			results[i] = v
		} else if v, ok := fresh[id]; ok {
			results[i] = v
		}
	}
	return results, nil
}
