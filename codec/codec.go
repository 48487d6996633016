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

// Package codec implements the serialize/compress pipeline (C1): a
// self-describing binary encoding of arbitrary loader results, with an
// optional gzip-compatible compression wrapper gated by a size threshold.
//
// Two serializers share the wire format. A value that implements
// msgp.Marshaler/msgp.Unmarshaler (generated code, the teacher's
// model.HTTPDocument.MarshalMsg/UnmarshalMsg pattern in
// internal/proxy/engines/cache.go) takes the fast path. Everything else
// falls back to reflection-based github.com/vmihailenco/msgpack/v5, mirrored
// on the marshal/unmarshal switch in the enrichment corpus's dcache client.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/tinylib/msgp/msgp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tiercache/tiercache/internal/log"
)

// NullMarker is the reserved single-byte payload denoting a memoized null
// result. Encode never produces this byte sequence; callers check for it
// before calling Decode.
var NullMarker = []byte{0x00}

// format tags, written as the first byte of the (possibly gzip-wrapped)
// payload. Disjoint from NullMarker (0x00) and from gzip's magic bytes
// (0x1f, 0x8b).
const (
	formatMsgpackGeneric byte = 0x01
	formatMsgpFast       byte = 0x02
)

var gzipMagic = []byte{0x1f, 0x8b}

// IsNull reports whether b is the reserved null-marker payload.
func IsNull(b []byte) bool {
	return len(b) == 1 && b[0] == NullMarker[0]
}

// Encode serializes value, compressing the result when compress is true and
// the serialized length is at least threshold bytes. Compression failure
// falls back to the uncompressed payload; it is logged, not returned as an
// error, since the encode itself succeeded.
func Encode(value interface{}, compress bool, threshold int) ([]byte, error) {
	tag, payload, err := marshal(value)
	if err != nil {
		return nil, fmt.Errorf("codec encode: %w", err)
	}

	raw := make([]byte, 0, len(payload)+1)
	raw = append(raw, tag)
	raw = append(raw, payload...)

	if compress && len(raw) >= threshold {
		compressed, cerr := gzipBytes(raw)
		if cerr != nil {
			log.Warn("codec compression failed, storing uncompressed", log.Pairs{"detail": cerr.Error()})
			return raw, nil
		}
		return compressed, nil
	}
	return raw, nil
}

// Decode reverses Encode into target, a pointer to the destination value.
// If target implements msgp.Unmarshaler and the payload was written with the
// msgp fast path, UnmarshalMsg is used directly; otherwise msgpack/v5
// reflection-based decoding is used.
func Decode(b []byte, target interface{}) error {
	raw := b
	if len(raw) >= 2 && raw[0] == gzipMagic[0] && raw[1] == gzipMagic[1] {
		decompressed, err := gunzipBytes(raw)
		if err != nil {
			return fmt.Errorf("codec decode: gzip: %w", err)
		}
		raw = decompressed
	}

	if len(raw) == 0 {
		return fmt.Errorf("codec decode: empty payload")
	}

	tag := raw[0]
	payload := raw[1:]

	switch tag {
	case formatMsgpFast:
		u, ok := target.(msgp.Unmarshaler)
		if !ok {
			return fmt.Errorf("codec decode: payload was encoded with msgp but target does not implement msgp.Unmarshaler")
		}
		_, err := u.UnmarshalMsg(payload)
		if err != nil {
			return fmt.Errorf("codec decode: msgp: %w", err)
		}
		return nil
	case formatMsgpackGeneric:
		if err := msgpack.Unmarshal(payload, target); err != nil {
			return fmt.Errorf("codec decode: msgpack: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("codec decode: unrecognized format tag 0x%02x", tag)
	}
}

func marshal(value interface{}) (byte, []byte, error) {
	if m, ok := value.(msgp.Marshaler); ok {
		b, err := m.MarshalMsg(nil)
		if err != nil {
			return 0, nil, err
		}
		return formatMsgpFast, b, nil
	}
	b, err := msgpack.Marshal(value)
	if err != nil {
		return 0, nil, err
	}
	return formatMsgpackGeneric, b, nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
