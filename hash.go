// Copyright 2024 The Jadwal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jadwal

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/constraints"
)

// HashFunc hashes a key. It must return the same value for keys that the
// table's EqualFunc considers equal. The low 24 bits are cached in each slot
// to filter candidates before calling EqualFunc, so they should be well
// mixed.
type HashFunc[K any] func(key K) uint64

// EqualFunc reports whether two keys are equal. It must be reflexive,
// symmetric and transitive; in particular equal(k, k) must hold for every
// key, which excludes NaN float keys compared with ==.
type EqualFunc[K any] func(a, b K) bool

// StringHash hashes a string with xxHash64.
func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// BytesHash hashes a byte slice with xxHash64.
func BytesHash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// IntegerHash mixes the bits of an integer key using the murmur3 64-bit
// finalizer, so that sequential keys differ in their low bits and land in
// unrelated buckets.
func IntegerHash[T constraints.Integer](key T) uint64 {
	x := uint64(key)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Equal compares two comparable keys with ==.
func Equal[K comparable](a, b K) bool {
	return a == b
}

// BytesEqual compares two byte slice keys.
func BytesEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
