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

import "fmt"

// Each slot carries a 32-bit metadata word. The low byte holds the state
// flags and the upper 24 bits cache a fragment of the key's hash:
//
//	bits  0..7   flags
//	bits  8..31  partial hash (low 24 bits of hash(key))
//
// The state flags are inverted so that a zeroed slot is empty, which lets a
// freshly allocated bucket array be used without initialization:
//
//	[deleted] [not-empty]
//	    0          0       empty
//	    0          1       occupied
//	    1          1       deleted (tombstone)
//	    1          0       corrupt
type meta uint32

const (
	metaNotEmpty meta = 1 << 1
	metaDeleted  meta = 1 << 2
	metaCorrupt  meta = 1 << 3

	metaFlags   meta = 0x000000ff
	metaPartial meta = 0xffffff00
)

// hashToPartial moves the low 24 bits of a full hash into the partial hash
// position of a metadata word, leaving the flag byte zero.
func hashToPartial(h uint64) meta {
	return meta(uint32(h&0x00ffffff) << 8)
}

func (m meta) partial() meta {
	return m & metaPartial
}

func (m meta) isEmpty() bool {
	return m&metaNotEmpty == 0
}

func (m meta) isDeleted() bool {
	return m&metaDeleted != 0
}

func (m meta) isOccupied() bool {
	return !m.isEmpty() && !m.isDeleted()
}

func (m meta) isCorrupt() bool {
	return m&metaCorrupt != 0 || m&(metaDeleted|metaNotEmpty) == metaDeleted
}

func (m meta) String() string {
	switch {
	case m.isCorrupt():
		return fmt.Sprintf("corrupt[%08x]", uint32(m))
	case m.isEmpty():
		return "empty"
	case m.isDeleted():
		return fmt.Sprintf("deleted[%06x]", uint32(m.partial()>>8))
	default:
		return fmt.Sprintf("occupied[%06x]", uint32(m.partial()>>8))
	}
}

// Slot holds a key, its value and the slot's metadata word.
type Slot[K, V any] struct {
	meta  meta
	key   K
	value V
}

// markOccupied stores key and value in an empty or deleted slot.
func (s *Slot[K, V]) markOccupied(partial meta, key K, value V) {
	if invariants && s.meta.isOccupied() {
		panic(fmt.Sprintf("invariant failed: markOccupied on %s slot", s.meta))
	}
	s.meta = partial | metaNotEmpty
	s.key = key
	s.value = value
}

// markDeleted turns an occupied slot into a tombstone. The partial hash is
// kept; the key and value are zeroed so the GC can reclaim what they
// reference.
func (s *Slot[K, V]) markDeleted() {
	if invariants && !s.meta.isOccupied() {
		panic(fmt.Sprintf("invariant failed: markDeleted on %s slot", s.meta))
	}
	s.meta |= metaDeleted
	s.clearPayload()
}

// markEmpty turns an occupied or deleted slot into an empty one.
func (s *Slot[K, V]) markEmpty() {
	if invariants && (s.meta.isEmpty() || s.meta.isCorrupt()) {
		panic(fmt.Sprintf("invariant failed: markEmpty on %s slot", s.meta))
	}
	s.meta &^= metaNotEmpty | metaDeleted
	s.clearPayload()
}

func (s *Slot[K, V]) clearPayload() {
	var k K
	var v V
	s.key = k
	s.value = v
}
