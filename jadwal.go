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

// Package jadwal is a generic hash table using open addressing with linear
// probing.
//
// # Layout
//
// All entries live directly in a single array of slots ("buckets"). A key's
// home bucket is hash(key) % buckets, where buckets is always drawn from a
// fixed sequence of primes (see bucketCounts). Collisions are resolved by
// walking forward one slot at a time, wrapping at the end of the array,
// until either the key or an empty slot is found. At least one slot is kept
// empty at all times so that every probe terminates.
//
// Each slot carries a metadata word with the slot state and the low 24 bits
// of the key's hash. Probing compares that partial hash first and only calls
// the user's equality function when it matches, which in the common case
// replaces a key comparison that misses the cache with an integer compare
// on memory that is already loaded.
//
// # Deletion
//
// A deleted slot cannot simply be marked empty: some other key may have
// probed past it when it was inserted, and an empty slot would end that
// key's probe too early. Deletion therefore leaves a tombstone, with two
// exceptions. If the slot following the deleted one is empty, no probe could
// have passed through the deleted slot to reach anything, so it is marked
// empty directly. The same reasoning then applies to the run of tombstones
// immediately preceding it, which is collapsed back to empty as well:
//
//	before:  [deleted] [deleted] [occupied*] [empty]
//	after:   [empty]   [empty]   [empty]     [empty]
//
// Tombstones are reused by insertions and are all dropped whenever the
// bucket array is rebuilt.
//
// # Resizing
//
// A table grows before an insertion once the number of entries reaches
// growPercent of the bucket count, and shrinks after a deletion once it
// falls below shrinkPercent. The two thresholds are kept more than a factor
// of two apart so that a resize never lands the table across the opposite
// threshold. Resizing allocates a new array, reinserts every entry and
// releases the old array; it is never done in place because an entry's home
// bucket depends on the bucket count. When tombstones rather than entries
// push the table to its grow threshold the array is rebuilt at the same
// size to drop them.
package jadwal

import (
	"errors"
	"fmt"
	"strings"
)

const debug = false

// Table is an unordered map from keys to values with Insert, Put, Get, Find,
// Delete and iteration operations. Keys are hashed and compared with
// user-supplied functions, so any key type can be used.
//
// A Table is NOT goroutine-safe.
type Table[K, V any] struct {
	hash  HashFunc[K]
	equal EqualFunc[K]
	// The allocator to use for the slots slice.
	allocator Allocator[K, V]
	observer  Observer
	// slots is bucketCounts[bucketIndex] in length, or nil after Close.
	slots       []Slot[K, V]
	bucketIndex int
	// The number of occupied slots (i.e. the number of elements in the
	// table).
	used int
	// The number of tombstones.
	deleted int
	// Absolute thresholds derived from the percentages below and
	// len(slots).
	growAt   int
	shrinkAt int

	shrinkPercent int
	growPercent   int

	// mutations counts structural changes so iterators can detect misuse.
	mutations uint64
	// err is sticky once the table is found corrupt or closed.
	err error
}

// Stats describes the occupancy of a Table.
type Stats struct {
	Len           int
	Deleted       int
	Buckets       int
	GrowAt        int
	ShrinkAt      int
	ShrinkPercent int
	GrowPercent   int
}

// New constructs a table sized to hold initialCapacity elements without
// growing. The table always has at least minBuckets buckets, so an
// initialCapacity of 0 is valid.
func New[K, V any](
	initialCapacity int, hash HashFunc[K], equal EqualFunc[K], options ...Option[K, V],
) (*Table[K, V], error) {
	if hash == nil || equal == nil {
		return nil, fmt.Errorf("%w: hash and equal functions are required", ErrInvalidConfig)
	}
	if initialCapacity < 0 {
		return nil, fmt.Errorf("%w: negative initial capacity %d", ErrInvalidConfig, initialCapacity)
	}

	t := &Table[K, V]{
		hash:          hash,
		equal:         equal,
		allocator:     defaultAllocator[K, V]{},
		observer:      nopObserver{},
		shrinkPercent: DefaultShrinkPercent,
		growPercent:   DefaultGrowPercent,
	}
	for _, op := range options {
		op.apply(t)
	}
	if t.allocator == nil || t.observer == nil {
		return nil, fmt.Errorf("%w: nil allocator or observer", ErrInvalidConfig)
	}
	if err := validateLoadFactors(t.shrinkPercent, t.growPercent); err != nil {
		return nil, err
	}

	idx, err := bucketIndexFor(bucketCountFor(initialCapacity, t.shrinkPercent, t.growPercent))
	if err != nil {
		return nil, err
	}
	slots, err := t.allocSlots(bucketCounts[idx])
	if err != nil {
		return nil, err
	}
	t.slots = slots
	t.bucketIndex = idx
	t.updateThresholds()

	if debug {
		fmt.Printf("new: buckets=%d shrink-at=%d grow-at=%d\n", len(t.slots), t.shrinkAt, t.growAt)
	}
	t.checkInvariants()
	t.observer.Reset(0, len(t.slots))
	return t, nil
}

// Close releases the bucket array back to the configured allocator. It is
// unnecessary to close a table using the default allocator. It is invalid to
// use a Table after it has been closed, though Close itself is idempotent.
func (t *Table[K, V]) Close() {
	if t.slots != nil {
		t.allocator.Free(t.slots)
	}
	t.slots = nil
	t.used = 0
	t.deleted = 0
	t.growAt = 0
	t.shrinkAt = 0
	t.mutations++
	if t.err == nil {
		t.err = ErrClosed
	}
	t.observer.Reset(0, 0)
}

// Insert adds an entry for key. If the key is already present the table is
// left unchanged and Insert returns false.
func (t *Table[K, V]) Insert(key K, value V) (bool, error) {
	_, found, err := t.insert(key, value, false /* replace */)
	return !found && err == nil, err
}

// Put inserts an entry into the table, overwriting the existing key and
// value if an entry with an equal key already exists. It returns true if an
// entry was replaced.
func (t *Table[K, V]) Put(key K, value V) (bool, error) {
	_, found, err := t.insert(key, value, true /* replace */)
	return found, err
}

// Upsert is Put, additionally returning an iterator positioned at the
// entry for key, as Find would.
func (t *Table[K, V]) Upsert(key K, value V) (Iterator[K, V], bool, error) {
	i, found, err := t.insert(key, value, true /* replace */)
	if err != nil {
		return exhaustedIterator[K, V](), false, err
	}
	return Iterator[K, V]{t: t, start: i, cur: i, mutations: t.mutations}, found, nil
}

// Get retrieves the value for the specified key, returning ok=false if the
// key is not present.
func (t *Table[K, V]) Get(key K) (value V, ok bool) {
	if t.err != nil {
		return value, false
	}
	i, found, err := t.locate(key, t.hash(key))
	if err != nil || !found {
		return value, false
	}
	return t.slots[i].value, true
}

// Find returns an iterator positioned at the entry for key. Key and Value
// are valid immediately; Next continues with the entries stored after it,
// wrapping around the bucket array and stopping before it gets back to the
// found entry.
func (t *Table[K, V]) Find(key K) (Iterator[K, V], bool) {
	if t.err != nil {
		return exhaustedIterator[K, V](), false
	}
	i, found, err := t.locate(key, t.hash(key))
	if err != nil || !found {
		return exhaustedIterator[K, V](), false
	}
	return Iterator[K, V]{t: t, start: i, cur: i, mutations: t.mutations}, true
}

// Delete removes the entry for key, returning false if the key was not
// present. Deleting may shrink the table; a failed shrink is not reported
// since the table remains valid.
func (t *Table[K, V]) Delete(key K) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	i, found, err := t.locate(key, t.hash(key))
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	s := &t.slots[i]
	if t.slots[t.next(i)].meta.isEmpty() {
		// Nothing past i can depend on it to keep probing, and therefore
		// nothing can depend on the tombstones leading up to it either.
		s.markEmpty()
		for j := t.prev(i); t.slots[j].meta.isDeleted(); j = t.prev(j) {
			t.slots[j].markEmpty()
			t.deleted--
		}
		if debug {
			fmt.Printf("delete(%v): index=%d emptied used=%d deleted=%d\n", key, i, t.used-1, t.deleted)
		}
	} else {
		s.markDeleted()
		t.deleted++
		if debug {
			fmt.Printf("delete(%v): index=%d tombstoned used=%d deleted=%d\n", key, i, t.used-1, t.deleted)
		}
	}
	t.used--
	t.mutations++
	t.observer.Deleted(t.used)

	if err := t.maybeResize(hintDeleting); err != nil {
		if errors.Is(err, ErrCorrupt) {
			return true, err
		}
		if debug {
			fmt.Printf("delete: shrink failed: %v\n", err)
		}
	}
	return true, nil
}

// Len returns the number of entries in the table.
func (t *Table[K, V]) Len() int {
	return t.used
}

// Stats returns the current occupancy of the table.
func (t *Table[K, V]) Stats() Stats {
	return Stats{
		Len:           t.used,
		Deleted:       t.deleted,
		Buckets:       len(t.slots),
		GrowAt:        t.growAt,
		ShrinkAt:      t.shrinkAt,
		ShrinkPercent: t.shrinkPercent,
		GrowPercent:   t.growPercent,
	}
}

// Clear deletes all entries from the table, retaining its bucket array.
func (t *Table[K, V]) Clear() {
	clear(t.slots)
	t.used = 0
	t.deleted = 0
	t.mutations++
	t.checkInvariants()
	t.observer.Reset(0, len(t.slots))
}

// Reserve resizes the table to the bucket count appropriate for n
// elements, or for Len() elements if that is larger. It may shrink the
// table, and does nothing if the bucket count would not change.
func (t *Table[K, V]) Reserve(n int) error {
	if t.err != nil {
		return t.err
	}
	if n < 0 {
		return fmt.Errorf("%w: negative capacity %d", ErrInvalidConfig, n)
	}
	return t.resize(max(n, t.used))
}

// SetLoadFactors changes the percentages at which the table shrinks and
// grows, under the same constraints as WithLoadFactors. The table is
// resized immediately if its current load falls outside the new band.
func (t *Table[K, V]) SetLoadFactors(shrinkPercent, growPercent int) error {
	if t.err != nil {
		return t.err
	}
	if err := validateLoadFactors(shrinkPercent, growPercent); err != nil {
		return err
	}
	t.shrinkPercent = shrinkPercent
	t.growPercent = growPercent
	t.updateThresholds()
	return t.maybeResize(hintNone)
}

// insert is the shared implementation of Insert, Put and Upsert. It
// returns the index of the entry for key, and found=true if an entry with an
// equal key was already present.
func (t *Table[K, V]) insert(key K, value V, replace bool) (idx int, found bool, err error) {
	if t.err != nil {
		return -1, false, t.err
	}

	// Resize before probing so the index we find stays valid. A failed
	// resize only matters if the table has no room left: the probe relies on
	// finding an empty slot, and inserting into the last one would leave
	// none.
	err = t.maybeResize(hintInserting)
	if errors.Is(err, ErrCorrupt) {
		return -1, false, err
	}
	if t.emptySlots() <= 1 {
		if err == nil {
			want, ierr := bucketIndexFor(bucketCountFor(t.used+1, t.shrinkPercent, t.growPercent))
			if ierr != nil {
				err = ierr
			} else {
				err = t.rebuild(max(want, t.bucketIndex))
			}
		}
		if err != nil {
			if errors.Is(err, ErrAllocation) || errors.Is(err, ErrCorrupt) {
				return -1, false, err
			}
			return -1, false, fmt.Errorf("%w: %w", ErrResizeFailed, err)
		}
	}

	h := t.hash(key)
	i, found, err := t.locate(key, h)
	if err != nil {
		return -1, false, err
	}
	if found {
		if replace {
			s := &t.slots[i]
			s.key = key
			s.value = value
			if debug {
				fmt.Printf("put(%v): index=%d replaced\n", key, i)
			}
		}
		return i, true, nil
	}
	if i < 0 {
		return -1, false, t.corrupt("probe for %v found neither the key nor a free slot", key)
	}

	s := &t.slots[i]
	if s.meta.isDeleted() {
		if invariants && t.deleted <= 0 {
			panic(fmt.Sprintf("invariant failed: reusing tombstone %d with deleted count %d", i, t.deleted))
		}
		t.deleted--
	}
	s.markOccupied(hashToPartial(h), key, value)
	t.used++
	t.mutations++
	if debug {
		fmt.Printf("insert(%v): index=%d used=%d deleted=%d\n", key, i, t.used, t.deleted)
	}
	t.observer.Inserted(t.used)
	return i, false, nil
}

// locate probes for key. If the key is present it returns its index and
// found=true. Otherwise it returns the index where the key should be
// inserted: the first tombstone on the probe sequence if there was one, or
// else the empty slot that ended the probe.
func (t *Table[K, V]) locate(key K, h uint64) (idx int, found bool, err error) {
	n := len(t.slots)
	if n-t.used-t.deleted < 1 {
		return -1, false, t.corrupt("no empty slot: buckets=%d used=%d deleted=%d", n, t.used, t.deleted)
	}

	partial := hashToPartial(h)
	i := int(h % uint64(n))
	suggested := -1
	if debug {
		fmt.Printf("locate(%v): home=%d partial=%06x\n", key, i, uint32(partial>>8))
	}

	// The probe is bounded by the array length so that a table whose counts
	// disagree with its slots reports corruption instead of spinning.
	for probes := 0; probes < n; probes++ {
		s := &t.slots[i]
		switch {
		case invariants && s.meta.isCorrupt():
			panic(fmt.Sprintf("invariant failed: slot(%d) is %s\n%s", i, s.meta, t.debugString()))
		case s.meta.isOccupied():
			if s.meta.partial() == partial && t.keysEqual(key, s) {
				return i, true, nil
			}
		case s.meta.isDeleted():
			if suggested < 0 {
				suggested = i
			}
		default:
			if suggested < 0 {
				suggested = i
			}
			return suggested, false, nil
		}
		i = t.next(i)
	}
	return -1, false, t.corrupt("probe for %v visited every slot without finding an empty one", key)
}

func (t *Table[K, V]) keysEqual(key K, s *Slot[K, V]) bool {
	if invariants && !t.equal(s.key, s.key) {
		panic(fmt.Sprintf("invariant failed: equal(%v, %v) is false; equal must be reflexive", s.key, s.key))
	}
	return t.equal(key, s.key)
}

// next returns the probe successor of i.
func (t *Table[K, V]) next(i int) int {
	i++
	if i == len(t.slots) {
		return 0
	}
	return i
}

// prev returns the probe predecessor of i.
func (t *Table[K, V]) prev(i int) int {
	if i == 0 {
		return len(t.slots) - 1
	}
	return i - 1
}

func (t *Table[K, V]) emptySlots() int {
	return len(t.slots) - t.used - t.deleted
}

func (t *Table[K, V]) updateThresholds() {
	t.shrinkAt, t.growAt = thresholds(len(t.slots), t.shrinkPercent, t.growPercent)
}

// corrupt latches the table into the corrupt state and returns the error
// to report.
func (t *Table[K, V]) corrupt(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if invariants {
		panic(fmt.Sprintf("invariant failed: %s\n%s", msg, t.debugString()))
	}
	t.err = fmt.Errorf("%w: %s", ErrCorrupt, msg)
	return t.err
}

func (t *Table[K, V]) allocSlots(n int) ([]Slot[K, V], error) {
	slots, err := t.allocator.Alloc(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %d slots: %w", ErrAllocation, n, err)
	}
	if len(slots) != n {
		if slots != nil {
			t.allocator.Free(slots)
		}
		return nil, fmt.Errorf("%w: asked for %d slots, got %d", ErrAllocation, n, len(slots))
	}
	// A zeroed slot is empty.
	clear(slots)
	return slots, nil
}

// maybeResize grows or shrinks the table if it has crossed a threshold in
// the direction allowed by hint. An inserting table whose tombstones have
// pushed it to the grow threshold is rebuilt at its current size.
func (t *Table[K, V]) maybeResize(hint resizeHint) error {
	if shouldResize(t.used, len(t.slots), t.growAt, t.shrinkAt, hint) {
		return t.resize(t.used)
	}
	if hint != hintDeleting && t.deleted > 0 && t.used+t.deleted >= t.growAt {
		return t.rebuild(t.bucketIndex)
	}
	return nil
}

// resize rebuilds the table with the bucket count appropriate for n
// elements. It does nothing if that count is the current one.
func (t *Table[K, V]) resize(n int) error {
	idx, err := bucketIndexFor(bucketCountFor(n, t.shrinkPercent, t.growPercent))
	if err != nil {
		return err
	}
	if idx == t.bucketIndex {
		return nil
	}
	return t.rebuild(idx)
}

// rebuild allocates a bucket array of bucketCounts[idx] slots, reinserts
// every entry into it and discards the old array. On failure the table is
// left unchanged.
func (t *Table[K, V]) rebuild(idx int) error {
	n := bucketCounts[idx]
	if n <= t.used {
		return fmt.Errorf("%w: %d buckets cannot hold %d entries", ErrResizeFailed, n, t.used)
	}
	slots, err := t.allocSlots(n)
	if err != nil {
		return err
	}

	dst := Table[K, V]{
		hash:          t.hash,
		equal:         t.equal,
		slots:         slots,
		bucketIndex:   idx,
		shrinkPercent: t.shrinkPercent,
		growPercent:   t.growPercent,
	}
	if err := t.copyAllTo(&dst); err != nil {
		t.allocator.Free(slots)
		if errors.Is(err, ErrCorrupt) {
			return t.corrupt("rebuilding into %d buckets: %v", n, err)
		}
		return fmt.Errorf("%w: %w", ErrResizeFailed, err)
	}

	if debug {
		fmt.Printf("resize: buckets=%d->%d used=%d dropped-tombstones=%d\n",
			len(t.slots), n, t.used, t.deleted)
	}

	old := t.slots
	t.slots = dst.slots
	t.bucketIndex = idx
	t.deleted = 0
	t.updateThresholds()
	t.mutations++
	t.allocator.Free(old)
	t.observer.Resized(len(old), n)

	t.checkInvariants()
	return nil
}

// copyAllTo inserts every entry of t into dst, which must be large enough
// to hold them without resizing.
func (t *Table[K, V]) copyAllTo(dst *Table[K, V]) error {
	for i := t.nextOccupied(0, iterFirst); i >= 0; i = t.nextOccupied(0, i) {
		s := &t.slots[i]
		h := t.hash(s.key)
		j, found, err := dst.locate(s.key, h)
		if err != nil {
			return err
		}
		if found || j < 0 {
			return fmt.Errorf("%w: key %v appears twice", ErrCorrupt, s.key)
		}
		if dst.slots[j].meta.isDeleted() {
			dst.deleted--
		}
		dst.slots[j].markOccupied(hashToPartial(h), s.key, s.value)
		dst.used++
	}
	if dst.used != t.used {
		return fmt.Errorf("%w: copied %d of %d entries", ErrCorrupt, dst.used, t.used)
	}
	return nil
}

func (t *Table[K, V]) checkInvariants() {
	if invariants {
		if t.slots == nil {
			return
		}
		if n := bucketCounts[t.bucketIndex]; n != len(t.slots) {
			panic(fmt.Sprintf("invariant failed: bucket index %d implies %d buckets, but have %d\n%s",
				t.bucketIndex, n, len(t.slots), t.debugString()))
		}
		if shrinkAt, growAt := thresholds(len(t.slots), t.shrinkPercent, t.growPercent); shrinkAt != t.shrinkAt || growAt != t.growAt {
			panic(fmt.Sprintf("invariant failed: thresholds %d/%d, expected %d/%d\n%s",
				t.shrinkAt, t.growAt, shrinkAt, growAt, t.debugString()))
		}

		// For every occupied slot, verify we can retrieve the key using
		// locate. Count the number of used and deleted slots.
		var used, deleted, empty int
		for i := range t.slots {
			s := &t.slots[i]
			switch {
			case s.meta.isCorrupt():
				panic(fmt.Sprintf("invariant failed: slot(%d) is %s\n%s", i, s.meta, t.debugString()))
			case s.meta.isEmpty():
				empty++
			case s.meta.isDeleted():
				deleted++
			default:
				used++
			}
		}
		if used != t.used || deleted != t.deleted {
			panic(fmt.Sprintf("invariant failed: found %d used and %d deleted slots, but counts are %d and %d\n%s",
				used, deleted, t.used, t.deleted, t.debugString()))
		}
		if empty < 1 {
			panic(fmt.Sprintf("invariant failed: no empty slot\n%s", t.debugString()))
		}
		for i := range t.slots {
			s := &t.slots[i]
			if !s.meta.isOccupied() {
				continue
			}
			h := t.hash(s.key)
			if s.meta.partial() != hashToPartial(h) {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v cached partial hash %s, hash is %016x\n%s",
					i, s.key, s.meta, h, t.debugString()))
			}
			if j, found, _ := t.locate(s.key, h); !found || j != i {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v not found [home=%d]\n%s",
					i, s.key, h%uint64(len(t.slots)), t.debugString()))
			}
		}
	}
}

func (t *Table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "buckets=%d  used=%d  deleted=%d  shrink-at=%d  grow-at=%d\n",
		len(t.slots), t.used, t.deleted, t.shrinkAt, t.growAt)
	for i := range t.slots {
		s := &t.slots[i]
		if s.meta.isOccupied() {
			fmt.Fprintf(&buf, "  %4d: %v [%s]\n", i, s.key, s.meta)
		} else {
			fmt.Fprintf(&buf, "  %4d: %s\n", i, s.meta)
		}
	}
	return buf.String()
}
