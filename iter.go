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

// Sentinel positions for Iterator.cur.
const (
	iterFirst = -1 // not yet started
	iterStop  = -2 // exhausted
)

// Iterator walks the occupied slots of a Table in bucket order. It is
// obtained from Table.Iter or Table.Find:
//
//	for it := t.Iter(); it.Next(); {
//		fmt.Println(it.Key(), it.Value())
//	}
//
// Inserting into or deleting from the table invalidates the iterator;
// replacing the value of an existing key with Put does not. After the table
// has been mutated a fresh iterator must be obtained.
type Iterator[K, V any] struct {
	t         *Table[K, V]
	start     int
	cur       int
	mutations uint64
}

func exhaustedIterator[K, V any]() Iterator[K, V] {
	return Iterator[K, V]{start: iterStop, cur: iterStop}
}

// Iter returns an iterator over every entry in the table, starting from
// bucket 0. The iterator is positioned before the first entry.
func (t *Table[K, V]) Iter() Iterator[K, V] {
	return Iterator[K, V]{t: t, start: 0, cur: iterFirst, mutations: t.mutations}
}

// Next advances the iterator to the next entry, returning false once every
// entry has been visited.
func (it *Iterator[K, V]) Next() bool {
	if it.cur == iterStop {
		return false
	}
	if invariants && it.mutations != it.t.mutations {
		panic(fmt.Sprintf("invariant failed: table mutated during iteration (start=%d cur=%d)", it.start, it.cur))
	}
	it.cur = it.t.nextOccupied(it.start, it.cur)
	return it.cur != iterStop
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator[K, V]) Valid() bool {
	return it.cur >= 0
}

// Key returns the key at the iterator's current position. This is only
// valid while Valid returns true.
func (it *Iterator[K, V]) Key() K {
	return it.t.slots[it.cur].key
}

// Value returns the value at the iterator's current position. This is only
// valid while Valid returns true.
func (it *Iterator[K, V]) Value() V {
	return it.t.slots[it.cur].value
}

// nextOccupied returns the index of the first occupied slot after cursor,
// walking forward with wrap-around, or iterStop if the walk gets back to
// start first. A cursor of iterFirst begins the walk at start itself.
func (t *Table[K, V]) nextOccupied(start, cursor int) int {
	if t.used == 0 {
		return iterStop
	}
	if cursor == iterFirst {
		cursor = start
	} else {
		cursor = t.next(cursor)
		if cursor == start {
			return iterStop
		}
	}
	for {
		if t.slots[cursor].meta.isOccupied() {
			return cursor
		}
		cursor = t.next(cursor)
		if cursor == start {
			return iterStop
		}
	}
}

// All calls yield sequentially for each key and value present in the
// table, in bucket order. If yield returns false, All stops the iteration.
// The table must not be mutated by yield, other than replacing values with
// Put.
func (t *Table[K, V]) All(yield func(key K, value V) bool) {
	for it := t.Iter(); it.Next(); {
		if !yield(it.Key(), it.Value()) {
			return
		}
	}
}
