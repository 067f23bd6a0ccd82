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

// Option configures a Table while it is being created.
type Option[K, V any] interface {
	apply(t *Table[K, V])
}

type loadFactorsOption[K, V any] struct {
	shrinkPercent int
	growPercent   int
}

func (op loadFactorsOption[K, V]) apply(t *Table[K, V]) {
	t.shrinkPercent = op.shrinkPercent
	t.growPercent = op.growPercent
}

// WithLoadFactors sets the loads, in percent of the bucket count, at which
// the table shrinks and grows. shrinkPercent*2 must be less than
// growPercent and both must be within [0, 99]; New returns ErrInvalidConfig
// otherwise. The defaults are DefaultShrinkPercent and DefaultGrowPercent.
func WithLoadFactors[K, V any](shrinkPercent, growPercent int) Option[K, V] {
	return loadFactorsOption[K, V]{shrinkPercent, growPercent}
}

// Allocator specifies an interface for allocating and releasing the bucket
// arrays used by a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that bucket
// arrays be freed then Table.Close must be called in order to ensure Free is
// called for the last array.
type Allocator[K, V any] interface {
	// Alloc should return a slice equivalent to make([]Slot[K,V], n), or an
	// error if the memory cannot be provided.
	Alloc(n int) ([]Slot[K, V], error)

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(v []Slot[K, V])
}

type defaultAllocator[K, V any] struct{}

func (defaultAllocator[K, V]) Alloc(n int) ([]Slot[K, V], error) {
	return make([]Slot[K, V], n), nil
}

func (defaultAllocator[K, V]) Free(v []Slot[K, V]) {
}

type allocatorOption[K, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(t *Table[K, V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option to specify the Allocator to use for a
// Table[K,V].
func WithAllocator[K, V any](allocator Allocator[K, V]) Option[K, V] {
	return allocatorOption[K, V]{allocator}
}

// Observer is notified of changes to a Table. Methods are called
// synchronously from the mutating call, after the change is complete.
type Observer interface {
	// Resized is called after the bucket array was rebuilt. oldBuckets and
	// newBuckets are equal when the rebuild only dropped tombstones.
	Resized(oldBuckets, newBuckets int)
	// Inserted is called after a new key was added; n is the new length.
	Inserted(n int)
	// Deleted is called after a key was removed; n is the new length.
	Deleted(n int)
	// Reset reports the length and bucket count after New, Clear and
	// Close. It does not correspond to individual inserts or deletes.
	Reset(n, buckets int)
}

type nopObserver struct{}

func (nopObserver) Resized(oldBuckets, newBuckets int) {}
func (nopObserver) Inserted(n int)                     {}
func (nopObserver) Deleted(n int)                      {}
func (nopObserver) Reset(n, buckets int)               {}

type observerOption[K, V any] struct {
	observer Observer
}

func (op observerOption[K, V]) apply(t *Table[K, V]) {
	t.observer = op.observer
}

// WithObserver is an option to attach an Observer to a Table[K,V].
func WithObserver[K, V any](observer Observer) Option[K, V] {
	return observerOption[K, V]{observer}
}
