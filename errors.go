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

import "errors"

var (
	// ErrInvalidConfig is returned when a Table is constructed or retuned
	// with load factor percentages that would make it resize continuously,
	// or when a requested capacity is outside the supported range.
	ErrInvalidConfig = errors.New("jadwal: invalid configuration")

	// ErrAllocation is returned when the Allocator could not provide the
	// slots for a new bucket array. The table is left unchanged.
	ErrAllocation = errors.New("jadwal: allocation failed")

	// ErrResizeFailed is returned by Insert and Put when the table has no
	// room left for another entry and growing it failed for a reason other
	// than allocation.
	ErrResizeFailed = errors.New("jadwal: resize failed")

	// ErrCorrupt indicates that an internal invariant was found broken,
	// usually because the hash or equality function violates its contract.
	// A corrupt table rejects every further mutation; the only safe
	// operation left is Close.
	ErrCorrupt = errors.New("jadwal: table corrupt")

	// ErrClosed is returned by mutations on a closed table.
	ErrClosed = errors.New("jadwal: table closed")
)
