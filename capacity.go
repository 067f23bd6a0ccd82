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

const (
	// DefaultShrinkPercent is the load (in percent) below which a table
	// shrinks when entries are deleted.
	DefaultShrinkPercent = 20
	// DefaultGrowPercent is the load (in percent) at which a table grows
	// before an insertion.
	DefaultGrowPercent = 60

	// minBuckets is the absolute floor on the number of buckets.
	minBuckets = 4
)

// bucketCounts is the sequence of bucket array sizes a table may take. Each
// entry is a prime roughly twice the previous one. The first two entries are
// never used; indexes start at 2. Keys are placed at hash(key) % buckets so a
// prime modulus spreads hashes with poor low bits better than a power of two
// mask would.
var bucketCounts = [...]int{
	0, 0, 2, 7, 13, 23, 61, 103, 251, 503, 983, 1907, 3203,
	6659, 16223, 25847, 56807, 100847, 224579, 443999, 854807, 1808243,
	3973787, 7759439, 16669799, 28668287, 62923067, 118960319, 230959907,
	408026687, 994046939, 2139408407,
}

// bucketIndexFor returns the index of the smallest entry of bucketCounts
// that is >= n.
func bucketIndexFor(n int) (int, error) {
	for i := 2; i < len(bucketCounts); i++ {
		if bucketCounts[i] >= n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %d buckets exceeds the largest supported table (%d)",
		ErrInvalidConfig, n, bucketCounts[len(bucketCounts)-1])
}

// validateLoadFactors rejects percentages that would cause a table to
// resize back and forth. A resize roughly doubles or halves the bucket
// count, so the load right after a shrink is about twice the shrink
// threshold. If that is not below the grow threshold the next insert would
// grow the table again.
func validateLoadFactors(shrinkPercent, growPercent int) error {
	if shrinkPercent < 0 || shrinkPercent > 99 || growPercent < 0 || growPercent > 99 {
		return fmt.Errorf("%w: load factors must be within [0, 99], got shrink=%d grow=%d",
			ErrInvalidConfig, shrinkPercent, growPercent)
	}
	if shrinkPercent*2 >= growPercent {
		return fmt.Errorf("%w: shrink percent (%d) must be less than half the grow percent (%d)",
			ErrInvalidConfig, shrinkPercent, growPercent)
	}
	return nil
}

// bucketCountFor returns the number of buckets needed to hold n elements
// with a load between shrinkPercent and growPercent. The result is always
// greater than n and at least minBuckets, but is not rounded to an entry of
// bucketCounts.
//
// Two candidates are computed: one sized for a load midway between the two
// thresholds, and a smaller one sized for a load two thirds of the way up.
// The smaller one is preferred as long as it keeps the load above the
// shrink threshold.
func bucketCountFor(n, shrinkPercent, growPercent int) int {
	mid := (shrinkPercent + growPercent) / 2
	if mid <= 0 {
		mid = 1
	}
	big := n * 100 / mid

	small := big
	if high := growPercent - (growPercent-shrinkPercent)/3; high > 0 {
		small = n * 100 / high
	}

	buckets := big
	if buckets > minBuckets {
		if small > 0 && n*100/small > shrinkPercent {
			buckets = small
		}
	} else {
		buckets = minBuckets
	}
	if buckets <= n {
		buckets = n + 1
	}
	return buckets
}

// thresholds returns the absolute element counts at which a table with the
// given number of buckets grows and shrinks.
func thresholds(buckets, shrinkPercent, growPercent int) (shrinkAt, growAt int) {
	return buckets * shrinkPercent / 100, buckets * growPercent / 100
}

// resizeHint describes the operation that is considering a resize. It keeps
// an insertion from shrinking the table and a deletion from growing it.
type resizeHint int8

const (
	hintNone resizeHint = iota
	hintInserting
	hintDeleting
)

func (h resizeHint) String() string {
	switch h {
	case hintInserting:
		return "inserting"
	case hintDeleting:
		return "deleting"
	default:
		return "none"
	}
}

// shouldResize reports whether a table holding used elements in buckets
// slots has crossed one of its thresholds in a direction allowed by hint.
func shouldResize(used, buckets, growAt, shrinkAt int, hint resizeHint) bool {
	if hint != hintDeleting && used >= growAt {
		return true
	}
	if hint != hintInserting && used < shrinkAt && buckets/2 >= minBuckets {
		return true
	}
	return false
}
