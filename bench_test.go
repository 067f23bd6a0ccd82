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
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"golang.org/x/exp/rand"
)

func BenchmarkTableIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableIter[int64], genKeys[int64]))
	})
}

func BenchmarkTableGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkTableGetHit[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkTableGetHit[string], genKeys[string]))
	})
}

func BenchmarkTableGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTableGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkTableGetMiss[int32], genKeys[int32]))
		b.Run("t=String", benchSizes(benchmarkTableGetMiss[string], genKeys[string]))
	})
}

func BenchmarkTablePutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTablePutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTablePutGrow[string], genKeys[string]))
	})
}

func BenchmarkTablePutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutPreAllocate[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutPreAllocate[string], genKeys[string]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTablePutPreAllocate[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTablePutPreAllocate[string], genKeys[string]))
	})
}

func BenchmarkTablePutReuse(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutReuse[int64], genKeys[int64]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTablePutReuse[int64], genKeys[int64]))
	})
}

func BenchmarkTablePutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=jadwal", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTablePutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkTablePutDelete[string], genKeys[string]))
	})
}

type benchTypes interface {
	int32 | int64 | string
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	var t T
	switch any(t).(type) {
	case int32:
		keys := make([]int32, end-start)
		for i := range keys {
			keys[i] = int32(start + i)
		}
		return any(keys).([]T)
	case int64:
		keys := make([]int64, end-start)
		for i := range keys {
			keys[i] = int64(start + i)
		}
		return any(keys).([]T)
	case string:
		keys := make([]string, end-start)
		for i := range keys {
			keys[i] = strconv.Itoa(start + i)
		}
		return any(keys).([]T)
	default:
		panic("not reached")
	}
}

// shuffled returns a copy of keys in a random but reproducible order, so
// that lookups do not walk the bucket array sequentially.
func shuffled[T any](keys []T) []T {
	r := rand.New(rand.NewSource(uint64(len(keys))))
	out := append([]T(nil), keys...)
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func hashFor[T benchTypes]() HashFunc[T] {
	var t T
	switch any(t).(type) {
	case int32:
		return any(HashFunc[int32](IntegerHash[int32])).(HashFunc[T])
	case int64:
		return any(HashFunc[int64](IntegerHash[int64])).(HashFunc[T])
	case string:
		return any(HashFunc[string](StringHash)).(HashFunc[T])
	default:
		panic("not reached")
	}
}

func newBenchTable[T benchTypes](b *testing.B, initialCapacity int) *Table[T, T] {
	m, err := New[T, T](initialCapacity, hashFor[T](), Equal[T])
	if err != nil {
		b.Fatal(err)
	}
	return m
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkTableIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = m.Put(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		m.All(func(k, v T) bool {
			tmp += k + v
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkTableGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, 0)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for j := range keys {
		_, _ = m.Put(keys[j], keys[j])
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison. This is reasonable to do because looking
	// up a value by a string key which shares the underlying string data with
	// the element in the map is a rare pattern.
	keys = shuffled(genKeys(0, n))

	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkTableGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = m.Put(k, k)
	}
	keys = shuffled(genKeys(0, n))

	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkTablePutGrow[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := newBenchTable[T](b, 0)
		for _, k := range keys {
			_, _ = m.Put(k, k)
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[T]T, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkTablePutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := newBenchTable[T](b, n)
		for _, k := range keys {
			_, _ = m.Put(k, k)
		}
	}
}

func benchmarkRuntimeMapPutReuse[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		for _, k := range keys {
			m[k] = k
		}
		for k := range m {
			delete(m, k)
		}
	}
}

func benchmarkTablePutReuse[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		for _, k := range keys {
			_, _ = m.Put(k, k)
		}
		m.Clear()
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

// benchmarkTablePutDelete exercises tombstone reuse: each deleted key is
// immediately reinserted, usually into its own tombstone.
func benchmarkTablePutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = m.Put(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		_, _ = m.Delete(keys[j])
		_, _ = m.Put(keys[j], keys[j])
	}
}
