package tsindex

import (
	"sort"

	"github.com/himanishpuri/EKGSync/pkg/models"
)

// Index is a sorted lookup over sample timestamps (nanoseconds).
// It is built once per loaded series and never updated in place.
type Index struct {
	ts []int64
}

// Build extracts the timestamp column of samples, which must already be
// sorted ascending by TimestampNs.
func Build(samples []models.Sample) *Index {
	ts := make([]int64, len(samples))
	for i, s := range samples {
		ts[i] = s.TimestampNs
	}
	return &Index{ts: ts}
}

// fromTimestamps builds an index over an already sorted timestamp column.
func fromTimestamps(ts []int64) *Index {
	cp := make([]int64, len(ts))
	copy(cp, ts)
	return &Index{ts: cp}
}

// Len returns the number of indexed timestamps.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.ts)
}

// At returns the timestamp stored at position i.
func (x *Index) At(i int) int64 {
	return x.ts[i]
}

// Nearest returns the position whose timestamp is closest to t.
// On an exact tie the earlier position wins. The second return value is
// false when the index is empty.
func (x *Index) Nearest(t int64) (int, bool) {
	n := x.Len()
	if n == 0 {
		return 0, false
	}

	// left insertion point: first ts[i] >= t
	i := sort.Search(n, func(i int) bool { return x.ts[i] >= t })
	if i == 0 {
		return 0, true
	}
	if i == n {
		return n - 1, true
	}

	before := i - 1
	if absDiff(x.ts[before], t) <= absDiff(x.ts[i], t) {
		return before, true
	}
	return i, true
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
