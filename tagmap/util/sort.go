// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package util

import (
	"sort"

	"github.com/twotwotwo/sorts"
)

// Rows adapts swap/compare callbacks over row indexes to sort.Interface,
// so that a columnar table can be reordered in place without creating
// an object for every row.
type Rows struct {
	N       int
	SwapFn  func(i, j int)
	Compare func(i, j int) int
}

func (r Rows) Len() int           { return r.N }
func (r Rows) Less(i, j int) bool { return r.Compare(i, j) < 0 }
func (r Rows) Swap(i, j int)      { r.SwapFn(i, j) }

// SortRows sorts rows [0, n) with pattern-defeating quicksort in a single
// goroutine, so that compare(i, i+1) <= 0 for all rows in the end.
func SortRows(n int, swap func(i, j int), compare func(i, j int) int) {
	if n < 2 {
		return
	}
	sort.Sort(Rows{N: n, SwapFn: swap, Compare: compare})
}

// ParallelSortRows is like SortRows but sorts disjoint ranges concurrently,
// using up to sorts.MaxProcs goroutines.
// swap must be safe to call concurrently for disjoint pairs of rows,
// which is the case for columns stored in separate slices.
func ParallelSortRows(n int, swap func(i, j int), compare func(i, j int) int) {
	if n < 2 {
		return
	}
	sorts.Quicksort(Rows{N: n, SwapFn: swap, Compare: compare})
}

// IsSortedRows tells whether compare(i, i+1) <= 0 for all rows.
func IsSortedRows(n int, compare func(i, j int) int) bool {
	for i := 1; i < n; i++ {
		if compare(i-1, i) > 0 {
			return false
		}
	}
	return true
}

// Permutation sorts an index permutation of n rows with the comparison of
// the rows the indexes point to. Rows themselves are not moved.
func Permutation(n int, compare func(a, b int) int, parallel bool) []int32 {
	perm := make([]int32, n)
	for i := range perm {
		perm[i] = int32(i)
	}
	swap := func(i, j int) { perm[i], perm[j] = perm[j], perm[i] }
	cmp := func(i, j int) int { return compare(int(perm[i]), int(perm[j])) }
	if parallel {
		ParallelSortRows(n, swap, cmp)
	} else {
		SortRows(n, swap, cmp)
	}
	return perm
}
