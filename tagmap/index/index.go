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

package index

import (
	"errors"
	"math"

	"github.com/shenwei356/tagmap/tagmap/util"
)

// ErrNotSorted means the table is not sorted by tag key.
var ErrNotSorted = errors.New("tag index: table not sorted by tag")

// Table is a columnar table of tags and their best positions.
// Rows can be swapped but never removed.
type Table interface {
	Len() int
	WordsPerTag() int
	TagWord(w, row int) uint64
	TagLength(row int) uint8
	Chromosome(row int) int32
	StartPosition(row int) int32
	EndPosition(row int) int32
	Strand(row int) int8
	Swap(i, j int)
}

// Index provides binary search of tags in a table sorted by tag key,
// and a permutation of rows in the order of genomic positions.
type Index struct {
	t Table
	k int

	// row indexes sorted by chromosome, start position, strand, and tag
	posOrder []int32

	regions *regionTrees
}

// Build sorts the rows of the table by tag words, then by chromosome,
// start position, and strand, and creates the index.
func Build(t Table, parallel bool) *Index {
	cmp := func(i, j int) int { return CompareRows(t, i, j) }
	if parallel {
		util.ParallelSortRows(t.Len(), t.Swap, cmp)
	} else {
		util.SortRows(t.Len(), t.Swap, cmp)
	}

	idx := &Index{t: t, k: t.WordsPerTag()}
	idx.UpdatePositions(parallel)
	return idx
}

// New creates an index for a table already sorted by tag words.
func New(t Table) (*Index, error) {
	idx := &Index{t: t, k: t.WordsPerTag()}
	if !idx.IsSorted() {
		return nil, ErrNotSorted
	}
	idx.UpdatePositions(false)
	return idx, nil
}

// Table returns the indexed table.
func (idx *Index) Table() Table { return idx.t }

// IsSorted tells whether the tag column is sorted.
func (idx *Index) IsSorted() bool {
	return util.IsSortedRows(idx.t.Len(), idx.compareTags)
}

// UpdatePositions rebuilds the position order,
// which is needed after changing positions of rows.
func (idx *Index) UpdatePositions(parallel bool) {
	t := idx.t
	idx.posOrder = util.Permutation(t.Len(), func(a, b int) int {
		return comparePositions(t, a, b)
	}, parallel)
	idx.regions = nil
}

// CompareRows compares two rows by tag words, then chromosome,
// start position, and strand.
func CompareRows(t Table, i, j int) int {
	if c := compareTagRows(t, i, j); c != 0 {
		return c
	}
	return compareLocations(t, i, j)
}

func (idx *Index) compareTags(i, j int) int {
	return compareTagRows(idx.t, i, j)
}

func compareTagRows(t Table, i, j int) int {
	var a, b uint64
	for w := 0; w < t.WordsPerTag(); w++ {
		a, b = t.TagWord(w, i), t.TagWord(w, j)
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
	}
	return 0
}

func compareLocations(t Table, i, j int) int {
	if c := cmpInt32(t.Chromosome(i), t.Chromosome(j)); c != 0 {
		return c
	}
	if c := cmpInt32(t.StartPosition(i), t.StartPosition(j)); c != 0 {
		return c
	}
	return cmpInt32(int32(t.Strand(i)), int32(t.Strand(j)))
}

func comparePositions(t Table, i, j int) int {
	if c := compareLocations(t, i, j); c != 0 {
		return c
	}
	return compareTagRows(t, i, j)
}

func cmpInt32(a, b int32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// compareRow compares the tag of a row with a query.
// Missing words of a shorter query or table are treated as zero (poly-A).
func (idx *Index) compareRow(row int, words []uint64) int {
	n := idx.k
	if len(words) > n {
		n = len(words)
	}
	var a, b uint64
	for w := 0; w < n; w++ {
		a, b = 0, 0
		if w < idx.k {
			a = idx.t.TagWord(w, row)
		}
		if w < len(words) {
			b = words[w]
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
	}
	return 0
}

// Lookup returns the lowest row with the given tag words,
// or -(insertion point + 1) if the tag is absent.
// The insertion point is the row where the tag would be inserted
// to keep the order.
func (idx *Index) Lookup(words []uint64) int {
	n := idx.t.Len()
	first, length := 0, n
	var half, middle int
	for length > 0 {
		half = length >> 1
		middle = first + half
		if idx.compareRow(middle, words) < 0 {
			first = middle + 1
			length -= half + 1
		} else {
			length = half
		}
	}
	if first < n && idx.compareRow(first, words) == 0 {
		return first
	}
	return -(first + 1)
}

// EqualRange returns the range [lo, hi) of rows sharing the tag words.
// Rows with the same key are common when full-length sequences are
// truncated to the fixed-width key.
func (idx *Index) EqualRange(words []uint64) (lo, hi int, ok bool) {
	i := idx.Lookup(words)
	if i < 0 {
		return 0, 0, false
	}
	lo = i
	for lo > 0 && idx.compareRow(lo-1, words) == 0 {
		lo--
	}
	hi = i + 1
	n := idx.t.Len()
	for hi < n && idx.compareRow(hi, words) == 0 {
		hi++
	}
	return lo, hi, true
}

// Longest returns the row with the longest tag length among rows sharing
// the tag words, or -1 if the tag is absent.
func (idx *Index) Longest(words []uint64) int {
	lo, hi, ok := idx.EqualRange(words)
	if !ok {
		return -1
	}
	best, l := lo, -1
	for i := lo; i < hi; i++ {
		if int(idx.t.TagLength(i)) > l {
			best, l = i, int(idx.t.TagLength(i))
		}
	}
	return best
}

// PositionOrder returns the rows sorted by chromosome, start position,
// strand, and tag. The slice must not be modified.
func (idx *Index) PositionOrder() []int32 { return idx.posOrder }

// RowAtPosition returns the row at the i-th place of the position order.
func (idx *Index) RowAtPosition(i int) int { return int(idx.posOrder[i]) }

// PositionRange returns rows on the chromosome with start positions in
// [start, end], in the order of positions.
func (idx *Index) PositionRange(chr, start, end int32) []int {
	t := idx.t
	lo := idx.searchPosition(chr, start, false)
	hi := idx.searchPosition(chr, end, true)
	if hi <= lo {
		return nil
	}
	rows := make([]int, 0, hi-lo)
	for _, r := range idx.posOrder[lo:hi] {
		if t.Chromosome(int(r)) == chr {
			rows = append(rows, int(r))
		}
	}
	return rows
}

// searchPosition returns the first place in the position order whose
// (chromosome, start) is >= (chr, pos), or > (chr, pos) if after is true.
func (idx *Index) searchPosition(chr, pos int32, after bool) int {
	t := idx.t
	first, length := 0, len(idx.posOrder)
	var half, middle, row, c int
	for length > 0 {
		half = length >> 1
		middle = first + half
		row = int(idx.posOrder[middle])
		c = cmpInt32(t.Chromosome(row), chr)
		if c == 0 {
			c = cmpInt32(t.StartPosition(row), pos)
		}
		if c < 0 || (after && c == 0) {
			first = middle + 1
			length -= half + 1
		} else {
			length = half
		}
	}
	return first
}

// missing value of int32 fields
const missingInt32 = math.MinInt32
