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
	"sort"

	"github.com/rdleal/intervalst/interval"
)

// regionTrees holds one interval search tree per chromosome.
// Rows sharing the same span are stored in one node.
type regionTrees struct {
	trees map[int32]*interval.SearchTree[[]int32, int32]
}

func cmpPos(x, y int32) int {
	if x < y {
		return -1
	}
	if x > y {
		return 1
	}
	return 0
}

// span returns the covered interval of a row, with start <= end.
// Tags on the minus strand have an end position smaller than the start.
func span(t Table, row int) (int32, int32, bool) {
	chr, s, e := t.Chromosome(row), t.StartPosition(row), t.EndPosition(row)
	if chr == missingInt32 || s == missingInt32 {
		return 0, 0, false
	}
	if e == missingInt32 {
		e = s
	}
	if e < s {
		s, e = e, s
	}
	return s, e, true
}

func (idx *Index) buildRegions() error {
	type key struct {
		chr, s, e int32
	}
	t := idx.t
	groups := make(map[key][]int32, 1024)
	var k key
	var ok bool
	for _, r := range idx.posOrder {
		k.chr = t.Chromosome(int(r))
		k.s, k.e, ok = span(t, int(r))
		if !ok {
			continue
		}
		groups[k] = append(groups[k], r)
	}

	rt := &regionTrees{trees: make(map[int32]*interval.SearchTree[[]int32, int32], 16)}
	var tree *interval.SearchTree[[]int32, int32]
	for k, rows := range groups {
		if tree, ok = rt.trees[k.chr]; !ok {
			tree = interval.NewSearchTree[[]int32, int32](cmpPos)
			rt.trees[k.chr] = tree
		}
		if err := tree.Insert(k.s, k.e, rows); err != nil {
			return err
		}
	}
	idx.regions = rt
	return nil
}

// Overlaps returns rows whose spans on the chromosome overlap with the
// closed region [start, end], sorted by row index.
// Search trees are built on the first call and dropped by UpdatePositions.
func (idx *Index) Overlaps(chr, start, end int32) ([]int, error) {
	if start > end {
		start, end = end, start
	}
	if idx.regions == nil {
		if err := idx.buildRegions(); err != nil {
			return nil, err
		}
	}
	tree, ok := idx.regions.trees[chr]
	if !ok {
		return nil, nil
	}
	hits, ok := tree.AllIntersections(start, end)
	if !ok {
		return nil, nil
	}
	rows := make([]int, 0, len(hits))
	for _, h := range hits {
		for _, r := range h {
			rows = append(rows, int(r))
		}
	}
	sort.Ints(rows)
	return rows, nil
}
