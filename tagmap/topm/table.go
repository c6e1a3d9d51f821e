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

package topm

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/index"
	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/tagmap/tagmap/util"
)

// Store is the read contract shared by the in-memory and chunked backends.
type Store interface {
	Len() int
	WordsPerTag() int
	MaxVariants() int
	Tag(row int) (tag.Tag, error)
	Get(row int) (MappingRecord, error)
	Variants(row int) ([]Variant, error)
	Index() (*index.Index, error)
	Close() error
}

// Table is a fully materialized tag-on-physical-map table.
// Every field is a column, and a row is an index across all columns.
// A Table is not safe for concurrent use.
type Table struct {
	k int

	tags      [][]uint64 // [word][row]
	length    []uint8
	multimaps []int8
	chr       []int32
	strand    []int8
	start     []int32
	end       []int32
	div       []int8
	dcoP      []int8
	mapP      []int8

	variants *Variants

	idx      *index.Index
	posStale bool // positions changed after the index was built

	// rows are bound to data outside the table, e.g., hypothesis chunks,
	// so they can not be reordered or appended
	fixedRows bool

	chrs      []int32
	positions map[int32][]int32
}

// NewTable creates a table of n rows with k words per tag,
// all tags poly-A and all fields missing.
func NewTable(n, k, maxVariants int) *Table {
	t := &Table{
		k:         k,
		tags:      make([][]uint64, k),
		length:    make([]uint8, n),
		multimaps: make([]int8, n),
		chr:       make([]int32, n),
		strand:    make([]int8, n),
		start:     make([]int32, n),
		end:       make([]int32, n),
		div:       make([]int8, n),
		dcoP:      make([]int8, n),
		mapP:      make([]int8, n),
		variants:  NewVariants(n, maxVariants),
	}
	for w := range t.tags {
		t.tags[w] = make([]uint64, n)
	}
	for i := 0; i < n; i++ {
		t.setMissing(i)
	}
	return t
}

func (t *Table) setMissing(i int) {
	t.multimaps[i] = MissingInt8
	t.chr[i] = MissingInt32
	t.strand[i] = MissingInt8
	t.start[i] = MissingInt32
	t.end[i] = MissingInt32
	t.div[i] = MissingInt8
	t.dcoP[i] = MissingInt8
	t.mapP[i] = MissingInt8
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.length) }

// WordsPerTag returns the number of 64-bit words of a tag.
func (t *Table) WordsPerTag() int { return t.k }

// MaxVariants returns the maximum number of variants per row.
func (t *Table) MaxVariants() int { return t.variants.max }

// Close does nothing for an in-memory table.
func (t *Table) Close() error { return nil }

func (t *Table) checkRow(row int) error {
	if row < 0 || row >= len(t.length) {
		return errors.Wrapf(ErrRowOutOfRange, "row %d of %d", row, len(t.length))
	}
	return nil
}

// TagWord returns the w-th word of the tag of a row.
func (t *Table) TagWord(w, row int) uint64 { return t.tags[w][row] }

// TagLength returns the number of bases of the tag of a row.
func (t *Table) TagLength(row int) uint8 { return t.length[row] }

// Chromosome returns the best chromosome of a row.
func (t *Table) Chromosome(row int) int32 { return t.chr[row] }

// StartPosition returns the best start position of a row.
func (t *Table) StartPosition(row int) int32 { return t.start[row] }

// EndPosition returns the end position of a row.
func (t *Table) EndPosition(row int) int32 { return t.end[row] }

// Strand returns the best strand of a row.
func (t *Table) Strand(row int) int8 { return t.strand[row] }

// MultiMaps returns the number of mapping positions of a row.
func (t *Table) MultiMaps(row int) int8 { return t.multimaps[row] }

// Swap swaps two rows in all columns. It is called by Sort, and is safe
// for concurrent calls on disjoint rows. The index is not updated.
func (t *Table) Swap(i, j int) {
	for _, col := range t.tags {
		col[i], col[j] = col[j], col[i]
	}
	t.length[i], t.length[j] = t.length[j], t.length[i]
	t.multimaps[i], t.multimaps[j] = t.multimaps[j], t.multimaps[i]
	t.chr[i], t.chr[j] = t.chr[j], t.chr[i]
	t.strand[i], t.strand[j] = t.strand[j], t.strand[i]
	t.start[i], t.start[j] = t.start[j], t.start[i]
	t.end[i], t.end[j] = t.end[j], t.end[i]
	t.div[i], t.div[j] = t.div[j], t.div[i]
	t.dcoP[i], t.dcoP[j] = t.dcoP[j], t.dcoP[i]
	t.mapP[i], t.mapP[j] = t.mapP[j], t.mapP[i]
	t.variants.Swap(i, j)
}

// Tag returns the tag of a row.
func (t *Table) Tag(row int) (tag.Tag, error) {
	if err := t.checkRow(row); err != nil {
		return tag.Tag{}, err
	}
	words := make([]uint64, t.k)
	for w, col := range t.tags {
		words[w] = col[row]
	}
	return tag.Tag{Words: words, Len: t.length[row]}, nil
}

// SetTag sets the tag of a row. Tags are keys of a sorted table,
// so they can only be set before the table is indexed.
func (t *Table) SetTag(row int, tg tag.Tag) error {
	if err := t.checkRow(row); err != nil {
		return err
	}
	if t.idx != nil {
		return errors.Wrap(ErrBackendState, "setting tags of an indexed table")
	}
	words := tag.Pad(tg.Words, t.k)
	if len(words) > t.k {
		return errors.Wrapf(tag.ErrTagTooLong, "%d words for a table of %d words per tag", len(words), t.k)
	}
	for w, col := range t.tags {
		col[row] = words[w]
	}
	t.length[row] = tg.Len
	return nil
}

// AppendTag appends a row with all fields missing and returns its index.
// It invalidates the index.
func (t *Table) AppendTag(tg tag.Tag) (int, error) {
	if t.fixedRows {
		return -1, errors.Wrap(ErrBackendState, "appending rows to a table with fixed rows")
	}
	words := tag.Pad(tg.Words, t.k)
	if len(words) > t.k {
		return -1, errors.Wrapf(tag.ErrTagTooLong, "%d words for a table of %d words per tag", len(words), t.k)
	}
	t.grow(1)
	row := len(t.length) - 1
	for w, col := range t.tags {
		col[row] = words[w]
	}
	t.length[row] = tg.Len
	return row, nil
}

// grow appends n poly-A rows with all fields missing.
func (t *Table) grow(n int) {
	m := len(t.length)
	for w := range t.tags {
		t.tags[w] = append(t.tags[w], make([]uint64, n)...)
	}
	t.length = append(t.length, make([]uint8, n)...)
	t.multimaps = append(t.multimaps, make([]int8, n)...)
	t.chr = append(t.chr, make([]int32, n)...)
	t.strand = append(t.strand, make([]int8, n)...)
	t.start = append(t.start, make([]int32, n)...)
	t.end = append(t.end, make([]int32, n)...)
	t.div = append(t.div, make([]int8, n)...)
	t.dcoP = append(t.dcoP, make([]int8, n)...)
	t.mapP = append(t.mapP, make([]int8, n)...)
	t.variants.grow(n)
	for i := m; i < m+n; i++ {
		t.setMissing(i)
	}
	t.idx = nil
	t.chrs, t.positions = nil, nil
}

// Get returns the mapping record of a row.
func (t *Table) Get(row int) (MappingRecord, error) {
	if err := t.checkRow(row); err != nil {
		return MappingRecord{}, err
	}
	return MappingRecord{
		MultiMaps:     t.multimaps[row],
		Chromosome:    t.chr[row],
		Strand:        t.strand[row],
		StartPosition: t.start[row],
		EndPosition:   t.end[row],
		Divergence:    t.div[row],
		MapP:          t.mapP[row],
		DcoP:          t.dcoP[row],
	}, nil
}

// Set replaces the mapping record of a row.
func (t *Table) Set(row int, r MappingRecord) error {
	if err := t.checkRow(row); err != nil {
		return err
	}
	if r.Chromosome != t.chr[row] || r.StartPosition != t.start[row] ||
		r.Strand != t.strand[row] || r.EndPosition != t.end[row] {
		t.posStale = true
		t.chrs, t.positions = nil, nil
	}
	t.setRecord(row, r)
	return nil
}

// SetMapP sets the map probability of a row from a probability.
func (t *Table) SetMapP(row int, p float64) error {
	if err := t.checkRow(row); err != nil {
		return err
	}
	t.mapP[row] = MapPFromProbability(p)
	return nil
}

// VariantStore returns the variant lists of the table.
func (t *Table) VariantStore() *Variants { return t.variants }

// Variants returns a copy of the variants of a row.
func (t *Table) Variants(row int) ([]Variant, error) {
	return t.variants.Get(row)
}

// SetVariants replaces the variants of a row.
func (t *Table) SetVariants(row int, list []Variant) error {
	if err := t.variants.Set(row, list); err != nil {
		return errors.Wrapf(err, "row %d", row)
	}
	t.chrs, t.positions = nil, nil
	return nil
}

// AddVariant appends a variant to a row and returns its slot.
func (t *Table) AddVariant(row int, offset, allele int8) (int, error) {
	i, err := t.variants.Add(row, offset, allele)
	if err != nil {
		return i, errors.Wrapf(err, "row %d", row)
	}
	t.chrs, t.positions = nil, nil
	return i, nil
}

// ClearVariants removes the variants of a row.
func (t *Table) ClearVariants(row int) error {
	t.chrs, t.positions = nil, nil
	return t.variants.Clear(row)
}

// ExpandMaxVariants raises the maximum number of variants per row
// without touching existing lists. It returns false if newMax is not
// larger than the current maximum. newMax can not exceed MaxVariantsPerTag.
func (t *Table) ExpandMaxVariants(newMax int) (bool, error) {
	return t.variants.Expand(newMax)
}

// ----------------------------------------------------------------------

// Sort sorts rows by tag, chromosome, start position, and strand,
// and builds the index.
//
// Rows of a table owned by a chunked store are never reordered,
// the index is only refreshed.
func (t *Table) Sort(parallel bool) *index.Index {
	if t.fixedRows {
		t.posStale = true
		idx, _ := t.Index() // tags of chunked stores are checked in opening
		return idx
	}
	t.idx = nil
	idx := index.Build(t, parallel)
	t.idx = idx
	t.posStale = false
	return idx
}

// Index returns the index of a table sorted by tags.
// An unsorted table gives index.ErrNotSorted, call Sort first.
func (t *Table) Index() (*index.Index, error) {
	if t.idx == nil {
		idx, err := index.New(t)
		if err != nil {
			return nil, err
		}
		t.idx = idx
		t.posStale = false
	}
	if t.posStale {
		t.idx.UpdatePositions(false)
		t.posStale = false
	}
	return t.idx, nil
}

// Lookup returns the lowest row with the tag, or a negative
// -(insertion point + 1) if absent.
func (t *Table) Lookup(tg tag.Tag) (int, error) {
	idx, err := t.Index()
	if err != nil {
		return -1, err
	}
	return idx.Lookup(tg.Words), nil
}

// ----------------------------------------------------------------------

// MappedTags returns the numbers of tags with known chromosomes, and of
// tags without known chromosomes but mapping to one or more positions.
func (t *Table) MappedTags() (unique, multi int) {
	for row, c := range t.chr {
		if c != MissingInt32 {
			unique++
		} else if t.multimaps[row] > 0 {
			multi++
		}
	}
	return
}

// MappingDistribution returns the numbers of tags by multi-map counts.
// Missing counts are added to bin 0.
func (t *Table) MappingDistribution() [128]int {
	var d [128]int
	for _, m := range t.multimaps {
		if m < 0 {
			d[0]++
			continue
		}
		d[m]++
	}
	return d
}

func (t *Table) populatePositions() {
	m := make(map[int32][]int32, 16)
	var start int32
	for row, chr := range t.chr {
		if chr == MissingInt32 {
			continue
		}
		if _, ok := m[chr]; !ok {
			m[chr] = make([]int32, 0, 64)
		}
		start = t.start[row]
		for _, o := range t.variants.offsets[row] {
			m[chr] = append(m[chr], start+int32(o))
		}
	}

	chrs := make([]int32, 0, len(m))
	for chr, list := range m {
		util.UniqInt32s(&list)
		m[chr] = list
		chrs = append(chrs, chr)
	}
	sort.Slice(chrs, func(i, j int) bool { return chrs[i] < chrs[j] })

	t.chrs, t.positions = chrs, m
}

// Chromosomes returns the sorted list of chromosomes of mapped tags.
func (t *Table) Chromosomes() []int32 {
	if t.chrs == nil {
		t.populatePositions()
	}
	return t.chrs
}

// UniquePositions returns the sorted variant positions on a chromosome.
func (t *Table) UniquePositions(chr int32) []int32 {
	if t.chrs == nil {
		t.populatePositions()
	}
	return t.positions[chr]
}

// ----------------------------------------------------------------------

// copyRow copies a row of another table, padding tags with zero words if
// the source has fewer words per tag.
func (t *Table) copyRow(dst int, src *Table, srcRow int) {
	for w, col := range t.tags {
		if w < src.k {
			col[dst] = src.tags[w][srcRow]
		} else {
			col[dst] = 0
		}
	}
	t.length[dst] = src.length[srcRow]
	t.copyAttributes(dst, src, srcRow)
	t.variants.offsets[dst] = append([]int8(nil), src.variants.offsets[srcRow]...)
	t.variants.alleles[dst] = append([]int8(nil), src.variants.alleles[srcRow]...)
}

// copyAttributes copies every field except the tag and the variants.
func (t *Table) copyAttributes(dst int, src *Table, srcRow int) {
	t.multimaps[dst] = src.multimaps[srcRow]
	t.chr[dst] = src.chr[srcRow]
	t.strand[dst] = src.strand[srcRow]
	t.start[dst] = src.start[srcRow]
	t.end[dst] = src.end[srcRow]
	t.div[dst] = src.div[srcRow]
	t.dcoP[dst] = src.dcoP[srcRow]
	t.mapP[dst] = src.mapP[srcRow]
}

// CollapseDuplicates sorts the table and returns a new one with one row per
// tag key. For rows sharing a key, the first row is kept; if a later row
// maps to a different place, the multi-map counts are added and the
// position is cleared.
func (t *Table) CollapseDuplicates(parallel bool) *Table {
	t.Sort(parallel)
	n := t.Len()
	if n == 0 {
		return NewTable(0, t.k, t.variants.max)
	}

	uniq := 1
	for i := 1; i < n; i++ {
		if t.compareTags(i-1, i) != 0 {
			uniq++
		}
	}

	out := NewTable(uniq, t.k, t.variants.max)
	j := 0
	out.copyRow(0, t, 0)
	for i := 1; i < n; i++ {
		if t.compareTags(i-1, i) != 0 {
			j++
			out.copyRow(j, t, i)
			continue
		}
		if out.chr[j] != t.chr[i] || out.strand[j] != t.strand[i] ||
			out.start[j] != t.start[i] || out.end[j] != t.end[i] {
			out.multimaps[j] = AccumulateMultiMaps(out.multimaps[j], t.multimaps[i])
			out.chr[j] = MissingInt32
			out.strand[j] = MissingInt8
			out.start[j] = MissingInt32
			out.end[j] = MissingInt32
		}
	}
	out.Sort(parallel)
	return out
}

func (t *Table) compareTags(i, j int) int {
	for _, col := range t.tags {
		if col[i] < col[j] {
			return -1
		}
		if col[i] > col[j] {
			return 1
		}
	}
	return 0
}
