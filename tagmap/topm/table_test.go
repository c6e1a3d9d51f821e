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
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
)

type testRow struct {
	seq       string
	multimaps int8
	chr       int32
	strand    int8
	start     int32
	end       int32
	variants  []Variant
}

func newTestTable(k, maxVariants int, rows []testRow) *Table {
	t := NewTable(0, k, maxVariants)
	for _, r := range rows {
		row, err := t.AppendTag(tag.MustEncode([]byte(r.seq), k))
		if err != nil {
			panic(err)
		}
		rec := MissingRecord()
		rec.MultiMaps = r.multimaps
		if r.chr != 0 {
			rec.Chromosome, rec.Strand = r.chr, r.strand
			rec.StartPosition, rec.EndPosition = r.start, r.end
			rec.Divergence = 1
		}
		if err = t.Set(row, rec); err != nil {
			panic(err)
		}
		if err = t.SetVariants(row, r.variants); err != nil {
			panic(err)
		}
	}
	return t
}

var testRows = []testRow{
	{seq: "TTTTACGT", multimaps: 1, chr: 2, strand: 1, start: 500, end: 563,
		variants: []Variant{{3, AlleleC}, {10, AlleleGap}}},
	{seq: "ACGTACGT", multimaps: 1, chr: 1, strand: -1, start: 300, end: 237},
	{seq: "CCCCGGGG", multimaps: 0},
	{seq: "GGGGCCCC", multimaps: 5},
	{seq: "AAAACCCC", multimaps: 1, chr: 1, strand: 1, start: 100, end: 163,
		variants: []Variant{{1, AlleleA}}},
}

func TestGetSet(t *testing.T) {
	tb := newTestTable(1, 4, testRows)
	if tb.Len() != len(testRows) {
		t.Errorf("unexpected number of rows: %d", tb.Len())
		return
	}

	rec, err := tb.Get(0)
	if err != nil {
		t.Error(err)
		return
	}
	if rec.Chromosome != 2 || rec.StartPosition != 500 || rec.EndPosition != 563 || rec.Strand != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	rec, _ = tb.Get(2)
	if rec.Mapped() || rec.MultiMaps != 0 || rec.MapP != MissingInt8 {
		t.Errorf("unexpected record of an unmapped tag: %+v", rec)
	}

	tg, err := tb.Tag(1)
	if err != nil {
		t.Error(err)
		return
	}
	if tg.String() != "ACGTACGT" {
		t.Errorf("unexpected tag: %s", tg)
	}

	for _, row := range []int{-1, tb.Len()} {
		if _, err = tb.Get(row); !errors.Is(err, ErrRowOutOfRange) {
			t.Errorf("row %d: ErrRowOutOfRange expected, got %v", row, err)
		}
		if err = tb.Set(row, MissingRecord()); !errors.Is(err, ErrRowOutOfRange) {
			t.Errorf("row %d: ErrRowOutOfRange expected, got %v", row, err)
		}
		if _, err = tb.Variants(row); !errors.Is(err, ErrRowOutOfRange) {
			t.Errorf("row %d: ErrRowOutOfRange expected, got %v", row, err)
		}
	}
}

func TestSetMapP(t *testing.T) {
	tb := newTestTable(1, 2, testRows[:1])
	cases := []struct {
		p    float64
		mapP int8
	}{
		{1, 0},
		{0.1, 1},
		{0.001, 3},
		{0.05, 1}, // -1.301
		{0.0316, 2},
		{1e-130, 127},
		{0, 127},
		{math.Inf(1), 127},
		{math.NaN(), MissingInt8},
		{-0.5, MissingInt8},
		{1.5, MissingInt8},
	}
	for _, c := range cases {
		if err := tb.SetMapP(0, c.p); err != nil {
			t.Error(err)
			return
		}
		rec, _ := tb.Get(0)
		if rec.MapP != c.mapP {
			t.Errorf("p=%v: expected mapP %d, got %d", c.p, c.mapP, rec.MapP)
		}
	}
}

func TestAccumulateMultiMaps(t *testing.T) {
	cases := [][3]int8{
		{0, 1, 1},
		{MissingInt8, 2, 2},
		{3, MissingInt8, 3},
		{50, 48, 98},
		{50, 49, 99},
		{99, 99, 99},
	}
	for _, c := range cases {
		if v := AccumulateMultiMaps(c[0], c[1]); v != c[2] {
			t.Errorf("%d + %d: expected %d, got %d", c[0], c[1], c[2], v)
		}
	}
}

func TestVariants(t *testing.T) {
	tb := newTestTable(1, 2, testRows[:1])

	vars, err := tb.Variants(0)
	if err != nil {
		t.Error(err)
		return
	}
	if len(vars) != 2 || vars[1].Offset != 10 || vars[1].Allele != AlleleGap {
		t.Errorf("unexpected variants: %v", vars)
	}

	// full
	if _, err = tb.AddVariant(0, 20, AlleleT); !errors.Is(err, ErrVariantsFull) {
		t.Errorf("ErrVariantsFull expected, got %v", err)
	}

	if ok, err := tb.ExpandMaxVariants(3); !ok || err != nil {
		t.Errorf("failed to expand max variants: %v", err)
	}
	if ok, _ := tb.ExpandMaxVariants(2); ok {
		t.Errorf("shrinking max variants should be refused")
	}
	if _, err = tb.ExpandMaxVariants(MaxVariantsPerTag + 1); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("ErrCapacityExceeded expected, got %v", err)
	}
	if tb.VariantStore().Count(0) != 2 {
		t.Errorf("expanding should not change existing variants")
	}

	slot, err := tb.AddVariant(0, 20, AlleleT)
	if err != nil {
		t.Error(err)
		return
	}
	if slot != 2 {
		t.Errorf("unexpected slot: %d", slot)
	}
	if _, err = tb.AddVariant(0, 21, AlleleT); !errors.Is(err, ErrVariantsFull) {
		t.Errorf("ErrVariantsFull expected, got %v", err)
	}

	if err = tb.ClearVariants(0); err != nil {
		t.Error(err)
		return
	}
	if vars, _ = tb.Variants(0); len(vars) != 0 {
		t.Errorf("variants not cleared: %v", vars)
	}
}

func TestLoadFixedVariants(t *testing.T) {
	v := NewVariants(1, 4)
	v.LoadFixed(0,
		[]int8{5, MissingInt8, 9, MissingInt8},
		[]int8{'G', MissingInt8, AlleleT, MissingInt8})
	vars, _ := v.Get(0)
	if len(vars) != 2 {
		t.Errorf("only non-missing offsets should be kept: %v", vars)
		return
	}
	if vars[0].Allele != AlleleG || vars[1].Allele != AlleleT {
		t.Errorf("letters of old files should be converted: %v", vars)
	}

	offs, alls := make([]int8, 4), make([]int8, 4)
	v.Fixed(0, offs, alls)
	if offs[1] != 9 || offs[2] != MissingInt8 || alls[3] != MissingInt8 {
		t.Errorf("unexpected fixed arrays: %v %v", offs, alls)
	}
}

func TestSortAndLookup(t *testing.T) {
	tb := newTestTable(1, 2, testRows)

	if _, err := tb.Index(); err == nil {
		t.Errorf("index of an unsorted table should fail")
	}

	tb.Sort(false)
	idx, err := tb.Index()
	if err != nil {
		t.Error(err)
		return
	}
	if !idx.IsSorted() {
		t.Errorf("table not sorted")
	}

	for _, r := range testRows {
		i, err := tb.Lookup(tag.MustEncode([]byte(r.seq), 1))
		if err != nil {
			t.Error(err)
			return
		}
		if i < 0 {
			t.Errorf("%s not found", r.seq)
			continue
		}
		rec, _ := tb.Get(i)
		if rec.Chromosome != MissingInt32 && rec.StartPosition != r.start {
			t.Errorf("%s: unexpected record after sorting: %+v", r.seq, rec)
		}
		vars, _ := tb.Variants(i)
		if len(vars) != len(r.variants) {
			t.Errorf("%s: variants not moved with the row: %v", r.seq, vars)
		}
	}

	// tags can not be changed after indexing
	if err = tb.SetTag(0, tag.MustEncode([]byte("ACGT"), 1)); !errors.Is(err, ErrBackendState) {
		t.Errorf("ErrBackendState expected, got %v", err)
	}

	// position order follows record changes
	rec, _ := tb.Get(0)
	rec.Chromosome, rec.StartPosition, rec.EndPosition, rec.Strand = 9, 1, 64, 1
	rec.MultiMaps = 1
	tb.Set(0, rec)
	idx, _ = tb.Index()
	if rows := idx.PositionRange(9, 0, 10); len(rows) != 1 || rows[0] != 0 {
		t.Errorf("position order not updated: %v", rows)
	}
}

func TestStatistics(t *testing.T) {
	tb := newTestTable(1, 2, testRows)

	unique, multi := tb.MappedTags()
	if unique != 3 || multi != 1 {
		t.Errorf("unexpected mapped tags: %d, %d", unique, multi)
	}

	d := tb.MappingDistribution()
	if d[0] != 1 || d[1] != 3 || d[5] != 1 {
		t.Errorf("unexpected mapping distribution: %v", d[:6])
	}

	chrs := tb.Chromosomes()
	if len(chrs) != 2 || chrs[0] != 1 || chrs[1] != 2 {
		t.Errorf("unexpected chromosomes: %v", chrs)
	}
	pos := tb.UniquePositions(2)
	if len(pos) != 2 || pos[0] != 503 || pos[1] != 510 {
		t.Errorf("unexpected positions: %v", pos)
	}
	if pos = tb.UniquePositions(1); len(pos) != 1 || pos[0] != 101 {
		t.Errorf("unexpected positions: %v", pos)
	}

	sites := tb.UniqueSites()
	if len(sites) != 3 {
		t.Errorf("unexpected number of sites: %d", len(sites))
	}
	if row, ok := sites[Site{Chromosome: 2, Position: 510}]; !ok || row != 0 {
		t.Errorf("site chr2:510 should map to row 0")
	}

	full := tb.FullTagPositions()
	if _, ok := full[500]; !ok || len(full) != 1 {
		t.Errorf("unexpected full tag positions: %v", full)
	}

	s := Summarize(tb)
	if s.Rows != 5 || s.UniquelyMapped != 3 || s.Unmapped != 1 || s.Chromosomes != 2 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Variants != 3 || s.VariantSites != 3 || s.TagsFullVariants != 1 || s.VariantsMean != 1.5 {
		t.Errorf("unexpected variant summary: %+v", s)
	}
}

func TestCollapseDuplicates(t *testing.T) {
	tb := newTestTable(1, 2, []testRow{
		{seq: "ACGT", multimaps: 1, chr: 1, strand: 1, start: 100, end: 163},
		{seq: "ACGT", multimaps: 1, chr: 1, strand: 1, start: 100, end: 163},
		{seq: "CCGG", multimaps: 1, chr: 1, strand: 1, start: 100, end: 163},
		{seq: "CCGG", multimaps: 1, chr: 3, strand: 1, start: 900, end: 963},
		{seq: "TTTT", multimaps: 0},
	})

	out := tb.CollapseDuplicates(false)
	if out.Len() != 3 {
		t.Errorf("expected 3 rows, got %d", out.Len())
		return
	}

	i, _ := out.Lookup(tag.MustEncode([]byte("ACGT"), 1))
	rec, _ := out.Get(i)
	if rec.Chromosome != 1 || rec.MultiMaps != 1 {
		t.Errorf("identical positions should be kept: %+v", rec)
	}

	i, _ = out.Lookup(tag.MustEncode([]byte("CCGG"), 1))
	rec, _ = out.Get(i)
	if rec.Mapped() || rec.MultiMaps != 2 {
		t.Errorf("conflicting positions should be cleared: %+v", rec)
	}
}
