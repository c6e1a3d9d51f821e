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
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
)

func TestMergeIdempotent(t *testing.T) {
	a := newTestTable(1, 2, testRows)

	out, stats, err := Merge([]Store{a}, nil)
	if err != nil {
		t.Error(err)
		return
	}
	if !tablesEqual(t, a, out) { // a is sorted by Merge
		t.Errorf("merging a single table should give the same table")
	}
	if stats.OutputRows != len(testRows) || stats.RecordsCopied != len(testRows) {
		t.Errorf("unexpected stats: %s", stats)
	}
	if stats.VariantsAdded != 3 || stats.VariantsDuplicate != 0 || stats.VariantsDiscarded != 0 {
		t.Errorf("unexpected variant stats: %s", stats)
	}
}

func TestMergeDedup(t *testing.T) {
	a := newTestTable(1, 1, []testRow{
		{seq: "ACGTACGT", multimaps: 1, chr: 3, strand: 1, start: 1000, end: 1063},
	})
	b := newTestTable(1, 1, []testRow{
		{seq: "ACGTACGT", multimaps: 0},
	})
	out, _, err := Merge([]Store{a, b}, nil)
	if err != nil {
		t.Error(err)
		return
	}
	if out.Len() != 1 {
		t.Errorf("expected 1 row, got %d", out.Len())
		return
	}
	rec, _ := out.Get(0)
	if rec.Chromosome != 3 || rec.MultiMaps != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestMergePlaceholder(t *testing.T) {
	a := newTestTable(1, 1, []testRow{
		{seq: "ACGTACGT", multimaps: 0},
		{seq: "GGGG", multimaps: 1, chr: 1, strand: 1, start: 10, end: 73},
	})
	b := newTestTable(2, 1, []testRow{
		{seq: "ACGTACGT", multimaps: 1, chr: 3, strand: 1, start: 1000, end: 1063},
		{seq: "GGGG", multimaps: 1, chr: 2, strand: 1, start: 20, end: 83},
		{seq: "TTTT", multimaps: 1, chr: 5, strand: -1, start: 50, end: 0},
	})

	out, stats, err := Merge([]Store{a, b}, nil)
	if err != nil {
		t.Error(err)
		return
	}
	if out.Len() != 3 || out.WordsPerTag() != 2 {
		t.Errorf("unexpected output size: %d rows, %d words per tag", out.Len(), out.WordsPerTag())
		return
	}

	i, _ := out.Lookup(tag.MustEncode([]byte("ACGTACGT"), 2))
	rec, _ := out.Get(i)
	if rec.Chromosome != 3 || rec.MultiMaps != 1 || rec.StartPosition != 1000 {
		t.Errorf("placeholder should be filled: %+v", rec)
	}

	// the first writer wins
	i, _ = out.Lookup(tag.MustEncode([]byte("GGGG"), 1))
	rec, _ = out.Get(i)
	if rec.Chromosome != 1 || rec.StartPosition != 10 {
		t.Errorf("the first record should be kept: %+v", rec)
	}

	if stats.PlaceholdersFilled != 1 || stats.RecordsKept != 1 || stats.RecordsCopied != 3 {
		t.Errorf("unexpected stats: %s", stats)
	}

	idx, err := out.Index()
	if err != nil {
		t.Error(err)
		return
	}
	if rows := idx.PositionRange(3, 1000, 1000); len(rows) != 1 {
		t.Errorf("position order not updated after merging: %v", rows)
	}
}

func TestMergeLongestTag(t *testing.T) {
	a := newTestTable(1, 0, []testRow{{seq: "ACGT"}})
	b := newTestTable(1, 0, []testRow{{seq: "ACGTAA"}})
	out, _, err := Merge([]Store{a, b}, nil)
	if err != nil {
		t.Error(err)
		return
	}
	if out.Len() != 1 {
		t.Errorf("tags with the same key should be merged")
		return
	}
	if tg, _ := out.Tag(0); tg.Len != 6 {
		t.Errorf("the longest tag length should be kept, got %d", tg.Len)
	}
}

func TestMergeVariants(t *testing.T) {
	a := newTestTable(1, 2, []testRow{
		{seq: "ACGT", multimaps: 1, chr: 1, strand: 1, start: 10, end: 73,
			variants: []Variant{{1, AlleleA}, {2, AlleleC}}},
	})
	b := newTestTable(1, 2, []testRow{
		{seq: "ACGT", multimaps: 1, chr: 1, strand: 1, start: 10, end: 73,
			variants: []Variant{{2, AlleleG}, {3, AlleleT}}},
	})

	out, stats, err := Merge([]Store{a, b}, nil)
	if err != nil {
		t.Error(err)
		return
	}
	vars, _ := out.Variants(0)
	if len(vars) != 2 || vars[1].Allele != AlleleC {
		t.Errorf("variants of the first input should be kept: %v", vars)
	}
	if stats.VariantsDiscarded != 1 || stats.VariantsDuplicate != 1 {
		t.Errorf("unexpected variant stats: %s", stats)
	}

	// room for all
	out, stats, err = Merge([]Store{a, b}, &MergeOptions{MaxVariants: 3})
	if err != nil {
		t.Error(err)
		return
	}
	if vars, _ = out.Variants(0); len(vars) != 3 || stats.VariantsDiscarded != 0 {
		t.Errorf("unexpected variants: %v, %s", vars, stats)
	}

	// not enough room
	if _, _, err = Merge([]Store{a, b}, &MergeOptions{MaxVariants: 1}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("ErrCapacityExceeded expected, got %v", err)
	}

	// more than all formats can hold
	if _, _, err = Merge([]Store{a, b}, &MergeOptions{MaxVariants: MaxVariantsPerTag + 1}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("ErrCapacityExceeded expected, got %v", err)
	}
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	a := newTestTable(1, 2, testRows[:3])
	b := newTestTable(1, 2, testRows[2:])
	fa := filepath.Join(dir, "a.topm")
	fb := filepath.Join(dir, "b.topm.txt")
	if err := Save(a, fa, nil); err != nil {
		t.Error(err)
		return
	}
	if err := Save(b, fb, nil); err != nil {
		t.Error(err)
		return
	}

	var opened atomic.Int32
	out, stats, err := MergeFiles([]string{fa, fb}, &MergeOptions{
		Threads: 2,
		OnOpen: func(file string, elapsed time.Duration) {
			opened.Add(1)
		},
	})
	if err != nil {
		t.Error(err)
		return
	}
	if out.Len() != len(testRows) || stats.InputRows != len(testRows)+1 {
		t.Errorf("unexpected merge result: %d rows, %s", out.Len(), stats)
	}
	if opened.Load() != 2 {
		t.Errorf("expected 2 opened files, got %d", opened.Load())
	}

	if _, _, err = MergeFiles([]string{fa, filepath.Join(dir, "missing.topm")}, nil); err == nil {
		t.Errorf("an error expected for a missing file")
	}
}
