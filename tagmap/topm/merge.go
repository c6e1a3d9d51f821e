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
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/tagmap/tagmap/util"
	"golang.org/x/sync/errgroup"
)

// MergeOptions contains the options of merging stores.
type MergeOptions struct {
	// Maximum number of variants per row of the output.
	// 0 for the largest one of the inputs.
	MaxVariants int

	// Sort with multiple goroutines.
	Parallel bool

	// Number of files to read at the same time, used by MergeFiles.
	Threads int

	// Called by MergeFiles after each file is opened, from multiple goroutines.
	OnOpen func(file string, elapsed time.Duration)
}

// MergeStats records what happened in a merge.
type MergeStats struct {
	Inputs     int
	InputRows  int
	OutputRows int

	RecordsCopied      int // rows of unset output rows
	PlaceholdersFilled int // rows merged into output rows without known positions
	RecordsKept        int // rows ignored because the output row was already set

	VariantsAdded     int
	VariantsDuplicate int // variants at offsets already present
	VariantsDiscarded int // variants not fitting in the output row
}

func (s MergeStats) String() string {
	return fmt.Sprintf("%d inputs, %d rows in, %d rows out; records: %d copied, %d merged into placeholders, %d ignored; variants: %d added, %d duplicated, %d discarded",
		s.Inputs, s.InputRows, s.OutputRows,
		s.RecordsCopied, s.PlaceholdersFilled, s.RecordsKept,
		s.VariantsAdded, s.VariantsDuplicate, s.VariantsDiscarded)
}

// Merge merges stores into a new table with one row per tag key.
//
// In-memory inputs are sorted by tag first. Tags are padded to the largest
// number of words per tag. For duplicated keys, the longest tag length is
// kept. The mapping record of a tag comes from the first input having it,
// unless the record has no known chromosome, in which case the record of a
// later input replaces it and the multi-map counts are accumulated.
// Variants are collected from all inputs, one per offset, the ones not
// fitting in a row are discarded.
func Merge(stores []Store, opt *MergeOptions) (*Table, *MergeStats, error) {
	if opt == nil {
		opt = &MergeOptions{}
	}
	stats := &MergeStats{Inputs: len(stores)}
	if len(stores) == 0 {
		return nil, stats, errors.New("topm: no stores to merge")
	}

	var k, maxVariants, total int
	for _, s := range stores {
		if t, ok := s.(*Table); ok {
			t.Sort(opt.Parallel)
		}
		k = util.MaxInt(k, s.WordsPerTag())
		maxVariants = util.MaxInt(maxVariants, s.MaxVariants())
		total += s.Len()
	}
	stats.InputRows = total
	if opt.MaxVariants > MaxVariantsPerTag {
		return nil, stats, errors.Wrapf(ErrCapacityExceeded,
			"at most %d variants per tag, %d given", MaxVariantsPerTag, opt.MaxVariants)
	}
	if opt.MaxVariants > 0 {
		for i, s := range stores {
			if s.MaxVariants() > opt.MaxVariants {
				return nil, stats, errors.Wrapf(ErrCapacityExceeded,
					"input %d has up to %d variants per tag, the output only %d", i+1, s.MaxVariants(), opt.MaxVariants)
			}
		}
		maxVariants = opt.MaxVariants
	}

	out, err := uniqueTags(stores, k, maxVariants, total, opt.Parallel)
	if err != nil {
		return nil, stats, err
	}
	stats.OutputRows = out.Len()

	idx, err := out.Index()
	if err != nil {
		return nil, stats, err
	}

	written := roaring.New()
	var tg tag.Tag
	var rec MappingRecord
	var vars []Variant
	var j int
	var u uint32
	for i, s := range stores {
		for row := 0; row < s.Len(); row++ {
			if tg, err = s.Tag(row); err != nil {
				return nil, stats, errors.Wrapf(err, "input %d", i+1)
			}
			j = idx.Lookup(tag.Pad(tg.Words, k))
			if j < 0 { // impossible, all tags are in the output
				return nil, stats, fmt.Errorf("topm: input %d, row %d: tag not found in the merged table", i+1, row)
			}
			if rec, err = s.Get(row); err != nil {
				return nil, stats, errors.Wrapf(err, "input %d", i+1)
			}

			u = uint32(j)
			if !written.Contains(u) {
				out.setRecord(j, rec)
				written.Add(u)
				stats.RecordsCopied++
			} else if out.chr[j] == MissingInt32 {
				mm := AccumulateMultiMaps(out.multimaps[j], rec.MultiMaps)
				out.setRecord(j, rec)
				out.multimaps[j] = mm
				stats.PlaceholdersFilled++
			} else {
				stats.RecordsKept++
			}

			if vars, err = s.Variants(row); err != nil {
				return nil, stats, errors.Wrapf(err, "input %d", i+1)
			}
			for _, v := range vars {
				if out.variants.HasOffset(j, v.Offset) {
					stats.VariantsDuplicate++
					continue
				}
				if _, err = out.variants.Add(j, v.Offset, v.Allele); err != nil {
					stats.VariantsDiscarded++
					continue
				}
				stats.VariantsAdded++
			}
		}
	}

	out.posStale = true
	return out, stats, nil
}

// setRecord sets a record without checking the row.
func (t *Table) setRecord(row int, r MappingRecord) {
	t.multimaps[row] = r.MultiMaps
	t.chr[row] = r.Chromosome
	t.strand[row] = r.Strand
	t.start[row] = r.StartPosition
	t.end[row] = r.EndPosition
	t.div[row] = r.Divergence
	t.mapP[row] = r.MapP
	t.dcoP[row] = r.DcoP
}

// uniqueTags concatenates tags of all stores, sorts them, and removes
// duplicated keys, keeping the longest tag length.
func uniqueTags(stores []Store, k, maxVariants, total int, parallel bool) (*Table, error) {
	all := NewTable(total, k, 0)
	var r int
	var tg tag.Tag
	var err error
	for i, s := range stores {
		for row := 0; row < s.Len(); row++ {
			if tg, err = s.Tag(row); err != nil {
				return nil, errors.Wrapf(err, "input %d", i+1)
			}
			for w, col := range all.tags {
				if w < len(tg.Words) {
					col[r] = tg.Words[w]
				}
			}
			all.length[r] = tg.Len
			r++
		}
	}
	all.Sort(parallel)

	n := 0
	for i := 0; i < total; i++ {
		if i == 0 || all.compareTags(i-1, i) != 0 {
			n++
		}
	}

	out := NewTable(n, k, maxVariants)
	j := -1
	for i := 0; i < total; i++ {
		if i == 0 || all.compareTags(i-1, i) != 0 {
			j++
			for w, col := range out.tags {
				col[j] = all.tags[w][i]
			}
			out.length[j] = all.length[i]
			continue
		}
		if all.length[i] > out.length[j] {
			out.length[j] = all.length[i]
		}
	}
	if _, err = out.Index(); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeFiles reads stores from files concurrently and merges them.
func MergeFiles(files []string, opt *MergeOptions) (*Table, *MergeStats, error) {
	if opt == nil {
		opt = &MergeOptions{}
	}
	threads := opt.Threads
	if threads < 1 {
		threads = 1
	}

	stores := make([]Store, len(files))
	var g errgroup.Group
	g.SetLimit(threads)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			start := time.Now()
			s, err := Open(file, &ChunkedOptions{ReadOnly: true})
			if err != nil {
				return errors.Wrapf(err, "open %s", file)
			}
			stores[i] = s
			if opt.OnOpen != nil {
				opt.OnOpen(file, time.Since(start))
			}
			return nil
		})
	}
	err := g.Wait()
	defer func() {
		for _, s := range stores {
			if s != nil {
				s.Close()
			}
		}
	}()
	if err != nil {
		return nil, nil, err
	}

	return Merge(stores, opt)
}
