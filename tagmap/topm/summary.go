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
	"gonum.org/v1/gonum/stat"
)

// Summary contains statistics of a table.
type Summary struct {
	Rows        int
	WordsPerTag int
	MaxVariants int

	UniquelyMapped int // tags with known chromosomes
	MultiMapped    int // tags without known chromosomes but mapped
	Unmapped       int

	Chromosomes int

	// numbers of tags by multi-map counts, missing values in bin 0
	MappingDistribution [128]int

	// variants per tag with at least one variant, divergence of uniquely mapped tags
	Variants         int
	VariantSites     int
	VariantsMean     float64
	VariantsStdDev   float64
	TagsFullVariants int
	TagLengthMean    float64
	TagLengthStdDev  float64
	DivergenceMean   float64
	DivergenceStdDev float64
}

// Summarize computes statistics of a table.
func Summarize(t *Table) *Summary {
	s := &Summary{
		Rows:        t.Len(),
		WordsPerTag: t.k,
		MaxVariants: t.variants.max,
	}
	s.UniquelyMapped, s.MultiMapped = t.MappedTags()
	s.Unmapped = s.Rows - s.UniquelyMapped - s.MultiMapped
	s.MappingDistribution = t.MappingDistribution()

	chrs := make(map[int32]struct{}, 16)
	for _, c := range t.chr {
		if c != MissingInt32 {
			chrs[c] = struct{}{}
		}
	}
	s.Chromosomes = len(chrs)

	if s.Rows == 0 {
		return s
	}

	lengths := make([]float64, s.Rows)
	for i, l := range t.length {
		lengths[i] = float64(l)
	}
	s.TagLengthMean, s.TagLengthStdDev = meanStdDev(lengths)

	counts := make([]float64, 0, 1024)
	divs := make([]float64, 0, s.UniquelyMapped)
	var n int
	for i := 0; i < s.Rows; i++ {
		n = t.variants.Count(i)
		s.Variants += n
		if n > 0 {
			counts = append(counts, float64(n))
			if n >= t.variants.max {
				s.TagsFullVariants++
			}
		}
		if t.chr[i] != MissingInt32 && t.div[i] != MissingInt8 {
			divs = append(divs, float64(t.div[i]))
		}
	}
	if len(counts) > 0 {
		s.VariantsMean, s.VariantsStdDev = meanStdDev(counts)
	}
	if len(divs) > 0 {
		s.DivergenceMean, s.DivergenceStdDev = meanStdDev(divs)
	}
	s.VariantSites = len(t.UniqueSites())

	return s
}

// meanStdDev returns 0 as the standard deviation of a single value.
func meanStdDev(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
