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
	"strconv"

	"github.com/pkg/errors"
)

// Allele codes of variants.
const (
	AlleleA      int8 = 0
	AlleleC      int8 = 1
	AlleleG      int8 = 2
	AlleleT      int8 = 3
	AlleleInsert int8 = 4
	AlleleGap    int8 = 5
	AlleleN      int8 = 15
)

var allele2char = [16]byte{'A', 'C', 'G', 'T', '+', '-', 0, 0, 0, 0, 0, 0, 0, 0, 0, 'N'}

var char2allele = map[byte]int8{
	'A': AlleleA, 'C': AlleleC, 'G': AlleleG, 'T': AlleleT,
	'a': AlleleA, 'c': AlleleC, 'g': AlleleG, 't': AlleleT,
	'+': AlleleInsert, '-': AlleleGap, 'N': AlleleN, 'n': AlleleN,
}

// AlleleString returns the letter of an allele code, or the number for
// unknown codes, and "*" for the missing value.
func AlleleString(a int8) string {
	if a == MissingInt8 {
		return "*"
	}
	if a >= 0 && int(a) < len(allele2char) && allele2char[a] != 0 {
		return string(allele2char[a])
	}
	return strconv.Itoa(int(a))
}

// ParseAllele parses a letter or a number.
// Numbers above 0xf are ASCII letters used by old files.
func ParseAllele(s string) int8 {
	if s == "*" || s == "" {
		return MissingInt8
	}
	if len(s) == 1 {
		if a, ok := char2allele[s[0]]; ok {
			return a
		}
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return MissingInt8
	}
	if i > 127 {
		i = 127
	}
	return normalizeAllele(int8(i))
}

// normalizeAllele converts ASCII letters of old files to allele codes.
func normalizeAllele(a int8) int8 {
	if a > 0xf {
		if c, ok := char2allele[byte(a)]; ok {
			return c
		}
	}
	return a
}

// Variant is an allele called at an offset to the start position of a tag.
type Variant struct {
	Offset int8
	Allele int8
}

func (v Variant) String() string {
	return strconv.Itoa(int(v.Offset)) + ":" + AlleleString(v.Allele)
}

// Variants stores the variants of all rows in ragged arrays:
// a row only takes as many slots as it has variants,
// bounded by a store-wide maximum.
type Variants struct {
	max     int
	offsets [][]int8
	alleles [][]int8
}

// NewVariants creates empty variant lists for n rows.
func NewVariants(n, max int) *Variants {
	return &Variants{
		max:     max,
		offsets: make([][]int8, n),
		alleles: make([][]int8, n),
	}
}

// Max returns the maximum number of variants per row.
func (v *Variants) Max() int { return v.max }

// Rows returns the number of rows.
func (v *Variants) Rows() int { return len(v.offsets) }

func (v *Variants) checkRow(row int) error {
	if row < 0 || row >= len(v.offsets) {
		return ErrRowOutOfRange
	}
	return nil
}

// Count returns the number of variants of a row.
func (v *Variants) Count(row int) int {
	return len(v.offsets[row])
}

// Total returns the number of variants of all rows.
func (v *Variants) Total() int {
	var n int
	for _, o := range v.offsets {
		n += len(o)
	}
	return n
}

// Get returns a copy of the variants of a row.
func (v *Variants) Get(row int) ([]Variant, error) {
	if err := v.checkRow(row); err != nil {
		return nil, err
	}
	offs := v.offsets[row]
	if len(offs) == 0 {
		return nil, nil
	}
	list := make([]Variant, len(offs))
	for i, o := range offs {
		list[i] = Variant{Offset: o, Allele: v.alleles[row][i]}
	}
	return list, nil
}

// At returns the i-th variant of a row. ok is false if the slot is empty.
func (v *Variants) At(row, i int) (Variant, bool) {
	if i < 0 || i >= len(v.offsets[row]) {
		return Variant{Offset: MissingInt8, Allele: MissingInt8}, false
	}
	return Variant{Offset: v.offsets[row][i], Allele: v.alleles[row][i]}, true
}

// HasOffset tells whether a row has a variant at the offset.
func (v *Variants) HasOffset(row int, offset int8) bool {
	for _, o := range v.offsets[row] {
		if o == offset {
			return true
		}
	}
	return false
}

// Add appends a variant to a row and returns its slot.
func (v *Variants) Add(row int, offset, allele int8) (int, error) {
	if err := v.checkRow(row); err != nil {
		return -1, err
	}
	if len(v.offsets[row]) >= v.max {
		return -1, ErrVariantsFull
	}
	v.offsets[row] = append(v.offsets[row], offset)
	v.alleles[row] = append(v.alleles[row], allele)
	return len(v.offsets[row]) - 1, nil
}

// Set replaces the variants of a row.
func (v *Variants) Set(row int, list []Variant) error {
	if err := v.checkRow(row); err != nil {
		return err
	}
	if len(list) > v.max {
		return ErrVariantsFull
	}
	if len(list) == 0 {
		v.offsets[row], v.alleles[row] = nil, nil
		return nil
	}
	offs := make([]int8, len(list))
	alls := make([]int8, len(list))
	for i, va := range list {
		offs[i], alls[i] = va.Offset, va.Allele
	}
	v.offsets[row], v.alleles[row] = offs, alls
	return nil
}

// Clear removes all variants of a row.
func (v *Variants) Clear(row int) error {
	if err := v.checkRow(row); err != nil {
		return err
	}
	v.offsets[row], v.alleles[row] = nil, nil
	return nil
}

// ClearAll removes variants of all rows.
func (v *Variants) ClearAll() {
	for i := range v.offsets {
		v.offsets[i], v.alleles[i] = nil, nil
	}
}

// Expand raises the maximum number of variants per row.
// Existing lists are untouched. It returns false if newMax is not larger
// than the current maximum, and ErrCapacityExceeded if newMax is larger
// than MaxVariantsPerTag.
func (v *Variants) Expand(newMax int) (bool, error) {
	if newMax > MaxVariantsPerTag {
		return false, errors.Wrapf(ErrCapacityExceeded, "at most %d variants per tag, %d given", MaxVariantsPerTag, newMax)
	}
	if newMax <= v.max {
		return false, nil
	}
	v.max = newMax
	return true, nil
}

// Swap swaps the variants of two rows.
func (v *Variants) Swap(i, j int) {
	v.offsets[i], v.offsets[j] = v.offsets[j], v.offsets[i]
	v.alleles[i], v.alleles[j] = v.alleles[j], v.alleles[i]
}

// grow appends n empty rows.
func (v *Variants) grow(n int) {
	v.offsets = append(v.offsets, make([][]int8, n)...)
	v.alleles = append(v.alleles, make([][]int8, n)...)
}

// LoadFixed fills a row from fixed-width arrays, keeping only pairs with
// a known offset. Letters of old files are converted to allele codes.
func (v *Variants) LoadFixed(row int, offsets, alleles []int8) {
	var n int
	for _, o := range offsets {
		if o != MissingInt8 {
			n++
		}
	}
	if n == 0 {
		v.offsets[row], v.alleles[row] = nil, nil
		return
	}
	if n > v.max {
		n = v.max
	}
	offs := make([]int8, 0, n)
	alls := make([]int8, 0, n)
	for i, o := range offsets {
		if o == MissingInt8 {
			continue
		}
		if len(offs) == n {
			break
		}
		offs = append(offs, o)
		alls = append(alls, normalizeAllele(alleles[i]))
	}
	v.offsets[row], v.alleles[row] = offs, alls
}

// Fixed writes the variants of a row into fixed-width arrays of length
// Max(), with missing values in unused slots.
func (v *Variants) Fixed(row int, offsets, alleles []int8) {
	n := copy(offsets, v.offsets[row])
	copy(alleles, v.alleles[row])
	for i := n; i < len(offsets); i++ {
		offsets[i] = MissingInt8
		alleles[i] = MissingInt8
	}
}

// Site is a genomic position.
type Site struct {
	Chromosome int32
	Position   int32
}

// UniqueSites maps every distinct variant position, i.e., the start
// position of a mapped tag plus a variant offset, to a row having it.
// Later rows overwrite earlier ones.
func (t *Table) UniqueSites() map[Site]int {
	sites := make(map[Site]int, 1024)
	var chr, start int32
	for row := 0; row < t.Len(); row++ {
		chr, start = t.chr[row], t.start[row]
		if chr == MissingInt32 || start == MissingInt32 {
			continue
		}
		for _, o := range t.variants.offsets[row] {
			sites[Site{Chromosome: chr, Position: start + int32(o)}] = row
		}
	}
	return sites
}

// FullTagPositions returns the start positions of tags whose variant
// lists are full.
func (t *Table) FullTagPositions() map[int32]struct{} {
	m := make(map[int32]struct{}, 64)
	if t.variants.max == 0 {
		return m
	}
	for row := 0; row < t.Len(); row++ {
		if len(t.variants.offsets[row]) >= t.variants.max {
			m[t.start[row]] = struct{}{}
		}
	}
	return m
}
