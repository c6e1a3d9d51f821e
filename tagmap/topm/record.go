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
	"errors"
	"math"
	"strconv"
	"strings"
)

// MissingInt32 marks an unknown int32 field.
const MissingInt32 int32 = math.MinInt32

// MissingInt8 marks an unknown int8 field.
const MissingInt8 int8 = math.MinInt8

// MultiMapMany means a tag maps to many positions, exact count unknown.
const MultiMapMany int8 = 99

// Strands
const (
	StrandPlus  int8 = 1
	StrandMinus int8 = -1
)

// ErrCorruptHeader means header fields are invalid or inconsistent with the file length.
var ErrCorruptHeader = errors.New("topm: corrupt header")

// ErrTruncatedFile means the file is shorter than the header promises.
var ErrTruncatedFile = errors.New("topm: truncated file")

// ErrRowOutOfRange means a row index outside [0, rows).
var ErrRowOutOfRange = errors.New("topm: row out of range")

// ErrVariantsFull means no more variants can be added to a row.
var ErrVariantsFull = errors.New("topm: variants full")

// ErrCapacityExceeded means the destination of a merge can not hold the variants of an input.
var ErrCapacityExceeded = errors.New("topm: variant capacity exceeded")

// ErrBackendState means the operation is not supported by the backend in its current state.
var ErrBackendState = errors.New("topm: operation not supported by the backend")

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("topm: invalid file format")

// ErrVersionMismatch means version mismatch between files and program.
var ErrVersionMismatch = errors.New("topm: version mismatch")

// ErrBrokenFile means the data does not match its checksum or is not complete.
var ErrBrokenFile = errors.New("topm: broken file")

// MappingRecord is the best known physical position of a tag.
//
// MultiMaps: 0 for unmapped, 1 for unique, 2-98 for the exact number of
// positions, 99 for many. When it is 1, all fields are known. When it is 0
// or missing, the chromosome and position fields are missing. Other counts
// may come with or without positions, e.g., merged placeholders keep the
// positions of the record filling them.
type MappingRecord struct {
	MultiMaps     int8
	Chromosome    int32
	Strand        int8
	StartPosition int32 // position of the barcoded end
	EndPosition   int32 // position of the common adapter end
	Divergence    int8  // edit distance to the reference
	MapP          int8  // round(log p) of agreement with the genetic map
	DcoP          int8  // double crossover probability
}

// MissingRecord returns a record with all fields missing.
func MissingRecord() MappingRecord {
	return MappingRecord{
		MultiMaps:     MissingInt8,
		Chromosome:    MissingInt32,
		Strand:        MissingInt8,
		StartPosition: MissingInt32,
		EndPosition:   MissingInt32,
		Divergence:    MissingInt8,
		MapP:          MissingInt8,
		DcoP:          MissingInt8,
	}
}

// Mapped tells whether the chromosome is known.
func (r MappingRecord) Mapped() bool {
	return r.Chromosome != MissingInt32
}

// AccumulateMultiMaps adds two multi-map counts.
// Missing values count as 0, sums over 98 saturate to 99.
func AccumulateMultiMaps(a, b int8) int8 {
	if a == MissingInt8 {
		return b
	}
	if b == MissingInt8 {
		return a
	}
	s := int(a) + int(b)
	if s >= int(MultiMapMany) {
		return MultiMapMany
	}
	return int8(s)
}

// MapPFromProbability converts a probability to -round(log10(p)).
// An infinite value or p < 1e-126 gives 127,
// NaN or p outside [0, 1] gives the missing value.
func MapPFromProbability(p float64) int8 {
	if math.IsInf(p, 0) {
		return math.MaxInt8
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return MissingInt8
	}
	if p < 1e-126 {
		return math.MaxInt8
	}
	return int8(-math.Floor(math.Log10(p) + 0.5)) // halves round up
}

// Aligner is the source of an alignment hypothesis.
type Aligner int8

// Aligners
const (
	Bowtie2 Aligner = 0
	BWA     Aligner = 1
	Blast   Aligner = 2
	BWAMEM  Aligner = 3
	PEEnd1  Aligner = 4
	PEEnd2  Aligner = 5

	UnknownAligner Aligner = Aligner(MissingInt8)
)

var alignerNames = map[Aligner]string{
	Bowtie2: "bowtie2",
	BWA:     "bwa",
	Blast:   "blast",
	BWAMEM:  "bwamem",
	PEEnd1:  "pe1",
	PEEnd2:  "pe2",
}

func (a Aligner) String() string {
	if s, ok := alignerNames[a]; ok {
		return s
	}
	return "unknown"
}

// ParseAligner parses an aligner name, case ignored.
func ParseAligner(s string) (Aligner, error) {
	s = strings.ToLower(s)
	for a, name := range alignerNames {
		if name == s {
			return a, nil
		}
	}
	return UnknownAligner, errors.New("topm: unknown aligner: " + s)
}

// ----------------------------------------------------------------------
// missing-aware formatting shared by the text format and the CLI

// Fields returns the fields of a record as text, "*" for missing values:
// multimaps, chromosome, strand, start, end, divergence, mapP, and dcoP.
func (r MappingRecord) Fields() []string {
	return []string{
		formatInt8(r.MultiMaps),
		formatInt32(r.Chromosome),
		formatInt8(r.Strand),
		formatInt32(r.StartPosition),
		formatInt32(r.EndPosition),
		formatInt8(r.Divergence),
		formatInt8(r.MapP),
		formatInt8(r.DcoP),
	}
}

// Fields returns the fields of a hypothesis as text, "*" for missing values:
// source, rank, chromosome, strand, start, end, divergence, score, mapP,
// and dcoP.
func (h Hypothesis) Fields() []string {
	score := "*"
	if h.Score != MissingInt16 {
		score = strconv.Itoa(int(h.Score))
	}
	return []string{
		h.Source.String(),
		formatInt8(h.Rank),
		formatInt32(h.Chromosome),
		formatInt8(h.Strand),
		formatInt32(h.StartPosition),
		formatInt32(h.EndPosition),
		formatInt8(h.Divergence),
		score,
		formatInt8(h.MapP),
		formatInt8(h.DcoP),
	}
}

func formatInt8(v int8) string {
	if v == MissingInt8 {
		return "*"
	}
	return strconv.Itoa(int(v))
}

func formatInt32(v int32) string {
	if v == MissingInt32 {
		return "*"
	}
	return strconv.Itoa(int(v))
}

// parseInt8 parses a byte field. "*" and invalid numbers are missing,
// values above 127 saturate.
func parseInt8(s string) int8 {
	if s == "*" {
		return MissingInt8
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return MissingInt8
	}
	if i > math.MaxInt8 {
		return math.MaxInt8
	}
	if i < math.MinInt8 {
		return MissingInt8
	}
	return int8(i)
}

func parseInt32(s string) int32 {
	if s == "*" {
		return MissingInt32
	}
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return MissingInt32
	}
	return int32(i)
}
