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

import "math"

// MissingInt16 marks an unknown int16 field.
const MissingInt16 int16 = math.MinInt16

// Hypothesis is one candidate alignment of a tag.
type Hypothesis struct {
	Chromosome    int32
	Strand        int8
	StartPosition int32
	EndPosition   int32
	Divergence    int8
	Source        Aligner
	Rank          int8 // 0 for the best hypothesis of an aligner
	Score         int16
	MapP          int8
	DcoP          int8
}

// HypothesisSize is the number of bytes of an encoded hypothesis.
const HypothesisSize = 20

// MissingHypothesis returns an empty hypothesis.
func MissingHypothesis() Hypothesis {
	return Hypothesis{
		Chromosome:    MissingInt32,
		Strand:        MissingInt8,
		StartPosition: MissingInt32,
		EndPosition:   MissingInt32,
		Divergence:    MissingInt8,
		Source:        UnknownAligner,
		Rank:          MissingInt8,
		Score:         MissingInt16,
		MapP:          MissingInt8,
		DcoP:          MissingInt8,
	}
}

// Empty tells whether the slot holds no alignment.
func (h Hypothesis) Empty() bool {
	return h.Chromosome == MissingInt32
}

// Record converts the hypothesis to a mapping record with the given
// multi-map count.
func (h Hypothesis) Record(multimaps int8) MappingRecord {
	return MappingRecord{
		MultiMaps:     multimaps,
		Chromosome:    h.Chromosome,
		Strand:        h.Strand,
		StartPosition: h.StartPosition,
		EndPosition:   h.EndPosition,
		Divergence:    h.Divergence,
		MapP:          h.MapP,
		DcoP:          h.DcoP,
	}
}

// HypothesisFromRecord creates a hypothesis from a mapping record.
func HypothesisFromRecord(r MappingRecord, source Aligner, rank int8) Hypothesis {
	return Hypothesis{
		Chromosome:    r.Chromosome,
		Strand:        r.Strand,
		StartPosition: r.StartPosition,
		EndPosition:   r.EndPosition,
		Divergence:    r.Divergence,
		Source:        source,
		Rank:          rank,
		Score:         MissingInt16,
		MapP:          r.MapP,
		DcoP:          r.DcoP,
	}
}

// PutHypothesis encodes a hypothesis into buf of at least HypothesisSize bytes.
//
//	chromosome, 4 bytes
//	strand, 1 byte
//	start, end positions, 4+4 bytes
//	divergence, source, rank, 1+1+1 bytes
//	score, 2 bytes
//	mapP, dcoP, 1+1 bytes
func PutHypothesis(buf []byte, h *Hypothesis) {
	_ = buf[HypothesisSize-1]
	be.PutUint32(buf[0:4], uint32(h.Chromosome))
	buf[4] = byte(h.Strand)
	be.PutUint32(buf[5:9], uint32(h.StartPosition))
	be.PutUint32(buf[9:13], uint32(h.EndPosition))
	buf[13] = byte(h.Divergence)
	buf[14] = byte(h.Source)
	buf[15] = byte(h.Rank)
	be.PutUint16(buf[16:18], uint16(h.Score))
	buf[18] = byte(h.MapP)
	buf[19] = byte(h.DcoP)
}

// ReadHypothesis decodes a hypothesis encoded by PutHypothesis.
func ReadHypothesis(buf []byte, h *Hypothesis) {
	_ = buf[HypothesisSize-1]
	h.Chromosome = int32(be.Uint32(buf[0:4]))
	h.Strand = int8(buf[4])
	h.StartPosition = int32(be.Uint32(buf[5:9]))
	h.EndPosition = int32(be.Uint32(buf[9:13]))
	h.Divergence = int8(buf[13])
	h.Source = Aligner(int8(buf[14]))
	h.Rank = int8(buf[15])
	h.Score = int16(be.Uint16(buf[16:18]))
	h.MapP = int8(buf[18])
	h.DcoP = int8(buf[19])
}
