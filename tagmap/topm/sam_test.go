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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
)

func TestAlignmentSpan(t *testing.T) {
	cases := []struct {
		cigar      string
		pos        int32
		start, end int32
	}{
		{"64M", 100, 100, 163},
		{"30M2D34M", 100, 100, 165},
		{"30M2I32M", 100, 100, 161},
		{"4S60M", 100, 96, 159},
		{"60M4S", 100, 100, 163},
		{"2S58M4S", 100, 98, 161},
	}
	for _, c := range cases {
		s, e, err := AlignmentSpan(c.cigar, c.pos)
		if err != nil {
			t.Error(err)
			return
		}
		if s != c.start || e != c.end {
			t.Errorf("%s at %d: expected [%d, %d], got [%d, %d]", c.cigar, c.pos, c.start, c.end, s, e)
		}
	}
	if _, _, err := AlignmentSpan("10Q", 1); err == nil {
		t.Errorf("an error expected for an invalid CIGAR")
	}
}

func TestParseSAMOptionalFields(t *testing.T) {
	cases := []struct {
		fields   string
		format   SAMFormat
		hits     int8
		editDist int8
	}{
		{"X0:i:1\tNM:i:2", SAMBWA, 1, 2},
		{"X0:i:3\tX1:i:0\tNM:i:0", SAMBWA, 3, 0},
		{"X0:i:150\tNM:i:200", SAMBWA, MultiMapMany, 127},
		{"AS:i:-6\tXS:i:-12\tNM:i:1", SAMBowtie2, 1, 1},
		{"AS:i:-6\tXS:i:-6\tNM:i:1", SAMBowtie2, MultiMapMany, 1},
		{"AS:i:0", SAMBowtie2, 1, MissingInt8},
	}
	for _, c := range cases {
		hits, ed := parseSAMOptionalFields(strings.Split(c.fields, "\t"), c.format)
		if hits != c.hits || ed != c.editDist {
			t.Errorf("%s: expected (%d, %d), got (%d, %d)", c.fields, c.hits, c.editDist, hits, ed)
		}
	}
}

func TestReadSAM(t *testing.T) {
	seq := "ACGTTGCAACGTTGCA"
	rc := string(tag.ReverseComplement([]byte(seq)))
	sam := strings.Join([]string{
		"@HD\tVN:1.0\tSO:unsorted",
		"@SQ\tSN:chr1\tLN:100000",
		"@PG\tID:bwa\tPN:bwa",
		"length=16count=5\t0\tchr1\t1000\t37\t16M\t*\t0\t0\t" + seq + "\t*\tX0:i:1\tNM:i:1",
		"length=16count=2\t16\t2\t5000\t37\t2S14M\t*\t0\t0\t" + rc + "\t*\tX0:i:1\tNM:i:0",
		"length=12count=1\t4\t*\t0\t0\t*\t*\t0\t0\tACGTACGTACGT\t*",
		"length=16count=1\t0\tchr1\t200\t0\t16M\t*\t0\t0\tTTTTGGGGCCCCAAAA\t*\tX0:i:4\tNM:i:0",
	}, "\n") + "\n"

	file := filepath.Join(t.TempDir(), "tags.sam")
	if err := os.WriteFile(file, []byte(sam), 0644); err != nil {
		t.Error(err)
		return
	}

	tb, format, err := ReadSAM(file, 1)
	if err != nil {
		t.Error(err)
		return
	}
	if format != SAMBWA {
		t.Errorf("unexpected format: %s", format)
	}
	if tb.Len() != 4 {
		t.Errorf("expected 4 rows, got %d", tb.Len())
		return
	}

	// forward
	tg, _ := tb.Tag(0)
	rec, _ := tb.Get(0)
	if tg.String() != seq || rec.Chromosome != 1 || rec.StartPosition != 1000 || rec.EndPosition != 1015 ||
		rec.Strand != StrandPlus || rec.Divergence != 1 || rec.MultiMaps != 1 {
		t.Errorf("unexpected forward record: %s %+v", tg, rec)
	}

	// reverse: the tag is restored, start and end are swapped
	tg, _ = tb.Tag(1)
	rec, _ = tb.Get(1)
	if tg.String() != seq || rec.Chromosome != 2 || rec.StartPosition != 5013 || rec.EndPosition != 4998 ||
		rec.Strand != StrandMinus {
		t.Errorf("unexpected reverse record: %s %+v", tg, rec)
	}

	// unaligned
	tg, _ = tb.Tag(2)
	rec, _ = tb.Get(2)
	if tg.Len != 12 || rec.Mapped() || rec.MultiMaps != 0 || rec.Divergence != MissingInt8 {
		t.Errorf("unexpected unaligned record: %s %+v", tg, rec)
	}

	// multiple hits
	rec, _ = tb.Get(3)
	if rec.Mapped() || rec.MultiMaps != 4 || rec.Divergence != 0 {
		t.Errorf("unexpected multi-mapped record: %+v", rec)
	}

	// bowtie2 and invalid chromosome names
	sam = "@PG\tID:bowtie2\tPN:bowtie2\n" +
		"length=16\t0\tscaffold_1\t1000\t37\t16M\t*\t0\t0\t" + seq + "\t*\tAS:i:0\tNM:i:0\n"
	if err = os.WriteFile(file, []byte(sam), 0644); err != nil {
		t.Error(err)
		return
	}
	if _, format, err = ReadSAM(file, 1); !errors.Is(err, ErrInvalidChromosome) {
		t.Errorf("ErrInvalidChromosome expected, got %v", err)
	}
	if format != SAMBowtie2 {
		t.Errorf("bowtie2 format not detected")
	}
}

func TestReadFastx(t *testing.T) {
	fasta := ">length=8count=3\nACGTACGTAAAA\n>r2\nCCCCGGGG\n>r3\nACGTNNNN\n"
	file := filepath.Join(t.TempDir(), "tags.fa")
	if err := os.WriteFile(file, []byte(fasta), 0644); err != nil {
		t.Error(err)
		return
	}
	tb, err := ReadFastx([]string{file}, 1)
	if err != nil {
		t.Error(err)
		return
	}
	if tb.Len() != 2 {
		t.Errorf("expected 2 tags, got %d", tb.Len())
		return
	}
	tg, _ := tb.Tag(0)
	if tg.String() != "ACGTACGT" {
		t.Errorf("unexpected tag: %s", tg)
	}
	tg, _ = tb.Tag(1)
	if tg.String() != "CCCCGGGG" {
		t.Errorf("unexpected tag: %s", tg)
	}
	if rec, _ := tb.Get(1); rec.Mapped() || rec.MultiMaps != MissingInt8 {
		t.Errorf("unexpected record: %+v", rec)
	}
}
