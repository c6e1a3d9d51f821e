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
	"bufio"
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/xopen"
)

// SAMFormat is the flavor of SAM files, deciding optional fields used.
type SAMFormat int

// SAM flavors
const (
	SAMBWA     SAMFormat = iota // X0 for the number of best hits
	SAMBowtie2                  // AS and XS for the best and second best scores
)

func (f SAMFormat) String() string {
	if f == SAMBowtie2 {
		return "bowtie2"
	}
	return "bwa"
}

// ErrInvalidChromosome means a reference name can not be converted to an integer.
var ErrInvalidChromosome = errors.New("topm: chromosome names should be integers, optionally prefixed with \"chr\"")

var reCount = regexp.MustCompile(`count=[0-9]+`)

// ReadSAM creates a table from alignments of tags in a SAM file of BWA or
// bowtie2, one row per alignment record. Bowtie2 files are recognized by
// the @PG header line.
//
// Read names should contain the tag length, like "length=64count=3".
// Reads on the reverse strand are reverse complemented back to the tag.
func ReadSAM(file string, k int) (*Table, SAMFormat, error) {
	format := SAMBWA
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, format, err
	}
	defer fh.Close()

	t := NewTable(0, k, 0)
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, BufferSize), 1<<24)
	var line []byte
	var nLine int
	for scanner.Scan() {
		nLine++
		line = bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '@' {
			if bytes.HasPrefix(line, []byte("@PG")) && bytes.Contains(line, []byte("bowtie2")) {
				format = SAMBowtie2
			}
			continue
		}
		if err = t.addSAMRecord(string(line), format); err != nil {
			return nil, format, errors.Wrapf(err, "%s: line %d", file, nLine)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, format, errors.Wrap(err, file)
	}
	return t, format, nil
}

func (t *Table) addSAMRecord(line string, format SAMFormat) error {
	items := strings.Split(line, "\t")
	if len(items) < 11 {
		return fmt.Errorf("topm: at least 11 columns expected in SAM records, %d given", len(items))
	}
	flag, err := strconv.Atoi(items[1])
	if err != nil {
		return fmt.Errorf("topm: invalid SAM flag: %s", items[1])
	}

	strand := StrandPlus
	if flag&16 > 0 {
		strand = StrandMinus
	}

	seq := []byte(items[9])
	if strand == StrandMinus {
		seq = tag.ReverseComplement(seq)
	}
	tg, err := tag.Encode(seq, t.k)
	if err != nil {
		return err
	}
	if length, ok := tagLengthFromName(items[0]); ok {
		tg.Len = length
	}
	row, err := t.AppendTag(tg)
	if err != nil {
		return err
	}

	if flag&4 > 0 { // unaligned
		t.multimaps[row] = 0
		return nil
	}

	bestHits, editDist := parseSAMOptionalFields(items[11:], format)
	t.multimaps[row] = bestHits
	t.div[row] = editDist
	if bestHits != 1 {
		return nil
	}

	chr, err := parseChromosome(items[2])
	if err != nil {
		return err
	}
	pos, err := strconv.Atoi(items[3])
	if err != nil {
		return fmt.Errorf("topm: invalid position: %s", items[3])
	}
	start, end, err := AlignmentSpan(items[5], int32(pos))
	if err != nil {
		return err
	}
	t.chr[row] = chr
	t.strand[row] = strand
	if strand == StrandPlus {
		t.start[row], t.end[row] = start, end
	} else {
		t.start[row], t.end[row] = end, start
	}
	return nil
}

// tagLengthFromName extracts the tag length from a read name
// like "length=64count=3".
func tagLengthFromName(name string) (uint8, bool) {
	name = reCount.ReplaceAllString(name, "")
	name = strings.Replace(name, "length=", "", 1)
	l, err := strconv.Atoi(name)
	if err != nil || l < 0 || l > tag.MaxLength {
		return 0, false
	}
	return uint8(l), true
}

// parseSAMOptionalFields returns the number of best hits and the edit
// distance. Bowtie2 records are unique if the best score is larger than
// the second best score, otherwise they map to many positions.
func parseSAMOptionalFields(fields []string, format SAMFormat) (bestHits int8, editDist int8) {
	bestHits, editDist = 1, MissingInt8
	var v int
	var err error
	var best, next int
	var hasBest, hasNext bool
	for _, f := range fields {
		if len(f) < 5 || f[2] != ':' {
			continue
		}
		v, err = strconv.Atoi(f[5:])
		if err != nil {
			continue
		}
		switch f[:2] {
		case "NM":
			editDist = int8(min(v, math.MaxInt8))
		case "X0":
			if format == SAMBWA {
				bestHits = int8(min(v, int(MultiMapMany)))
			}
		case "AS":
			best, hasBest = v, true
		case "XS":
			next, hasNext = v, true
		}
	}
	if format == SAMBowtie2 && hasBest && hasNext && best <= next {
		bestHits = MultiMapMany
	}
	return
}

// parseChromosome parses names like "chr1" and "1".
func parseChromosome(s string) (int32, error) {
	c, err := strconv.ParseInt(strings.Replace(s, "chr", "", 1), 10, 32)
	if err != nil {
		return MissingInt32, errors.Wrap(ErrInvalidChromosome, s)
	}
	return int32(c), nil
}

// AlignmentSpan returns the first and last reference positions covered
// by an alignment, with leading soft-clipped bases counted as aligned.
func AlignmentSpan(cigar string, pos int32) (start, end int32, err error) {
	start, end = pos, pos-1
	var n int32
	first := true
	for i := 0; i < len(cigar); i++ {
		c := cigar[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int32(c-'0')
			continue
		}
		switch c {
		case 'M', 'm', 'D', 'd', 'N', '=', 'X':
			end += n
			first = false
		case 'S', 's':
			if first {
				start -= n
				end = start + n - 1
				first = false
			} else {
				end += n
			}
		case 'I', 'i':
			first = false
		case 'H', 'P':
		default:
			return start, end, fmt.Errorf("topm: invalid CIGAR: %s", cigar)
		}
		n = 0
	}
	return start, end, nil
}
