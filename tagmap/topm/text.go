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
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/xopen"
)

// WriteText writes the table in the tab-delimited text format.
//
// Header line: row count, words per tag, and maximum variants.
// Each row: tag sequence (k*32 bases), tag length, multimaps, chromosome,
// strand, start, end, divergence, pairs of variant offsets and alleles,
// dcoP, and mapP. Missing values are "*".
func (t *Table) WriteText(file string, opt *WriteOptions) (err error) {
	outfh, err := xopen.Wopen(file)
	if err != nil {
		return err
	}
	defer func() {
		if e := outfh.Close(); err == nil {
			err = e
		}
	}()

	return t.WriteTextTo(outfh, opt)
}

// WriteTextTo writes the table in the text format.
func (t *Table) WriteTextTo(w io.Writer, opt *WriteOptions) error {
	bw := bufio.NewWriterSize(w, BufferSize)
	m := t.variants.max
	fmt.Fprintf(bw, "%d\t%d\t%d\n", t.rowsToWrite(opt), t.k, m)

	onlyMapped := opt != nil && opt.RequirePhysPosition
	offs := make([]int8, m)
	alls := make([]int8, m)
	words := make([]uint64, t.k)
	for i := 0; i < t.Len(); i++ {
		if onlyMapped && t.chr[i] == MissingInt32 {
			continue
		}
		for j, col := range t.tags {
			words[j] = col[i]
		}
		bw.Write(tag.DecodeWords(words, -1))
		bw.WriteByte('\t')
		bw.WriteString(strconv.Itoa(int(t.length[i])))
		bw.WriteByte('\t')
		bw.WriteString(formatInt8(t.multimaps[i]))
		bw.WriteByte('\t')
		bw.WriteString(formatInt32(t.chr[i]))
		bw.WriteByte('\t')
		bw.WriteString(formatInt8(t.strand[i]))
		bw.WriteByte('\t')
		bw.WriteString(formatInt32(t.start[i]))
		bw.WriteByte('\t')
		bw.WriteString(formatInt32(t.end[i]))
		bw.WriteByte('\t')
		bw.WriteString(formatInt8(t.div[i]))

		t.variants.Fixed(i, offs, alls)
		for v := 0; v < m; v++ {
			bw.WriteByte('\t')
			bw.WriteString(formatInt8(offs[v]))
			bw.WriteByte('\t')
			bw.WriteString(AlleleString(alls[v]))
		}

		bw.WriteByte('\t')
		bw.WriteString(formatInt8(t.dcoP[i]))
		bw.WriteByte('\t')
		bw.WriteString(formatInt8(t.mapP[i]))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadText reads a table in the text format.
func ReadText(file string) (*Table, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	t, err := ReadTextFrom(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", file)
	}
	return t, nil
}

// ReadTextFrom reads a table in the text format.
func ReadTextFrom(r io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, BufferSize), 1<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Wrap(ErrCorruptHeader, "empty file")
	}
	items := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
	if len(items) != 3 {
		return nil, errors.Wrapf(ErrCorruptHeader, "header line: %q", scanner.Text())
	}
	var vals [3]int64
	var err error
	for i, s := range items {
		vals[i], err = strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptHeader, "header line: %q", scanner.Text())
		}
	}
	h := header{rows: int32(vals[0]), k: int32(vals[1]), maxVariants: int32(vals[2])}
	if err = h.check(); err != nil {
		return nil, err
	}

	n, k, m := int(h.rows), int(h.k), int(h.maxVariants)
	nFields := 10 + 2*m
	t := NewTable(0, k, m)
	offs := make([]int8, m)
	alls := make([]int8, m)
	var line []byte
	var fields [][]byte
	var length, c int
	var tg tag.Tag
	for i := 0; i < n; i++ {
		if !scanner.Scan() {
			if err = scanner.Err(); err != nil {
				return nil, err
			}
			return nil, errors.Wrapf(ErrTruncatedFile, "%d of %d rows read", i, n)
		}
		if i == t.Len() {
			t.grow(min(ReadBatchRows, n-i))
		}
		line = bytes.TrimRight(scanner.Bytes(), "\r\n")
		fields = bytes.Split(line, []byte{'\t'})
		if len(fields) > nFields && len(fields[nFields]) == 0 { // trailing tab
			fields = fields[:nFields]
		}
		if len(fields) != nFields {
			return nil, fmt.Errorf("topm: row %d: %d fields expected, %d given", i+1, nFields, len(fields))
		}

		length, err = strconv.Atoi(string(fields[1]))
		if err != nil || length < 0 || length > tag.MaxLength {
			return nil, fmt.Errorf("topm: row %d: invalid tag length: %s", i+1, fields[1])
		}
		seq := fields[0]
		if length < len(seq) { // the rest is padding
			seq = seq[:length]
		}
		tg, err = tag.Encode(seq, k)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+1)
		}
		for w, col := range t.tags {
			col[i] = tg.Words[w]
		}
		t.length[i] = uint8(length)

		t.multimaps[i] = parseInt8(string(fields[2]))
		t.chr[i] = parseInt32(string(fields[3]))
		t.strand[i] = parseInt8(string(fields[4]))
		t.start[i] = parseInt32(string(fields[5]))
		t.end[i] = parseInt32(string(fields[6]))
		t.div[i] = parseInt8(string(fields[7]))
		c = 8
		for v := 0; v < m; v++ {
			offs[v] = parseInt8(string(fields[c]))
			alls[v] = ParseAllele(string(fields[c+1]))
			c += 2
		}
		t.variants.LoadFixed(i, offs, alls)
		t.dcoP[i] = parseInt8(string(fields[c]))
		t.mapP[i] = parseInt8(string(fields[c+1]))
	}

	return t, nil
}
