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
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/shenwei356/xopen"
)

var be = binary.BigEndian

// BufferSize is the size of buffered readers and writers.
var BufferSize = 65536

// MaxWordsPerTag is the largest number of words a tag of up to 255 bases needs.
const MaxWordsPerTag = 8

// ReadBatchRows is the number of rows allocated at a time in reading tables
// whose size can not be checked before reading, e.g., gzipped files.
var ReadBatchRows = 1 << 16

// MaxVariantsPerTag is the largest number of variants per row all formats can hold.
const MaxVariantsPerTag = math.MaxInt8

// header of the flat formats
type header struct {
	rows        int32
	k           int32
	maxVariants int32
}

func (h header) check() error {
	if h.rows < 0 {
		return errors.Wrapf(ErrCorruptHeader, "negative row count: %d", h.rows)
	}
	if h.k <= 0 || h.k > MaxWordsPerTag {
		return errors.Wrapf(ErrCorruptHeader, "invalid words per tag: %d", h.k)
	}
	if h.maxVariants < 0 || h.maxVariants > MaxVariantsPerTag {
		return errors.Wrapf(ErrCorruptHeader, "invalid max variants: %d", h.maxVariants)
	}
	return nil
}

// rowSize returns the number of bytes of a row in the binary format.
//
//	tag words, 8*k bytes
//	tagLength, multimaps, 1+1 bytes
//	chromosome, 4 bytes
//	strand, 1 byte
//	start and end positions, 4+4 bytes
//	divergence, 1 byte
//	variant offsets and alleles, 2*maxVariants bytes, interleaved
//	dcoP, mapP, 1+1 bytes
func (h header) rowSize() int64 {
	return int64(h.k)*8 + 18 + 2*int64(h.maxVariants)
}

// WriteOptions contains the options of writing tables.
type WriteOptions struct {
	// only write rows with a known chromosome
	RequirePhysPosition bool
}

func (t *Table) rowsToWrite(opt *WriteOptions) int {
	if opt == nil || !opt.RequirePhysPosition {
		return t.Len()
	}
	var n int
	for _, c := range t.chr {
		if c != MissingInt32 {
			n++
		}
	}
	return n
}

// WriteBinary writes the table in the flat binary format.
// The output is gzipped if the file name ends with ".gz".
func (t *Table) WriteBinary(file string, opt *WriteOptions) (err error) {
	outfh, err := xopen.Wopen(file)
	if err != nil {
		return err
	}
	defer func() {
		if e := outfh.Close(); err == nil {
			err = e
		}
	}()

	_, err = t.WriteBinaryTo(outfh, opt)
	return err
}

// WriteBinaryTo writes the table in the flat binary format, returning the
// number of bytes written.
func (t *Table) WriteBinaryTo(w io.Writer, opt *WriteOptions) (int64, error) {
	bw := bufio.NewWriterSize(w, BufferSize)
	var N int64

	m := t.variants.max
	buf := make([]byte, 12)
	be.PutUint32(buf[0:4], uint32(t.rowsToWrite(opt)))
	be.PutUint32(buf[4:8], uint32(t.k))
	be.PutUint32(buf[8:12], uint32(m))
	if _, err := bw.Write(buf); err != nil {
		return N, err
	}
	N += 12

	h := header{k: int32(t.k), maxVariants: int32(m)}
	row := make([]byte, h.rowSize())
	offs := make([]int8, m)
	alls := make([]int8, m)
	onlyMapped := opt != nil && opt.RequirePhysPosition
	var j int
	for i := 0; i < t.Len(); i++ {
		if onlyMapped && t.chr[i] == MissingInt32 {
			continue
		}

		j = 0
		for _, col := range t.tags {
			be.PutUint64(row[j:j+8], col[i])
			j += 8
		}
		row[j] = t.length[i]
		row[j+1] = byte(t.multimaps[i])
		be.PutUint32(row[j+2:j+6], uint32(t.chr[i]))
		row[j+6] = byte(t.strand[i])
		be.PutUint32(row[j+7:j+11], uint32(t.start[i]))
		be.PutUint32(row[j+11:j+15], uint32(t.end[i]))
		row[j+15] = byte(t.div[i])
		j += 16

		t.variants.Fixed(i, offs, alls)
		for v := 0; v < m; v++ {
			row[j] = byte(offs[v])
			row[j+1] = byte(alls[v])
			j += 2
		}
		row[j] = byte(t.dcoP[i])
		row[j+1] = byte(t.mapP[i])

		if _, err := bw.Write(row); err != nil {
			return N, err
		}
		N += int64(len(row))
	}

	return N, bw.Flush()
}

// ReadBinary reads a table in the flat binary format.
// Gzipped files are detected automatically.
func ReadBinary(file string) (*Table, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var size int64 = -1
	if info, err := os.Stat(file); err == nil && !isGzipped(file) && info.Mode().IsRegular() {
		size = info.Size()
	}

	t, err := ReadBinaryFrom(fh, size)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", file)
	}
	return t, nil
}

func isGzipped(file string) bool {
	fh, err := os.Open(file)
	if err != nil {
		return false
	}
	defer fh.Close()
	magic := make([]byte, 2)
	if _, err = io.ReadFull(fh, magic); err != nil {
		return false
	}
	return magic[0] == 0x1f && magic[1] == 0x8b
}

// ReadBinaryFrom reads a table in the flat binary format. If size is not
// negative, the header is checked against it.
func ReadBinaryFrom(r io.Reader, size int64) (*Table, error) {
	br := bufio.NewReaderSize(r, BufferSize)

	buf := make([]byte, 12)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, errors.Wrap(ErrCorruptHeader, "incomplete header")
	}
	h := header{
		rows:        int32(be.Uint32(buf[0:4])),
		k:           int32(be.Uint32(buf[4:8])),
		maxVariants: int32(be.Uint32(buf[8:12])),
	}
	if err := h.check(); err != nil {
		return nil, err
	}
	if size >= 0 && 12+int64(h.rows)*h.rowSize() != size {
		return nil, errors.Wrapf(ErrCorruptHeader,
			"%d rows of %d bytes do not match the file size %d", h.rows, h.rowSize(), size)
	}

	n, k, m := int(h.rows), int(h.k), int(h.maxVariants)
	// the row count is only trusted after being checked against the size
	var t *Table
	if size >= 0 {
		t = NewTable(n, k, m)
	} else {
		t = NewTable(0, k, m)
	}
	row := make([]byte, h.rowSize())
	offs := make([]int8, m)
	alls := make([]int8, m)
	var j int
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(br, row); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, errors.Wrapf(ErrTruncatedFile, "%d of %d rows read", i, n)
			}
			return nil, err
		}
		if i == t.Len() {
			t.grow(min(ReadBatchRows, n-i))
		}

		j = 0
		for _, col := range t.tags {
			col[i] = be.Uint64(row[j : j+8])
			j += 8
		}
		t.length[i] = row[j]
		t.multimaps[i] = int8(row[j+1])
		t.chr[i] = int32(be.Uint32(row[j+2 : j+6]))
		t.strand[i] = int8(row[j+6])
		t.start[i] = int32(be.Uint32(row[j+7 : j+11]))
		t.end[i] = int32(be.Uint32(row[j+11 : j+15]))
		t.div[i] = int8(row[j+15])
		j += 16

		for v := 0; v < m; v++ {
			offs[v] = int8(row[j])
			alls[v] = int8(row[j+1])
			j += 2
		}
		t.variants.LoadFixed(i, offs, alls)

		t.dcoP[i] = int8(row[j])
		t.mapP[i] = int8(row[j+1])
	}

	return t, nil
}
