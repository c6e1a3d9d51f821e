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
	"strings"

	"github.com/pkg/errors"
)

// Format is a storage format of tables.
type Format int

// Formats
const (
	FormatUnknown Format = iota
	FormatBinary
	FormatText
	FormatChunked
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatText:
		return "text"
	case FormatChunked:
		return "chunked"
	}
	return "unknown"
}

// FormatOf guesses the format from a path.
//
//	*.topm.txt, *.topm.txt.gz: text
//	*.topm, *.topm.bin, *.topm.bin.gz: binary
//	*.topmc, or a directory with meta.toml: chunked
func FormatOf(path string) Format {
	p := strings.TrimSuffix(strings.ToLower(strings.TrimRight(path, "/")), ".gz")
	switch {
	case strings.HasSuffix(p, ChunkedExt):
		return FormatChunked
	case strings.HasSuffix(p, ".topm.txt"):
		return FormatText
	case strings.HasSuffix(p, ".topm"), strings.HasSuffix(p, ".topm.bin"):
		return FormatBinary
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() && IsChunkedStore(path) {
		return FormatChunked
	}
	return FormatUnknown
}

// Open opens a store of any format. opt is only used for chunked stores.
func Open(path string, opt *ChunkedOptions) (Store, error) {
	switch FormatOf(path) {
	case FormatBinary:
		return ReadBinary(path)
	case FormatText:
		return ReadText(path)
	case FormatChunked:
		return OpenChunked(path, opt)
	}
	return nil, errors.Wrapf(ErrInvalidFileFormat, "unknown file extension: %s", path)
}

// ReadTable reads a whole store into memory.
func ReadTable(path string) (*Table, error) {
	s, err := Open(path, &ChunkedOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	if c, ok := s.(*ChunkedStore); ok {
		t := c.Table()
		t.fixedRows = false // the read-only store is dropped
		return t, nil
	}
	return s.(*Table), nil
}

// Save writes a table in the format decided by the path.
func Save(t *Table, path string, opt *WriteOptions) error {
	switch FormatOf(path) {
	case FormatBinary:
		return t.WriteBinary(path, opt)
	case FormatText:
		return t.WriteText(path, opt)
	case FormatChunked:
		if opt != nil && opt.RequirePhysPosition {
			t = t.mappedOnly()
		}
		s, err := CreateChunked(path, t, nil)
		if err != nil {
			return err
		}
		return s.Close()
	}
	return errors.Wrapf(ErrInvalidFileFormat, "unknown file extension: %s", path)
}

// mappedOnly returns a new table with rows of known chromosomes.
func (t *Table) mappedOnly() *Table {
	out := NewTable(t.rowsToWrite(&WriteOptions{RequirePhysPosition: true}), t.k, t.variants.max)
	var j int
	for i, c := range t.chr {
		if c == MissingInt32 {
			continue
		}
		out.copyRow(j, t, i)
		j++
	}
	return out
}
