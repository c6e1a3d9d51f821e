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
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/tag"
)

func tablesEqual(t *testing.T, a, b *Table) bool {
	if a.Len() != b.Len() || a.WordsPerTag() != b.WordsPerTag() || a.MaxVariants() != b.MaxVariants() {
		t.Errorf("dimensions differ: (%d, %d, %d) vs (%d, %d, %d)",
			a.Len(), a.WordsPerTag(), a.MaxVariants(), b.Len(), b.WordsPerTag(), b.MaxVariants())
		return false
	}
	for i := 0; i < a.Len(); i++ {
		ta, _ := a.Tag(i)
		tb, _ := b.Tag(i)
		if !ta.Equal(tb) || ta.Len != tb.Len {
			t.Errorf("row %d: tags differ: %s vs %s", i, ta, tb)
			return false
		}
		ra, _ := a.Get(i)
		rb, _ := b.Get(i)
		if ra != rb {
			t.Errorf("row %d: records differ: %+v vs %+v", i, ra, rb)
			return false
		}
		va, _ := a.Variants(i)
		vb, _ := b.Variants(i)
		if len(va) != len(vb) {
			t.Errorf("row %d: variants differ: %v vs %v", i, va, vb)
			return false
		}
		for j := range va {
			if va[j] != vb[j] {
				t.Errorf("row %d: variants differ: %v vs %v", i, va, vb)
				return false
			}
		}
	}
	return true
}

func TestBinaryAndText(t *testing.T) {
	tb := newTestTable(2, 3, testRows)
	tb.SetMapP(0, 0.01)

	dir := t.TempDir()
	for _, file := range []string{
		"t.topm", "t.topm.bin.gz", "t.topm.txt", "t.topm.txt.gz", "t" + ChunkedExt,
	} {
		file = filepath.Join(dir, file)
		if err := Save(tb, file, nil); err != nil {
			t.Errorf("%s: %s", file, err)
			return
		}
		s, err := Open(file, nil)
		if err != nil {
			t.Errorf("%s: %s", file, err)
			return
		}

		var tb2 *Table
		switch v := s.(type) {
		case *Table:
			tb2 = v
		case *ChunkedStore:
			tb2 = v.Table()
			tb.Sort(false) // chunked stores are always sorted
		}
		if !tablesEqual(t, tb, tb2) {
			t.Errorf("%s: tables differ after a round trip", file)
			return
		}
		s.Close()
	}
}

func TestRequirePhysPosition(t *testing.T) {
	tb := newTestTable(1, 2, testRows)
	file := filepath.Join(t.TempDir(), "t.topm")
	if err := tb.WriteBinary(file, &WriteOptions{RequirePhysPosition: true}); err != nil {
		t.Error(err)
		return
	}
	tb2, err := ReadBinary(file)
	if err != nil {
		t.Error(err)
		return
	}
	if tb2.Len() != 3 {
		t.Errorf("expected 3 mapped rows, got %d", tb2.Len())
	}
	for i := 0; i < tb2.Len(); i++ {
		if tb2.Chromosome(i) == MissingInt32 {
			t.Errorf("row %d: unmapped tag written", i)
		}
	}
}

func TestCorruptBinary(t *testing.T) {
	tb := newTestTable(1, 2, testRows)
	buf := &bytes.Buffer{}
	if _, err := tb.WriteBinaryTo(buf, nil); err != nil {
		t.Error(err)
		return
	}
	data := buf.Bytes()

	// truncated
	if _, err := ReadBinaryFrom(bytes.NewReader(data[:len(data)-5]), -1); !errors.Is(err, ErrTruncatedFile) {
		t.Errorf("ErrTruncatedFile expected, got %v", err)
	}

	// header inconsistent with the file size
	dir := t.TempDir()
	file := filepath.Join(dir, "short.topm")
	if err := os.WriteFile(file, data[:len(data)-5], 0644); err != nil {
		t.Error(err)
		return
	}
	if _, err := ReadBinary(file); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("ErrCorruptHeader expected, got %v", err)
	}

	// invalid words per tag
	bad := append([]byte{}, data...)
	be.PutUint32(bad[4:8], 0)
	if _, err := ReadBinaryFrom(bytes.NewReader(bad), -1); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("ErrCorruptHeader expected, got %v", err)
	}

	// negative row count
	bad = append([]byte{}, data...)
	be.PutUint32(bad[0:4], 0xffffffff)
	if _, err := ReadBinaryFrom(bytes.NewReader(bad), -1); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("ErrCorruptHeader expected, got %v", err)
	}

	// the original file is fine
	if _, err := ReadBinaryFrom(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Error(err)
	}
}

func TestBinaryLayout(t *testing.T) {
	tb := newTestTable(1, 1, testRows[4:5])
	buf := &bytes.Buffer{}
	n, err := tb.WriteBinaryTo(buf, nil)
	if err != nil {
		t.Error(err)
		return
	}
	// header + one row of 8 + 18 + 2 bytes
	if n != 12+28 || buf.Len() != 40 {
		t.Errorf("unexpected size: %d", n)
		return
	}
	data := buf.Bytes()
	if be.Uint32(data[0:4]) != 1 || be.Uint32(data[4:8]) != 1 || be.Uint32(data[8:12]) != 1 {
		t.Errorf("unexpected header: %v", data[:12])
	}
	row := data[12:]
	if row[8] != 8 || row[9] != 1 { // tag length, multimaps
		t.Errorf("unexpected tag length or multimaps: %v", row[8:10])
	}
	if be.Uint32(row[10:14]) != 1 || be.Uint32(row[15:19]) != 100 || be.Uint32(row[19:23]) != 163 {
		t.Errorf("unexpected positions: %v", row[10:23])
	}
	if row[24] != 1 || row[25] != byte(AlleleA) { // variant offset and allele
		t.Errorf("unexpected variant: %v", row[24:26])
	}
}

func TestTextMissing(t *testing.T) {
	text := "2\t1\t2\n" +
		"ACGTACGTAAAAAAAAAAAAAAAAAAAAAAAA\t8\t0\t*\t*\t*\t*\t*\t*\t*\t*\t*\t*\t*\n" +
		"CCCCAAAAAAAAAAAAAAAAAAAAAAAAAAAA\t4\t1\t3\t1\t100\t131\t0\t2\tG\t*\t*\t*\t5\n"
	tb, err := ReadTextFrom(bytes.NewBufferString(text))
	if err != nil {
		t.Error(err)
		return
	}
	rec, _ := tb.Get(0)
	if rec.Mapped() || rec.MultiMaps != 0 || rec.StartPosition != MissingInt32 || rec.MapP != MissingInt8 {
		t.Errorf("unexpected record: %+v", rec)
	}
	rec, _ = tb.Get(1)
	if rec.Chromosome != 3 || rec.EndPosition != 131 || rec.MapP != 5 || rec.DcoP != MissingInt8 {
		t.Errorf("unexpected record: %+v", rec)
	}
	vars, _ := tb.Variants(1)
	if len(vars) != 1 || vars[0].Offset != 2 || vars[0].Allele != AlleleG {
		t.Errorf("unexpected variants: %v", vars)
	}
	if tg, _ := tb.Tag(1); tg.String() != "CCCC" {
		t.Errorf("unexpected tag: %s", tg)
	}

	buf := &bytes.Buffer{}
	if err = tb.WriteTextTo(buf, nil); err != nil {
		t.Error(err)
		return
	}
	if buf.String() != text {
		t.Errorf("unexpected text output:\n%s", buf.String())
	}

	// fewer rows than promised
	if _, err = ReadTextFrom(bytes.NewBufferString("3\t1\t2\n")); !errors.Is(err, ErrTruncatedFile) {
		t.Errorf("ErrTruncatedFile expected, got %v", err)
	}
	if _, err = ReadTextFrom(bytes.NewBufferString("x\t1\t2\n")); !errors.Is(err, ErrCorruptHeader) {
		t.Errorf("ErrCorruptHeader expected, got %v", err)
	}
}

func TestFormatOf(t *testing.T) {
	cases := map[string]Format{
		"a.topm":        FormatBinary,
		"a.topm.bin":    FormatBinary,
		"a.topm.bin.gz": FormatBinary,
		"a.topm.txt":    FormatText,
		"A.TOPM.TXT.GZ": FormatText,
		"a.topmc":       FormatChunked,
		"a.topmc/":      FormatChunked,
		"a.sam":         FormatUnknown,
	}
	for file, f := range cases {
		if FormatOf(file) != f {
			t.Errorf("%s: expected %s, got %s", file, f, FormatOf(file))
		}
	}
	if _, err := Open("a.sam", nil); !errors.Is(err, ErrInvalidFileFormat) {
		t.Errorf("ErrInvalidFileFormat expected, got %v", err)
	}
}

func TestExpandedMaxVariants(t *testing.T) {
	tb := newTestTable(1, 2, testRows)
	if ok, err := tb.ExpandMaxVariants(MaxVariantsPerTag); !ok || err != nil {
		t.Errorf("failed to expand max variants: %v", err)
		return
	}
	if _, err := tb.AddVariant(0, 20, AlleleT); err != nil {
		t.Error(err)
		return
	}
	tb.Sort(false)

	dir := t.TempDir()
	for _, file := range []string{"t.topm", "t.topm.txt", "t" + ChunkedExt} {
		file = filepath.Join(dir, file)
		if err := Save(tb, file, nil); err != nil {
			t.Errorf("%s: %s", file, err)
			return
		}
		s, err := Open(file, nil)
		if err != nil {
			t.Errorf("%s: %s", file, err)
			return
		}
		if s.MaxVariants() != MaxVariantsPerTag {
			t.Errorf("%s: unexpected max variants: %d", file, s.MaxVariants())
		}
		i, _ := s.Index()
		row := i.Lookup(tag.MustEncode([]byte("TTTTACGT"), 1).Words)
		if vars, _ := s.Variants(row); len(vars) != 3 {
			t.Errorf("%s: unexpected variants: %v", file, vars)
		}
		s.Close()
	}
}

func TestHugeRowCount(t *testing.T) {
	buf := make([]byte, 12)
	be.PutUint32(buf[0:4], 20000000)
	be.PutUint32(buf[4:8], 8)
	be.PutUint32(buf[8:12], 100)

	var m0, m1 runtime.MemStats
	runtime.ReadMemStats(&m0)
	if _, err := ReadBinaryFrom(bytes.NewReader(buf), -1); !errors.Is(err, ErrTruncatedFile) {
		t.Errorf("ErrTruncatedFile expected, got %v", err)
	}
	if _, err := ReadTextFrom(strings.NewReader("20000000\t8\t100\n")); !errors.Is(err, ErrTruncatedFile) {
		t.Errorf("ErrTruncatedFile expected, got %v", err)
	}
	runtime.ReadMemStats(&m1)
	if alloc := m1.TotalAlloc - m0.TotalAlloc; alloc > 256<<20 {
		t.Errorf("%d bytes allocated for a file without rows", alloc)
	}
}
