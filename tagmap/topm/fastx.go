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
	"io"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/tagmap/tagmap/tag"
)

// ReadFastx creates a table of unmapped tags from FASTA/Q files.
// Sequences longer than k*32 bases are truncated, and sequences with
// ambiguous bases are skipped. If read names contain
// "length=", the tag length is taken from there.
func ReadFastx(files []string, k int) (*Table, error) {
	seq.ValidateSeq = false

	t := NewTable(0, k, 0)
	maxLen := k * tag.BasesPerWord
	if maxLen > tag.MaxLength {
		maxLen = tag.MaxLength
	}

	var record *fastx.Record
	var s []byte
	var tg tag.Tag
	var skipped int
	for _, file := range files {
		fastxReader, err := fastx.NewReader(seq.DNAredundant, file, "")
		if err != nil {
			return nil, err
		}

		for {
			record, err = fastxReader.Read()
			if err != nil {
				if err == io.EOF {
					break
				}
				fastxReader.Close()
				return nil, errors.Wrap(err, file)
			}

			s = record.Seq.Seq
			if len(s) > maxLen {
				s = s[:maxLen]
			}
			tg, err = tag.Encode(s, k)
			if err != nil {
				if errors.Is(err, tag.ErrInvalidBase) {
					skipped++
					continue
				}
				fastxReader.Close()
				return nil, errors.Wrapf(err, "%s: %s", file, record.ID)
			}
			if bytes.Contains(record.ID, []byte("length=")) {
				if l, ok := tagLengthFromName(string(record.ID)); ok && int(l) <= maxLen {
					tg.Len = l
				}
			}
			if _, err = t.AppendTag(tg); err != nil {
				fastxReader.Close()
				return nil, err
			}
		}
		fastxReader.Close()
	}
	if skipped > 0 {
		log.Warningf("%d sequences with bases other than A, C, G, T skipped", skipped)
	}
	return t, nil
}
