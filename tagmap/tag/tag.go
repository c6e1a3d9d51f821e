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

package tag

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/shenwei356/kmers"
)

// BasesPerWord is the number of bases packed in one 64-bit word.
const BasesPerWord = 32

// MaxLength is the maximum logical length of a tag, limited by the
// one-byte length field of the file formats.
const MaxLength = 255

// ErrInvalidBase means a base other than A, C, G, T.
var ErrInvalidBase = errors.New("tag: invalid base")

// ErrTagTooLong means the sequence does not fit in the words of a tag.
var ErrTagTooLong = errors.New("tag: sequence too long")

// ErrInvalidWords means the number of words is not positive.
var ErrInvalidWords = errors.New("tag: invalid number of words")

// Tag is a DNA sequence packed into k 64-bit words, 2 bits per base,
// the first base at the highest bits of the first word.
// Unused trailing bases are A (0b00).
// Tags are row keys and must not be modified after creation.
type Tag struct {
	Words []uint64
	Len   uint8 // number of bases actually used
}

// 1 for A, C, G, T (upper or lower case), 0 for others.
var validBase = [256]uint8{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 1, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 1, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var complement = [256]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A',
	'a': 't', 'c': 'g', 'g': 'c', 't': 'a',
	'N': 'N', 'n': 'n',
}

// NullSeq returns a poly-A sequence filling k words.
func NullSeq(k int) []byte {
	return bytes.Repeat([]byte{'A'}, k*BasesPerWord)
}

// Encode packs a DNA sequence into a tag of k words.
// Sequences shorter than k*32 bases are padded with A.
func Encode(seq []byte, k int) (Tag, error) {
	if k <= 0 {
		return Tag{}, ErrInvalidWords
	}
	n := len(seq)
	if n > k*BasesPerWord || n > MaxLength {
		return Tag{}, ErrTagTooLong
	}
	for i, b := range seq {
		if validBase[b] == 0 {
			return Tag{}, fmt.Errorf("%w: %q at position %d", ErrInvalidBase, b, i+1)
		}
	}

	padded := make([]byte, k*BasesPerWord)
	for i, b := range seq {
		padded[i] = b &^ 0x20 // upper case
	}
	for i := n; i < len(padded); i++ {
		padded[i] = 'A'
	}

	words := make([]uint64, k)
	var err error
	var j int
	for i := 0; i < k; i++ {
		j = i * BasesPerWord
		words[i], err = kmers.Encode(padded[j : j+BasesPerWord])
		if err != nil { // the bases have been checked
			return Tag{}, err
		}
	}

	return Tag{Words: words, Len: uint8(n)}, nil
}

// MustEncode is like Encode but panics on error.
func MustEncode(seq []byte, k int) Tag {
	t, err := Encode(seq, k)
	if err != nil {
		panic(err)
	}
	return t
}

// Decode returns the sequence of the tag, up to its length.
func Decode(t Tag) []byte {
	return DecodeWords(t.Words, int(t.Len))
}

// DecodeWords decodes the first n bases of packed words.
func DecodeWords(words []uint64, n int) []byte {
	s := make([]byte, 0, len(words)*BasesPerWord)
	for _, w := range words {
		s = append(s, kmers.MustDecode(w, BasesPerWord)...)
	}
	if n < 0 || n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// Compare compares two word tuples lexicographically, most significant
// word first. Words are unsigned, so the order equals the base order
// A < C < G < T. Tuples of different sizes are compared as if the shorter
// one was padded with zero words.
func Compare(a, b []uint64) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var x, y uint64
	for i := 0; i < n; i++ {
		x, y = 0, 0
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x < y {
			return -1
		}
		if x > y {
			return 1
		}
	}
	return 0
}

// Compare compares the words of two tags. Lengths are ignored.
func (t Tag) Compare(b Tag) int {
	return Compare(t.Words, b.Words)
}

// Equal tells whether two tags share the same words.
func (t Tag) Equal(b Tag) bool {
	return Compare(t.Words, b.Words) == 0
}

// K returns the number of words.
func (t Tag) K() int {
	return len(t.Words)
}

func (t Tag) String() string {
	return string(Decode(t))
}

// Pad returns the words widened to k words with zero (poly-A) words.
// The input is returned as it is if it already has k or more words.
func Pad(words []uint64, k int) []uint64 {
	if len(words) >= k {
		return words
	}
	w := make([]uint64, k)
	copy(w, words)
	return w
}

// ReverseComplement returns the reverse complement of a DNA sequence.
// Bases other than A, C, G, T, N are kept.
func ReverseComplement(s []byte) []byte {
	rc := make([]byte, len(s))
	var c byte
	for i, j := 0, len(s)-1; j >= 0; i, j = i+1, j-1 {
		c = complement[s[j]]
		if c == 0 {
			c = s[j]
		}
		rc[i] = c
	}
	return rc
}
