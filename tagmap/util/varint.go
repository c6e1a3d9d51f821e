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

package util

import (
	"bufio"
	"errors"
	"io"
)

// ErrBrokenVarint means the group-varint stream ends in the middle of a group.
var ErrBrokenVarint = errors.New("varint: broken stream")

var offsetsUint64 = []uint8{56, 48, 40, 32, 24, 16, 8, 0}

// PutUint64s encodes two uint64s into 2-16 bytes, and returns the control
// byte and the encoded byte length.
// The control byte stores the byte lengths minus one of the two values,
// 3 bits each.
func PutUint64s(buf []byte, v1, v2 uint64) (ctrl byte, n int) {
	blen := ByteLengthUint64(v1)
	ctrl |= byte(blen - 1)
	for _, offset := range offsetsUint64[8-blen:] {
		buf[n] = byte(v1 >> offset)
		n++
	}

	ctrl <<= 3
	blen = ByteLengthUint64(v2)
	ctrl |= byte(blen - 1)
	for _, offset := range offsetsUint64[8-blen:] {
		buf[n] = byte(v2 >> offset)
		n++
	}
	return
}

// Uint64s decodes two uint64s. n is 0 if buf is too short.
func Uint64s(ctrl byte, buf []byte) (v1, v2 uint64, n int) {
	blen1 := int((ctrl>>3)&7) + 1
	blen2 := int(ctrl&7) + 1
	if len(buf) < blen1+blen2 {
		return 0, 0, 0
	}

	for j := 0; j < blen1; j++ {
		v1 = v1<<8 | uint64(buf[n])
		n++
	}
	for j := 0; j < blen2; j++ {
		v2 = v2<<8 | uint64(buf[n])
		n++
	}
	return
}

// ByteLengthUint64 returns the minimum number of bytes to store an integer.
func ByteLengthUint64(n uint64) uint8 {
	var l uint8 = 1
	for n >>= 8; n > 0; n >>= 8 {
		l++
	}
	return l
}

// CtrlByte2ByteLengthsUint64 returns the byte length for a given control byte.
func CtrlByte2ByteLengthsUint64(ctrl byte) int {
	return int(ctrl>>3&7+ctrl&7) + 2
}

// WriteDeltaUint64s writes a column of uint64s as deltas to the previous
// value (wrapping), two values per group-varint group.
// Sorted columns, like the first word of sorted tags, shrink a lot.
// The number of values is not written.
func WriteDeltaUint64s(w *bufio.Writer, vals []uint64) error {
	buf := make([]byte, 17)
	var pre, d1, d2 uint64
	var ctrl byte
	var n int
	var err error
	for i := 0; i < len(vals); i += 2 {
		d1 = vals[i] - pre
		pre = vals[i]
		if i+1 < len(vals) {
			d2 = vals[i+1] - pre
			pre = vals[i+1]
		} else {
			d2 = 0
		}
		ctrl, n = PutUint64s(buf[1:], d1, d2)
		buf[0] = ctrl
		if _, err = w.Write(buf[:n+1]); err != nil {
			return err
		}
	}
	return nil
}

// ReadDeltaUint64s reads n values written by WriteDeltaUint64s into vals,
// which must have a length of at least n.
func ReadDeltaUint64s(r *bufio.Reader, vals []uint64, n int) error {
	buf := make([]byte, 16)
	var pre, d1, d2 uint64
	var ctrl byte
	var nb int
	var err error
	for i := 0; i < n; i += 2 {
		ctrl, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return ErrBrokenVarint
			}
			return err
		}
		nb = CtrlByte2ByteLengthsUint64(ctrl)
		if _, err = io.ReadFull(r, buf[:nb]); err != nil {
			return ErrBrokenVarint
		}
		d1, d2, _ = Uint64s(ctrl, buf[:nb])
		pre += d1
		vals[i] = pre
		if i+1 < n {
			pre += d2
			vals[i+1] = pre
		}
	}
	return nil
}
