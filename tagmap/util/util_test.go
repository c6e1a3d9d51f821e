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
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/twotwotwo/sorts"
)

func TestSortRows(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	n := 10000
	a := make([]int32, n) // key column
	b := make([]int32, n) // a payload column that must move with the keys
	for i := range a {
		a[i] = int32(r.Intn(500))
		b[i] = a[i] * 3
	}

	swap := func(i, j int) {
		a[i], a[j] = a[j], a[i]
		b[i], b[j] = b[j], b[i]
	}
	compare := func(i, j int) int {
		if a[i] < a[j] {
			return -1
		}
		if a[i] > a[j] {
			return 1
		}
		return 0
	}

	SortRows(n, swap, compare)
	if !IsSortedRows(n, compare) {
		t.Errorf("rows not sorted")
		return
	}
	for i := range a {
		if b[i] != a[i]*3 {
			t.Errorf("row %d: payload column out of sync", i)
			return
		}
	}
}

func TestParallelSortRows(t *testing.T) {
	sorts.MaxProcs = 4
	r := rand.New(rand.NewSource(2))
	n := 200000
	a := make([]uint64, n)
	for i := range a {
		a[i] = r.Uint64()
	}
	swap := func(i, j int) { a[i], a[j] = a[j], a[i] }
	compare := func(i, j int) int {
		if a[i] < a[j] {
			return -1
		}
		if a[i] > a[j] {
			return 1
		}
		return 0
	}
	ParallelSortRows(n, swap, compare)
	if !sort.SliceIsSorted(a, func(i, j int) bool { return a[i] < a[j] }) {
		t.Errorf("rows not sorted")
	}
}

func TestPermutation(t *testing.T) {
	vals := []int{5, 3, 9, 1, 3}
	perm := Permutation(len(vals), func(a, b int) int { return vals[a] - vals[b] }, false)
	for i := 1; i < len(perm); i++ {
		if vals[perm[i-1]] > vals[perm[i]] {
			t.Errorf("permutation not sorted: %v", perm)
			return
		}
	}
	if vals[0] != 5 {
		t.Errorf("rows should not be moved")
	}
}

func TestUniqInt32s(t *testing.T) {
	list := []int32{5, 1, 5, 3, 1, 1, 9}
	UniqInt32s(&list)
	expected := []int32{1, 3, 5, 9}
	if len(list) != len(expected) {
		t.Errorf("unexpected result: %v", list)
		return
	}
	for i, v := range expected {
		if list[i] != v {
			t.Errorf("unexpected result: %v", list)
			return
		}
	}
}

func TestGroupVarint(t *testing.T) {
	tests := [][2]uint64{
		{0, 0}, {255, 256}, {1 << 40, 7}, {^uint64(0), 1},
	}
	buf := make([]byte, 16)
	for i, test := range tests {
		ctrl, n := PutUint64s(buf, test[0], test[1])
		if CtrlByte2ByteLengthsUint64(ctrl) != n {
			t.Errorf("#%d, wrong byte length", i)
		}
		v1, v2, n2 := Uint64s(ctrl, buf[:n])
		if n2 != n {
			t.Errorf("#%d, wrong decoded byte length", i)
		}
		if v1 != test[0] || v2 != test[1] {
			t.Errorf("#%d, wrong decoded result: %d, %d, answer: %d, %d", i, v1, v2, test[0], test[1])
		}
	}
}

func TestDeltaUint64s(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for _, n := range []int{0, 1, 2, 7, 1000} {
		vals := make([]uint64, n)
		for i := range vals {
			vals[i] = r.Uint64() // unsorted values must survive too
		}
		if n > 2 {
			sort.Slice(vals[:n/2], func(i, j int) bool { return vals[i] < vals[j] })
		}

		var b bytes.Buffer
		w := bufio.NewWriter(&b)
		if err := WriteDeltaUint64s(w, vals); err != nil {
			t.Error(err)
			return
		}
		w.Flush()

		vals2 := make([]uint64, n)
		if err := ReadDeltaUint64s(bufio.NewReader(&b), vals2, n); err != nil {
			t.Error(err)
			return
		}
		for i := range vals {
			if vals[i] != vals2[i] {
				t.Errorf("n=%d, #%d: %d != %d", n, i, vals2[i], vals[i])
				return
			}
		}
	}
}
