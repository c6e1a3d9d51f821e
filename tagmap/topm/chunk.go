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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/zeebo/wyhash"
)

// ChunkBits decides the number of rows of a hypothesis chunk.
const ChunkBits = 16

// ChunkSize is the number of rows of a hypothesis chunk.
const ChunkSize = 1 << ChunkBits

// MagicChunk is the magic number of hypothesis chunk files.
var MagicChunk = [8]byte{'.', 't', 'o', 'p', 'm', 'h', 'y', 'p'}

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

const chunkHeaderSize = 40

const checksumSeed uint64 = 1

var zstdEncoderPool = sync.Pool{New: func() interface{} {
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}}

var zstdDecoderPool = sync.Pool{New: func() interface{} {
	dec, _ := zstd.NewReader(nil)
	return dec
}}

// chunkFile returns the path of the i-th chunk file in a directory.
func chunkFile(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk-%06d.bin", i))
}

// writeChunk writes hypotheses of a chunk to a file.
//
// Header (40 bytes):
//
//	Magic number, 8 bytes, ".topmhyp".
//	Main and minor versions, 2 bytes.
//	Blank, 2 bytes.
//	Chunk index, 4 bytes.
//	Rows, 4 bytes.
//	Slots per row, 4 bytes.
//	Checksum of the uncompressed payload, 8 bytes.
//	Size of the compressed payload, 8 bytes.
//
// Payload: zstd-compressed hypotheses, row by row, slot by slot.
func writeChunk(file string, idx, rows, slots int, data []Hypothesis) (err error) {
	if len(data) != rows*slots {
		return fmt.Errorf("topm: %d hypotheses given for %d rows x %d slots", len(data), rows, slots)
	}

	raw := make([]byte, len(data)*HypothesisSize)
	for i := range data {
		PutHypothesis(raw[i*HypothesisSize:], &data[i])
	}

	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	payload := enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	zstdEncoderPool.Put(enc)

	buf := make([]byte, chunkHeaderSize)
	copy(buf[:8], MagicChunk[:])
	buf[8] = MainVersion
	buf[9] = MinorVersion
	be.PutUint32(buf[12:16], uint32(idx))
	be.PutUint32(buf[16:20], uint32(rows))
	be.PutUint32(buf[20:24], uint32(slots))
	be.PutUint64(buf[24:32], wyhash.Hash(raw, checksumSeed))
	be.PutUint64(buf[32:40], uint64(len(payload)))

	// write to a temporary file first, then replace the old one
	tmp := file + ".tmp"
	fh, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(fh, BufferSize)
	if _, err = w.Write(buf); err != nil {
		fh.Close()
		return err
	}
	if _, err = w.Write(payload); err != nil {
		fh.Close()
		return err
	}
	if err = w.Flush(); err != nil {
		fh.Close()
		return err
	}
	if err = fh.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}

// readChunk reads hypotheses of a chunk into data, which is resized if needed.
func readChunk(file string, idx, rows, slots int, data []Hypothesis) ([]Hypothesis, error) {
	fh, err := os.Open(file)
	if err != nil {
		return data, err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return data, err
	}
	r := bufio.NewReaderSize(fh, BufferSize)

	buf := make([]byte, chunkHeaderSize)
	if _, err = io.ReadFull(r, buf); err != nil {
		return data, errors.Wrapf(ErrBrokenFile, "%s: incomplete header", file)
	}
	if [8]byte(buf[:8]) != MagicChunk {
		return data, errors.Wrap(ErrInvalidFileFormat, file)
	}
	if buf[8] != MainVersion {
		return data, errors.Wrapf(ErrVersionMismatch, "%s: %d != %d", file, buf[8], MainVersion)
	}
	_idx := int(be.Uint32(buf[12:16]))
	_rows := int(be.Uint32(buf[16:20]))
	_slots := int(be.Uint32(buf[20:24]))
	if _idx != idx || _rows != rows || _slots != slots {
		return data, errors.Wrapf(ErrInvalidFileFormat,
			"%s: chunk %d of %d rows x %d slots expected, found chunk %d of %d x %d",
			file, idx, rows, slots, _idx, _rows, _slots)
	}
	sum := be.Uint64(buf[24:32])
	size := be.Uint64(buf[32:40])
	if size != uint64(info.Size())-chunkHeaderSize {
		return data, errors.Wrapf(ErrBrokenFile, "%s: payload of %d bytes expected, file size: %d", file, size, info.Size())
	}

	payload := make([]byte, size)
	if _, err = io.ReadFull(r, payload); err != nil {
		return data, errors.Wrapf(ErrBrokenFile, "%s: incomplete payload", file)
	}

	n := rows * slots
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	raw, err := dec.DecodeAll(payload, make([]byte, 0, n*HypothesisSize))
	zstdDecoderPool.Put(dec)
	if err != nil {
		return data, errors.Wrapf(ErrBrokenFile, "%s: %s", file, err)
	}
	if len(raw) != n*HypothesisSize || wyhash.Hash(raw, checksumSeed) != sum {
		return data, errors.Wrapf(ErrBrokenFile, "%s: checksum mismatch", file)
	}

	if cap(data) >= n {
		data = data[:n]
	} else {
		data = make([]Hypothesis, n)
	}
	for i := range data {
		ReadHypothesis(raw[i*HypothesisSize:], &data[i])
	}
	return data, nil
}
