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

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/pgzip"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shenwei356/go-logging"
	"github.com/shenwei356/tagmap/tagmap/index"
	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/tagmap/tagmap/util"
	"golang.org/x/sync/errgroup"
)

var log = logging.MustGetLogger("tagmap")

// ChunkedExt is the conventional suffix of chunked store directories.
const ChunkedExt = ".topmc"

// file names in a chunked store directory
const (
	FileMeta       = "meta.toml"
	FileTags       = "tags.bin.gz"
	FileTagLength  = "tagLength.bin.gz"
	FileBest       = "best.bin.gz"
	FileVariants   = "variants.bin.gz"
	DirHypotheses  = "hypotheses"
	bestRecordSize = 18
)

// ChunkedMeta is the metadata of a chunked store, saved as TOML.
type ChunkedMeta struct {
	MainVersion     uint8 `toml:"main-version" comment:"Index format"`
	MinorVersion    uint8 `toml:"minor-version"`
	Rows            int   `toml:"rows" comment:"Table"`
	WordsPerTag     int   `toml:"words-per-tag"`
	MaxVariants     int   `toml:"max-variants"`
	HypothesisCount int   `toml:"hypotheses-per-tag" comment:"Hypotheses"`
	ChunkBits       int   `toml:"chunk-bits"`
	Chunks          int   `toml:"chunks"`
	HasHypotheses   bool  `toml:"has-hypotheses"`
	HasBest         bool  `toml:"has-best"`
}

func readChunkedMeta(file string) (*ChunkedMeta, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var m ChunkedMeta
	if err = toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(ErrInvalidFileFormat, "%s: %s", file, err)
	}
	if m.MainVersion != MainVersion {
		return nil, errors.Wrapf(ErrVersionMismatch, "%s: %d != %d", file, m.MainVersion, MainVersion)
	}
	h := header{rows: int32(m.Rows), k: int32(m.WordsPerTag), maxVariants: int32(m.MaxVariants)}
	if err = h.check(); err != nil {
		return nil, errors.Wrap(err, file)
	}
	if m.ChunkBits != ChunkBits {
		return nil, errors.Wrapf(ErrInvalidFileFormat, "%s: unsupported chunk bits: %d", file, m.ChunkBits)
	}
	return &m, nil
}

func writeChunkedMeta(file string, m *ChunkedMeta) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0644)
}

// IsChunkedStore tells whether a directory contains a chunked store.
func IsChunkedStore(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileMeta))
	return err == nil && info.Mode().IsRegular()
}

// ChunkedOptions contains the options of creating and opening chunked stores.
type ChunkedOptions struct {
	// Keep every loaded hypothesis chunk in memory,
	// instead of only the last one.
	CacheAll bool

	// Refuse all modifications.
	ReadOnly bool

	// Number of hypothesis slots per tag, used in creating. 0 for no hypotheses.
	HypothesisCount int
	// Source of the hypotheses created from the best mappings.
	Aligner Aligner

	// Number of goroutines for writing chunk files.
	Threads int
}

// ChunkedStore keeps the tags, best mappings, and variants in memory,
// and all alignment hypotheses on disk in chunks of 65536 tags.
//
// Modified chunks are only written on Flush, Close, or when another chunk
// is loaded. A ChunkedStore is not safe for concurrent use.
type ChunkedStore struct {
	dir  string
	meta *ChunkedMeta
	opt  ChunkedOptions

	t        *Table
	bestSlot []int8

	columnsDirty bool

	hyps *hypotheses // nil for stores without hypotheses
}

// hypotheses is the on-disk hypothesis dataset with a write-back cache.
// Chunk files are padded to full chunks.
type hypotheses struct {
	dir     string
	rows    int
	slots   int
	nChunks int

	// single-slot cache
	cur   int
	data  []Hypothesis
	dirty bool

	// cache-all mode
	cacheAll bool
	all      map[int][]Hypothesis
	dirtySet *roaring.Bitmap
}

// load returns the hypotheses of the ci-th chunk.
func (h *hypotheses) load(ci int) ([]Hypothesis, error) {
	if h.cacheAll {
		if data, ok := h.all[ci]; ok {
			return data, nil
		}
		data, err := readChunk(chunkFile(h.dir, ci), ci, ChunkSize, h.slots, nil)
		if err != nil {
			return nil, err
		}
		h.all[ci] = data
		return data, nil
	}

	if h.cur == ci {
		return h.data, nil
	}
	if h.dirty {
		if err := h.flushCurrent(); err != nil {
			log.Warningf("failed to flush hypothesis chunk %d, pending changes dropped: %s", h.cur, err)
			h.dirty = false
		}
	}
	data, err := readChunk(chunkFile(h.dir, ci), ci, ChunkSize, h.slots, h.data)
	if err != nil {
		h.cur = -1
		return nil, err
	}
	h.data, h.cur = data, ci
	return data, nil
}

func (h *hypotheses) markDirty(ci int) {
	if h.cacheAll {
		h.dirtySet.Add(uint32(ci))
		return
	}
	h.dirty = true
}

func (h *hypotheses) flushCurrent() error {
	if err := writeChunk(chunkFile(h.dir, h.cur), h.cur, ChunkSize, h.slots, h.data); err != nil {
		return err
	}
	h.dirty = false
	return nil
}

// flush writes all modified chunks.
func (h *hypotheses) flush() error {
	if !h.cacheAll {
		if h.dirty {
			return h.flushCurrent()
		}
		return nil
	}
	var ci int
	for _, c := range h.dirtySet.ToArray() {
		ci = int(c)
		if err := writeChunk(chunkFile(h.dir, ci), ci, ChunkSize, h.slots, h.all[ci]); err != nil {
			return err
		}
		h.dirtySet.Remove(c)
	}
	return nil
}

func (h *hypotheses) dirtyChunks() int {
	if h.cacheAll {
		return int(h.dirtySet.GetCardinality())
	}
	if h.dirty {
		return 1
	}
	return 0
}

// ----------------------------------------------------------------------

// CreateChunked creates a chunked store in a directory from a table,
// which is sorted first. With opt.HypothesisCount > 0, the best mapping
// of each mapped tag fills the first hypothesis slot with rank 0.
func CreateChunked(dir string, src *Table, opt *ChunkedOptions) (*ChunkedStore, error) {
	if opt == nil {
		opt = &ChunkedOptions{}
	}
	if opt.HypothesisCount < 0 || opt.HypothesisCount > 127 {
		return nil, fmt.Errorf("topm: invalid number of hypotheses per tag: %d", opt.HypothesisCount)
	}
	threads := opt.Threads
	if threads < 1 {
		threads = 1
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	src.Sort(threads > 1)

	n := src.Len()
	meta := &ChunkedMeta{
		MainVersion:     MainVersion,
		MinorVersion:    MinorVersion,
		Rows:            n,
		WordsPerTag:     src.k,
		MaxVariants:     src.variants.max,
		HypothesisCount: opt.HypothesisCount,
		ChunkBits:       ChunkBits,
		HasHypotheses:   opt.HypothesisCount > 0,
		HasBest:         true,
	}

	bestSlot := make([]int8, n)
	for i := range bestSlot {
		bestSlot[i] = MissingInt8
	}

	if meta.HasHypotheses {
		meta.Chunks = (n + ChunkSize - 1) >> ChunkBits
		hdir := filepath.Join(dir, DirHypotheses)
		if err := os.MkdirAll(hdir, 0755); err != nil {
			return nil, err
		}

		slots := opt.HypothesisCount
		for i := 0; i < n; i++ {
			if src.chr[i] != MissingInt32 {
				bestSlot[i] = 0
			}
		}

		var g errgroup.Group
		g.SetLimit(threads)
		for ci := 0; ci < meta.Chunks; ci++ {
			ci := ci
			g.Go(func() error {
				data := make([]Hypothesis, ChunkSize*slots)
				for i := range data {
					data[i] = MissingHypothesis()
				}
				var rec MappingRecord
				start := ci << ChunkBits
				end := util.MinInt(start+ChunkSize, n)
				for row := start; row < end; row++ {
					if src.chr[row] == MissingInt32 {
						continue
					}
					rec, _ = src.Get(row)
					data[(row-start)*slots] = HypothesisFromRecord(rec, opt.Aligner, 0)
				}
				return writeChunk(chunkFile(hdir, ci), ci, ChunkSize, slots, data)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if err := writeColumns(dir, src, bestSlot); err != nil {
		return nil, err
	}
	if err := writeChunkedMeta(filepath.Join(dir, FileMeta), meta); err != nil {
		return nil, err
	}

	return OpenChunked(dir, opt)
}

// OpenChunked opens a chunked store.
func OpenChunked(dir string, opt *ChunkedOptions) (*ChunkedStore, error) {
	if opt == nil {
		opt = &ChunkedOptions{}
	}
	meta, err := readChunkedMeta(filepath.Join(dir, FileMeta))
	if err != nil {
		return nil, err
	}

	t := NewTable(meta.Rows, meta.WordsPerTag, meta.MaxVariants)
	bestSlot := make([]int8, meta.Rows)
	for i := range bestSlot {
		bestSlot[i] = MissingInt8
	}
	if err = readColumns(dir, t, bestSlot, meta.HasBest); err != nil {
		return nil, err
	}
	if _, err = t.Index(); err != nil {
		return nil, errors.Wrap(err, dir)
	}
	t.fixedRows = true

	s := &ChunkedStore{
		dir:      dir,
		meta:     meta,
		opt:      *opt,
		t:        t,
		bestSlot: bestSlot,
	}
	if meta.HasHypotheses {
		s.hyps = &hypotheses{
			dir:      filepath.Join(dir, DirHypotheses),
			rows:     meta.Rows,
			slots:    meta.HypothesisCount,
			nChunks:  meta.Chunks,
			cur:      -1,
			cacheAll: opt.CacheAll,
		}
		if opt.CacheAll {
			s.hyps.all = make(map[int][]Hypothesis, meta.Chunks)
			s.hyps.dirtySet = roaring.New()
		}
	}
	return s, nil
}

// Dir returns the directory of the store.
func (s *ChunkedStore) Dir() string { return s.dir }

// Meta returns the metadata.
func (s *ChunkedStore) Meta() ChunkedMeta { return *s.meta }

// Len returns the number of rows.
func (s *ChunkedStore) Len() int { return s.t.Len() }

// WordsPerTag returns the number of 64-bit words of a tag.
func (s *ChunkedStore) WordsPerTag() int { return s.t.k }

// MaxVariants returns the maximum number of variants per row.
func (s *ChunkedStore) MaxVariants() int { return s.t.variants.max }

// Tag returns the tag of a row.
func (s *ChunkedStore) Tag(row int) (tag.Tag, error) { return s.t.Tag(row) }

// Get returns the best mapping of a row, without touching hypotheses.
func (s *ChunkedStore) Get(row int) (MappingRecord, error) { return s.t.Get(row) }

// Variants returns the variants of a row.
func (s *ChunkedStore) Variants(row int) ([]Variant, error) { return s.t.Variants(row) }

// Index returns the tag index.
func (s *ChunkedStore) Index() (*index.Index, error) { return s.t.Index() }

// Lookup returns the lowest row with the tag, or a negative
// -(insertion point + 1) if absent.
func (s *ChunkedStore) Lookup(tg tag.Tag) (int, error) { return s.t.Lookup(tg) }

// Table returns the resident columns as a table.
// Its rows can not be reordered or appended, Sort only refreshes the index.
func (s *ChunkedStore) Table() *Table { return s.t }

// BestSlot returns the hypothesis slot of the best mapping of a row,
// or MissingInt8 if unknown.
func (s *ChunkedStore) BestSlot(row int) (int8, error) {
	if err := s.t.checkRow(row); err != nil {
		return MissingInt8, err
	}
	return s.bestSlot[row], nil
}

func (s *ChunkedStore) checkWritable() error {
	if s.opt.ReadOnly {
		return errors.Wrap(ErrBackendState, "store opened in read-only mode")
	}
	return nil
}

// Set replaces the best mapping of a row.
func (s *ChunkedStore) Set(row int, r MappingRecord) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.t.Set(row, r); err != nil {
		return err
	}
	s.columnsDirty = true
	return nil
}

// SetMapP sets the map probability of the best mapping of a row.
func (s *ChunkedStore) SetMapP(row int, p float64) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.t.SetMapP(row, p); err != nil {
		return err
	}
	s.columnsDirty = true
	return nil
}

// SetVariants replaces the variants of a row.
func (s *ChunkedStore) SetVariants(row int, list []Variant) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.t.SetVariants(row, list); err != nil {
		return err
	}
	s.columnsDirty = true
	return nil
}

// AddVariant appends a variant to a row and returns its slot.
func (s *ChunkedStore) AddVariant(row int, offset, allele int8) (int, error) {
	if err := s.checkWritable(); err != nil {
		return -1, err
	}
	i, err := s.t.AddVariant(row, offset, allele)
	if err != nil {
		return i, err
	}
	s.columnsDirty = true
	return i, nil
}

// ClearVariants removes the variants of a row.
func (s *ChunkedStore) ClearVariants(row int) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.t.ClearVariants(row); err != nil {
		return err
	}
	s.columnsDirty = true
	return nil
}

// ExpandMaxVariants raises the maximum number of variants per row.
func (s *ChunkedStore) ExpandMaxVariants(newMax int) (bool, error) {
	if err := s.checkWritable(); err != nil {
		return false, err
	}
	ok, err := s.t.ExpandMaxVariants(newMax)
	if err != nil || !ok {
		return false, err
	}
	s.meta.MaxVariants = newMax
	s.columnsDirty = true
	return true, nil
}

// HasHypotheses tells whether the store has the hypothesis dataset.
func (s *ChunkedStore) HasHypotheses() bool { return s.hyps != nil }

// HypothesisCount returns the number of hypothesis slots per tag.
func (s *ChunkedStore) HypothesisCount() int { return s.meta.HypothesisCount }

func (s *ChunkedStore) checkSlot(row, slot int) error {
	if s.hyps == nil {
		return errors.Wrap(ErrBackendState, "no hypotheses in the store")
	}
	if err := s.t.checkRow(row); err != nil {
		return err
	}
	if slot < 0 || slot >= s.hyps.slots {
		return errors.Wrapf(ErrRowOutOfRange, "hypothesis slot %d of %d", slot, s.hyps.slots)
	}
	return nil
}

// Hypothesis returns a hypothesis of a row.
// The chunk containing the row is loaded if it is not in memory.
func (s *ChunkedStore) Hypothesis(row, slot int) (Hypothesis, error) {
	if err := s.checkSlot(row, slot); err != nil {
		return Hypothesis{}, err
	}
	data, err := s.hyps.load(row >> ChunkBits)
	if err != nil {
		return Hypothesis{}, err
	}
	return data[(row&(ChunkSize-1))*s.hyps.slots+slot], nil
}

// Hypotheses returns all hypotheses of a row.
func (s *ChunkedStore) Hypotheses(row int) ([]Hypothesis, error) {
	if err := s.checkSlot(row, 0); err != nil {
		return nil, err
	}
	data, err := s.hyps.load(row >> ChunkBits)
	if err != nil {
		return nil, err
	}
	i := (row & (ChunkSize - 1)) * s.hyps.slots
	hs := make([]Hypothesis, s.hyps.slots)
	copy(hs, data[i:i+s.hyps.slots])
	return hs, nil
}

// SetHypothesis replaces a hypothesis of a row.
// The change is kept in memory until the chunk is written.
func (s *ChunkedStore) SetHypothesis(row, slot int, h Hypothesis) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if err := s.checkSlot(row, slot); err != nil {
		return err
	}
	ci := row >> ChunkBits
	data, err := s.hyps.load(ci)
	if err != nil {
		return err
	}
	data[(row&(ChunkSize-1))*s.hyps.slots+slot] = h
	s.hyps.markDirty(ci)
	return nil
}

// UniqueMappingOfAligner returns the only rank-0 hypothesis of an aligner
// for a row. ok is false if the aligner has no rank-0 hypothesis, more
// than one, or an unmapped one.
func (s *ChunkedStore) UniqueMappingOfAligner(row int, aligner Aligner) (h Hypothesis, ok bool, err error) {
	hs, err := s.Hypotheses(row)
	if err != nil {
		return h, false, err
	}
	var n int
	for _, x := range hs {
		if x.Source != aligner || x.Rank != 0 {
			continue
		}
		if x.Empty() {
			return h, false, nil
		}
		n++
		if n > 1 {
			return h, false, nil
		}
		h = x
	}
	return h, n == 1, nil
}

// RecomputeBest scans all hypotheses and updates the best mappings.
// The best mapping is the first rank-0 hypothesis in slot order. The
// multi-map count is the number of distinct positions of all rank-0
// hypotheses, and positions are only kept for uniquely mapped tags.
func (s *ChunkedStore) RecomputeBest() error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if s.hyps == nil {
		return errors.Wrap(ErrBackendState, "no hypotheses in the store")
	}

	type site struct {
		chr    int32
		start  int32
		strand int8
	}
	sites := make(map[site]struct{}, s.hyps.slots)

	n := s.t.Len()
	slots := s.hyps.slots
	var best int
	var data []Hypothesis
	var err error
	var rec MappingRecord
	for ci := 0; ci<<ChunkBits < n; ci++ {
		if data, err = s.hyps.load(ci); err != nil {
			return err
		}
		start := ci << ChunkBits
		end := util.MinInt(start+ChunkSize, n)
		for row := start; row < end; row++ {
			hs := data[(row-start)*slots : (row-start+1)*slots]
			best = -1
			clear(sites)
			for j, h := range hs {
				if h.Rank != 0 || h.Empty() {
					continue
				}
				if best < 0 {
					best = j
				}
				sites[site{h.Chromosome, h.StartPosition, h.Strand}] = struct{}{}
			}

			if best < 0 {
				rec = MissingRecord()
				rec.MultiMaps = 0
				s.bestSlot[row] = MissingInt8
			} else {
				rec = hs[best].Record(int8(util.MinInt(len(sites), int(MultiMapMany))))
				if len(sites) > 1 {
					rec.Chromosome = MissingInt32
					rec.Strand = MissingInt8
					rec.StartPosition = MissingInt32
					rec.EndPosition = MissingInt32
				}
				s.bestSlot[row] = int8(best)
			}
			s.t.Set(row, rec)
		}
	}
	s.meta.HasBest = true
	s.columnsDirty = true
	return nil
}

// Flush writes modified hypothesis chunks and resident columns.
func (s *ChunkedStore) Flush() error {
	if s.hyps != nil {
		if err := s.hyps.flush(); err != nil {
			return errors.Wrap(err, "flush hypotheses")
		}
	}
	if s.columnsDirty {
		if err := writeColumns(s.dir, s.t, s.bestSlot); err != nil {
			return errors.Wrap(err, "write columns")
		}
		if err := writeChunkedMeta(filepath.Join(s.dir, FileMeta), s.meta); err != nil {
			return err
		}
		s.columnsDirty = false
	}
	return nil
}

// DirtyChunks returns the number of modified chunks in memory.
func (s *ChunkedStore) DirtyChunks() int {
	if s.hyps == nil {
		return 0
	}
	return s.hyps.dirtyChunks()
}

// Close flushes all changes. The store should not be used after Close.
func (s *ChunkedStore) Close() error {
	if err := s.Flush(); err != nil {
		return errors.Wrapf(err, "close %s", s.dir)
	}
	if s.hyps != nil {
		s.hyps.data = nil
		s.hyps.all = nil
		s.hyps.cur = -1
	}
	return nil
}

// ----------------------------------------------------------------------

func createGzipFile(file string) (*os.File, *pgzip.Writer, *bufio.Writer, error) {
	fh, err := os.Create(file)
	if err != nil {
		return nil, nil, nil, err
	}
	gw := pgzip.NewWriter(fh)
	return fh, gw, bufio.NewWriterSize(gw, BufferSize), nil
}

func closeGzipFile(fh *os.File, gw *pgzip.Writer, w *bufio.Writer) error {
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// writeColumns writes the resident columns of a table.
//
//	tags.bin.gz: delta-encoded group varints, word column by word column.
//	tagLength.bin.gz: one byte per row.
//	best.bin.gz: 18 bytes per row, multimaps, chromosome, strand, start,
//	  end, divergence, mapP, dcoP, and the best hypothesis slot.
//	variants.bin.gz: per row, the number of variants and pairs of offsets
//	  and alleles.
func writeColumns(dir string, t *Table, bestSlot []int8) error {
	n := t.Len()

	// tags
	fh, gw, w, err := createGzipFile(filepath.Join(dir, FileTags))
	if err != nil {
		return err
	}
	for _, col := range t.tags {
		if err = util.WriteDeltaUint64s(w, col); err != nil {
			fh.Close()
			return err
		}
	}
	if err = closeGzipFile(fh, gw, w); err != nil {
		return err
	}

	// tag lengths
	fh, gw, w, err = createGzipFile(filepath.Join(dir, FileTagLength))
	if err != nil {
		return err
	}
	if _, err = w.Write(t.length); err != nil {
		fh.Close()
		return err
	}
	if err = closeGzipFile(fh, gw, w); err != nil {
		return err
	}

	// best mappings
	fh, gw, w, err = createGzipFile(filepath.Join(dir, FileBest))
	if err != nil {
		return err
	}
	buf := make([]byte, bestRecordSize)
	for i := 0; i < n; i++ {
		buf[0] = byte(t.multimaps[i])
		be.PutUint32(buf[1:5], uint32(t.chr[i]))
		buf[5] = byte(t.strand[i])
		be.PutUint32(buf[6:10], uint32(t.start[i]))
		be.PutUint32(buf[10:14], uint32(t.end[i]))
		buf[14] = byte(t.div[i])
		buf[15] = byte(t.mapP[i])
		buf[16] = byte(t.dcoP[i])
		buf[17] = byte(bestSlot[i])
		if _, err = w.Write(buf); err != nil {
			fh.Close()
			return err
		}
	}
	if err = closeGzipFile(fh, gw, w); err != nil {
		return err
	}

	// variants
	fh, gw, w, err = createGzipFile(filepath.Join(dir, FileVariants))
	if err != nil {
		return err
	}
	var offs []int8
	for i := 0; i < n; i++ {
		offs = t.variants.offsets[i]
		w.WriteByte(byte(len(offs)))
		for j, o := range offs {
			w.WriteByte(byte(o))
			w.WriteByte(byte(t.variants.alleles[i][j]))
		}
	}
	return closeGzipFile(fh, gw, w)
}

func openGzipFile(file string) (*os.File, *bufio.Reader, error) {
	fh, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	gr, err := pgzip.NewReader(fh)
	if err != nil {
		fh.Close()
		return nil, nil, errors.Wrapf(ErrBrokenFile, "%s: %s", file, err)
	}
	return fh, bufio.NewReaderSize(gr, BufferSize), nil
}

func truncated(file string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF || err == util.ErrBrokenVarint {
		return errors.Wrap(ErrTruncatedFile, file)
	}
	return errors.Wrap(err, file)
}

// readColumns reads the resident columns into a table created with the
// right size.
func readColumns(dir string, t *Table, bestSlot []int8, hasBest bool) error {
	n := t.Len()

	file := filepath.Join(dir, FileTags)
	fh, r, err := openGzipFile(file)
	if err != nil {
		return err
	}
	for _, col := range t.tags {
		if err = util.ReadDeltaUint64s(r, col, n); err != nil {
			fh.Close()
			return truncated(file, err)
		}
	}
	fh.Close()

	file = filepath.Join(dir, FileTagLength)
	if fh, r, err = openGzipFile(file); err != nil {
		return err
	}
	if _, err = io.ReadFull(r, t.length); err != nil {
		fh.Close()
		return truncated(file, err)
	}
	fh.Close()

	if hasBest {
		file = filepath.Join(dir, FileBest)
		if fh, r, err = openGzipFile(file); err != nil {
			return err
		}
		buf := make([]byte, bestRecordSize)
		for i := 0; i < n; i++ {
			if _, err = io.ReadFull(r, buf); err != nil {
				fh.Close()
				return truncated(file, err)
			}
			t.multimaps[i] = int8(buf[0])
			t.chr[i] = int32(be.Uint32(buf[1:5]))
			t.strand[i] = int8(buf[5])
			t.start[i] = int32(be.Uint32(buf[6:10]))
			t.end[i] = int32(be.Uint32(buf[10:14]))
			t.div[i] = int8(buf[14])
			t.mapP[i] = int8(buf[15])
			t.dcoP[i] = int8(buf[16])
			bestSlot[i] = int8(buf[17])
		}
		fh.Close()
	}

	file = filepath.Join(dir, FileVariants)
	if fh, r, err = openGzipFile(file); err != nil {
		return err
	}
	defer fh.Close()
	var c byte
	buf := make([]byte, 2*127)
	for i := 0; i < n; i++ {
		if c, err = r.ReadByte(); err != nil {
			return truncated(file, err)
		}
		if c == 0 {
			continue
		}
		if int(c) > t.variants.max {
			return errors.Wrapf(ErrInvalidFileFormat, "%s: %d variants in row %d, the maximum is %d",
				file, c, i, t.variants.max)
		}
		if _, err = io.ReadFull(r, buf[:2*int(c)]); err != nil {
			return truncated(file, err)
		}
		offs := make([]int8, c)
		alls := make([]int8, c)
		for j := 0; j < int(c); j++ {
			offs[j] = int8(buf[2*j])
			alls[j] = int8(buf[2*j+1])
		}
		t.variants.offsets[i], t.variants.alleles[i] = offs, alls
	}
	return nil
}
