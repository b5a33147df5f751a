// Package extsort implements a bounded-memory external sort and merge
// over (key, value) byte pairs (§4.H): entries accumulate in memory up
// to a configured budget, spill to compressed temp-file runs once that
// budget is exceeded, and are streamed back out in sorted order with
// duplicate keys resolved by a pluggable MergeFunc.
package extsort

import (
	"bufio"
	"bytes"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
)

// Config configures a Sorter's memory budget, spill behavior, and
// duplicate-key resolution policy.
type Config struct {
	// MaxMemoryBytes bounds how many bytes of (key, value) pairs are
	// held in memory before a run is spilled to disk.
	MaxMemoryBytes int
	// MaxNbChunks bounds how many spilled run files may accumulate: once
	// a spill pushes the count past it, every run is merged into a
	// single run file. Zero disables the bound.
	MaxNbChunks int
	// Codec compresses spilled run files.
	Codec Codec
	// CompressionLevel is passed to codecs that support tunable levels.
	CompressionLevel int
	// Merge resolves multiple values accumulated under the same key
	// during a drain. New defaults it to KeepLatest when left nil.
	Merge MergeFunc
	// TempDir is the directory spilled run files are created in. Empty
	// uses the OS default temp directory.
	TempDir string
}

type entry struct {
	key   []byte
	value []byte
	seq   int
}

// Sorter accumulates (key, value) pairs and, once Drain is called,
// yields them back in ascending key order with duplicates resolved by
// Config.Merge. It is not safe for concurrent use.
type Sorter struct {
	cfg      Config
	buffer   []entry
	memUsed  int
	seq      int
	runFiles []string
	closed   bool
}

// New returns a Sorter configured by cfg.
func New(cfg Config) *Sorter {
	if cfg.Merge == nil {
		cfg.Merge = KeepLatest
	}
	return &Sorter{cfg: cfg}
}

// Insert stages a (key, value) pair, spilling the current in-memory
// buffer to a run file once the configured memory budget is exceeded.
func (s *Sorter) Insert(key, value []byte) error {
	if s.closed {
		return fmt.Errorf("extsort: Insert called after Drain")
	}
	keyCopy := append([]byte(nil), key...)
	valueCopy := append([]byte(nil), value...)
	s.buffer = append(s.buffer, entry{key: keyCopy, value: valueCopy, seq: s.seq})
	s.seq++
	s.memUsed += len(keyCopy) + len(valueCopy)

	if s.cfg.MaxMemoryBytes > 0 && s.memUsed >= s.cfg.MaxMemoryBytes {
		return s.spill()
	}
	return nil
}

// spill sorts the current buffer and writes it to a new compressed run
// file, then clears the in-memory buffer.
func (s *Sorter) spill() error {
	if len(s.buffer) == 0 {
		return nil
	}
	sortEntriesStable(s.buffer)

	f, err := os.CreateTemp(s.cfg.TempDir, "docingest-extsort-*.run")
	if err != nil {
		return fmt.Errorf("extsort: creating run file: %w", err)
	}
	defer f.Close()

	writer, err := newWriter(s.cfg.Codec, s.cfg.CompressionLevel, bufio.NewWriter(f))
	if err != nil {
		return fmt.Errorf("extsort: opening run writer: %w", err)
	}
	for _, e := range s.buffer {
		if err := writeEntry(writer, e.key, e.value); err != nil {
			writer.Close()
			return fmt.Errorf("extsort: writing run entry: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("extsort: closing run writer: %w", err)
	}

	s.runFiles = append(s.runFiles, f.Name())
	s.buffer = nil
	s.memUsed = 0

	if s.cfg.MaxNbChunks > 0 && len(s.runFiles) > s.cfg.MaxNbChunks {
		return s.compactRuns()
	}
	return nil
}

// compactRuns merges every spilled run file into a single new run,
// keeping the number of simultaneously open run files bounded by
// Config.MaxNbChunks regardless of how many times Insert triggers a
// spill.
func (s *Sorter) compactRuns() error {
	readers := make([]*runReader, 0, len(s.runFiles))
	for _, path := range s.runFiles {
		r, err := openRun(path, s.cfg.Codec)
		if err != nil {
			for _, opened := range readers {
				opened.close()
			}
			return fmt.Errorf("extsort: opening run for compaction: %w", err)
		}
		readers = append(readers, r)
	}

	it := &Iterator{sorter: s, runs: readers}
	if err := it.init(); err != nil {
		it.Close()
		return err
	}

	f, err := os.CreateTemp(s.cfg.TempDir, "docingest-extsort-compact-*.run")
	if err != nil {
		it.Close()
		return fmt.Errorf("extsort: creating compacted run file: %w", err)
	}
	defer f.Close()

	writer, err := newWriter(s.cfg.Codec, s.cfg.CompressionLevel, bufio.NewWriter(f))
	if err != nil {
		it.Close()
		return fmt.Errorf("extsort: opening compacted run writer: %w", err)
	}
	for {
		key, value, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			writer.Close()
			it.Close()
			return fmt.Errorf("extsort: compacting runs: %w", err)
		}
		if err := writeEntry(writer, key, value); err != nil {
			writer.Close()
			it.Close()
			return fmt.Errorf("extsort: writing compacted run entry: %w", err)
		}
	}
	it.Close()
	if err := writer.Close(); err != nil {
		return fmt.Errorf("extsort: closing compacted run writer: %w", err)
	}

	s.runFiles = []string{f.Name()}
	return nil
}

func sortEntriesStable(entries []entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
}

// writeEntry frames a (key, value) pair as
// [4-byte BE key length][key][4-byte BE value length][value].
func writeEntry(w io.Writer, key, value []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(key)))
	binary.BigEndian.PutUint32(header[4:], uint32(len(value)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	_, err := w.Write(value)
	return err
}

func readEntry(r io.Reader) (key, value []byte, err error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, err
	}
	keyLen := binary.BigEndian.Uint32(header[:4])
	valueLen := binary.BigEndian.Uint32(header[4:])

	key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, err
	}
	value = make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// runReader reads entries back out of a single spilled run file.
type runReader struct {
	file   *os.File
	reader io.ReadCloser
}

func openRun(path string, codec Codec) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := newReader(codec, bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &runReader{file: f, reader: reader}, nil
}

func (r *runReader) next() (key, value []byte, err error) {
	return readEntry(r.reader)
}

func (r *runReader) close() {
	r.reader.Close()
	r.file.Close()
	os.Remove(r.file.Name())
}

// heapItem is one source's current front entry in the k-way merge.
type heapItem struct {
	key    []byte
	value  []byte
	seq    int
	source int // index into the iterator's runs slice; -1 means the in-memory buffer
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	return h[i].seq < h[j].seq
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Iterator streams merged (key, value) pairs out of a Sorter in
// ascending key order.
type Iterator struct {
	sorter  *Sorter
	runs    []*runReader
	memIdx  int
	heap    mergeHeap
	started bool
}

// Drain finalizes insertion and returns an Iterator over every inserted
// pair, sorted by key with duplicates resolved by Config.Merge. No
// further Insert calls are permitted once Drain has been called.
func (s *Sorter) Drain() (*Iterator, error) {
	if s.closed {
		return nil, fmt.Errorf("extsort: Drain called twice")
	}
	s.closed = true
	sortEntriesStable(s.buffer)

	runs := make([]*runReader, 0, len(s.runFiles))
	for _, path := range s.runFiles {
		r, err := openRun(path, s.cfg.Codec)
		if err != nil {
			for _, opened := range runs {
				opened.close()
			}
			return nil, fmt.Errorf("extsort: opening spilled run: %w", err)
		}
		runs = append(runs, r)
	}

	it := &Iterator{sorter: s, runs: runs}
	if err := it.init(); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

func (it *Iterator) init() error {
	heap.Init(&it.heap)
	for i, r := range it.runs {
		key, value, err := r.next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return err
		}
		// Run entries sort before every in-memory entry (seq >= 0) and,
		// among runs, in spill order, so equal keys merge in insertion order.
		heap.Push(&it.heap, heapItem{key: key, value: value, seq: i - len(it.runs), source: i})
	}
	it.pushMemEntry()
	it.started = true
	return nil
}

func (it *Iterator) pushMemEntry() {
	if it.memIdx >= len(it.sorter.buffer) {
		return
	}
	e := it.sorter.buffer[it.memIdx]
	it.memIdx++
	heap.Push(&it.heap, heapItem{key: e.key, value: e.value, seq: e.seq, source: -1})
}

func (it *Iterator) advance(source int) error {
	if source == -1 {
		it.pushMemEntry()
		return nil
	}
	key, value, err := it.runs[source].next()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	heap.Push(&it.heap, heapItem{key: key, value: value, seq: source - len(it.runs), source: source})
	return nil
}

// Next returns the next merged (key, value) pair in ascending key
// order. It returns io.EOF once every source is exhausted.
func (it *Iterator) Next() (key, value []byte, err error) {
	if it.heap.Len() == 0 {
		return nil, nil, io.EOF
	}

	top := heap.Pop(&it.heap).(heapItem)
	if err := it.advance(top.source); err != nil {
		return nil, nil, err
	}

	currentKey := top.key
	values := [][]byte{top.value}

	for it.heap.Len() > 0 && bytes.Equal(it.heap[0].key, currentKey) {
		next := heap.Pop(&it.heap).(heapItem)
		if err := it.advance(next.source); err != nil {
			return nil, nil, err
		}
		values = append(values, next.value)
	}

	if len(values) == 1 {
		return currentKey, values[0], nil
	}
	merged, err := it.sorter.cfg.Merge(currentKey, values)
	if err != nil {
		return nil, nil, err
	}
	return currentKey, merged, nil
}

// Close releases any open run files. It is safe to call multiple times
// and should be called even after Next returns io.EOF to clean up the
// underlying temp files.
func (it *Iterator) Close() {
	for _, r := range it.runs {
		r.close()
	}
	it.runs = nil
}
