// Package neighbors supplies item similarity to the engine.
//
// An [Index] holds precomputed nearest neighbors in memory and reads and
// writes them as JSON lines:
//
//	{"id":"q1","neighbors":["q7","q3"],"scores":[0.91,0.74]}
//
// [Build] computes an index from item embeddings by cosine similarity, and
// [RedisSource] serves the same records from Redis for deployments where
// several processes share one table.
package neighbors

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sky-flux/tutor"
)

// DefaultTopK is the number of neighbors kept per item when no limit is given.
const DefaultTopK = 100

var (
	// ErrInvalidRecord is returned for neighbor records that cannot be used.
	ErrInvalidRecord = errors.New("neighbors: invalid record")

	// ErrInvalidEmbedding is returned for malformed embedding input.
	ErrInvalidEmbedding = errors.New("neighbors: invalid embedding")
)

// Record is the line format of a neighbor file and of Redis values.
type Record struct {
	ID        string    `json:"id"`
	Neighbors []string  `json:"neighbors"`
	Scores    []float64 `json:"scores"`
}

func (r Record) neighbors() tutor.Neighbors {
	return tutor.Neighbors{IDs: r.Neighbors, Scores: r.Scores}
}

// normalize validates n for the source item id, drops the item itself,
// sorts by descending similarity and keeps at most topK entries.
func normalize(id string, n tutor.Neighbors, topK int) (tutor.Neighbors, error) {
	if id == "" {
		return tutor.Neighbors{}, fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if len(n.IDs) != len(n.Scores) {
		return tutor.Neighbors{}, fmt.Errorf("%w: %s has %d neighbors and %d scores",
			ErrInvalidRecord, id, len(n.IDs), len(n.Scores))
	}

	type pair struct {
		id    string
		score float64
	}
	pairs := make([]pair, 0, len(n.IDs))
	seen := make(map[string]bool, len(n.IDs))
	for i, nid := range n.IDs {
		s := n.Scores[i]
		if math.IsNaN(s) || s < -1 || s > 1 {
			return tutor.Neighbors{}, fmt.Errorf("%w: %s score %v for %s outside [-1, 1]",
				ErrInvalidRecord, id, s, nid)
		}
		if nid == "" || nid == id || seen[nid] {
			continue
		}
		seen[nid] = true
		pairs = append(pairs, pair{nid, s})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	if len(pairs) > topK {
		pairs = pairs[:topK]
	}

	out := tutor.Neighbors{IDs: make([]string, len(pairs)), Scores: make([]float64, len(pairs))}
	for i, p := range pairs {
		out.IDs[i], out.Scores[i] = p.id, p.score
	}
	return out, nil
}

// Index is an in-memory neighbor table. It is safe for concurrent use.
type Index struct {
	topK int

	mu    sync.RWMutex
	table map[string]tutor.Neighbors
}

// NewIndex returns an empty index keeping at most topK neighbors per item.
// A non-positive topK means DefaultTopK.
func NewIndex(topK int) *Index {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Index{topK: topK, table: make(map[string]tutor.Neighbors)}
}

// Put validates and stores the neighbors of id, replacing earlier ones.
func (ix *Index) Put(id string, n tutor.Neighbors) error {
	n, err := normalize(id, n, ix.topK)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	ix.table[id] = n
	ix.mu.Unlock()
	return nil
}

// Get returns the neighbors of id. The result shares no memory with the index.
func (ix *Index) Get(id string) (tutor.Neighbors, bool) {
	ix.mu.RLock()
	n, ok := ix.table[id]
	ix.mu.RUnlock()
	if !ok {
		return tutor.Neighbors{}, false
	}
	return tutor.Neighbors{
		IDs:    append([]string(nil), n.IDs...),
		Scores: append([]float64(nil), n.Scores...),
	}, true
}

// Lookup adapts the index to the engine's lookup signature.
func (ix *Index) Lookup() tutor.NeighborLookup {
	return ix.Get
}

// Len returns the number of source items.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.table)
}

// IDs returns the source item ids in sorted order.
func (ix *Index) IDs() []string {
	ix.mu.RLock()
	ids := make([]string, 0, len(ix.table))
	for id := range ix.table {
		ids = append(ids, id)
	}
	ix.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Records returns the index content in id order.
func (ix *Index) Records() []Record {
	ids := ix.IDs()
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		n, ok := ix.Get(id)
		if !ok {
			continue
		}
		out = append(out, Record{ID: id, Neighbors: n.IDs, Scores: n.Scores})
	}
	return out
}

// ReadIndex parses JSON lines from r. Blank lines are ignored; any other
// malformed line fails the whole read with its line number.
func ReadIndex(r io.Reader, topK int) (*Index, error) {
	ix := NewIndex(topK)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidRecord, line, err)
		}
		if err := ix.Put(rec.ID, rec.neighbors()); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read neighbors: %w", err)
	}
	return ix, nil
}

// LoadIndex reads an index file written by Save.
func LoadIndex(path string, topK int) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open neighbors: %w", err)
	}
	defer f.Close()
	return ReadIndex(f, topK)
}

// Write encodes the index as JSON lines in id order.
func (ix *Index) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, rec := range ix.Records() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode %s: %w", rec.ID, err)
		}
	}
	return bw.Flush()
}

// Save writes the index to path through a temporary file and rename.
func (ix *Index) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".neighbors-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := ix.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
