package neighbors

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/sky-flux/tutor"
)

// Embedding is one line of an embeddings file.
type Embedding struct {
	ID     string    `json:"id"`
	Vector []float64 `json:"vector"`
}

// ReadEmbeddings parses JSON lines of embeddings. Every vector must have
// the dimension of the first one.
func ReadEmbeddings(r io.Reader) ([]Embedding, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	var out []Embedding
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Embedding
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidEmbedding, line, err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	return out, nil
}

// LoadEmbeddings reads an embeddings file.
func LoadEmbeddings(path string) ([]Embedding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open embeddings: %w", err)
	}
	defer f.Close()
	return ReadEmbeddings(f)
}

// Build computes the topK nearest neighbors of every embedding by cosine
// similarity. Zero vectors have no neighbors and appear in no list.
// The context is checked once per source item.
func Build(ctx context.Context, embs []Embedding, topK int) (*Index, error) {
	unit, err := normalizeVectors(embs)
	if err != nil {
		return nil, err
	}

	ix := NewIndex(topK)
	type cand struct {
		id    string
		score float64
	}
	cands := make([]cand, 0, len(embs))

	for i, src := range embs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cands = cands[:0]
		if unit[i] != nil {
			for j, dst := range embs {
				if i == j || unit[j] == nil {
					continue
				}
				cands = append(cands, cand{dst.ID, clampCosine(dot(unit[i], unit[j]))})
			}
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].score != cands[b].score {
				return cands[a].score > cands[b].score
			}
			return cands[a].id < cands[b].id
		})
		if len(cands) > ix.topK {
			cands = cands[:ix.topK]
		}

		n := make([]string, len(cands))
		s := make([]float64, len(cands))
		for k, c := range cands {
			n[k], s[k] = c.id, c.score
		}
		if err := ix.Put(src.ID, tutor.Neighbors{IDs: n, Scores: s}); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// normalizeVectors checks ids and dimensions and returns unit vectors.
// Zero or non-finite vectors map to nil.
func normalizeVectors(embs []Embedding) ([][]float64, error) {
	unit := make([][]float64, len(embs))
	seen := make(map[string]bool, len(embs))
	dim := -1
	for i, e := range embs {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidEmbedding, i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidEmbedding, e.ID)
		}
		seen[e.ID] = true
		if dim < 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: %s has dimension %d, want %d",
				ErrInvalidEmbedding, e.ID, len(e.Vector), dim)
		}

		norm := math.Sqrt(dot(e.Vector, e.Vector))
		if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
			continue
		}
		u := make([]float64, dim)
		for k, x := range e.Vector {
			u[k] = x / norm
		}
		unit[i] = u
	}
	return unit, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// clampCosine absorbs rounding that pushes a cosine just outside [-1, 1].
func clampCosine(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
