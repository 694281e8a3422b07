package gallery

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// HNSWMaxNeighbors is the M parameter of the graph
	HNSWMaxNeighbors = 16

	// exactSearchLimit is the gallery size up to which Nearest scans every
	// entry instead of querying the graph
	exactSearchLimit = 256

	// graphCandidates is how many graph neighbours are re-ranked exactly
	graphCandidates = 8

	graphSeed = 1
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is one embedded gallery reference.
type Entry struct {
	Filename  string
	Embedding []float32
}

// Neighbor is the nearest gallery entry for a query.
type Neighbor struct {
	Filename string
	Distance float64
}

// snapshot is immutable once published.
type snapshot struct {
	graph   *hnsw.Graph[string]
	vectors map[string][]float32
	names   []string
	dims    int
}

// Index holds the current gallery snapshot. Readers search a snapshot
// without holding the lock; Replace swaps in a new one.
type Index struct {
	mu   sync.RWMutex
	snap *snapshot
}

func NewIndex() *Index {
	return &Index{snap: &snapshot{vectors: map[string][]float32{}}}
}

// Replace builds a snapshot from entries and publishes it. Entries whose
// dimension differs from the first usable entry are returned as skipped.
func (ix *Index) Replace(entries []Entry) (skipped []string) {
	next, skipped := buildSnapshot(entries)

	ix.mu.Lock()
	ix.snap = next
	ix.mu.Unlock()

	return skipped
}

func (ix *Index) current() *snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.snap
}

// Len reports the number of indexed references.
func (ix *Index) Len() int {
	return len(ix.current().names)
}

// Filenames returns the indexed reference names in sorted order.
func (ix *Index) Filenames() []string {
	names := ix.current().names
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Nearest returns the closest entry to query. ok is false for an empty index.
// Ties are broken by filename so results are reproducible.
func (ix *Index) Nearest(query []float32) (Neighbor, bool, error) {
	snap := ix.current()
	if len(snap.names) == 0 {
		return Neighbor{}, false, nil
	}
	if len(query) != snap.dims {
		return Neighbor{}, false, fmt.Errorf("%w: query %d, gallery %d", ErrDimensionMismatch, len(query), snap.dims)
	}

	candidates := snap.names
	if snap.graph != nil {
		nodes := snap.graph.Search(query, graphCandidates)
		candidates = make([]string, 0, len(nodes))
		for _, n := range nodes {
			candidates = append(candidates, n.Key)
		}
	}

	best := Neighbor{Distance: 2}
	for _, name := range candidates {
		d := CosineDistance(query, snap.vectors[name])
		if d < best.Distance || (d == best.Distance && name < best.Filename) {
			best = Neighbor{Filename: name, Distance: d}
		}
	}

	if best.Filename == "" {
		return Neighbor{}, false, nil
	}
	return best, true, nil
}

func buildSnapshot(entries []Entry) (*snapshot, []string) {
	sorted := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) > 0 {
			sorted = append(sorted, e)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	snap := &snapshot{vectors: make(map[string][]float32, len(sorted))}
	var skipped []string

	for _, e := range sorted {
		if snap.dims == 0 {
			snap.dims = len(e.Embedding)
		}
		if len(e.Embedding) != snap.dims {
			skipped = append(skipped, e.Filename)
			continue
		}
		if _, dup := snap.vectors[e.Filename]; dup {
			continue
		}
		snap.vectors[e.Filename] = e.Embedding
		snap.names = append(snap.names, e.Filename)
	}

	if len(snap.names) > exactSearchLimit {
		g := hnsw.NewGraph[string]()
		g.M = HNSWMaxNeighbors
		g.Ml = 1.0 / float64(HNSWMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		g.Rng = rand.New(rand.NewSource(graphSeed))

		for _, name := range snap.names {
			g.Add(hnsw.MakeNode(name, snap.vectors[name]))
		}
		snap.graph = g
	}

	return snap, skipped
}
