package store

import (
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex is an in-memory HNSW graph over string-keyed vectors.
// It serves the unfiltered knn fast path; filtered knn brute-forces over
// the SQL-selected candidate set instead.
type VectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dim   int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// VectorHit is one knn result.
type VectorHit struct {
	ID       string
	Distance float64
}

// NewVectorIndex creates an empty index for vectors of the given dimension.
func NewVectorIndex(dim int) *VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		dim:    dim,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts or replaces a vector. Vectors of the wrong length are
// padded or truncated to the index dimension.
func (v *VectorIndex) Add(id string, vec []float32) {
	if len(vec) != v.dim {
		fixed := make([]float32, v.dim)
		copy(fixed, vec)
		vec = fixed
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.idMap[id]; ok {
		v.graph.Delete(key)
		delete(v.keyMap, key)
		delete(v.idMap, id)
	}

	key := v.nextKey
	v.nextKey++
	v.idMap[id] = key
	v.keyMap[key] = id
	v.graph.Add(hnsw.MakeNode(key, vec))
}

// Delete removes a vector by id. Missing ids are ignored.
func (v *VectorIndex) Delete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.idMap[id]; ok {
		v.graph.Delete(key)
		delete(v.keyMap, key)
		delete(v.idMap, id)
	}
}

// Search returns up to k nearest neighbors with cosine distances.
func (v *VectorIndex) Search(vec []float32, k int) []VectorHit {
	if len(vec) != v.dim {
		fixed := make([]float32, v.dim)
		copy(fixed, vec)
		vec = fixed
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	neighbors := v.graph.Search(vec, k)
	hits := make([]VectorHit, 0, len(neighbors))
	for _, n := range neighbors {
		id, ok := v.keyMap[n.Key]
		if !ok {
			continue
		}
		hits = append(hits, VectorHit{ID: id, Distance: cosineDistance(vec, n.Value)})
	}
	return hits
}

// Len returns the number of indexed vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}
