package vector

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
)

// HNSWConfig tunes the HNSW graph.
type HNSWConfig struct {
	// M is the maximum neighbours per node on upper layers; layer 0 allows 2*M. Default 16.
	M int `yaml:"m"`
	// EfConstruction is the candidate list size while inserting. Default 200.
	EfConstruction int `yaml:"ef_construction"`
	// EfSearch is the candidate list size while querying. Default 64.
	EfSearch int `yaml:"ef_search"`
	// Seed fixes level generation when non-zero.
	Seed uint64 `yaml:"seed,omitempty"`
}

func (c *HNSWConfig) setDefaults() {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 64
	}
}

func (c *HNSWConfig) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

type candidate struct {
	pos  uint32
	dist float64
}

// nearHeap pops the closest candidate first.
type nearHeap []candidate

func (h nearHeap) Len() int           { return len(h) }
func (h nearHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h nearHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nearHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *nearHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// farHeap pops the farthest candidate first.
type farHeap []candidate

func (h farHeap) Len() int           { return len(h) }
func (h farHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h farHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *farHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type hnswNode struct {
	level   int
	friends [][]uint32 // friends[layer]
	inbound []int      // links pointing at this node per layer, rebuilt on load
	alias   int32      // row this one duplicates, or -1 for a graph node
	dups    []uint32   // rows aliased to this node
}

// HNSWIndex is an approximate nearest-neighbour graph over a shared Matrix.
// Node i is matrix row i; the graph stores links only. Distance is 1 - inner product.
// A row identical to an earlier one is not linked; it rides along with that row in results.
type HNSWIndex struct {
	mu       sync.RWMutex
	cfg      HNSWConfig
	matrix   *Matrix
	nodes    []hnswNode
	byVector map[uint64][]uint32 // row hash -> graph nodes with that hash
	entry    int32
	maxLevel int
	levelMul float64
	rng      *rand.Rand
}

// NewHNSWIndex creates an empty graph reading rows from m.
func NewHNSWIndex(m *Matrix, cfg HNSWConfig) (*HNSWIndex, error) {
	if m == nil {
		return nil, fmt.Errorf("matrix is required")
	}
	cfg.setDefaults()
	h := &HNSWIndex{
		cfg:      cfg,
		matrix:   m,
		byVector: make(map[uint64][]uint32),
		entry:    -1,
		levelMul: 1.0 / math.Log(float64(cfg.M)),
	}
	if cfg.Seed != 0 {
		h.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	return h, nil
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Len returns the number of rows indexed, duplicates included.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Close is a no-op for HNSWIndex.
func (h *HNSWIndex) Close() error { return nil }

// Add links the given rows into the graph. They must already be in the matrix.
func (h *HNSWIndex) Add(ctx context.Context, vectors [][]float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.nodes)+len(vectors) > h.matrix.Rows() {
		return fmt.Errorf("hnsw index ahead of matrix: %d+%d > %d rows", len(h.nodes), len(vectors), h.matrix.Rows())
	}
	for _, v := range vectors {
		if len(v) != h.matrix.Dim() {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), h.matrix.Dim())
		}
	}
	for range vectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.insertLocked()
	}
	return nil
}

// insertLocked links the next matrix row. Caller holds h.mu for writing.
func (h *HNSWIndex) insertLocked() {
	pos := uint32(len(h.nodes))
	vec := h.matrix.Row(int(pos))
	key := hashRow(vec)
	if orig, ok := h.findDuplicate(key, vec); ok {
		h.nodes = append(h.nodes, hnswNode{alias: int32(orig)})
		h.nodes[orig].dups = append(h.nodes[orig].dups, pos)
		return
	}
	h.byVector[key] = append(h.byVector[key], pos)

	level := h.randomLevel()
	h.nodes = append(h.nodes, hnswNode{
		level:   level,
		friends: make([][]uint32, level+1),
		inbound: make([]int, level+1),
		alias:   -1,
	})

	if h.entry < 0 {
		h.entry = int32(pos)
		h.maxLevel = level
		return
	}

	cur := h.greedy(vec, uint32(h.entry), h.maxLevel, level)

	ep := []uint32{cur}
	for lev := min(level, h.maxLevel); lev >= 0; lev-- {
		cands := h.searchLayer(vec, ep, h.cfg.EfConstruction, lev)
		maxC := h.cfg.maxConns(lev)
		h.setFriends(pos, lev, h.selectClosest(vec, cands, maxC))

		for _, n := range h.nodes[pos].friends[lev] {
			if lev > h.nodes[n].level {
				continue
			}
			links := append(slices.Clone(h.nodes[n].friends[lev]), pos)
			if len(links) > maxC {
				links = h.pruneLinks(n, lev, links, maxC)
			}
			h.setFriends(n, lev, links)
		}
		ep = cands
	}

	if level > h.maxLevel {
		h.entry = int32(pos)
		h.maxLevel = level
	}
}

// findDuplicate returns the graph node whose row equals vec.
func (h *HNSWIndex) findDuplicate(key uint64, vec []float32) (uint32, bool) {
	for _, p := range h.byVector[key] {
		if slices.Equal(h.matrix.Row(int(p)), vec) {
			return p, true
		}
	}
	return 0, false
}

func hashRow(vec []float32) uint64 {
	hf := fnv.New64a()
	var b [4]byte
	for _, x := range vec {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(x))
		hf.Write(b[:])
	}
	return hf.Sum64()
}

// setFriends replaces n's links on layer lev and keeps inbound counts in step.
func (h *HNSWIndex) setFriends(n uint32, lev int, links []uint32) {
	for _, f := range h.nodes[n].friends[lev] {
		h.nodes[f].inbound[lev]--
	}
	for _, f := range links {
		h.nodes[f].inbound[lev]++
	}
	h.nodes[n].friends[lev] = links
}

// pruneLinks cuts n's candidate links on layer lev down to the maxC closest. A link that
// is the last one pointing at its target survives the cut: it takes the place of the
// farthest kept link whose target is reachable some other way, or is kept beyond maxC.
func (h *HNSWIndex) pruneLinks(n uint32, lev int, links []uint32, maxC int) []uint32 {
	kept := h.selectClosest(h.matrix.Row(int(n)), links, maxC)
	current := h.nodes[n].friends[lev]
	otherInbound := func(p uint32) int {
		c := h.nodes[p].inbound[lev]
		if slices.Contains(current, p) {
			c--
		}
		return c
	}

	var orphans []uint32
	for _, p := range links {
		if !slices.Contains(kept, p) && otherInbound(p) == 0 {
			orphans = append(orphans, p)
		}
	}
	j := len(kept) - 1
	for _, o := range orphans {
		for j >= 0 && otherInbound(kept[j]) == 0 {
			j--
		}
		if j < 0 {
			kept = append(kept, o)
			continue
		}
		kept[j] = o
		j--
	}
	return kept
}

// Search returns the k closest rows found by beam search. Graphs no larger than the
// search beam, and all-zero queries, are answered by scoring every row.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != h.matrix.Dim() {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.matrix.Dim())
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if k <= 0 || len(h.nodes) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ef := max(h.cfg.EfSearch, k)
	if len(h.nodes) <= ef || isZero(query) {
		return scanRows(ctx, h.matrix, len(h.nodes), query, k)
	}
	cur := h.greedy(query, uint32(h.entry), h.maxLevel, 0)
	cands := h.searchLayer(query, []uint32{cur}, ef, 0)

	hits := make([]Hit, 0, len(cands))
	for _, c := range cands {
		score := finiteScore(InnerProduct(query, h.matrix.Row(int(c))))
		hits = append(hits, Hit{Position: c, Score: score})
		for _, d := range h.nodes[c].dups {
			hits = append(hits, Hit{Position: d, Score: score})
		}
	}
	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func isZero(x []float32) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}

func (h *HNSWIndex) distance(q []float32, pos uint32) float64 {
	return 1 - finiteScore(InnerProduct(q, h.matrix.Row(int(pos))))
}

// greedy walks from start down to layer stop+1 keeping only the single closest node.
func (h *HNSWIndex) greedy(q []float32, start uint32, from, stop int) uint32 {
	cur := start
	curDist := h.distance(q, cur)
	for lev := from; lev > stop; lev-- {
		for changed := true; changed; {
			changed = false
			nd := h.nodes[cur]
			if lev >= len(nd.friends) {
				break
			}
			for _, f := range nd.friends[lev] {
				if d := h.distance(q, f); d < curDist {
					cur, curDist, changed = f, d, true
				}
			}
		}
	}
	return cur
}

// searchLayer is a beam search on one layer returning up to ef positions.
func (h *HNSWIndex) searchLayer(q []float32, entryPoints []uint32, ef, layer int) []uint32 {
	visited := make(map[uint32]struct{}, ef*2)
	var cands nearHeap
	var results farHeap

	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		c := candidate{pos: ep, dist: h.distance(q, ep)}
		heap.Push(&cands, c)
		heap.Push(&results, c)
		if results.Len() > ef {
			heap.Pop(&results)
		}
	}

	for cands.Len() > 0 {
		closest := heap.Pop(&cands).(candidate)
		if results.Len() >= ef && closest.dist > results[0].dist {
			break
		}
		nd := h.nodes[closest.pos]
		if layer >= len(nd.friends) {
			continue
		}
		for _, f := range nd.friends[layer] {
			if _, seen := visited[f]; seen {
				continue
			}
			visited[f] = struct{}{}
			d := h.distance(q, f)
			// Ties are explored as well.
			if results.Len() < ef || d <= results[0].dist {
				heap.Push(&cands, candidate{pos: f, dist: d})
				heap.Push(&results, candidate{pos: f, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = results[i].pos
	}
	return out
}

// selectClosest keeps the maxN candidates nearest to q.
func (h *HNSWIndex) selectClosest(q []float32, cands []uint32, maxN int) []uint32 {
	if len(cands) <= maxN {
		out := make([]uint32, len(cands))
		copy(out, cands)
		return out
	}
	scored := make([]candidate, len(cands))
	for i, c := range cands {
		scored[i] = candidate{pos: c, dist: h.distance(q, c)}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].dist != scored[j].dist {
			return scored[i].dist < scored[j].dist
		}
		return scored[i].pos < scored[j].pos
	})
	out := make([]uint32, maxN)
	for i := range out {
		out[i] = scored[i].pos
	}
	return out
}

// randomLevel draws a layer with P(level >= l) = M^-l, capped at 31.
func (h *HNSWIndex) randomLevel() int {
	var r float64
	if h.rng != nil {
		r = h.rng.Float64()
	} else {
		r = rand.Float64()
	}
	r = max(r, math.SmallestNonzeroFloat64)
	return min(int(-math.Log(r)*h.levelMul), 31)
}
