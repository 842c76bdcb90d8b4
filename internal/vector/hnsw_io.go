package vector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var hnswMagic = [4]byte{'R', 'J', 'H', 'G'}

const hnswVersion uint32 = 2

// aliasLevel marks a node record that duplicates an earlier row instead of carrying links.
const aliasLevel = math.MaxUint32

// ErrCorruptGraph is returned when a saved graph cannot be decoded or does not fit the matrix.
var ErrCorruptGraph = errors.New("corrupt hnsw graph")

// Save writes the graph links to path. Vectors are not written; they live in the matrix.
//
// Format:
//
//	[4B magic "RJHG"] [4B version]
//	[4B dim] [4B M] [4B efConstruction] [4B efSearch]
//	[4B nodes] [4B maxLevel] [4B entry (int32)]
//	per node: [4B level] then per layer 0..level: [4B count] [count × 4B positions]
//	          or [4B 0xFFFFFFFF] [4B duplicated row] for a row equal to an earlier one
func (h *HNSWIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := h.encode(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush graph: %w", err)
	}
	return f.Sync()
}

func (h *HNSWIndex) encode(w io.Writer) error {
	write := func(v any) error { return binary.Write(w, binary.LittleEndian, v) }

	if _, err := w.Write(hnswMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	header := []any{
		hnswVersion,
		uint32(h.matrix.Dim()),
		uint32(h.cfg.M),
		uint32(h.cfg.EfConstruction),
		uint32(h.cfg.EfSearch),
		uint32(len(h.nodes)),
		uint32(h.maxLevel),
		h.entry,
	}
	for _, v := range header {
		if err := write(v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, nd := range h.nodes {
		if nd.alias >= 0 {
			if err := write([]uint32{aliasLevel, uint32(nd.alias)}); err != nil {
				return err
			}
			continue
		}
		if err := write(uint32(nd.level)); err != nil {
			return err
		}
		for lev := 0; lev <= nd.level; lev++ {
			var friends []uint32
			if lev < len(nd.friends) {
				friends = nd.friends[lev]
			}
			if err := write(uint32(len(friends))); err != nil {
				return err
			}
			if len(friends) > 0 {
				if err := write(friends); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Load replaces the graph with the one saved at path. A missing file leaves the graph
// unchanged. The saved graph must match the matrix dimension and may not reference rows
// beyond the matrix; the caller links any rows appended after the save.
func (h *HNSWIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.decode(bufio.NewReader(f))
}

func (h *HNSWIndex) decode(r io.Reader) error {
	read := func(v any) error { return binary.Read(r, binary.LittleEndian, v) }

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("%w: read magic: %v", ErrCorruptGraph, err)
	}
	if magic != hnswMagic {
		return fmt.Errorf("%w: bad magic %q", ErrCorruptGraph, magic[:])
	}
	var (
		version, dim, m, efc, efs, count, maxLevel uint32
		entry                                      int32
	)
	for _, v := range []any{&version, &dim, &m, &efc, &efs, &count, &maxLevel, &entry} {
		if err := read(v); err != nil {
			return fmt.Errorf("%w: read header: %v", ErrCorruptGraph, err)
		}
	}
	if version != hnswVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptGraph, version)
	}
	if int(dim) != h.matrix.Dim() {
		return fmt.Errorf("%w: dimension %d, matrix has %d", ErrCorruptGraph, dim, h.matrix.Dim())
	}
	if int(count) > h.matrix.Rows() {
		return fmt.Errorf("%w: %d nodes, matrix has %d rows", ErrCorruptGraph, count, h.matrix.Rows())
	}
	if count > 0 && (entry < 0 || uint32(entry) >= count) {
		return fmt.Errorf("%w: entry %d out of range", ErrCorruptGraph, entry)
	}

	nodes := make([]hnswNode, count)
	for i := range nodes {
		var level uint32
		if err := read(&level); err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrCorruptGraph, i, err)
		}
		if level == aliasLevel {
			var orig uint32
			if err := read(&orig); err != nil {
				return fmt.Errorf("%w: node %d: %v", ErrCorruptGraph, i, err)
			}
			if orig >= uint32(i) || nodes[orig].alias >= 0 {
				return fmt.Errorf("%w: node %d duplicates %d", ErrCorruptGraph, i, orig)
			}
			nodes[i] = hnswNode{alias: int32(orig)}
			nodes[orig].dups = append(nodes[orig].dups, uint32(i))
			continue
		}
		if level > 31 {
			return fmt.Errorf("%w: node %d level %d", ErrCorruptGraph, i, level)
		}
		nd := hnswNode{
			level:   int(level),
			friends: make([][]uint32, level+1),
			inbound: make([]int, level+1),
			alias:   -1,
		}
		for lev := range nd.friends {
			var n uint32
			if err := read(&n); err != nil {
				return fmt.Errorf("%w: node %d: %v", ErrCorruptGraph, i, err)
			}
			if n > count {
				return fmt.Errorf("%w: node %d has %d links", ErrCorruptGraph, i, n)
			}
			friends := make([]uint32, n)
			if n > 0 {
				if err := read(friends); err != nil {
					return fmt.Errorf("%w: node %d: %v", ErrCorruptGraph, i, err)
				}
			}
			for _, p := range friends {
				if p >= count {
					return fmt.Errorf("%w: node %d links to %d", ErrCorruptGraph, i, p)
				}
			}
			nd.friends[lev] = friends
		}
		nodes[i] = nd
	}
	if count > 0 && nodes[entry].alias >= 0 {
		return fmt.Errorf("%w: entry %d is a duplicate", ErrCorruptGraph, entry)
	}
	byVector := make(map[uint64][]uint32)
	for i := range nodes {
		nd := &nodes[i]
		if nd.alias >= 0 {
			continue
		}
		key := hashRow(h.matrix.Row(i))
		byVector[key] = append(byVector[key], uint32(i))
		for lev, friends := range nd.friends {
			for _, p := range friends {
				if nodes[p].alias >= 0 || nodes[p].level < lev {
					return fmt.Errorf("%w: node %d links to %d on layer %d", ErrCorruptGraph, i, p, lev)
				}
				nodes[p].inbound[lev]++
			}
		}
	}

	// The graph shape comes from the file; EfSearch stays a runtime setting.
	h.cfg.M = int(m)
	h.cfg.EfConstruction = int(efc)
	h.cfg.setDefaults()
	h.levelMul = 1.0 / math.Log(float64(h.cfg.M))
	h.nodes = nodes
	h.byVector = byVector
	h.maxLevel = int(maxLevel)
	h.entry = entry
	if count == 0 {
		h.entry = -1
		h.maxLevel = 0
	}
	return nil
}
