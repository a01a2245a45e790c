package hnsw

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/lspecian/vexfs-sub008/internal/errs"
)

// FormatVersion is the on-disk HNSW format version from spec.md §6.
const FormatVersion uint16 = 1

// SaveToDisk writes the index in the spec.md §6 format: a header
// { magic "VXHN", version, dim, metric, M, efC, entry_id, level_count }
// followed by a node count and one record per node { id, level,
// neighbors_per_level[], quantized flag, vector data }. No checksum is
// written; LoadFromDisk checks the magic and version and fails on some
// short reads, but damaged content elsewhere in the file is not detected.
func (h *Index) SaveToDisk(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.ErrIoFailed, "hnsw", "save-create")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.WriteString("VXHN")
	binary.Write(w, binary.LittleEndian, FormatVersion)
	binary.Write(w, binary.LittleEndian, uint32(h.config.Dimension))
	binary.Write(w, binary.LittleEndian, uint8(h.config.Metric))
	binary.Write(w, binary.LittleEndian, uint32(h.config.M))
	binary.Write(w, binary.LittleEndian, uint32(h.config.EfConstruction))
	binary.Write(w, binary.LittleEndian, h.entryPoint)
	binary.Write(w, binary.LittleEndian, uint32(h.maxLevel+1))

	binary.Write(w, binary.LittleEndian, uint32(len(h.nodes)))
	for _, node := range h.nodes {
		writeString(w, node.VectorID)
		binary.Write(w, binary.LittleEndian, uint32(node.Level))
		binary.Write(w, binary.LittleEndian, uint32(len(node.Links)))
		for _, level := range node.Links {
			ids := level.IDs()
			binary.Write(w, binary.LittleEndian, uint32(len(ids)))
			for _, id := range ids {
				binary.Write(w, binary.LittleEndian, id)
			}
		}
		isQuantized := node.CompressedVector != nil
		binary.Write(w, binary.LittleEndian, isQuantized)
		if isQuantized {
			binary.Write(w, binary.LittleEndian, uint32(len(node.CompressedVector)))
			w.Write(node.CompressedVector)
		} else {
			binary.Write(w, binary.LittleEndian, uint32(len(node.Vector)))
			for _, f32 := range node.Vector {
				binary.Write(w, binary.LittleEndian, f32)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return errs.Wrap(errs.ErrIoFailed, "hnsw", "save-flush")
	}
	return f.Sync()
}

// LoadFromDisk rebuilds the index from a file written by SaveToDisk.
func (h *Index) LoadFromDisk(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Wrap(errs.ErrIoFailed, "hnsw", "load-open")
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != "VXHN" {
		return errs.Wrap(errs.ErrCorrupt, "hnsw", "load-bad-magic")
	}
	var version uint16
	binary.Read(r, binary.LittleEndian, &version)
	if version != FormatVersion {
		return errs.Wrap(errs.ErrCorrupt, "hnsw", "load-bad-version")
	}

	var dim, m, efc uint32
	var metric uint8
	binary.Read(r, binary.LittleEndian, &dim)
	binary.Read(r, binary.LittleEndian, &metric)
	binary.Read(r, binary.LittleEndian, &m)
	binary.Read(r, binary.LittleEndian, &efc)

	h.mu.Lock()
	defer h.mu.Unlock()

	binary.Read(r, binary.LittleEndian, &h.entryPoint)
	h.hasEntryPoint = true
	var levelCount uint32
	binary.Read(r, binary.LittleEndian, &levelCount)
	h.maxLevel = int(levelCount) - 1

	var nodeCount uint32
	if err := binary.Read(r, binary.LittleEndian, &nodeCount); err != nil {
		return errs.Wrap(errs.ErrCorrupt, "hnsw", "load-node-count")
	}

	h.nodes = make([]*Node, 0, nodeCount)
	h.idToIndex = make(map[string]uint32, nodeCount)

	for i := uint32(0); i < nodeCount; i++ {
		vectorID, err := readString(r)
		if err != nil {
			return errs.Wrap(errs.ErrCorrupt, "hnsw", "load-vector-id")
		}
		var level, numLevels uint32
		binary.Read(r, binary.LittleEndian, &level)
		binary.Read(r, binary.LittleEndian, &numLevels)

		node := &Node{VectorID: vectorID, Level: int(level), Links: make([]*linkSet, numLevels)}
		for lvl := uint32(0); lvl < numLevels; lvl++ {
			var n uint32
			binary.Read(r, binary.LittleEndian, &n)
			ids := make([]uint32, n)
			for j := uint32(0); j < n; j++ {
				binary.Read(r, binary.LittleEndian, &ids[j])
			}
			node.Links[lvl] = newLinkSet(ids)
		}

		var isQuantized bool
		binary.Read(r, binary.LittleEndian, &isQuantized)
		var n uint32
		binary.Read(r, binary.LittleEndian, &n)
		if isQuantized {
			node.CompressedVector = make([]byte, n)
			if _, err := io.ReadFull(r, node.CompressedVector); err != nil {
				return errs.Wrap(errs.ErrCorrupt, "hnsw", "load-compressed-vector")
			}
		} else {
			node.Vector = make([]float32, n)
			for j := uint32(0); j < n; j++ {
				binary.Read(r, binary.LittleEndian, &node.Vector[j])
			}
		}

		h.idToIndex[vectorID] = uint32(len(h.nodes))
		h.nodes = append(h.nodes, node)
	}
	h.size = len(h.nodes)

	return nil
}

func writeString(w *bufio.Writer, s string) {
	binary.Write(w, binary.LittleEndian, uint32(len(s)))
	w.WriteString(s)
}

func readString(r *bufio.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
