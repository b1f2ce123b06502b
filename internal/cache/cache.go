// Package cache persists a graph to a single compressed snapshot file and
// restores it on startup, so the engine resumes without re-walking. The
// header (magic + version) is written uncompressed so a loader can reject
// an unreadable version before decompressing anything; everything after it
// is one zstd frame holding the root path, change cursor, name pool bytes,
// node table, and a checksum trailer.
package cache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/agentic-research/lsf/internal/graph"
	"github.com/agentic-research/lsf/internal/namepool"
	"github.com/agentic-research/lsf/internal/slab"
)

const (
	magic   uint32 = 0x4C534643 // "LSFC"
	version uint32 = 1
)

// ErrPersistenceFormat covers any cache file this loader cannot accept:
// wrong magic, wrong version, truncation, or a checksum mismatch. The
// controller responds by falling back to a full walk.
var ErrPersistenceFormat = errors.New("cache: unrecognized or corrupt cache file")

// Save snapshots g to path atomically (write to a temp file, then rename).
func Save(g *graph.Graph, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: create: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := write(g, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cache: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}

func write(g *graph.Graph, w io.Writer) error {
	bw := bufio.NewWriter(w)

	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:], magic)
	binary.LittleEndian.PutUint32(header[4:], version)
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("cache: write header: %w", err)
	}

	payload, err := encodePayload(g)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("cache: zstd: %w", err)
	}
	if _, err := enc.Write(payload); err != nil {
		_ = enc.Close()
		return fmt.Errorf("cache: compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("cache: finish compression: %w", err)
	}
	return bw.Flush()
}

// encodePayload serializes everything after the header. Node ids are
// renumbered to a dense 0..n-1 sequence in arena order; parent and child
// references are remapped accordingly, which is why load never has to
// reconcile them against slab free-list state.
func encodePayload(g *graph.Graph) ([]byte, error) {
	var order []graph.NodeId
	remap := make(map[graph.NodeId]uint32)
	g.RangeNodes(func(id graph.NodeId, _ *graph.FileNode) {
		remap[id] = uint32(len(order))
		order = append(order, id)
	})
	if uint64(len(order)) > math.MaxUint32 {
		return nil, fmt.Errorf("cache: node count %d exceeds format limit", len(order))
	}

	var buf bytes.Buffer
	writeString(&buf, g.RootPath())
	writeU64(&buf, g.ChangeCursor())

	poolBytes := g.Pool().Bytes()
	writeU64(&buf, uint64(len(poolBytes)))
	buf.Write(poolBytes)

	writeU32(&buf, uint32(len(order)))
	var encodeErr error
	for _, id := range order {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		parent := uint32(graph.NoNode)
		if n.Parent != graph.NoNode {
			mapped, ok := remap[n.Parent]
			if !ok {
				encodeErr = fmt.Errorf("cache: node %d has unknown parent %d", id, n.Parent)
				break
			}
			parent = mapped
		}
		writeU32(&buf, parent)
		writeU32(&buf, uint32(len(n.Children)))
		for _, c := range n.Children {
			mapped, ok := remap[c]
			if !ok {
				encodeErr = fmt.Errorf("cache: node %d has unknown child %d", id, c)
				break
			}
			writeU32(&buf, mapped)
		}
		writeU32(&buf, n.Name.End())
		writeU64(&buf, n.Metadata.PackWord())
		created, modified, _ := n.Metadata.Times()
		writeU32(&buf, created)
		writeU32(&buf, modified)
	}
	if encodeErr != nil {
		return nil, encodeErr
	}

	writeU32(&buf, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes(), nil
}

// Load restores a graph from path. Any structural problem reports
// ErrPersistenceFormat so the controller can fall back to a walk.
func Load(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return read(f)
}

func read(r io.Reader) (*graph.Graph, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrPersistenceFormat)
	}
	if binary.LittleEndian.Uint32(header[0:]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrPersistenceFormat)
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrPersistenceFormat, v)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFormat, err)
	}
	defer dec.Close()
	payload, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFormat, err)
	}

	return decodePayload(payload)
}

func decodePayload(payload []byte) (*graph.Graph, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("%w: truncated payload", ErrPersistenceFormat)
	}
	body, trailer := payload[:len(payload)-4], payload[len(payload)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrPersistenceFormat)
	}

	rd := &reader{buf: body}
	rootPath := rd.str()
	cursor := rd.u64()

	poolLen := rd.u64()
	poolBytes := rd.take(int(poolLen))
	if rd.err != nil {
		return nil, fmt.Errorf("%w: truncated pool", ErrPersistenceFormat)
	}
	pool, err := namepool.Load(poolBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFormat, err)
	}

	count := rd.u32()
	arena := slab.New[graph.FileNode]()
	root := graph.NoNode
	for i := uint32(0); i < count; i++ {
		parent := graph.NodeId(rd.u32())
		childCount := rd.u32()
		children := make([]graph.NodeId, 0, childCount)
		for j := uint32(0); j < childCount; j++ {
			children = append(children, graph.NodeId(rd.u32()))
		}
		nameEnd := rd.u32()
		word := rd.u64()
		created := rd.u32()
		modified := rd.u32()
		if rd.err != nil {
			return nil, fmt.Errorf("%w: truncated node table", ErrPersistenceFormat)
		}

		name, ok := pool.AtEnd(nameEnd)
		if !ok {
			return nil, fmt.Errorf("%w: node %d references unknown name offset %d", ErrPersistenceFormat, i, nameEnd)
		}
		idx := arena.Insert(graph.FileNode{
			Name:     name,
			Parent:   parent,
			Children: children,
			Metadata: graph.UnpackMetadata(word, created, modified),
		})
		if parent == graph.NoNode {
			if root != graph.NoNode {
				return nil, fmt.Errorf("%w: multiple roots", ErrPersistenceFormat)
			}
			root = graph.NodeId(idx)
		}
	}
	if root == graph.NoNode && count > 0 {
		return nil, fmt.Errorf("%w: no root node", ErrPersistenceFormat)
	}

	g := graph.NewWithPool(rootPath, pool, cursor)
	g.RestoreArena(arena, root)
	return g, nil
}

// --- little-endian plumbing ---

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil || n < 0 || n > len(r.buf) {
		r.err = ErrPersistenceFormat
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) str() string {
	n := r.u32()
	return string(r.take(int(n)))
}
