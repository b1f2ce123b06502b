package graph

import "github.com/agentic-research/lsf/internal/namepool"

// NodeId is an opaque handle into a Graph's node arena. NoNode is the
// reserved "none" value, standing in for Option<NodeId> at the call sites
// that need it (FileNode.Parent on the root, a failed path lookup, ...).
type NodeId uint32

// NoNode is the "none" NodeId, the maximum uint32 value.
const NoNode NodeId = NodeId(^uint32(0))

// FileType classifies a directory entry as seen during the walk, without
// following symlinks.
type FileType int8

const (
	Unknown FileType = iota
	Dir
	File
	Symlink
)

func (t FileType) String() string {
	switch t {
	case Dir:
		return "dir"
	case File:
		return "file"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// metaState is the tri-state a MetadataSlot can be in: never fetched,
// fetched successfully, or fetched and failed.
type metaState uint8

const (
	metaNone metaState = iota
	metaSome
	metaInaccessible
)

// MetadataSlot packs a node's lazily-fetched stat data alongside the
// file type known since the walk, mirroring the compact tri-state word the
// name pool's Rust counterpart keeps per node.
type MetadataSlot struct {
	state       metaState
	fileType    FileType
	sizeBytes   uint64
	createdUnix uint32
	modifiedUnix uint32
}

// NoneMetadata returns a slot for a freshly walked node whose type is
// already known but whose size/times have not been fetched yet.
func NoneMetadata(ft FileType) MetadataSlot {
	return MetadataSlot{state: metaNone, fileType: ft}
}

// SomeMetadata returns a fully populated slot.
func SomeMetadata(ft FileType, size uint64, createdUnix, modifiedUnix uint32) MetadataSlot {
	return MetadataSlot{
		state:        metaSome,
		fileType:     ft,
		sizeBytes:    size,
		createdUnix:  createdUnix,
		modifiedUnix: modifiedUnix,
	}
}

// InaccessibleMetadata marks a slot whose stat call failed, keeping the
// type known from the walk.
func InaccessibleMetadata(ft FileType) MetadataSlot {
	return MetadataSlot{state: metaInaccessible, fileType: ft}
}

func (m MetadataSlot) IsNone() bool         { return m.state == metaNone }
func (m MetadataSlot) IsSome() bool         { return m.state == metaSome }
func (m MetadataSlot) IsInaccessible() bool { return m.state == metaInaccessible }

// FileTypeHint is always available, even before a stat call has run,
// since directory-entry type is known at walk time.
func (m MetadataSlot) FileTypeHint() FileType { return m.fileType }

// SizeHint returns the size and whether it is known (state == Some).
func (m MetadataSlot) SizeHint() (uint64, bool) {
	return m.sizeBytes, m.state == metaSome
}

// Times returns (created, modified) and whether they are known.
func (m MetadataSlot) Times() (created, modified uint32, ok bool) {
	return m.createdUnix, m.modifiedUnix, m.state == metaSome
}

// metaSizeBits is how much of the packed word carries the size. Sizes
// beyond 2^56 bytes are clipped; no filesystem this indexes produces them.
const metaSizeBits = 56

// PackWord flattens the slot's state, file type, and size into the single
// 64-bit word the persistent cache stores per node. Created/modified times
// travel alongside the word as their own fields.
func (m MetadataSlot) PackWord() uint64 {
	size := m.sizeBytes
	if size >= 1<<metaSizeBits {
		size = 1<<metaSizeBits - 1
	}
	return uint64(m.state) | uint64(m.fileType)<<4 | size<<8
}

// UnpackMetadata rebuilds a slot from its packed word plus the two time
// fields stored next to it in the cache file.
func UnpackMetadata(word uint64, createdUnix, modifiedUnix uint32) MetadataSlot {
	return MetadataSlot{
		state:        metaState(word & 0xf),
		fileType:     FileType(word >> 4 & 0xf),
		sizeBytes:    word >> 8,
		createdUnix:  createdUnix,
		modifiedUnix: modifiedUnix,
	}
}

// FileNode is one entry in the graph: a name, its parent, its children in
// insertion order, and a lazily-populated metadata slot.
type FileNode struct {
	Name     namepool.InternedName
	Parent   NodeId
	Children []NodeId
	Metadata MetadataSlot
}

// hasChild reports whether child is already present, enforcing the
// no-duplicate-children invariant on insert.
func (n *FileNode) hasChild(child NodeId) bool {
	for _, c := range n.Children {
		if c == child {
			return true
		}
	}
	return false
}

// addChild appends child if not already present, mirroring the compact
// slab node's dedup-on-append behavior.
func (n *FileNode) addChild(child NodeId) {
	if !n.hasChild(child) {
		n.Children = append(n.Children, child)
	}
}
