// Package namepool implements the interned, deduplicated name arena: a
// single append-only, NUL-delimited byte buffer holding every filename
// component ever seen, plus substring/prefix/suffix/exact/regex search over
// it. Every name lives at exactly one offset for the lifetime of a pool, so
// an InternedName handle stays valid as long as the pool itself does.
package namepool

import (
	"bytes"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"sync"

	"github.com/agentic-research/lsf/internal/control"
	"golang.org/x/sync/errgroup"
)

// CancelCheckInterval is how often (in needle hits found, or names
// compared, depending on the loop) a search checks its cancellation token.
const CancelCheckInterval = 0x10000

// MaxNameLength rejects names that could never be a real filename on any
// supported OS; this also bounds the cost of search-exact argument
// construction.
const MaxNameLength = 1 << 20

// InternedName is a handle into a Pool's byte buffer. It is valid only for
// the Pool that produced it. The zero value denotes no name.
type InternedName struct {
	// end is the offset of the name's trailing NUL byte. Two interned
	// names are equal iff their end offsets are equal, since every name in
	// the pool occupies a unique, non-overlapping byte range.
	end uint32
}

// End returns the handle's trailing-NUL offset, the stable ordering key
// used to dedupe scattered search hits and to serialize into the
// persistent cache's name-offset field.
func (n InternedName) End() uint32 { return n.end }

// Pool is the interned name arena. The zero value is not usable; use New.
type Pool struct {
	mu    sync.Mutex
	bytes []byte
	index map[string]InternedName
}

// New returns an empty pool, seeded with the leading NUL every offset
// calculation assumes is present.
func New() *Pool {
	return &Pool{
		bytes: []byte{0},
		index: make(map[string]InternedName),
	}
}

// Len returns the number of distinct names interned so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.index)
}

// Push interns name, deduplicating against every name pushed before it. A
// repeated name returns the handle from its first push without touching
// the buffer. Names longer than MaxNameLength are rejected.
func (p *Pool) Push(name string) (InternedName, error) {
	if len(name) > MaxNameLength {
		return InternedName{}, fmt.Errorf("namepool: name exceeds %d bytes", MaxNameLength)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.index[name]; ok {
		return existing, nil
	}

	p.bytes = append(p.bytes, name...)
	p.bytes = append(p.bytes, 0)
	handle := InternedName{end: uint32(len(p.bytes) - 1)}
	p.index[name] = handle
	return handle, nil
}

// Get resolves a handle back to its string. ok is false if end does not
// land on a NUL boundary the pool actually wrote (a handle from a
// different pool, for instance).
func (p *Pool) Get(n InternedName) (string, bool) {
	p.mu.Lock()
	snapshot := p.bytes
	p.mu.Unlock()
	return nameAt(snapshot, n.end)
}

// nameAt resolves the name ending at the NUL offset end within buf by
// scanning backward to the previous NUL.
func nameAt(buf []byte, end uint32) (string, bool) {
	if int(end) >= len(buf) || buf[end] != 0 {
		return "", false
	}
	start := bytes.LastIndexByte(buf[:end], 0)
	if start < 0 {
		return "", false
	}
	return string(buf[start+1 : end]), true
}

// AtEnd reconstructs the handle whose trailing NUL sits at offset end,
// validating that end really lands on a NUL the pool wrote. internal/cache
// uses this to turn persisted name offsets back into live handles.
func (p *Pool) AtEnd(end uint32) (InternedName, bool) {
	p.mu.Lock()
	snapshot := p.bytes
	p.mu.Unlock()
	if _, ok := nameAt(snapshot, end); !ok {
		return InternedName{}, false
	}
	return InternedName{end: end}, true
}

// snapshot returns the pool's current bytes under the lock. Safe to read
// without further locking afterward because the pool is append-only: bytes
// already written never change.
func (p *Pool) snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytes
}

func parallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n > 32 {
		n = 32
	}
	if n < 1 {
		n = 1
	}
	return n
}

// dedupeByEnd collapses consecutive (or out-of-order) hits that resolve to
// the same trailing-NUL offset, the Go analogue of the reference
// implementation's dedup_by on adjacent matches, generalized to a full
// map since parallel chunks can emit hits out of order.
func dedupeByEnd(buf []byte, hits []int) []InternedName {
	seen := make(map[uint32]struct{}, len(hits))
	out := make([]InternedName, 0, len(hits))
	for _, idx := range hits {
		from := idx
		if buf[idx] == 0 {
			// A needle anchored on a leading NUL (prefix, exact) belongs to
			// the name that follows that NUL.
			from = idx + 1
		}
		end := nextNUL(buf, from)
		if end < 0 {
			continue
		}
		key := uint32(end)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, InternedName{end: key})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].end < out[j].end })
	return out
}

func nextNUL(buf []byte, from int) int {
	rel := bytes.IndexByte(buf[from:], 0)
	if rel < 0 {
		return -1
	}
	return from + rel
}

// SearchSubstr returns every interned name containing needle anywhere. ok
// is false iff the token was cancelled mid-scan.
func (p *Pool) SearchSubstr(needle string, token control.Token) ([]InternedName, bool) {
	if needle == "" {
		return nil, true
	}
	buf := p.snapshot()
	return searchAll(buf, []byte(needle), token)
}

// SearchSubslice is the byte-slice variant of SearchSubstr.
func (p *Pool) SearchSubslice(needle []byte, token control.Token) ([]InternedName, bool) {
	if len(needle) == 0 {
		return nil, true
	}
	buf := p.snapshot()
	return searchAll(buf, needle, token)
}

// SearchSuffix matches names ending in suffix. Caller supplies the bytes of
// suffix without a NUL; this method appends the trailing NUL itself so
// only genuine name endings match.
func (p *Pool) SearchSuffix(suffix []byte, token control.Token) ([]InternedName, bool) {
	needle := append(append([]byte(nil), suffix...), 0)
	buf := p.snapshot()
	return searchAll(buf, needle, token)
}

// SearchPrefix matches names starting with prefix. Caller supplies the
// bytes of prefix without a leading NUL; this method prepends it so the
// match anchors to a name boundary rather than a mid-name occurrence.
func (p *Pool) SearchPrefix(prefix []byte, token control.Token) ([]InternedName, bool) {
	needle := append([]byte{0}, prefix...)
	buf := p.snapshot()
	return searchAll(buf, needle, token)
}

// SearchExact matches the single name equal to exact. No deduplication is
// necessary: an exact pattern (bracketed by NULs on both ends) can only
// ever match the one name it denotes.
func (p *Pool) SearchExact(exact []byte, token control.Token) ([]InternedName, bool) {
	if token.Cancelled() {
		return nil, false
	}
	needle := make([]byte, 0, len(exact)+2)
	needle = append(needle, 0)
	needle = append(needle, exact...)
	needle = append(needle, 0)

	buf := p.snapshot()
	idx := bytes.Index(buf, needle)
	if idx < 0 {
		return nil, true
	}
	end := idx + len(needle) - 1
	return []InternedName{{end: uint32(end)}}, true
}

// SearchRegex scans every interned name in pool order and returns those re
// matches.
func (p *Pool) SearchRegex(re *regexp.Regexp, token control.Token) ([]InternedName, bool) {
	if token.Cancelled() {
		return nil, false
	}
	buf := p.snapshot()
	var out []InternedName
	checked := 0
	for i := 1; i < len(buf); {
		end := nextNUL(buf, i)
		if end < 0 {
			break
		}
		if re.Match(buf[i:end]) {
			out = append(out, InternedName{end: uint32(end)})
		}
		i = end + 1

		checked++
		if checked%CancelCheckInterval == 0 && token.Cancelled() {
			return nil, false
		}
	}
	return out, true
}

// searchAll runs a serial bytes.Index scan over buf for needle, collapsing
// hits that share a trailing-NUL offset, checking token periodically (and
// once upfront, so a search already cancelled before it starts is caught
// even when the scan turns up too few hits to reach a periodic check).
func searchAll(buf []byte, needle []byte, token control.Token) ([]InternedName, bool) {
	if token.Cancelled() {
		return nil, false
	}
	var hits []int
	start := 0
	checked := 0
	for {
		rel := bytes.Index(buf[start:], needle)
		if rel < 0 {
			break
		}
		hits = append(hits, start+rel)
		start = start + rel + 1

		checked++
		if checked%CancelCheckInterval == 0 && token.Cancelled() {
			return nil, false
		}
		if start >= len(buf) {
			break
		}
	}
	return dedupeByEnd(buf, hits), true
}

// parRange is one chunk's boundary: scan covers [scanStart, scanEnd) of the
// pool, but reads up to readEnd so a needle straddling the chunk boundary
// is still found; hits are kept only if they start before scanEnd, so the
// next chunk doesn't double-count them.
type parRange struct {
	scanStart, scanEnd, readEnd int
}

func chunkRanges(poolLen, needleLen int) []parRange {
	par := parallelism()
	chunk := poolLen / par
	if chunk < 1024 {
		chunk = 1024
	}
	if chunk > poolLen {
		chunk = poolLen
	}
	if chunk < 1 {
		chunk = 1
	}

	var ranges []parRange
	for start := 0; start < poolLen; start += chunk {
		end := start + chunk
		if end > poolLen {
			end = poolLen
		}
		readEnd := end + needleLen - 1
		if readEnd > poolLen {
			readEnd = poolLen
		}
		ranges = append(ranges, parRange{scanStart: start, scanEnd: end, readEnd: readEnd})
	}
	return ranges
}

// parSearch runs needle search over buf in parallel chunks via errgroup,
// merging hits with dedupeByEnd exactly as the serial path does.
func parSearch(buf []byte, needle []byte, token control.Token) ([]InternedName, bool) {
	if len(needle) == 0 {
		return nil, true
	}
	ranges := chunkRanges(len(buf), len(needle))

	var mu sync.Mutex
	var allHits []int
	var cancelled bool

	g := new(errgroup.Group)
	for _, r := range ranges {
		r := r
		g.Go(func() error {
			window := buf[r.scanStart:r.readEnd]
			var local []int
			start := 0
			checked := 0
			for {
				rel := bytes.Index(window[start:], needle)
				if rel < 0 {
					break
				}
				abs := r.scanStart + start + rel
				if abs < r.scanEnd {
					local = append(local, abs)
				}
				start = start + rel + 1

				checked++
				if checked%CancelCheckInterval == 0 && token.Cancelled() {
					mu.Lock()
					cancelled = true
					mu.Unlock()
					return nil
				}
				if start >= len(window) {
					break
				}
			}
			mu.Lock()
			allHits = append(allHits, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if cancelled {
		return nil, false
	}
	return dedupeByEnd(buf, allHits), true
}

// ParSearchSubstr is the parallel variant of SearchSubstr.
func (p *Pool) ParSearchSubstr(needle string, token control.Token) ([]InternedName, bool) {
	if needle == "" {
		return nil, true
	}
	return parSearch(p.snapshot(), []byte(needle), token)
}

// ParSearchSubslice is the parallel variant of SearchSubslice.
func (p *Pool) ParSearchSubslice(needle []byte, token control.Token) ([]InternedName, bool) {
	return parSearch(p.snapshot(), needle, token)
}

// ParSearchSuffix is the parallel variant of SearchSuffix.
func (p *Pool) ParSearchSuffix(suffix []byte, token control.Token) ([]InternedName, bool) {
	needle := append(append([]byte(nil), suffix...), 0)
	return parSearch(p.snapshot(), needle, token)
}

// ParSearchPrefix is the parallel variant of SearchPrefix.
func (p *Pool) ParSearchPrefix(prefix []byte, token control.Token) ([]InternedName, bool) {
	needle := append([]byte{0}, prefix...)
	return parSearch(p.snapshot(), needle, token)
}

// ParSearchExact is the parallel variant of SearchExact. Exact patterns
// cannot overlap a chunk boundary ambiguously since there is at most one
// match in the whole pool, but the chunked scan is kept for symmetry and
// because a future multi-segment pool layout would need it.
func (p *Pool) ParSearchExact(exact []byte, token control.Token) ([]InternedName, bool) {
	needle := make([]byte, 0, len(exact)+2)
	needle = append(needle, 0)
	needle = append(needle, exact...)
	needle = append(needle, 0)
	return parSearch(p.snapshot(), needle, token)
}

// Bytes returns a copy of the raw pool buffer for persistence
// (internal/cache writes it verbatim). Later Pushes do not affect the copy.
func (p *Pool) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.bytes))
	copy(out, p.bytes)
	return out
}

// Load rebuilds a pool from raw bytes previously obtained from Bytes,
// reconstructing the dedup index by walking NUL boundaries. Used by
// internal/cache when restoring a persisted graph.
func Load(raw []byte) (*Pool, error) {
	if len(raw) == 0 || raw[0] != 0 {
		return nil, fmt.Errorf("namepool: corrupt pool bytes (missing leading NUL)")
	}
	p := &Pool{
		bytes: append([]byte(nil), raw...),
		index: make(map[string]InternedName),
	}
	for i := 1; i < len(p.bytes); {
		end := nextNUL(p.bytes, i)
		if end < 0 {
			return nil, fmt.Errorf("namepool: corrupt pool bytes (unterminated name at %d)", i)
		}
		name := string(p.bytes[i:end])
		p.index[name] = InternedName{end: uint32(end)}
		i = end + 1
	}
	return p, nil
}
