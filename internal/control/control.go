// Package control implements the generational cancellation mechanism used
// throughout the query evaluator and name pool: an issuer holds a
// monotonically increasing generation counter, and any token stamped with
// an older generation is considered cancelled the instant a newer one is
// minted.
package control

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	blockSize = 4096      // one page
	magic     = 0x4C534643 // 'LSFC'
)

// block is the memory-mapped control file layout. A daemon process and its
// CLI clients share one control file so they observe the same generation
// without IPC.
type block struct {
	Magic      uint32
	Version    uint32
	Generation uint64 // atomic
	Padding    [blockSize - 16]byte
}

// Issuer owns a generation counter backed by a memory-mapped control file.
// Next() bumps the generation and mints a Token snapshotting it; any Token
// from an older generation reports itself cancelled once a newer one has
// been minted.
type Issuer struct {
	id   uint64
	file *os.File
	data []byte
	ptr  *block
}

// OpenOrCreate opens or creates the control file at path and wraps it in an
// Issuer. id distinguishes issuers sharing a file (currently unused beyond
// token bookkeeping, since one process owns one control file).
func OpenOrCreate(path string, id uint64) (*Issuer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("control: mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("control: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("control: stat: %w", err)
	}
	if info.Size() < blockSize {
		if err := f.Truncate(blockSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("control: truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, blockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("control: mmap: %w", err)
	}

	ptr := (*block)(unsafe.Pointer(&data[0]))
	if ptr.Magic == 0 {
		ptr.Magic = magic
		ptr.Version = 1
	} else if ptr.Magic != magic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("control: bad magic %x", ptr.Magic)
	}

	return &Issuer{id: id, file: f, data: data, ptr: ptr}, nil
}

// Next bumps the generation counter and returns a Token pinned to the new
// value. Issuing a token cancels every token minted before it.
func (iss *Issuer) Next() Token {
	gen := atomic.AddUint64(&iss.ptr.Generation, 1)
	return Token{issuer: iss, generation: gen}
}

// Generation returns the current generation without minting a token.
func (iss *Issuer) Generation() uint64 {
	return atomic.LoadUint64(&iss.ptr.Generation)
}

// Close unmaps and closes the backing control file.
func (iss *Issuer) Close() error {
	if err := unix.Munmap(iss.data); err != nil {
		return err
	}
	return iss.file.Close()
}

// Token is a small value type threaded through evaluator call chains. It is
// safe to copy and cheap to check.
type Token struct {
	issuer     *Issuer
	generation uint64
}

// Cancelled reports whether a newer token has been issued since this one
// was minted. A zero Token (from NoopToken) is never cancelled.
func (t Token) Cancelled() bool {
	if t.issuer == nil {
		return false
	}
	return t.issuer.Generation() > t.generation
}

// NoopToken returns a token that is never cancelled, used by the
// reconciliation loop and other internal callers that must run to
// completion regardless of query traffic.
func NoopToken() Token {
	return Token{}
}
