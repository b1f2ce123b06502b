package mount

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"
)

var errReadOnly = fmt.Errorf("read-only filesystem")

// ResultNFS adapts the result listing to billy.Filesystem for
// willscott/go-nfs: a flat root directory of symlinks. Reads through a
// link are also served (the target is opened on the host) for clients
// that resolve on the server side.
type ResultNFS struct {
	mu        sync.RWMutex
	listing   *listing
	mountTime time.Time
}

// NewResultNFS returns a billy-shaped view of entries.
func NewResultNFS(entries []Entry) *ResultNFS {
	return &ResultNFS{
		listing:   newListing(entries),
		mountTime: time.Now(),
	}
}

// SetEntries replaces the listing.
func (f *ResultNFS) SetEntries(entries []Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listing = newListing(entries)
}

func (f *ResultNFS) snapshot() *listing {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listing
}

// cleanName reduces a billy path to the single listing-level basename.
func cleanName(p string) string {
	p = filepath.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// --- billy.Basic ---

func (f *ResultNFS) Create(filename string) (billy.File, error) {
	return nil, errReadOnly
}

func (f *ResultNFS) Open(filename string) (billy.File, error) {
	return f.OpenFile(filename, os.O_RDONLY, 0)
}

func (f *ResultNFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, errReadOnly
	}
	entry, ok := f.snapshot().lookup(cleanName(filename))
	if !ok {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}
	real, err := os.Open(entry.Target)
	if err != nil {
		return nil, err
	}
	return &hostFile{name: entry.Name, f: real}, nil
}

func (f *ResultNFS) Stat(filename string) (os.FileInfo, error) {
	name := cleanName(filename)
	if name == "" {
		return f.rootInfo(), nil
	}
	entry, ok := f.snapshot().lookup(name)
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: filename, Err: os.ErrNotExist}
	}
	// Stat follows the link to the real target; fall back to the link's
	// own info when the target has vanished since evaluation.
	if info, err := os.Stat(entry.Target); err == nil {
		return renamedInfo{FileInfo: info, name: entry.Name}, nil
	}
	return f.linkInfo(entry), nil
}

func (f *ResultNFS) Rename(oldpath, newpath string) error { return errReadOnly }
func (f *ResultNFS) Remove(filename string) error         { return errReadOnly }

func (f *ResultNFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (f *ResultNFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (f *ResultNFS) ReadDir(p string) ([]os.FileInfo, error) {
	if cleanName(p) != "" {
		return nil, &os.PathError{Op: "readdir", Path: p, Err: fmt.Errorf("not a directory")}
	}
	snapshot := f.snapshot()
	infos := make([]os.FileInfo, 0, len(snapshot.entries))
	for _, e := range snapshot.sortedCopy() {
		infos = append(infos, f.linkInfo(e))
	}
	return infos, nil
}

func (f *ResultNFS) MkdirAll(filename string, perm os.FileMode) error {
	return errReadOnly
}

// --- billy.Symlink ---

func (f *ResultNFS) Lstat(filename string) (os.FileInfo, error) {
	name := cleanName(filename)
	if name == "" {
		return f.rootInfo(), nil
	}
	entry, ok := f.snapshot().lookup(name)
	if !ok {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
	}
	return f.linkInfo(entry), nil
}

func (f *ResultNFS) Symlink(target, link string) error {
	return errReadOnly
}

func (f *ResultNFS) Readlink(link string) (string, error) {
	entry, ok := f.snapshot().lookup(cleanName(link))
	if !ok {
		return "", &os.PathError{Op: "readlink", Path: link, Err: os.ErrNotExist}
	}
	return entry.Target, nil
}

// --- billy.Chroot ---

func (f *ResultNFS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(f, p), nil
}

func (f *ResultNFS) Root() string { return "/" }

// --- billy.Capable ---

func (f *ResultNFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

func (f *ResultNFS) rootInfo() os.FileInfo {
	return &staticFileInfo{name: "/", mode: os.ModeDir | 0o555, modTime: f.mountTime}
}

func (f *ResultNFS) linkInfo(e Entry) os.FileInfo {
	return &staticFileInfo{
		name:    e.Name,
		size:    int64(len(e.Target)),
		mode:    os.ModeSymlink | 0o777,
		modTime: f.mountTime,
	}
}

// hostFile wraps an os.File opened at a link's target in billy.File.
type hostFile struct {
	name string
	f    *os.File
}

func (h *hostFile) Name() string                                 { return h.name }
func (h *hostFile) Read(p []byte) (int, error)                   { return h.f.Read(p) }
func (h *hostFile) ReadAt(p []byte, off int64) (int, error)      { return h.f.ReadAt(p, off) }
func (h *hostFile) Seek(off int64, whence int) (int64, error)    { return h.f.Seek(off, whence) }
func (h *hostFile) Write(p []byte) (int, error)                  { return 0, errReadOnly }
func (h *hostFile) Truncate(size int64) error                    { return errReadOnly }
func (h *hostFile) Lock() error                                  { return nil }
func (h *hostFile) Unlock() error                                { return nil }
func (h *hostFile) Close() error                                 { return h.f.Close() }

// staticFileInfo implements os.FileInfo with fixed values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

// renamedInfo overlays the listing name onto a real target's FileInfo.
type renamedInfo struct {
	os.FileInfo
	name string
}

func (r renamedInfo) Name() string { return r.name }

var (
	_ billy.Filesystem = (*ResultNFS)(nil)
	_ billy.Capable    = (*ResultNFS)(nil)
	_ billy.File       = (*hostFile)(nil)
	_ io.ReaderAt      = (*hostFile)(nil)
)
