package mount

import (
	"path"
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"
)

// ResultFS is the cgofuse backend: a flat read-only directory of symlinks.
// SetEntries swaps the listing atomically, so a re-evaluated query
// refreshes the mount in place.
type ResultFS struct {
	fuse.FileSystemBase

	mu        sync.RWMutex
	listing   *listing
	mountTime time.Time
}

// NewResultFS returns a ResultFS serving entries.
func NewResultFS(entries []Entry) *ResultFS {
	return &ResultFS{
		listing:   newListing(entries),
		mountTime: time.Now(),
	}
}

// SetEntries replaces the listing.
func (f *ResultFS) SetEntries(entries []Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listing = newListing(entries)
}

func (f *ResultFS) snapshot() *listing {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listing
}

func (f *ResultFS) Getattr(p string, stat *fuse.Stat_t, fh uint64) int {
	ts := fuse.NewTimespec(f.mountTime)
	stat.Atim, stat.Mtim, stat.Ctim = ts, ts, ts

	if p == "/" {
		stat.Mode = fuse.S_IFDIR | 0o555
		stat.Nlink = 2
		return 0
	}
	entry, ok := f.snapshot().lookup(path.Base(p))
	if !ok {
		return -fuse.ENOENT
	}
	stat.Mode = fuse.S_IFLNK | 0o777
	stat.Nlink = 1
	stat.Size = int64(len(entry.Target))
	return 0
}

func (f *ResultFS) Readdir(p string,
	fill func(name string, stat *fuse.Stat_t, ofst int64) bool,
	ofst int64, fh uint64,
) int {
	if p != "/" {
		return -fuse.ENOTDIR
	}
	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, name := range f.snapshot().names() {
		if !fill(name, nil, 0) {
			break
		}
	}
	return 0
}

func (f *ResultFS) Readlink(p string) (int, string) {
	entry, ok := f.snapshot().lookup(path.Base(p))
	if !ok {
		return -fuse.ENOENT, ""
	}
	return 0, entry.Target
}
