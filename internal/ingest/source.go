package ingest

import (
	"context"
	"sync"
)

// Source is the platform-neutral change-event stream the core consumes. A
// real OS watcher (FSEvents, inotify, ReadDirectoryChangesW, kqueue)
// implements this outside the core; the core itself ships a fake for
// tests and a null source for watcherless operation.
type Source interface {
	// Events yields live change events until the source is closed.
	Events() <-chan ChangeEvent

	// Replay re-delivers events with IDs greater than since. A source
	// that cannot replay emits a single MustScanSubDirs event instead, so
	// the caller falls back to a full rescan.
	Replay(ctx context.Context, since uint64) (<-chan ChangeEvent, error)
}

// FakeSource is an in-process Source for tests and examples. Emitted
// events are both delivered live and retained for Replay.
type FakeSource struct {
	mu     sync.Mutex
	ch     chan ChangeEvent
	closed bool
	seen   []ChangeEvent
}

// NewFakeSource returns a FakeSource with a buffered live channel.
func NewFakeSource() *FakeSource {
	return &FakeSource{ch: make(chan ChangeEvent, 256)}
}

// Emit delivers ev live and retains it for replay.
func (s *FakeSource) Emit(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seen = append(s.seen, ev)
	s.ch <- ev
}

// CompleteHistory emits the HistoryDone marker with the given ID.
func (s *FakeSource) CompleteHistory(id uint64) {
	s.Emit(ChangeEvent{ID: id, Flags: ChangeFlagSet(FlagHistoryDone)})
}

// Events implements Source.
func (s *FakeSource) Events() <-chan ChangeEvent { return s.ch }

// Replay implements Source from the retained event list.
func (s *FakeSource) Replay(ctx context.Context, since uint64) (<-chan ChangeEvent, error) {
	s.mu.Lock()
	retained := append([]ChangeEvent(nil), s.seen...)
	s.mu.Unlock()

	out := make(chan ChangeEvent, len(retained))
	go func() {
		defer close(out)
		for _, ev := range retained {
			if ev.ID <= since {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops the live channel. Further Emit calls are dropped.
func (s *FakeSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NullSource never emits live events and cannot replay: its Replay
// channel delivers one MustScanSubDirs event, pushing the caller onto the
// full-rescan path. Used when no platform watcher is wired in.
type NullSource struct {
	once sync.Once
	ch   chan ChangeEvent
}

// NewNullSource returns a NullSource.
func NewNullSource() *NullSource {
	return &NullSource{ch: make(chan ChangeEvent)}
}

// Events implements Source; the channel never yields.
func (s *NullSource) Events() <-chan ChangeEvent { return s.ch }

// Replay implements Source by demanding a rescan.
func (s *NullSource) Replay(ctx context.Context, since uint64) (<-chan ChangeEvent, error) {
	out := make(chan ChangeEvent, 1)
	out <- ChangeEvent{ID: since, Flags: ChangeFlagSet(FlagMustScanSubDirs)}
	close(out)
	return out, nil
}
