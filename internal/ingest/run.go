package ingest

import (
	"context"
	"log"
	"time"
)

// Run drives the ingestor from src until ctx is cancelled or the source's
// live channel closes. Events arriving close together are coalesced into
// one batch. A rescan outcome invokes rescan and continues; rename halves
// that never pair are settled on a timer. Run owns the graph's write side
// for its whole lifetime and never fails the process: per-batch errors
// are logged and swallowed.
func (in *Ingestor) Run(ctx context.Context, src Source, rescan func(context.Context) error) error {
	ticker := time.NewTicker(in.window)
	defer ticker.Stop()

	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			in.FlushPending()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			batch := []ChangeEvent{ev}
			batch = drain(events, batch)
			if in.HandleBatch(batch) == OutcomeRescanRequired {
				if err := rescan(ctx); err != nil {
					log.Printf("ingest: rescan failed: %v", err)
				}
			}
		}
	}
}

// drain appends whatever is immediately available without blocking.
func drain(events <-chan ChangeEvent, batch []ChangeEvent) []ChangeEvent {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}
