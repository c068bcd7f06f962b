package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
)

// Sweeper flips past events to concluded. It runs whenever an event list is
// loaded; there is no background timer.
type Sweeper struct {
	store store.DocumentStore
	now   func() time.Time
	log   *slog.Logger
}

// NewSweeper creates a Sweeper. A nil now uses time.Now.
func NewSweeper(st store.DocumentStore, now func() time.Time, log *slog.Logger) *Sweeper {
	log = logutil.NoopIfNil(log)
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: st, now: now, log: log}
}

// Now returns the sweeper's clock reading.
func (s *Sweeper) Now() time.Time { return s.now() }

// Sweep concludes every due event of ownerID concurrently and returns a copy
// of events with the flag reflected. Events whose update failed stay
// unconcluded in the result and their errors are joined. No other field changes.
func (s *Sweeper) Sweep(ctx context.Context, ownerID string, events []Event) ([]Event, error) {
	out := make([]Event, len(events))
	copy(out, events)

	now := s.now()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := range out {
		if !out[i].Due(now) {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.store.Update(ctx, ownerID, store.CollectionEvents, out[i].ID, store.Document{"concluded": true})
			metrics.EventsConcluded.WithLabelValues(metrics.Outcome(err)).Inc()
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("conclude event %s: %w", out[i].ID, err))
				mu.Unlock()
				return
			}
			// each goroutine owns its index
			out[i].Concluded = true
		}(i)
	}
	wg.Wait()

	if len(errs) > 0 {
		s.log.Warn("sweep incomplete", "owner_id", ownerID, "failed", len(errs))
		return out, errors.Join(errs...)
	}
	return out, nil
}
