// Package store persists entity documents, tracker locations, users and
// settings.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/erazemk/tracky/internal/model"
)

// DocumentStore is a keyed-document store with store-assigned timestamps and
// per-document revisions. Documents and the mongo store implement it.
type DocumentStore interface {
	Now() time.Time
	Get(ctx context.Context, kind model.Kind, id string) (*model.Entity, error)
	Create(ctx context.Context, e *model.Entity) (*model.Entity, error)
	Update(ctx context.Context, kind model.Kind, id string, rev int64, patch map[string]any) (*model.Entity, error)
	Delete(ctx context.Context, kind model.Kind, id string) error
	List(ctx context.Context, kind model.Kind) ([]model.Entity, error)
}

// LocationStore is the append-only tracker location ledger.
type LocationStore interface {
	Append(ctx context.Context, trackerID string, p model.LocationPoint) error
	History(ctx context.Context, trackerID string, from, to time.Time) ([]model.LocationPoint, error)
	Latest(ctx context.Context, trackerID string) (*model.LocationPoint, error)
}

var (
	_ DocumentStore = (*Documents)(nil)
	_ LocationStore = (*Locations)(nil)
)

// Stamper hands out document timestamps. Successive stamps are strictly
// increasing at millisecond resolution, independent of clock skew.
type Stamper struct {
	// Clock supplies wall time. Defaults to time.Now.
	Clock func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Now returns the next stamp.
func (s *Stamper) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	now := clock().UTC().Truncate(time.Millisecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Millisecond)
	}
	s.last = now
	return now
}
