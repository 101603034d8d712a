package goquerycache

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription binds one observer to a cache entry. While it is open the
// entry cannot be evicted.
type Subscription struct {
	id      uuid.UUID
	key     Key
	store   *Store
	changes chan struct{}
	closed  atomic.Bool
}

// Subscribe registers interest in ep called with args. The entry is created
// if needed and fetched if it has never been fetched or was invalidated
// while unobserved; a settled entry is served from the cache as is.
func (s *Store) Subscribe(ctx context.Context, ep *Endpoint, args any) (*Subscription, error) {
	key, args, err := queryKey(ep, args)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:      uuid.New(),
		key:     key,
		store:   s,
		changes: make(chan struct{}, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, _ := s.getOrCreateLocked(key, ep, args)
	s.stopEvictionLocked(e)
	e.subs[sub.id] = sub

	switch e.status {
	case StatusUninitialized:
		s.startFetchLocked(ctx, e)
	case StatusFulfilled:
		s.stats.Hits++
		s.logger.DebugContext(ctx, "cache hit", "key", key)
	}

	return sub, nil
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(sub.changes)

	e, ok := s.entries[sub.key]
	if !ok {
		return
	}
	if _, ok := e.subs[sub.id]; !ok {
		return
	}
	delete(e.subs, sub.id)

	if len(e.subs) == 0 {
		s.scheduleEvictionLocked(e)
	}
}

func (sub *Subscription) ID() uuid.UUID { return sub.id }

func (sub *Subscription) Key() Key { return sub.key }

// Snapshot returns the current state of the subscribed entry.
func (sub *Subscription) Snapshot() Snapshot {
	snap, ok := sub.store.Snapshot(sub.key)
	if !ok {
		return Snapshot{Key: sub.key}
	}
	return snap
}

// Changes delivers a signal whenever the entry changes. Signals coalesce:
// a reader that falls behind sees one pending signal, not one per change.
// The channel is closed by Unsubscribe.
func (sub *Subscription) Changes() <-chan struct{} {
	return sub.changes
}

// Refetch forces a new fetch of the entry, or joins the one in flight.
func (sub *Subscription) Refetch(ctx context.Context) error {
	if sub.closed.Load() {
		return ErrUnsubscribed
	}
	_, err := sub.store.StartFetch(ctx, sub.key)
	return err
}

// Wait blocks until the entry is settled (fulfilled or rejected) and returns
// it. A rejected entry is not an error of Wait; inspect Snapshot.Err.
func (sub *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	for {
		if sub.closed.Load() {
			return Snapshot{Key: sub.key}, ErrUnsubscribed
		}

		snap := sub.Snapshot()
		if snap.Status == StatusFulfilled || snap.Status == StatusRejected {
			return snap, nil
		}

		select {
		case <-sub.changes:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Unsubscribe drops this observer's interest. A fetch in flight is not
// cancelled. Calling it more than once is a no-op.
func (sub *Subscription) Unsubscribe() {
	if !sub.closed.CompareAndSwap(false, true) {
		return
	}
	sub.store.unsubscribe(sub)
}
