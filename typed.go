package goquerycache

import "context"

// TypedSubscription decodes the data of a subscription into T.
type TypedSubscription[T any] struct {
	*Subscription
}

func Typed[T any](sub *Subscription) *TypedSubscription[T] {
	return &TypedSubscription[T]{Subscription: sub}
}

// Data decodes the data currently cached, which may be stale while a
// refetch is in flight. The entry's error is returned alongside the last
// good value when the latest fetch failed.
func (t *TypedSubscription[T]) Data() (T, error) {
	snap := t.Snapshot()
	v, err := Decode[T](snap)
	if err != nil {
		return v, err
	}
	return v, snap.Err
}

// Await waits for the entry to settle and decodes it.
func (t *TypedSubscription[T]) Await(ctx context.Context) (T, error) {
	snap, err := t.Wait(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if snap.Err != nil {
		var zero T
		return zero, snap.Err
	}
	return Decode[T](snap)
}
