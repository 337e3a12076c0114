package progress

import (
	"context"

	"github.com/pkg/errors"
)

var errNoTarget = errors.New("counter target must be positive")

// Counter is a stored integer clamped to [0, Target].
type Counter struct {
	Key    Key
	Target int
}

func (c Counter) clamp(n int) int {
	switch {
	case n < 0:
		return 0
	case n > c.Target:
		return c.Target
	default:
		return n
	}
}

// Count returns the stored count; out of range stored values are clamped.
func (c Counter) Count(ctx context.Context, store *Store) int {
	return c.clamp(store.Int(ctx, c.Key))
}

// Complete reports whether the count reached the target.
func (c Counter) Complete(ctx context.Context, store *Store) bool {
	return c.Count(ctx, store) >= c.Target
}

// Increment adds one, up to Target. At the target it is a no-op.
func (c Counter) Increment(ctx context.Context, store *Store) (int, error) {
	return c.step(ctx, store, 1)
}

// Decrement removes one, down to 0. At 0 it is a no-op.
func (c Counter) Decrement(ctx context.Context, store *Store) (int, error) {
	return c.step(ctx, store, -1)
}

func (c Counter) step(ctx context.Context, store *Store, delta int) (int, error) {
	if c.Target < 1 {
		return 0, errNoTarget
	}
	val, err := store.Update(ctx, c.Key, func(cur Value, _ bool) (Value, bool, error) {
		count := c.clamp(cur.Count)
		next := c.clamp(count + delta)
		if next == count && count == cur.Count {
			return cur, false, nil
		}
		return CounterValue(next), true, nil
	})
	if err != nil {
		return 0, err
	}
	return c.clamp(val.Count), nil
}
