package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("progress record not found")
)

type (
	// Record is a single persisted key/value pair of one learner.
	Record struct {
		Learner   string    `json:"learner"`
		Key       string    `json:"key"`
		Value     string    `json:"value"`      // encoded, see Encode
		UpdatedAt time.Time `json:"updated_at"` // UTC
	}

	QueryFilter struct {
		Prefix string // only keys starting with Prefix
	}

	// Repository persists progress records. Implementations must be safe for concurrent use.
	Repository interface {
		// GetRecord returns ErrNotFound when the key was never written (or was cleared).
		GetRecord(ctx context.Context, learner, key string) (Record, error)
		// QueryRecords returns the learner's records ordered by key.
		QueryRecords(ctx context.Context, learner string, filter QueryFilter) ([]Record, error)
		// PutRecord inserts or overwrites a record.
		PutRecord(ctx context.Context, rec Record) error
		DeleteRecords(ctx context.Context, learner string, keys ...string) error
	}

	// Schema resolves key names to typed keys.
	Schema interface {
		Lookup(name string) (Key, bool)
	}

	// RawChange is a write made to the backing store by another process.
	RawChange struct {
		Learner string
		Key     string
		Value   string
		Present bool // false when the record was removed
	}

	// Watcher reports writes made to a backing store by other processes.
	Watcher interface {
		// Watch blocks until ctx is done or watching fails.
		Watch(ctx context.Context, fn func(RawChange)) error
	}
)

func (qf QueryFilter) Match(key string) bool {
	return len(key) >= len(qf.Prefix) && key[:len(qf.Prefix)] == qf.Prefix
}
