package progress

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
)

// Service hands out the per-learner stores sharing one repository and one bus.
type Service struct {
	repo   Repository
	bus    *Bus
	schema Schema
	logger core.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

func NewService(repo Repository, schema Schema, logger core.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    NewBus(),
		schema: schema,
		logger: logger,
		stores: make(map[string]*Store),
	}
}

func (svc *Service) Bus() *Bus {
	return svc.bus
}

// Store returns the learner's store, creating it on first use.
func (svc *Service) Store(learner string) *Store {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if store, ok := svc.stores[learner]; ok {
		return store
	}
	store := newStore(learner, svc.repo, svc.bus, svc.schema, svc.logger)
	svc.stores[learner] = store
	return store
}

// Watch publishes the writes reported by w as external changes, until ctx is done.
// Records whose value cannot be decoded are published as cleared.
func (svc *Service) Watch(ctx context.Context, w Watcher) error {
	err := w.Watch(ctx, func(raw RawChange) {
		key := TextKey(raw.Key)
		if svc.schema != nil {
			if k, ok := svc.schema.Lookup(raw.Key); ok {
				key = k
			}
		}
		change := Change{
			Learner: raw.Learner,
			Key:     key.Name,
			Kind:    key.Kind,
			Value:   zeroValue(key.Kind),
			Origin:  OriginExternal,
		}
		if raw.Present {
			if val, err := Decode(key.Kind, raw.Value); err == nil {
				change.Value = val
				change.Present = true
			} else {
				svc.logger.Debug("ignoring malformed external record", errors.Wrap(err, raw.Key), core.Person{ID: raw.Learner})
			}
		}
		svc.bus.Publish(change)
	})
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "watching progress records")
	}
	return nil
}

// Flush retries persisting the values every store holds in memory.
func (svc *Service) Flush(ctx context.Context) error {
	svc.mu.Lock()
	stores := make([]*Store, 0, len(svc.stores))
	for _, store := range svc.stores {
		stores = append(stores, store)
	}
	svc.mu.Unlock()

	var firstErr error
	for _, store := range stores {
		if err := store.Flush(ctx); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, store.Learner())
		}
	}
	return firstErr
}
