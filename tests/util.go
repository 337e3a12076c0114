package testutil

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/progress"
	logsvc "github.com/trezcool/beet/services/logger"
	inmemdb "github.com/trezcool/beet/storage/database/inmem"
)

// ErrUnavailable is returned by a FlakyRepository while it is down.
var ErrUnavailable = errors.New("storage unavailable")

func NewLogger(t *testing.T) *logsvc.RollbarLogger {
	t.Helper()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

func NewRecordRepository() progress.Repository {
	return inmemdb.NewRecordRepository(inmemdb.Open())
}

// NewProgressService returns a service over repo, or over a fresh in-memory repository.
func NewProgressService(t *testing.T, schema progress.Schema, repo ...progress.Repository) *progress.Service {
	t.Helper()
	var r progress.Repository
	if len(repo) > 0 {
		r = repo[0]
	} else {
		r = NewRecordRepository()
	}
	return progress.NewService(r, schema, NewLogger(t))
}

// FlakyRepository wraps a repository whose writes fail while Down is set.
type FlakyRepository struct {
	progress.Repository

	mu   sync.Mutex
	down bool
}

var _ progress.Repository = (*FlakyRepository)(nil)

func NewFlakyRepository(repo progress.Repository) *FlakyRepository {
	return &FlakyRepository{Repository: repo}
}

func (r *FlakyRepository) SetDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
}

func (r *FlakyRepository) isDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FlakyRepository) PutRecord(ctx context.Context, rec progress.Record) error {
	if r.isDown() {
		return ErrUnavailable
	}
	return r.Repository.PutRecord(ctx, rec)
}

func (r *FlakyRepository) DeleteRecords(ctx context.Context, learner string, keys ...string) error {
	if r.isDown() {
		return ErrUnavailable
	}
	return r.Repository.DeleteRecords(ctx, learner, keys...)
}

// Recorder collects the changes it is subscribed to.
type Recorder struct {
	mu      sync.Mutex
	changes []progress.Change
}

func (r *Recorder) Record(c progress.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *Recorder) Changes() []progress.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Change(nil), r.changes...)
}

func (r *Recorder) Keys() []string {
	changes := r.Changes()
	keys := make([]string, 0, len(changes))
	for _, c := range changes {
		keys = append(keys, c.Key)
	}
	return keys
}
