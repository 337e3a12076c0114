// Package storage opens the progress repository selected by the configuration.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/progress"
	"github.com/trezcool/beet/storage/database"
	inmemdb "github.com/trezcool/beet/storage/database/inmem"
	sqlxrepos "github.com/trezcool/beet/storage/database/sqlx"
	filestore "github.com/trezcool/beet/storage/file"
)

var errUnknownBackend = errors.New("unknown storage backend")

// Backend is an opened progress repository.
type Backend struct {
	Name       string
	Repository progress.Repository
	Watcher    progress.Watcher // nil when the backend cannot observe other processes
	close      func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Memory returns the in-memory backend. Records do not outlive the process.
func Memory() *Backend {
	return &Backend{Name: core.BackendMemory, Repository: inmemdb.NewRecordRepository(inmemdb.Open())}
}

// Open opens the configured backend; SQL backends are migrated.
func Open(ctx context.Context, conf *core.Config) (*Backend, error) {
	switch conf.Storage.Backend {
	case core.BackendMemory:
		return Memory(), nil

	case core.BackendSQLite, core.BackendPostgres:
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "migrating database")
		}
		return &Backend{Name: conf.Storage.Backend, Repository: sqlxrepos.NewRecordRepository(db), close: db.Close}, nil

	case core.BackendFile:
		repo, err := filestore.Open(conf.Storage.FilePath)
		if err != nil {
			return nil, errors.Wrap(err, "opening progress file")
		}
		b := &Backend{Name: core.BackendFile, Repository: repo}
		if conf.Storage.Watch {
			b.Watcher = repo
		}
		return b, nil

	default:
		return nil, errors.Wrap(errUnknownBackend, conf.Storage.Backend)
	}
}

// OpenOrFallback opens the configured backend, falling back to memory when it cannot be opened.
// The API keeps serving (without durability) rather than refusing every request.
func OpenOrFallback(ctx context.Context, conf *core.Config, logger core.Logger) *Backend {
	b, err := Open(ctx, conf)
	if err != nil {
		logger.Error("storage unavailable, progress is kept in memory", errors.Wrap(err, conf.Storage.Backend))
		return Memory()
	}
	return b
}
