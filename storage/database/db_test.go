package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beet/core"
)

func sqliteConfig(t *testing.T) *core.Config {
	conf := core.NewTestConfig()
	conf.Storage.Backend = core.BackendSQLite
	conf.Database.Engine = core.BackendSQLite
	conf.Database.Name = filepath.Join(t.TempDir(), "var", "progress.db")
	return conf
}

func TestOpenAndMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, sqliteConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migrating twice is a no-op")

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM progress_record`))
	assert.Zero(t, count)

	require.NoError(t, RunMigrations(db, "down"))
	assert.Error(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM progress_record`))
}

func TestOpen_UnsupportedEngine(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = "oracle"
	if _, err := Open(context.Background(), conf); errors.Cause(err) != errUnsupportedEngine {
		t.Errorf("Open() error = %v, wantErr %v", err, errUnsupportedEngine)
	}
}

func TestPostgresDSN(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Name = "beet"
	conf.Database.Host = "db"
	conf.Database.Port = "5432"
	conf.Database.User = "beet"
	conf.Database.Password = "s3cret"
	conf.Database.DisableTLS = true

	assert.Equal(t, "postgres://beet:s3cret@db:5432/beet?sslmode=disable&timezone=utc", postgresDSN(conf))
}
