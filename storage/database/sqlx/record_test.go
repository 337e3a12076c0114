package sqlxrepos_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/progress"
	"github.com/trezcool/beet/storage/database"
	sqlxrepos "github.com/trezcool/beet/storage/database/sqlx"
	testutil "github.com/trezcool/beet/tests"
)

func openDB(t *testing.T, path string) *sqlx.DB {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Database.Engine = core.BackendSQLite
	conf.Database.Name = path

	db, err := database.Open(context.Background(), conf)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestRecordRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) progress.Repository {
		db := openDB(t, filepath.Join(t.TempDir(), "progress.db"))
		t.Cleanup(func() { _ = db.Close() })
		return sqlxrepos.NewRecordRepository(db)
	})
}

func TestRecordRepository_SurvivesReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.db")
	understood := progress.BoolKey("section-understood-m1-intro")
	checklist := progress.SetKey("checklist-m1-setup")

	db := openDB(t, path)
	store := testutil.NewProgressService(t, nil, sqlxrepos.NewRecordRepository(db)).Store("learner-1")
	require.NoError(t, store.SetBool(ctx, understood, true))
	require.NoError(t, store.SetStrings(ctx, checklist, "b", "a"))
	require.NoError(t, db.Close())

	db = openDB(t, path)
	defer db.Close()
	store = testutil.NewProgressService(t, nil, sqlxrepos.NewRecordRepository(db)).Store("learner-1")
	assert.True(t, store.Bool(ctx, understood))
	assert.Equal(t, []string{"a", "b"}, store.Strings(ctx, checklist))
}

func TestRecordRepository_InTransaction(t *testing.T) {
	ctx := context.Background()
	db := openDB(t, filepath.Join(t.TempDir(), "progress.db"))
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	repo := sqlxrepos.NewRecordRepository(tx)
	require.NoError(t, repo.PutRecord(ctx, progress.Record{Learner: "l1", Key: "video-m1-a", Value: "true", UpdatedAt: time.Now()}))
	require.NoError(t, tx.Rollback())

	_, err = sqlxrepos.NewRecordRepository(db).GetRecord(ctx, "l1", "video-m1-a")
	assert.Equal(t, progress.ErrNotFound, err)
}
