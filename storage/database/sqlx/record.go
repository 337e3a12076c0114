package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/progress"
)

type (
	recordRepository struct {
		db core.DBExecutor
	}

	recordRow struct {
		Learner   string `db:"learner"`
		Key       string `db:"record_key"`
		Value     string `db:"value"`
		UpdatedAt int64  `db:"updated_at"` // unix nanoseconds
	}
)

var _ progress.Repository = (*recordRepository)(nil) // interface compliance check

// NewRecordRepository returns a repository over the progress_record table.
// db must be migrated, see database.Migrate.
func NewRecordRepository(db core.DBExecutor) progress.Repository {
	return &recordRepository{db: db}
}

func (row recordRow) record() progress.Record {
	return progress.Record{
		Learner:   row.Learner,
		Key:       row.Key,
		Value:     row.Value,
		UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
	}
}

func (repo *recordRepository) GetRecord(ctx context.Context, learner, key string) (progress.Record, error) {
	q := repo.db.Rebind(`SELECT learner, record_key, value, updated_at FROM progress_record WHERE learner = ? AND record_key = ?`)

	var row recordRow
	if err := repo.db.GetContext(ctx, &row, q, learner, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return progress.Record{}, progress.ErrNotFound
		}
		return progress.Record{}, errors.Wrap(err, "selecting progress record")
	}
	return row.record(), nil
}

func (repo *recordRepository) QueryRecords(ctx context.Context, learner string, filter progress.QueryFilter) ([]progress.Record, error) {
	q := `SELECT learner, record_key, value, updated_at FROM progress_record WHERE learner = ?`
	args := []interface{}{learner}
	if filter.Prefix != "" {
		// substr instead of LIKE: keys contain underscores
		q += ` AND substr(record_key, 1, ?) = ?`
		args = append(args, len(filter.Prefix), filter.Prefix)
	}
	q += ` ORDER BY record_key`

	rows := make([]recordRow, 0)
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting progress records")
	}
	recs := make([]progress.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (repo *recordRepository) PutRecord(ctx context.Context, rec progress.Record) error {
	q := repo.db.Rebind(`
		INSERT INTO progress_record (learner, record_key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (learner, record_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)

	if _, err := repo.db.ExecContext(ctx, q, rec.Learner, rec.Key, rec.Value, rec.UpdatedAt.UnixNano()); err != nil {
		return errors.Wrap(err, "upserting progress record")
	}
	return nil
}

func (repo *recordRepository) DeleteRecords(ctx context.Context, learner string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM progress_record WHERE learner = ? AND record_key IN (?)`, learner, keys)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting progress records")
	}
	return nil
}
