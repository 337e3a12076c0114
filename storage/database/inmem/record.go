package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/beet/core/progress"
)

type recordRepository struct {
	db *recordTable
}

var _ progress.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(db *DB) progress.Repository {
	return &recordRepository{db: db.record}
}

func (repo *recordRepository) GetRecord(_ context.Context, learner, key string) (progress.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[learner][key]; ok {
		return rec, nil
	}
	return progress.Record{}, progress.ErrNotFound
}

func (repo *recordRepository) QueryRecords(_ context.Context, learner string, filter progress.QueryFilter) ([]progress.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]progress.Record, 0, len(repo.db.table[learner]))
	for key, rec := range repo.db.table[learner] {
		if filter.Match(key) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

func (repo *recordRepository) PutRecord(_ context.Context, rec progress.Record) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	learnerRecs, ok := repo.db.table[rec.Learner]
	if !ok {
		learnerRecs = make(map[string]progress.Record)
		repo.db.table[rec.Learner] = learnerRecs
	}
	learnerRecs[rec.Key] = rec
	return nil
}

func (repo *recordRepository) DeleteRecords(_ context.Context, learner string, keys ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, key := range keys {
		delete(repo.db.table[learner], key)
	}
	return nil
}
