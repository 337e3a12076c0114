package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beet/core/progress"
)

// RunRepositoryTests checks the behaviour every progress.Repository must have.
// newRepo must return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) progress.Repository) {
	tstamp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("get unset", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.GetRecord(context.Background(), "l1", "video-m1-a"); errors.Cause(err) != progress.ErrNotFound {
			t.Errorf("GetRecord() error = %v, wantErr %v", err, progress.ErrNotFound)
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		rec := progress.Record{Learner: "l1", Key: "video-m1-a", Value: "false", UpdatedAt: tstamp}
		require.NoError(t, repo.PutRecord(ctx, rec))
		rec.Value = "true"
		rec.UpdatedAt = tstamp.Add(time.Minute)
		require.NoError(t, repo.PutRecord(ctx, rec))

		got, err := repo.GetRecord(ctx, "l1", "video-m1-a")
		require.NoError(t, err)
		assert.Equal(t, "true", got.Value)
		assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt), "UpdatedAt = %v, want %v", got.UpdatedAt, rec.UpdatedAt)
	})

	t.Run("query", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		for _, rec := range []progress.Record{
			{Learner: "l1", Key: "video-m1-b", Value: "true", UpdatedAt: tstamp},
			{Learner: "l1", Key: "checklist-m1-setup", Value: `["a"]`, UpdatedAt: tstamp},
			{Learner: "l1", Key: "video-m1-a", Value: "true", UpdatedAt: tstamp},
			{Learner: "l2", Key: "video-m1-c", Value: "true", UpdatedAt: tstamp},
		} {
			require.NoError(t, repo.PutRecord(ctx, rec))
		}

		tests := []struct {
			name     string
			learner  string
			filter   progress.QueryFilter
			wantKeys []string
		}{
			{name: "all", learner: "l1", wantKeys: []string{"checklist-m1-setup", "video-m1-a", "video-m1-b"}},
			{name: "prefix", learner: "l1", filter: progress.QueryFilter{Prefix: "video-"}, wantKeys: []string{"video-m1-a", "video-m1-b"}},
			{name: "no match", learner: "l1", filter: progress.QueryFilter{Prefix: "counter-"}, wantKeys: []string{}},
			{name: "other learner", learner: "l2", wantKeys: []string{"video-m1-c"}},
			{name: "unknown learner", learner: "l3", wantKeys: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				recs, err := repo.QueryRecords(ctx, tt.learner, tt.filter)
				if err != nil {
					t.Fatalf("QueryRecords() error = %v", err)
				}
				keys := make([]string, 0, len(recs))
				for _, rec := range recs {
					keys = append(keys, rec.Key)
				}
				assert.Equal(t, tt.wantKeys, keys)
			})
		}
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		repo := newRepo(t)
		require.NoError(t, repo.PutRecord(ctx, progress.Record{Learner: "l1", Key: "video-m1-a", Value: "true", UpdatedAt: tstamp}))
		require.NoError(t, repo.PutRecord(ctx, progress.Record{Learner: "l1", Key: "video-m1-b", Value: "true", UpdatedAt: tstamp}))
		require.NoError(t, repo.PutRecord(ctx, progress.Record{Learner: "l2", Key: "video-m1-a", Value: "true", UpdatedAt: tstamp}))

		require.NoError(t, repo.DeleteRecords(ctx, "l1", "video-m1-a", "never-written"))
		require.NoError(t, repo.DeleteRecords(ctx, "l3", "video-m1-a"))
		require.NoError(t, repo.DeleteRecords(ctx, "l1"))

		_, err := repo.GetRecord(ctx, "l1", "video-m1-a")
		assert.Equal(t, progress.ErrNotFound, errors.Cause(err))
		_, err = repo.GetRecord(ctx, "l1", "video-m1-b")
		assert.NoError(t, err)
		_, err = repo.GetRecord(ctx, "l2", "video-m1-a")
		assert.NoError(t, err)
	})
}
