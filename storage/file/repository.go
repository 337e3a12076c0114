// Package filestore keeps the progress records of every learner in a single JSON document on disk,
// which other processes may read and write too.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/beet/core/progress"
)

type (
	// Repository is a progress.Repository and a progress.Watcher over a JSON document.
	// Every operation reads the document from disk; writes replace it atomically.
	// Concurrent writers in different processes are not coordinated: the last write wins.
	Repository struct {
		path string

		mu       sync.Mutex
		snapshot document // the records as last reported to this process
	}

	// learner -> key -> record
	document map[string]map[string]fileRecord

	fileRecord struct {
		Value     string    `json:"value"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

var (
	_ progress.Repository = (*Repository)(nil)
	_ progress.Watcher    = (*Repository)(nil)
)

// Open returns a repository over the document at path, creating its directory if needed.
// A missing document is an empty one.
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating progress directory")
	}
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return &Repository{path: path, snapshot: doc}, nil
}

func (repo *Repository) Path() string {
	return repo.path
}

func readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return nil, errors.Wrap(err, "reading progress document")
	}
	doc := document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding progress document")
	}
	return doc, nil
}

// writeDocument replaces the document through a rename, so that readers never see a partial write.
func writeDocument(path string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding progress document")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }() // no-op once renamed

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "syncing temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replacing progress document")
}

func (doc document) set(learner, key string, rec fileRecord) {
	recs, ok := doc[learner]
	if !ok {
		recs = make(map[string]fileRecord)
		doc[learner] = recs
	}
	recs[key] = rec
}

func (doc document) remove(learner string, keys ...string) {
	recs, ok := doc[learner]
	if !ok {
		return
	}
	for _, key := range keys {
		delete(recs, key)
	}
	if len(recs) == 0 {
		delete(doc, learner)
	}
}

func (repo *Repository) GetRecord(_ context.Context, learner, key string) (progress.Record, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	doc, err := readDocument(repo.path)
	if err != nil {
		return progress.Record{}, err
	}
	rec, ok := doc[learner][key]
	if !ok {
		return progress.Record{}, progress.ErrNotFound
	}
	return progress.Record{Learner: learner, Key: key, Value: rec.Value, UpdatedAt: rec.UpdatedAt}, nil
}

func (repo *Repository) QueryRecords(_ context.Context, learner string, filter progress.QueryFilter) ([]progress.Record, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	doc, err := readDocument(repo.path)
	if err != nil {
		return nil, err
	}
	recs := make([]progress.Record, 0, len(doc[learner]))
	for key, rec := range doc[learner] {
		if filter.Match(key) {
			recs = append(recs, progress.Record{Learner: learner, Key: key, Value: rec.Value, UpdatedAt: rec.UpdatedAt})
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

// PutRecord only applies its own write to the snapshot: writes of other processes read along the way
// are left for the watcher to report.
func (repo *Repository) PutRecord(_ context.Context, rec progress.Record) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	doc, err := readDocument(repo.path)
	if err != nil {
		return err
	}
	frec := fileRecord{Value: rec.Value, UpdatedAt: rec.UpdatedAt.UTC()}
	doc.set(rec.Learner, rec.Key, frec)
	if err = writeDocument(repo.path, doc); err != nil {
		return err
	}
	repo.snapshot.set(rec.Learner, rec.Key, frec)
	return nil
}

func (repo *Repository) DeleteRecords(_ context.Context, learner string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()

	doc, err := readDocument(repo.path)
	if err != nil {
		return err
	}
	doc.remove(learner, keys...)
	if err = writeDocument(repo.path, doc); err != nil {
		return err
	}
	repo.snapshot.remove(learner, keys...)
	return nil
}
