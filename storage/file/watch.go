package filestore

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core/progress"
)

// Watch reports the records changed on disk by other processes until ctx is done.
// The directory is watched rather than the file, which is replaced on every write.
func (repo *Repository) Watch(ctx context.Context, fn func(progress.RawChange)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer func() { _ = watcher.Close() }()

	if err = watcher.Add(filepath.Dir(repo.path)); err != nil {
		return errors.Wrap(err, "watching progress directory")
	}
	name := filepath.Clean(repo.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || event.Op == fsnotify.Chmod {
				continue
			}
			if err = repo.reload(fn); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				if err = repo.reload(fn); err != nil {
					return err
				}
				continue
			}
			return errors.Wrap(err, "watching progress document")
		}
	}
}

// reload diffs the document against the snapshot and reports the differences.
func (repo *Repository) reload(fn func(progress.RawChange)) error {
	repo.mu.Lock()
	doc, err := readDocument(repo.path)
	if err != nil {
		repo.mu.Unlock()
		return err
	}
	changes := diff(repo.snapshot, doc)
	repo.snapshot = doc
	repo.mu.Unlock()

	for _, c := range changes {
		fn(c)
	}
	return nil
}

// diff returns the changes turning prev into next, ordered by learner and key.
func diff(prev, next document) []progress.RawChange {
	changes := make([]progress.RawChange, 0)
	for learner, recs := range next {
		for key, rec := range recs {
			if old, ok := prev[learner][key]; !ok || old.Value != rec.Value {
				changes = append(changes, progress.RawChange{Learner: learner, Key: key, Value: rec.Value, Present: true})
			}
		}
	}
	for learner, recs := range prev {
		for key := range recs {
			if _, ok := next[learner][key]; !ok {
				changes = append(changes, progress.RawChange{Learner: learner, Key: key})
			}
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Learner != changes[j].Learner {
			return changes[i].Learner < changes[j].Learner
		}
		return changes[i].Key < changes[j].Key
	})
	return changes
}
