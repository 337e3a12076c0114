package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
)

type (
	// Store is the progress store of one learner.
	// Writes go through to the Repository; when the Repository fails, the value is kept in memory
	// (and served from there) until Flush manages to persist it. Storage errors are logged, never returned.
	Store struct {
		learner string
		repo    Repository
		bus     *Bus
		schema  Schema
		logger  core.Logger

		mu       sync.Mutex         // serializes reads & writes, making Update atomic
		fallback map[string]*string // unpersisted values; nil marks an unpersisted clear
	}

	// Entry is a decoded record.
	Entry struct {
		Key       string    `json:"key"`
		Kind      Kind      `json:"kind"`
		Value     Value     `json:"value"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// UpdateFunc receives the current value (ok is false when unset) and returns the next one.
	// Returning write=false leaves the record untouched and notifies nobody.
	UpdateFunc func(cur Value, ok bool) (next Value, write bool, err error)
)

func newStore(learner string, repo Repository, bus *Bus, schema Schema, logger core.Logger) *Store {
	return &Store{
		learner:  learner,
		repo:     repo,
		bus:      bus,
		schema:   schema,
		logger:   logger,
		fallback: make(map[string]*string),
	}
}

func (s *Store) Learner() string {
	return s.learner
}

// Get returns the value of key, or false if it was never set or its stored data is malformed.
func (s *Store) Get(ctx context.Context, key Key) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, key)
}

func (s *Store) get(ctx context.Context, key Key) (Value, bool) {
	raw, ok := s.load(ctx, key.Name)
	if !ok {
		return Value{}, false
	}
	val, err := Decode(key.Kind, raw)
	if err != nil {
		s.logger.Debug("ignoring malformed progress record", errors.Wrap(err, key.Name), s.person())
		return Value{}, false
	}
	return val, true
}

func (s *Store) load(ctx context.Context, name string) (string, bool) {
	if raw, ok := s.fallback[name]; ok {
		if raw == nil {
			return "", false
		}
		return *raw, true
	}
	rec, err := s.repo.GetRecord(ctx, s.learner, name)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			s.logger.Error("reading progress record", errors.Wrap(err, name), s.person())
		}
		return "", false
	}
	return rec.Value, true
}

// Set persists val under key, overwriting any prior value, then notifies subscribers.
func (s *Store) Set(ctx context.Context, key Key, val Value) error {
	if err := checkKind(key, val); err != nil {
		return err
	}

	s.mu.Lock()
	change, err := s.put(ctx, key, val)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Publish(change)
	return nil
}

// put must be called with s.mu held.
func (s *Store) put(ctx context.Context, key Key, val Value) (Change, error) {
	raw, err := Encode(val)
	if err != nil {
		return Change{}, err
	}
	if val, err = Decode(key.Kind, raw); err != nil { // normalized
		return Change{}, err
	}

	rec := Record{
		Learner:   s.learner,
		Key:       key.Name,
		Value:     raw,
		UpdatedAt: NowFunc().UTC(),
	}
	if err = s.repo.PutRecord(ctx, rec); err != nil {
		s.fallback[key.Name] = &raw
		s.logger.Warn("progress record kept in memory", errors.Wrap(err, "persisting "+key.Name), s.person())
	} else {
		delete(s.fallback, key.Name)
	}

	return Change{
		Learner: s.learner,
		Key:     key.Name,
		Kind:    key.Kind,
		Value:   val,
		Present: true,
		Origin:  OriginLocal,
	}, nil
}

// Update atomically replaces the value of key with the one returned by fn.
// It returns the value stored once fn has run.
func (s *Store) Update(ctx context.Context, key Key, fn UpdateFunc) (Value, error) {
	if err := key.validate(); err != nil {
		return Value{}, err
	}

	s.mu.Lock()
	cur, ok := s.get(ctx, key)
	if !ok {
		cur = zeroValue(key.Kind)
	}
	next, write, err := fn(cur, ok)
	if err != nil || !write {
		s.mu.Unlock()
		return cur, err
	}
	if err = checkKind(key, next); err != nil {
		s.mu.Unlock()
		return cur, err
	}
	change, err := s.put(ctx, key, next)
	s.mu.Unlock()
	if err != nil {
		return cur, err
	}

	s.bus.Publish(change)
	return change.Value, nil
}

// Delete clears key. Subscribers are notified only if a value was present.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := key.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.load(ctx, key.Name)
	if err := s.repo.DeleteRecords(ctx, s.learner, key.Name); err != nil {
		s.fallback[key.Name] = nil
		s.logger.Warn("progress record cleared in memory only", errors.Wrap(err, "deleting "+key.Name), s.person())
	} else {
		delete(s.fallback, key.Name)
	}
	s.mu.Unlock()

	if existed {
		s.bus.Publish(Change{
			Learner: s.learner,
			Key:     key.Name,
			Kind:    key.Kind,
			Value:   zeroValue(key.Kind),
			Origin:  OriginLocal,
		})
	}
	return nil
}

// Typed accessors

func (s *Store) Bool(ctx context.Context, key Key) bool {
	val, _ := s.Get(ctx, key)
	return val.Bool
}

func (s *Store) SetBool(ctx context.Context, key Key, b bool) error {
	return s.Set(ctx, key, BoolValue(b))
}

func (s *Store) Text(ctx context.Context, key Key) string {
	val, _ := s.Get(ctx, key)
	return val.Text
}

func (s *Store) SetText(ctx context.Context, key Key, text string) error {
	return s.Set(ctx, key, TextValue(text))
}

// Strings returns the members of a set key; unset or malformed sets read as empty.
func (s *Store) Strings(ctx context.Context, key Key) []string {
	if val, ok := s.Get(ctx, key); ok && val.Set != nil {
		return val.Set
	}
	return []string{}
}

func (s *Store) SetStrings(ctx context.Context, key Key, members ...string) error {
	return s.Set(ctx, key, SetValue(members...))
}

func (s *Store) Int(ctx context.Context, key Key) int {
	val, _ := s.Get(ctx, key)
	return val.Count
}

func (s *Store) SetInt(ctx context.Context, key Key, n int) error {
	return s.Set(ctx, key, CounterValue(n))
}

// Entries returns every readable record of the learner, ordered by key.
// Keys unknown to the schema are read as text.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.repo.QueryRecords(ctx, s.learner, QueryFilter{})
	if err != nil {
		s.logger.Error("querying progress records", errors.Wrap(err, "querying"), s.person())
		recs = nil
	}

	raws := make(map[string]Record, len(recs)+len(s.fallback))
	for _, rec := range recs {
		raws[rec.Key] = rec
	}
	for name, raw := range s.fallback {
		if raw == nil {
			delete(raws, name)
			continue
		}
		raws[name] = Record{Learner: s.learner, Key: name, Value: *raw}
	}

	entries := make([]Entry, 0, len(raws))
	for name, rec := range raws {
		key := s.lookup(name)
		val, err := Decode(key.Kind, rec.Value)
		if err != nil {
			s.logger.Debug("ignoring malformed progress record", errors.Wrap(err, name), s.person())
			continue
		}
		entries = append(entries, Entry{Key: name, Kind: key.Kind, Value: val, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Subscribe registers fn for the learner's changes on keys accepted by m.
// ScopeLocal observes writes made through this process; ScopeAll also observes external writes.
func (s *Store) Subscribe(m Matcher, scope Scope, fn func(Change)) (unsubscribe func()) {
	return s.bus.Subscribe(Filter{Learner: s.learner, Match: m, Scope: scope}, fn)
}

// Degraded reports whether some values are only held in memory.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fallback) > 0
}

// Flush retries persisting the values held in memory.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, raw := range s.fallback {
		var err error
		if raw == nil {
			err = s.repo.DeleteRecords(ctx, s.learner, name)
		} else {
			err = s.repo.PutRecord(ctx, Record{Learner: s.learner, Key: name, Value: *raw, UpdatedAt: NowFunc().UTC()})
		}
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, "flushing "+name)
			}
			continue
		}
		delete(s.fallback, name)
	}
	return firstErr
}

func (s *Store) lookup(name string) Key {
	if s.schema != nil {
		if key, ok := s.schema.Lookup(name); ok {
			return key
		}
	}
	return TextKey(name)
}

func (s *Store) person() core.Person {
	return core.Person{ID: s.learner}
}

func checkKind(key Key, val Value) error {
	if err := key.validate(); err != nil {
		return err
	}
	if val.Kind != key.Kind {
		return errors.Wrapf(ErrKindMismatch, "%s holds a %s, got a %s", key.Name, key.Kind, val.Kind)
	}
	return nil
}

func zeroValue(kind Kind) Value {
	val := Value{Kind: kind}
	if kind == KindSet {
		val.Set = []string{}
	}
	return val
}
