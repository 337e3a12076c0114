package progress

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Origin tells where a change was made.
type Origin int

const (
	OriginLocal    Origin = iota // written through this process
	OriginExternal               // observed on the backing store, written by another process
)

func (o Origin) String() string {
	if o == OriginExternal {
		return "external"
	}
	return "local"
}

func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Scope selects which origins a subscriber observes.
type Scope int

const (
	ScopeLocal Scope = iota // local writes only
	ScopeAll                // local and external writes
)

// Change is broadcast to subscribers whenever a record is written or cleared.
type Change struct {
	Learner string `json:"learner"`
	Key     string `json:"key"`
	Kind    Kind   `json:"kind"`
	Value   Value  `json:"value"`
	Present bool   `json:"present"`
	Origin  Origin `json:"origin"`
}

// Matcher selects the keys a subscriber is interested in.
type Matcher func(key string) bool

// Keys matches the given keys only.
func Keys(keys ...Key) Matcher {
	names := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		names[k.Name] = struct{}{}
	}
	return func(key string) bool {
		_, ok := names[key]
		return ok
	}
}

// Prefix matches keys of a namespace, eg. Prefix("section-understood-").
func Prefix(prefix string) Matcher {
	return func(key string) bool { return strings.HasPrefix(key, prefix) }
}

func AnyKey() Matcher {
	return func(string) bool { return true }
}

type (
	// Filter scopes a subscription. An empty Learner matches every learner.
	Filter struct {
		Learner string
		Match   Matcher
		Scope   Scope
	}

	// Bus is an in-process observer registry. Subscribers run synchronously,
	// in subscription order, on the publisher's goroutine.
	Bus struct {
		mu   sync.RWMutex
		subs []*subscription
	}

	subscription struct {
		id     string
		filter Filter
		fn     func(Change)
	}
)

func NewBus() *Bus {
	return &Bus{}
}

func (f Filter) accepts(c Change) bool {
	if f.Learner != "" && f.Learner != c.Learner {
		return false
	}
	if c.Origin == OriginExternal && f.Scope != ScopeAll {
		return false
	}
	return f.Match == nil || f.Match(c.Key)
}

// Subscribe registers fn for the changes accepted by filter. The returned func unsubscribes; it is idempotent.
func (b *Bus) Subscribe(filter Filter, fn func(Change)) func() {
	sub := &subscription{id: uuid.NewString(), filter: filter, fn: fn}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub.id) })
	}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			// copy so that in-flight Publish snapshots are left untouched
			subs := make([]*subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers c to every matching subscriber.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter.accepts(c) {
			sub.fn(c)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
