// Package portal exposes the learner facing operations of the training portal,
// typed by the catalog and backed by the progress store.
package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/catalog"
	"github.com/trezcool/beet/core/progress"
)

var (
	// errors
	ErrNotSet          = errors.New("progress key not set")
	ErrModuleNotFound  = errors.New("module not found")
	errNotCounter      = errors.New("not a counter")
	errNotChecklist    = errors.New("not a checklist")
	errUnknownItem     = errors.New("not an item of this checklist")
	errNotModuleTarget = errors.New("aggregate flags are managed by the modules")
)

type Service struct {
	progress *progress.Service
	catalog  *catalog.Catalog
	validate *validator.Validate
	logger   core.Logger
}

func NewService(repo progress.Repository, cat *catalog.Catalog, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		progress: progress.NewService(repo, cat, logger),
		catalog:  cat,
		validate: validate,
		logger:   logger,
	}
}

// Progress returns the underlying progress service (watching, flushing).
func (svc *Service) Progress() *progress.Service {
	return svc.progress
}

func (svc *Service) Catalog() *catalog.Catalog {
	return svc.catalog
}

func (svc *Service) key(name string) (progress.Key, error) {
	name = core.CleanString(name, true /* lower */)
	if key, ok := svc.catalog.Lookup(name); ok {
		return key, nil
	}
	return progress.Key{}, &UnknownKeyError{Key: name, Suggestion: svc.catalog.Suggest(name)}
}

// Entries returns every stored progress value of the learner.
func (svc *Service) Entries(ctx context.Context, learner string) ([]progress.Entry, error) {
	return svc.progress.Store(learner).Entries(ctx)
}

// Get returns the learner's value for the key; ErrNotSet when it was never written.
func (svc *Service) Get(ctx context.Context, learner, name string) (progress.Key, progress.Value, error) {
	key, err := svc.key(name)
	if err != nil {
		return key, progress.Value{}, err
	}
	val, ok := svc.progress.Store(learner).Get(ctx, key)
	if !ok {
		return key, val, ErrNotSet
	}
	return key, val, nil
}

// Put overwrites the learner's value for the key.
func (svc *Service) Put(ctx context.Context, learner string, data UpdateProgress) (progress.Value, error) {
	var key progress.Key
	var err error
	// unknown keys get a suggestion rather than a bare validation error
	if name := core.CleanString(data.Key, true /* lower */); name != "" {
		if key, err = svc.key(name); err != nil {
			return progress.Value{}, err
		}
	}
	if err = data.Validate(svc.validate); err != nil {
		return progress.Value{}, err
	}
	if strings.HasPrefix(key.Name, catalog.CompleteNS+"-") {
		return progress.Value{}, core.NewValidationError(errNotModuleTarget, core.FieldError{Field: "key", Error: errNotModuleTarget.Error()})
	}

	val, err := progress.ParseJSON(key.Kind, data.Value)
	if err != nil {
		return progress.Value{}, core.NewValidationError(err, core.FieldError{Field: "value", Error: err.Error()})
	}
	if key.Kind == progress.KindCounter {
		if cnt, ok := svc.catalog.Counter(key.Name); ok && (val.Count < 0 || val.Count > cnt.Target) {
			msg := fmt.Sprintf("must be between 0 and %d", cnt.Target)
			return progress.Value{}, core.NewValidationError(errors.New(msg), core.FieldError{Field: "value", Error: msg})
		}
	}
	if key.Kind == progress.KindSet {
		if cl, ok := svc.catalog.Checklist(key.Name); ok {
			for _, item := range val.Set {
				if !cl.Has(item) {
					return progress.Value{}, core.NewValidationError(
						errors.Wrap(errUnknownItem, item),
						core.FieldError{Field: "value", Error: fmt.Sprintf("%q is %s", item, errUnknownItem)},
					)
				}
			}
		}
	}

	if err = svc.progress.Store(learner).Set(ctx, key, val); err != nil {
		return progress.Value{}, errors.Wrap(err, "setting "+key.Name)
	}
	return val, nil
}

func (svc *Service) counter(name string) (progress.Counter, error) {
	key, err := svc.key(name)
	if err != nil {
		return progress.Counter{}, err
	}
	cnt, ok := svc.catalog.Counter(key.Name)
	if !ok {
		return cnt, core.NewValidationError(errNotCounter, core.FieldError{Field: "key", Error: errNotCounter.Error()})
	}
	return cnt, nil
}

func (svc *Service) Increment(ctx context.Context, learner, name string) (CounterStatus, error) {
	cnt, err := svc.counter(name)
	if err != nil {
		return CounterStatus{}, err
	}
	store := svc.progress.Store(learner)
	if _, err = cnt.Increment(ctx, store); err != nil {
		return CounterStatus{}, errors.Wrap(err, "incrementing "+cnt.Key.Name)
	}
	return svc.counterStatus(ctx, store, cnt), nil
}

func (svc *Service) Decrement(ctx context.Context, learner, name string) (CounterStatus, error) {
	cnt, err := svc.counter(name)
	if err != nil {
		return CounterStatus{}, err
	}
	store := svc.progress.Store(learner)
	if _, err = cnt.Decrement(ctx, store); err != nil {
		return CounterStatus{}, errors.Wrap(err, "decrementing "+cnt.Key.Name)
	}
	return svc.counterStatus(ctx, store, cnt), nil
}

func (svc *Service) counterStatus(ctx context.Context, store *progress.Store, cnt progress.Counter) CounterStatus {
	count := cnt.Count(ctx, store)
	return CounterStatus{Key: cnt.Key.Name, Count: count, Target: cnt.Target, Complete: count >= cnt.Target}
}

func (svc *Service) checklist(name, item string) (progress.Key, catalog.Checklist, error) {
	key, err := svc.key(name)
	if err != nil {
		return key, catalog.Checklist{}, err
	}
	cl, ok := svc.catalog.Checklist(key.Name)
	if !ok {
		return key, cl, core.NewValidationError(errNotChecklist, core.FieldError{Field: "key", Error: errNotChecklist.Error()})
	}
	if !cl.Has(item) {
		return key, cl, core.NewValidationError(errors.Wrap(errUnknownItem, item), core.FieldError{Field: "item", Error: errUnknownItem.Error()})
	}
	return key, cl, nil
}

// Tick adds item to the checklist. Ticking a ticked item changes nothing.
func (svc *Service) Tick(ctx context.Context, learner, name, item string) (ChecklistStatus, error) {
	return svc.updateChecklist(ctx, learner, name, item, true)
}

// Untick removes item from the checklist.
func (svc *Service) Untick(ctx context.Context, learner, name, item string) (ChecklistStatus, error) {
	return svc.updateChecklist(ctx, learner, name, item, false)
}

func (svc *Service) updateChecklist(ctx context.Context, learner, name, item string, tick bool) (ChecklistStatus, error) {
	key, cl, err := svc.checklist(name, item)
	if err != nil {
		return ChecklistStatus{}, err
	}
	val, err := svc.progress.Store(learner).Update(ctx, key, func(cur progress.Value, _ bool) (progress.Value, bool, error) {
		if cur.Contains(item) == tick {
			return cur, false, nil
		}
		members := make([]string, 0, len(cur.Set)+1)
		for _, m := range cur.Set {
			if m != item {
				members = append(members, m)
			}
		}
		if tick {
			members = append(members, item)
		}
		return progress.SetValue(members...), true, nil
	})
	if err != nil {
		return ChecklistStatus{}, errors.Wrap(err, "updating "+key.Name)
	}

	// members ticked under an older catalog do not count
	target := cl.Target()
	ticked := make([]string, 0, len(val.Set))
	for _, m := range val.Set {
		if cl.Has(m) {
			ticked = append(ticked, m)
		}
	}
	return ChecklistStatus{
		Key:      key.Name,
		Items:    cl.Items,
		Ticked:   ticked,
		Count:    len(ticked),
		Target:   target,
		Complete: len(ticked) >= target,
	}, nil
}

// Modules returns the status of every module, in catalog order.
func (svc *Service) Modules(ctx context.Context, learner string) ([]ModuleStatus, error) {
	store := svc.progress.Store(learner)
	done := make(map[string]bool, len(svc.catalog.Modules))
	statuses := make([]ModuleStatus, 0, len(svc.catalog.Modules))
	for _, mod := range svc.catalog.Modules {
		ms := svc.moduleStatus(ctx, store, mod, done)
		done[mod.ID] = ms.Status.Complete
		statuses = append(statuses, ms)
	}
	return statuses, nil
}

func (svc *Service) Module(ctx context.Context, learner, id string) (ModuleStatus, error) {
	mod, ok := svc.catalog.Module(id)
	if !ok {
		return ModuleStatus{}, ErrModuleNotFound
	}
	store := svc.progress.Store(learner)
	return svc.moduleStatus(ctx, store, mod, svc.prerequisites(ctx, store, mod)), nil
}

// prerequisites evaluates the modules mod requires.
func (svc *Service) prerequisites(ctx context.Context, store *progress.Store, mod *catalog.Module) map[string]bool {
	done := make(map[string]bool, len(mod.Requires))
	for _, id := range mod.Requires {
		if req, ok := svc.catalog.Module(id); ok {
			done[id] = req.Gate().Evaluate(ctx, store).Complete
		}
	}
	return done
}

func (svc *Service) moduleStatus(ctx context.Context, store *progress.Store, mod *catalog.Module, done map[string]bool) ModuleStatus {
	status := mod.Gate().Evaluate(ctx, store)
	if status.Stale {
		svc.logger.Warn(
			"module completion flag disagrees with its requirements",
			errors.Errorf("module %s: %d of %d items completed", mod.ID, status.Count, status.Total),
			core.Person{ID: store.Learner()},
		)
	}
	ms := ModuleStatus{
		ID:       mod.ID,
		Title:    mod.Title,
		Requires: mod.Requires,
		LockedBy: make([]string, 0),
		Status:   status,
	}
	if ms.Requires == nil {
		ms.Requires = []string{}
	}
	for _, id := range mod.Requires {
		if !done[id] {
			ms.LockedBy = append(ms.LockedBy, id)
		}
	}
	ms.Unlocked = len(ms.LockedBy) == 0
	return ms
}

// Continue decides whether the learner may move on past the module.
// It is refused while the module is locked, and while its requirements are incomplete.
func (svc *Service) Continue(ctx context.Context, learner, id string) (progress.Decision, error) {
	mod, ok := svc.catalog.Module(id)
	if !ok {
		return progress.Decision{}, ErrModuleNotFound
	}
	store := svc.progress.Store(learner)
	ms := svc.moduleStatus(ctx, store, mod, svc.prerequisites(ctx, store, mod))
	if !ms.Unlocked {
		titles := make([]string, 0, len(ms.LockedBy))
		for _, id := range ms.LockedBy {
			if req, ok := svc.catalog.Module(id); ok {
				titles = append(titles, req.Title)
			}
		}
		return progress.Decision{
			Reason: "complete " + strings.Join(titles, ", ") + " first",
			Status: ms.Status,
		}, nil
	}

	decision, err := mod.Gate().Advance(ctx, store)
	if err != nil {
		return decision, errors.Wrap(err, "advancing "+mod.ID)
	}
	return decision, nil
}

// Heal re-validates every module of the learner and clears the completion flags that disagree
// with their requirements, including those of modules that do not heal themselves.
func (svc *Service) Heal(ctx context.Context, learner string) []progress.Status {
	store := svc.progress.Store(learner)
	statuses := make([]progress.Status, 0, len(svc.catalog.Modules))
	for _, mod := range svc.catalog.Modules {
		gate := mod.Gate()
		gate.SelfHeal = true
		status := gate.Evaluate(ctx, store)
		if status.Healed {
			svc.logger.Info("cleared stale module completion flag", errors.Errorf("module %s", mod.ID), core.Person{ID: learner})
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Reset clears one progress value of the learner.
func (svc *Service) Reset(ctx context.Context, learner, name string) error {
	key, err := svc.key(name)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.progress.Store(learner).Delete(ctx, key), "resetting "+key.Name)
}

// Subscribe registers fn for the learner's changes; see progress.Store.Subscribe.
func (svc *Service) Subscribe(learner string, m progress.Matcher, scope progress.Scope, fn func(progress.Change)) (unsubscribe func()) {
	return svc.progress.Store(learner).Subscribe(m, scope, fn)
}
