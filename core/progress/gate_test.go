package progress_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/beet/core/progress"
	testutil "github.com/trezcool/beet/tests"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{completed: 3, total: 4, want: 75},
		{completed: 0, total: 0, want: 100},
		{completed: 0, total: 4, want: 0},
		{completed: 1, total: 3, want: 33},
		{completed: 2, total: 3, want: 67},
		{completed: 4, total: 4, want: 100},
	}
	for _, tt := range tests {
		if got := progress.Percent(tt.completed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestRequirement_Satisfied(t *testing.T) {
	tests := []struct {
		name string
		req  progress.Requirement
		val  progress.Value
		ok   bool
		want bool
	}{
		{name: "unset", req: progress.Requirement{Key: understoodKey}, want: false},
		{name: "bool false", req: progress.Requirement{Key: understoodKey}, val: progress.BoolValue(false), ok: true, want: false},
		{name: "bool true", req: progress.Requirement{Key: understoodKey}, val: progress.BoolValue(true), ok: true, want: true},
		{name: "blank text", req: progress.Requirement{Key: answerKey}, val: progress.TextValue("  "), ok: true, want: false},
		{name: "text", req: progress.Requirement{Key: answerKey}, val: progress.TextValue("done"), ok: true, want: true},
		{name: "empty set", req: progress.Requirement{Key: checklistKey}, val: progress.SetValue(), ok: true, want: false},
		{name: "set under target", req: progress.Requirement{Key: checklistKey, Target: 3}, val: progress.SetValue("a", "b"), ok: true, want: false},
		{name: "set at target", req: progress.Requirement{Key: checklistKey, Target: 2}, val: progress.SetValue("a", "b"), ok: true, want: true},
		{name: "set of former items", req: progress.Requirement{Key: checklistKey, Target: 1, Items: []string{"a", "b"}}, val: progress.SetValue("old-x", "old-y"), ok: true, want: false},
		{name: "set with a former item", req: progress.Requirement{Key: checklistKey, Target: 2, Items: []string{"a", "b"}}, val: progress.SetValue("a", "old-x"), ok: true, want: false},
		{name: "set of current items", req: progress.Requirement{Key: checklistKey, Target: 2, Items: []string{"a", "b"}}, val: progress.SetValue("a", "b", "old-x"), ok: true, want: true},
		{name: "counter default target", req: progress.Requirement{Key: counterKey}, val: progress.CounterValue(1), ok: true, want: true},
		{name: "counter under target", req: progress.Requirement{Key: counterKey, Target: 5}, val: progress.CounterValue(4), ok: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Satisfied(tt.val, tt.ok); got != tt.want {
				t.Errorf("Satisfied() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newGate(selfHeal bool) progress.Gate {
	return progress.Gate{
		ID: "m1",
		Required: []progress.Requirement{
			{Key: understoodKey, Label: "Intro"},
			{Key: answerKey},
			{Key: checklistKey, Target: 2},
			{Key: counterKey, Target: 3},
		},
		Aggregate: progress.BoolKey("module-complete-m1"),
		SelfHeal:  selfHeal,
	}
}

func completeGate(t *testing.T, store *progress.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SetBool(ctx, understoodKey, true))
	require.NoError(t, store.SetText(ctx, answerKey, "answer"))
	require.NoError(t, store.SetStrings(ctx, checklistKey, "a", "b"))
	require.NoError(t, store.SetInt(ctx, counterKey, 3))
}

func TestGate_Evaluate(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewProgressService(t, testSchema()).Store(learner)
	gate := newGate(true)

	status := gate.Evaluate(ctx, store)
	assert.Equal(t, 0, status.Count)
	assert.Equal(t, 4, status.Total)
	assert.Equal(t, 0, status.Percent)
	assert.False(t, status.Complete)
	assert.Equal(t, []string{understoodKey.Name, answerKey.Name, checklistKey.Name, counterKey.Name}, status.Missing)

	require.NoError(t, store.SetBool(ctx, understoodKey, true))
	require.NoError(t, store.SetText(ctx, answerKey, "answer"))
	require.NoError(t, store.SetStrings(ctx, checklistKey, "a", "b"))
	status = gate.Evaluate(ctx, store)
	assert.Equal(t, 3, status.Count)
	assert.Equal(t, 75, status.Percent)
	assert.Equal(t, []string{counterKey.Name}, status.Missing)

	require.NoError(t, store.SetInt(ctx, counterKey, 3))
	status = gate.Evaluate(ctx, store)
	assert.True(t, status.Complete)
	assert.Equal(t, 100, status.Percent)
	assert.Empty(t, status.Missing)

	empty := progress.Gate{ID: "empty"}.Evaluate(ctx, store)
	assert.True(t, empty.Complete)
	assert.Equal(t, 100, empty.Percent)
}

func TestGate_SelfHeal(t *testing.T) {
	ctx := context.Background()
	gate := newGate(true)
	store := testutil.NewProgressService(t, testSchema()).Store(learner)
	completeGate(t, store)

	decision, err := gate.Advance(ctx, store)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.True(t, store.Bool(ctx, gate.Aggregate))

	// one previously required item is no longer there
	require.NoError(t, store.Delete(ctx, answerKey))
	rec := new(testutil.Recorder)
	defer store.Subscribe(progress.AnyKey(), progress.ScopeLocal, rec.Record)()

	status := gate.Evaluate(ctx, store)
	assert.False(t, status.Complete)
	assert.True(t, status.Healed)
	assert.False(t, status.Stale)
	_, ok := store.Get(ctx, gate.Aggregate)
	assert.False(t, ok, "stale aggregate cleared")
	assert.Equal(t, []string{gate.Aggregate.Name}, rec.Keys())

	// idempotent: no further side effects
	again := gate.Evaluate(ctx, store)
	assert.False(t, again.Complete)
	assert.False(t, again.Healed)
	assert.False(t, again.Stale)
	assert.Equal(t, status.Missing, again.Missing)
	assert.Len(t, rec.Changes(), 1)
}

func TestGate_StaleWithoutSelfHeal(t *testing.T) {
	ctx := context.Background()
	gate := newGate(false)
	store := testutil.NewProgressService(t, testSchema()).Store(learner)
	require.NoError(t, store.SetBool(ctx, gate.Aggregate, true))

	status := gate.Evaluate(ctx, store)
	assert.False(t, status.Complete)
	assert.True(t, status.Stale, "inconsistency is reported")
	assert.False(t, status.Healed)
	assert.True(t, store.Bool(ctx, gate.Aggregate), "flag left untouched")
}

func TestGate_Advance(t *testing.T) {
	ctx := context.Background()
	gate := newGate(true)
	store := testutil.NewProgressService(t, testSchema()).Store(learner)
	require.NoError(t, store.SetText(ctx, answerKey, "answer"))

	decision, err := gate.Advance(ctx, store)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "1 of 4 items completed; still to do: Intro, checklist-m1-setup, counter-m1-prompts", decision.Reason)
	assert.False(t, store.Bool(ctx, gate.Aggregate))

	completeGate(t, store)
	decision, err = gate.Advance(ctx, store)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
	assert.True(t, store.Bool(ctx, gate.Aggregate))
}

func TestGate_AdvanceWritesAggregateOnce(t *testing.T) {
	ctx := context.Background()
	gate := newGate(true)
	store := testutil.NewProgressService(t, testSchema()).Store(learner)
	completeGate(t, store)

	rec := new(testutil.Recorder)
	defer store.Subscribe(progress.Keys(gate.Aggregate), progress.ScopeLocal, rec.Record)()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := gate.Advance(ctx, store)
			assert.NoError(t, err)
			assert.True(t, decision.Allowed)
		}()
	}
	wg.Wait()

	assert.Len(t, rec.Changes(), 1)
	assert.True(t, store.Bool(ctx, gate.Aggregate))
}
