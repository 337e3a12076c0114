package progress

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type (
	// Requirement is one constituent of a Gate.
	// Bool keys must be true, text keys non-blank, set and counter keys must reach Target (at least 1).
	// When Items is set, only those members of a set count towards Target.
	Requirement struct {
		Key    Key
		Target int
		Items  []string
		Label  string // shown in reasons; defaults to the key name
	}

	// Gate computes completion over a fixed, ordered list of requirements.
	// Aggregate, when set, is the persisted "complete" flag of the gate. It is never trusted:
	// Evaluate re-validates it against the requirements, and clears it when SelfHeal is on.
	Gate struct {
		ID        string
		Required  []Requirement
		Aggregate Key
		SelfHeal  bool
	}

	Status struct {
		Gate      string   `json:"gate"`
		Completed []string `json:"completed"`
		Missing   []string `json:"missing"`
		Count     int      `json:"count"`
		Total     int      `json:"total"`
		Percent   int      `json:"percent"`
		Complete  bool     `json:"complete"`
		Stale     bool     `json:"stale"`  // the aggregate flag claims completion but the requirements disagree
		Healed    bool     `json:"healed"` // the stale aggregate flag was cleared by this evaluation
	}

	// Decision is the outcome of a soft gate check. It is not a permission system.
	Decision struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason,omitempty"`
		Status  Status `json:"status"`
	}
)

func (r Requirement) target() int {
	if r.Target < 1 {
		return 1
	}
	return r.Target
}

func (r Requirement) label() string {
	if r.Label != "" {
		return r.Label
	}
	return r.Key.Name
}

// Satisfied reports whether the value read for the requirement's key fulfils it.
func (r Requirement) Satisfied(val Value, ok bool) bool {
	if !ok {
		return false
	}
	switch r.Key.Kind {
	case KindBool:
		return val.Bool
	case KindText:
		return strings.TrimSpace(val.Text) != ""
	case KindSet:
		return len(r.Members(val)) >= r.target()
	case KindCounter:
		return val.Count >= r.target()
	default:
		return false
	}
}

// Members returns the members of a set value that count towards the requirement.
func (r Requirement) Members(val Value) []string {
	if len(r.Items) == 0 {
		return val.Set
	}
	members := make([]string, 0, len(val.Set))
	for _, m := range val.Set {
		for _, item := range r.Items {
			if m == item {
				members = append(members, m)
				break
			}
		}
	}
	return members
}

// Percent returns completed/total as a rounded percentage; no requirements means 100%.
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

// Evaluate reads every requirement and re-validates the aggregate flag.
func (g Gate) Evaluate(ctx context.Context, store *Store) Status {
	status := Status{
		Gate:      g.ID,
		Completed: make([]string, 0, len(g.Required)),
		Missing:   make([]string, 0),
		Total:     len(g.Required),
	}
	for _, req := range g.Required {
		val, ok := store.Get(ctx, req.Key)
		if req.Satisfied(val, ok) {
			status.Completed = append(status.Completed, req.Key.Name)
		} else {
			status.Missing = append(status.Missing, req.Key.Name)
		}
	}
	status.Count = len(status.Completed)
	status.Percent = Percent(status.Count, status.Total)
	status.Complete = status.Count == status.Total

	if !g.Aggregate.IsZero() && !status.Complete && store.Bool(ctx, g.Aggregate) {
		status.Stale = true
		if g.SelfHeal {
			if err := store.Delete(ctx, g.Aggregate); err == nil {
				status.Stale = false
				status.Healed = true
			}
		}
	}
	return status
}

// Advance decides whether the learner may continue past the gate.
// When allowed, the aggregate flag is persisted; it is written once, however many callers race.
func (g Gate) Advance(ctx context.Context, store *Store) (Decision, error) {
	status := g.Evaluate(ctx, store)
	if !status.Complete {
		return Decision{Reason: g.reason(status), Status: status}, nil
	}
	if !g.Aggregate.IsZero() {
		_, err := store.Update(ctx, g.Aggregate, func(cur Value, _ bool) (Value, bool, error) {
			if cur.Bool {
				return cur, false, nil
			}
			return BoolValue(true), true, nil
		})
		if err != nil {
			return Decision{}, err
		}
	}
	return Decision{Allowed: true, Status: status}, nil
}

func (g Gate) reason(status Status) string {
	labels := make(map[string]string, len(g.Required))
	for _, req := range g.Required {
		labels[req.Key.Name] = req.label()
	}
	missing := make([]string, 0, len(status.Missing))
	for _, name := range status.Missing {
		missing = append(missing, labels[name])
	}
	return fmt.Sprintf("%d of %d items completed; still to do: %s", status.Count, status.Total, strings.Join(missing, ", "))
}
