// Package catalog describes the training content: which modules exist, what each of them requires,
// and, derived from it, the typed progress key of every trackable unit.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/beet/core"
	"github.com/trezcool/beet/core/progress"
)

//go:embed portal.yaml
var defaultCatalog []byte

// key namespaces
const (
	SectionNS   = "section-understood"
	VideoNS     = "video"
	ChecklistNS = "checklist"
	CounterNS   = "counter"
	PracticeNS  = "practice"
	CompleteNS  = "module-complete"
)

var (
	suggestCutoff = .6

	// errors
	errInvalidCatalog = errors.New("invalid catalog")
)

func SectionKey(module, id string) progress.Key {
	return progress.BoolKey(SectionNS + "-" + module + "-" + id)
}

func VideoKey(module, id string) progress.Key {
	return progress.BoolKey(VideoNS + "-" + module + "-" + id)
}

func ChecklistKey(module, id string) progress.Key {
	return progress.SetKey(ChecklistNS + "-" + module + "-" + id)
}

func CounterKey(module, id string) progress.Key {
	return progress.CounterKey(CounterNS + "-" + module + "-" + id)
}

func PracticeKey(module, id string) progress.Key {
	return progress.TextKey(PracticeNS + "-" + module + "-" + id)
}

func CompleteKey(module string) progress.Key {
	return progress.BoolKey(CompleteNS + "-" + module)
}

type (
	Catalog struct {
		Title   string    `yaml:"title" validate:"required"`
		Modules []*Module `yaml:"modules" validate:"required,min=1,dive,required"`

		keys       map[string]progress.Key
		modules    map[string]*Module
		checklists map[string]Checklist // by key name
		counters   map[string]progress.Counter
	}

	Module struct {
		ID         string      `yaml:"id" validate:"required,slug"`
		Title      string      `yaml:"title" validate:"required"`
		Requires   []string    `yaml:"requires" validate:"unique,dive,slug"`
		SelfHeal   bool        `yaml:"self_heal"` // clear a stale completion flag on evaluation
		Sections   []Item      `yaml:"sections" validate:"dive"`
		Videos     []Item      `yaml:"videos" validate:"dive"`
		Checklists []Checklist `yaml:"checklists" validate:"dive"`
		Counters   []Counter   `yaml:"counters" validate:"dive"`
		Practice   []Practice  `yaml:"practice" validate:"dive"`

		gate progress.Gate
	}

	Item struct {
		ID    string `yaml:"id" validate:"required,slug"`
		Title string `yaml:"title"`
	}

	Checklist struct {
		ID       string   `yaml:"id" validate:"required,slug"`
		Title    string   `yaml:"title"`
		Items    []string `yaml:"items" validate:"required,min=1,unique,dive,slug"`
		Required int      `yaml:"required" validate:"gte=0"` // items to tick; 0 means all of them
	}

	Counter struct {
		ID     string `yaml:"id" validate:"required,slug"`
		Title  string `yaml:"title"`
		Target int    `yaml:"target" validate:"required,min=1"`
	}

	Practice struct {
		ID       string `yaml:"id" validate:"required,slug"`
		Title    string `yaml:"title"`
		Required bool   `yaml:"required"`
	}
)

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Open loads the catalog at path, or the embedded one when path is empty.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening catalog")
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog")
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, errors.Wrap(err, "decoding catalog")
	}

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	if err := validate.Struct(&cat); err != nil {
		return nil, errors.Wrap(err, "validating catalog")
	}
	if err := cat.index(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// index checks cross references and derives the keys, counters and gates.
func (c *Catalog) index() error {
	c.keys = make(map[string]progress.Key)
	c.modules = make(map[string]*Module, len(c.Modules))
	c.checklists = make(map[string]Checklist)
	c.counters = make(map[string]progress.Counter)

	invalid := func(field, format string, args ...interface{}) error {
		msg := fmt.Sprintf(format, args...)
		return core.NewValidationError(errors.Wrap(errInvalidCatalog, msg), core.FieldError{Field: field, Error: msg})
	}

	for i, mod := range c.Modules {
		field := fmt.Sprintf("modules[%d]", i)
		if _, ok := c.modules[mod.ID]; ok {
			return invalid(field+".id", "duplicate module %q", mod.ID)
		}
		for _, req := range mod.Requires {
			if _, ok := c.modules[req]; !ok {
				return invalid(field+".requires", "module %q requires %q, which is not an earlier module", mod.ID, req)
			}
		}

		gate := progress.Gate{ID: mod.ID, Aggregate: CompleteKey(mod.ID), SelfHeal: mod.SelfHeal}
		add := func(key progress.Key, req *progress.Requirement) error {
			if _, ok := c.keys[key.Name]; ok {
				return invalid(field, "duplicate key %q", key.Name)
			}
			c.keys[key.Name] = key
			if req != nil {
				gate.Required = append(gate.Required, *req)
			}
			return nil
		}

		for _, sec := range mod.Sections {
			key := SectionKey(mod.ID, sec.ID)
			if err := add(key, &progress.Requirement{Key: key, Label: label(sec.Title, key.Name)}); err != nil {
				return err
			}
		}
		for _, vid := range mod.Videos {
			key := VideoKey(mod.ID, vid.ID)
			if err := add(key, &progress.Requirement{Key: key, Label: label(vid.Title, key.Name)}); err != nil {
				return err
			}
		}
		for j, cl := range mod.Checklists {
			if cl.Required > len(cl.Items) {
				return invalid(fmt.Sprintf("%s.checklists[%d].required", field, j), "checklist %q has only %d items", cl.ID, len(cl.Items))
			}
			key := ChecklistKey(mod.ID, cl.ID)
			if err := add(key, &progress.Requirement{Key: key, Target: cl.Target(), Items: cl.Items, Label: label(cl.Title, key.Name)}); err != nil {
				return err
			}
			c.checklists[key.Name] = cl
		}
		for _, cnt := range mod.Counters {
			key := CounterKey(mod.ID, cnt.ID)
			if err := add(key, &progress.Requirement{Key: key, Target: cnt.Target, Label: label(cnt.Title, key.Name)}); err != nil {
				return err
			}
			c.counters[key.Name] = progress.Counter{Key: key, Target: cnt.Target}
		}
		for _, pr := range mod.Practice {
			key := PracticeKey(mod.ID, pr.ID)
			var req *progress.Requirement
			if pr.Required {
				req = &progress.Requirement{Key: key, Label: label(pr.Title, key.Name)}
			}
			if err := add(key, req); err != nil {
				return err
			}
		}
		if err := add(gate.Aggregate, nil); err != nil {
			return err
		}

		mod.gate = gate
		c.modules[mod.ID] = mod
	}
	return nil
}

func label(title, fallback string) string {
	if title = core.CleanString(title); title != "" {
		return title
	}
	return fallback
}

// Target returns the number of items to tick.
func (cl Checklist) Target() int {
	if cl.Required > 0 {
		return cl.Required
	}
	return len(cl.Items)
}

// Has reports whether item belongs to the checklist.
func (cl Checklist) Has(item string) bool {
	for _, it := range cl.Items {
		if it == item {
			return true
		}
	}
	return false
}

// Gate returns the completion gate of the module.
func (m *Module) Gate() progress.Gate {
	return m.gate
}

// Lookup implements progress.Schema.
func (c *Catalog) Lookup(name string) (progress.Key, bool) {
	key, ok := c.keys[name]
	return key, ok
}

// Keys returns every known key, ordered by name.
func (c *Catalog) Keys() []progress.Key {
	keys := make([]progress.Key, 0, len(c.keys))
	for _, key := range c.keys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

func (c *Catalog) Module(id string) (*Module, bool) {
	mod, ok := c.modules[id]
	return mod, ok
}

// Checklist returns the checklist stored under the key name.
func (c *Catalog) Checklist(name string) (Checklist, bool) {
	cl, ok := c.checklists[name]
	return cl, ok
}

// Counter returns the bounded counter stored under the key name.
func (c *Catalog) Counter(name string) (progress.Counter, bool) {
	cnt, ok := c.counters[name]
	return cnt, ok
}

// Suggest returns the known key closest to name, or "" when none is similar enough.
func (c *Catalog) Suggest(name string) string {
	matcher := difflib.NewMatcher(nil, strings.Split(name, ""))
	var best string
	var bestRatio float64
	for _, key := range c.Keys() {
		matcher.SetSeq1(strings.Split(key.Name, ""))
		if matcher.RealQuickRatio() < suggestCutoff || matcher.QuickRatio() < suggestCutoff {
			continue
		}
		if ratio := matcher.Ratio(); ratio >= suggestCutoff && ratio > bestRatio {
			best, bestRatio = key.Name, ratio
		}
	}
	return best
}
