package progress

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the type of value a progress key holds.
type Kind int

// Kinds
const (
	KindBool    Kind = iota + 1 // "true" | "false"
	KindText                    // free text, eg. practice answers
	KindSet                     // JSON array of strings, eg. ticked checklist items
	KindCounter                 // JSON integer
)

var (
	kindNames = map[Kind]string{
		KindBool:    "bool",
		KindText:    "text",
		KindSet:     "set",
		KindCounter: "counter",
	}

	keyNameRegex = regexp.MustCompile(`^[a-z0-9]+([-_.][a-z0-9]+)*$`)

	// errors
	ErrKindMismatch = errors.New("value kind does not match key kind")
	ErrInvalidKey   = errors.New("invalid progress key")
	errMalformed    = errors.New("malformed stored value")
)

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// ValidKeyName reports whether name follows the `<namespace>-<id>` convention.
func ValidKeyName(name string) bool {
	return keyNameRegex.MatchString(name)
}

// Key identifies one trackable unit (a section, a video, a checklist, a counter..).
type Key struct {
	Name string
	Kind Kind
}

func BoolKey(name string) Key { return Key{Name: name, Kind: KindBool} }
func TextKey(name string) Key { return Key{Name: name, Kind: KindText} }
func SetKey(name string) Key { return Key{Name: name, Kind: KindSet} }
func CounterKey(name string) Key { return Key{Name: name, Kind: KindCounter} }

func (k Key) IsZero() bool {
	return k.Name == ""
}

func (k Key) validate() error {
	if !ValidKeyName(k.Name) {
		return errors.Wrapf(ErrInvalidKey, "%q", k.Name)
	}
	if _, ok := kindNames[k.Kind]; !ok {
		return errors.Wrapf(ErrInvalidKey, "%q has no kind", k.Name)
	}
	return nil
}

// Value is a decoded progress value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Bool  bool
	Text  string
	Set   []string
	Count int
}

func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }
func SetValue(s ...string) Value { return Value{Kind: KindSet, Set: normalizeSet(s)} }
func CounterValue(n int) Value { return Value{Kind: KindCounter, Count: n} }

// Contains reports whether s is a member of a set value.
func (v Value) Contains(s string) bool {
	i := sort.SearchStrings(v.Set, s)
	return i < len(v.Set) && v.Set[i] == s
}

// Encode returns the stored representation of v.
func Encode(v Value) (string, error) {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool), nil
	case KindText:
		return v.Text, nil
	case KindSet:
		data, err := json.Marshal(normalizeSet(v.Set))
		if err != nil {
			return "", errors.Wrap(err, "encoding set")
		}
		return string(data), nil
	case KindCounter:
		return strconv.Itoa(v.Count), nil
	default:
		return "", ErrKindMismatch
	}
}

// Decode parses a stored representation for the given kind.
func Decode(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindBool:
		switch raw {
		case "true":
			return BoolValue(true), nil
		case "false":
			return BoolValue(false), nil
		}
		return Value{}, errors.Wrapf(errMalformed, "bool %q", raw)
	case KindText:
		return TextValue(raw), nil
	case KindSet:
		var set []string
		if err := json.Unmarshal([]byte(raw), &set); err != nil || isNull(raw) {
			return Value{}, errors.Wrapf(errMalformed, "set %q", raw)
		}
		return SetValue(set...), nil
	case KindCounter:
		var n int
		if err := json.Unmarshal([]byte(raw), &n); err != nil || isNull(raw) {
			return Value{}, errors.Wrapf(errMalformed, "counter %q", raw)
		}
		return CounterValue(n), nil
	default:
		return Value{}, ErrKindMismatch
	}
}

// MarshalJSON encodes v as its native JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindText:
		return json.Marshal(v.Text)
	case KindSet:
		return json.Marshal(normalizeSet(v.Set))
	case KindCounter:
		return json.Marshal(v.Count)
	default:
		return []byte("null"), nil
	}
}

// ParseJSON decodes a native JSON value for the given kind.
// null is rejected for every kind.
func ParseJSON(kind Kind, raw json.RawMessage) (Value, error) {
	if isNull(string(raw)) {
		return Value{}, errors.Wrapf(ErrKindMismatch, "expected a JSON %s, got null", kind)
	}
	var err error
	switch kind {
	case KindBool:
		var b bool
		if err = json.Unmarshal(raw, &b); err == nil {
			return BoolValue(b), nil
		}
	case KindText:
		var s string
		if err = json.Unmarshal(raw, &s); err == nil {
			return TextValue(s), nil
		}
	case KindSet:
		var set []string
		if err = json.Unmarshal(raw, &set); err == nil {
			return SetValue(set...), nil
		}
	case KindCounter:
		var n int
		if err = json.Unmarshal(raw, &n); err == nil {
			return CounterValue(n), nil
		}
	default:
		return Value{}, ErrKindMismatch
	}
	return Value{}, errors.Wrapf(ErrKindMismatch, "expected a JSON %s", kind)
}

// isNull reports whether raw is the JSON null literal, which json.Unmarshal accepts for any target.
func isNull(raw string) bool {
	return strings.TrimSpace(raw) == "null"
}

// normalizeSet sorts, trims and dedups set members. It never returns nil.
func normalizeSet(members []string) []string {
	set := make([]string, 0, len(members))
	for _, m := range members {
		if m = strings.TrimSpace(m); m != "" {
			set = append(set, m)
		}
	}
	sort.Strings(set)
	uniq := set[:0]
	for _, m := range set {
		if len(uniq) == 0 || m != uniq[len(uniq)-1] {
			uniq = append(uniq, m)
		}
	}
	return uniq
}
