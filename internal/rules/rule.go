// Package rules implements the rule data model, its YAML serialization,
// and structural validation. A Rule pairs a match condition (Conditions)
// with an ordered action sequence (Actions); the Matcher and Executor
// packages consume the types defined here but never mutate them.
package rules

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Rule is a single sorting rule: a condition paired with the actions to
// run against every file that satisfies it.
type Rule struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Enabled     bool       `yaml:"enabled"`
	Description string     `yaml:"description,omitempty"`
	Priority    int        `yaml:"priority"`
	When        Conditions `yaml:"when"`
	Then        []Action   `yaml:"then"`
}

// ruleKnownKeys is the set of top-level keys a rule document may use.
// Any other key is rejected during unmarshaling rather than silently
// ignored.
var ruleKnownKeys = map[string]bool{
	"id": true, "name": true, "enabled": true, "description": true,
	"priority": true, "when": true, "then": true,
}

// UnmarshalYAML applies field defaults (priority defaults to 1 if
// absent; enabled defaults to true so a freshly authored rule is live)
// and rejects unrecognized top-level keys.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("rule: expected a mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if !ruleKnownKeys[key] {
			return fmt.Errorf("rule: unknown key %q", key)
		}
	}

	type alias struct {
		ID          string     `yaml:"id"`
		Name        string     `yaml:"name"`
		Enabled     *bool      `yaml:"enabled"`
		Description string     `yaml:"description"`
		Priority    *int       `yaml:"priority"`
		When        Conditions `yaml:"when"`
		Then        []Action   `yaml:"then"`
	}
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}

	r.ID = a.ID
	r.Name = a.Name
	r.Description = a.Description
	r.When = a.When
	r.Then = a.Then

	if a.Enabled == nil {
		r.Enabled = true
	} else {
		r.Enabled = *a.Enabled
	}
	if a.Priority == nil {
		r.Priority = 1
	} else {
		r.Priority = *a.Priority
	}
	return nil
}

// rulesFile is the YAML envelope accepted at the top level: either a
// mapping with a "rules" key, or a bare top-level sequence.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// UnmarshalYAML accepts both `{rules: [...]}` and a bare `[...]` sequence
// at the document root.
func (f *rulesFile) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []Rule
		if err := value.Decode(&list); err != nil {
			return err
		}
		f.Rules = list
		return nil
	case yaml.MappingNode:
		type alias rulesFile
		var a alias
		if err := value.Decode(&a); err != nil {
			return err
		}
		*f = rulesFile(a)
		return nil
	default:
		return fmt.Errorf("rules document: expected mapping or sequence, got %v", value.Kind)
	}
}

// Ruleset is an ordered, validated collection of rules. The zero value is
// an empty ruleset.
type Ruleset struct {
	Rules []Rule
}

// Sorted returns a copy of rs filtered to enabled rules, optionally
// restricted to the given id allow-list (nil/empty means no restriction),
// ordered by descending priority and then by id for ties.
func (rs Ruleset) Sorted(idFilter []string) []Rule {
	var allow map[string]bool
	if len(idFilter) > 0 {
		allow = make(map[string]bool, len(idFilter))
		for _, id := range idFilter {
			allow[id] = true
		}
	}

	out := make([]Rule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		if !r.Enabled {
			continue
		}
		if allow != nil && !allow[r.ID] {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// loadFromFile reads and parses a ruleset from the given YAML path.
// A missing file yields an empty ruleset, not an error.
func loadFromFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w", path, err)
	}
	return file.Rules, nil
}

// saveToFile writes the ruleset to the given YAML path, wholesale: there
// are no partial in-place edits of rule files, rules are read and
// written whole.
func saveToFile(path string, rules []Rule) error {
	data, err := yaml.Marshal(rulesFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("marshaling rules: %w", err)
	}
	header := "# foldsort rules — see `foldsort template` for the placeholder vocabulary.\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// Store owns a loaded, validated ruleset and mediates add/remove/toggle/
// export operations used by the `foldsort add/remove/toggle/export/list`
// commands.
// Thread-safe: Snapshot() is read concurrently while Add/Remove/Toggle
// mutate under lock.
type Store struct {
	mu   sync.RWMutex
	path string
	set  Ruleset
}

// NewStore loads a Store from path. A missing file is not an error — the
// Store starts empty, and the file is first written by Add, Remove or
// Toggle.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current validated ruleset.
func (s *Store) Snapshot() Ruleset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Reload re-reads the rules file from disk, re-validating the whole set
// atomically: a single invalid rule rejects the entire load.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reload()
}

func (s *Store) reload() error {
	loaded, err := loadFromFile(s.path)
	if err != nil {
		return err
	}
	if err := Validate(loaded); err != nil {
		return err
	}
	s.set = Ruleset{Rules: loaded}
	return nil
}

// Add validates and appends a rule, then persists the whole ruleset.
func (s *Store) Add(r Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := append(append([]Rule{}, s.set.Rules...), r)
	if err := Validate(candidate); err != nil {
		return err
	}
	s.set.Rules = candidate
	return saveToFile(s.path, s.set.Rules)
}

// Remove deletes the rule with the given id and persists the change.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return &RuleNotFoundError{ID: id}
	}
	s.set.Rules = append(s.set.Rules[:idx], s.set.Rules[idx+1:]...)
	return saveToFile(s.path, s.set.Rules)
}

// Toggle flips a rule's Enabled flag and persists the change.
func (s *Store) Toggle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return &RuleNotFoundError{ID: id}
	}
	s.set.Rules[idx].Enabled = !s.set.Rules[idx].Enabled
	return saveToFile(s.path, s.set.Rules)
}

// Export marshals a single rule to YAML and writes it to destPath.
func (s *Store) Export(id, destPath string) error {
	s.mu.RLock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.RUnlock()
		return &RuleNotFoundError{ID: id}
	}
	rule := s.set.Rules[idx]
	s.mu.RUnlock()

	data, err := yaml.Marshal(rulesFile{Rules: []Rule{rule}})
	if err != nil {
		return fmt.Errorf("marshaling rule %s: %w", id, err)
	}
	return os.WriteFile(destPath, data, 0o644)
}

// List returns all rules in declaration order (unlike Sorted, this is not
// filtered or priority-ordered — it's for `foldsort list`).
func (s *Store) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.set.Rules))
	copy(out, s.set.Rules)
	return out
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.set.Rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}
