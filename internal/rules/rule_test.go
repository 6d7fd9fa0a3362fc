package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRulesFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validMoveRuleYAML = `
rules:
  - id: photos
    name: Photos to library
    priority: 5
    when:
      extensions: [jpg, png]
    then:
      - move:
          to: "/library/{{year}}/{{filename}}"
`

func TestUnmarshalRule_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "rules.yaml", `
rules:
  - id: r1
    name: bare rule
    then:
      - skip: {}
`)
	rules, err := loadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if !rules[0].Enabled {
		t.Error("Enabled should default to true")
	}
	if rules[0].Priority != 1 {
		t.Errorf("Priority should default to 1, got %d", rules[0].Priority)
	}
}

func TestUnmarshalRule_ExplicitEnabledFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "rules.yaml", `
rules:
  - id: r1
    name: disabled rule
    enabled: false
    then:
      - skip: {}
`)
	rules, err := loadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if rules[0].Enabled {
		t.Error("explicit enabled: false should be respected")
	}
}

func TestUnmarshalRule_UnknownTopLevelKeyRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "rules.yaml", `
rules:
  - id: r1
    name: bad rule
    bogus_key: true
    then:
      - skip: {}
`)
	if _, err := loadFromFile(path); err == nil {
		t.Fatal("expected an error for an unrecognized top-level key")
	}
}

func TestLoadFromFile_BareSequenceDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "rules.yaml", `
- id: r1
  name: bare sequence rule
  then:
    - skip: {}
`)
	rules, err := loadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Errorf("expected to parse a bare sequence document, got %+v", rules)
	}
}

func TestLoadFromFile_MissingFileIsEmptyNotError(t *testing.T) {
	rules, err := loadFromFile(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("missing rules file should not be an error, got %v", err)
	}
	if rules != nil {
		t.Errorf("expected nil ruleset, got %+v", rules)
	}
}

func TestLoadFromFile_EmptyFileIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, "rules.yaml", "")
	rules, err := loadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if rules != nil {
		t.Errorf("expected nil ruleset for an empty file, got %+v", rules)
	}
}

func TestRuleset_Sorted_FiltersDisabled(t *testing.T) {
	rs := Ruleset{Rules: []Rule{
		{ID: "a", Enabled: true, Priority: 1},
		{ID: "b", Enabled: false, Priority: 5},
	}}
	out := rs.Sorted(nil)
	if len(out) != 1 || out[0].ID != "a" {
		t.Errorf("expected only enabled rule a, got %+v", out)
	}
}

func TestRuleset_Sorted_OrdersByPriorityThenID(t *testing.T) {
	rs := Ruleset{Rules: []Rule{
		{ID: "low", Enabled: true, Priority: 1},
		{ID: "high", Enabled: true, Priority: 10},
		{ID: "same-b", Enabled: true, Priority: 5},
		{ID: "same-a", Enabled: true, Priority: 5},
	}}
	out := rs.Sorted(nil)
	ids := []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID}
	want := []string{"high", "same-a", "same-b", "low"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order: got %v, want %v", ids, want)
		}
	}
}

func TestRuleset_Sorted_RespectsIDAllowList(t *testing.T) {
	rs := Ruleset{Rules: []Rule{
		{ID: "a", Enabled: true, Priority: 1},
		{ID: "b", Enabled: true, Priority: 1},
	}}
	out := rs.Sorted([]string{"b"})
	if len(out) != 1 || out[0].ID != "b" {
		t.Errorf("expected only rule b, got %+v", out)
	}
}

func TestStore_Add_PersistsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}

	rule := Rule{
		ID: "photos", Name: "Photos", Enabled: true, Priority: 1,
		Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}},
	}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(reopened.List()) != 1 {
		t.Fatalf("expected the added rule to persist across reopen")
	}
}

func TestStore_Add_RejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	rule := Rule{ID: "dup", Name: "First", Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}}}
	if err := store.Add(rule); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(rule); err == nil {
		t.Fatal("expected an error adding a duplicate rule id")
	}
}

func TestStore_Remove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	rule := Rule{ID: "r1", Name: "R1", Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}}}
	if err := store.Add(rule); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove("r1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(store.List()) != 0 {
		t.Error("expected rule to be removed")
	}
}

func TestStore_Remove_UnknownID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	err = store.Remove("missing")
	if _, ok := err.(*RuleNotFoundError); !ok {
		t.Fatalf("expected a RuleNotFoundError, got %v", err)
	}
}

func TestStore_Toggle(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	rule := Rule{ID: "r1", Name: "R1", Enabled: true, Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}}}
	if err := store.Add(rule); err != nil {
		t.Fatal(err)
	}
	if err := store.Toggle("r1"); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	all := store.List()
	if all[0].Enabled {
		t.Error("expected rule to be disabled after toggle")
	}
	if err := store.Toggle("r1"); err != nil {
		t.Fatal(err)
	}
	if !store.List()[0].Enabled {
		t.Error("expected rule to be re-enabled after second toggle")
	}
}

func TestStore_Export(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	rule := Rule{ID: "r1", Name: "R1", Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}}}
	if err := store.Add(rule); err != nil {
		t.Fatal(err)
	}

	destPath := filepath.Join(dir, "exported.yaml")
	if err := store.Export("r1", destPath); err != nil {
		t.Fatalf("Export: %v", err)
	}

	exported, err := loadFromFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(exported) != 1 || exported[0].ID != "r1" {
		t.Errorf("expected exported file to contain rule r1, got %+v", exported)
	}
}

func TestStore_Export_UnknownID(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "rules.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	err = store.Export("missing", filepath.Join(dir, "out.yaml"))
	if _, ok := err.(*RuleNotFoundError); !ok {
		t.Fatalf("expected a RuleNotFoundError, got %v", err)
	}
}

func TestStore_Reload_RejectsInvalidRulesetAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	store, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	rule := Rule{ID: "r1", Name: "R1", Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}}}
	if err := store.Add(rule); err != nil {
		t.Fatal(err)
	}

	// Corrupt the file on disk with an invalid rule (empty name).
	writeRulesFile(t, dir, "rules.yaml", `
rules:
  - id: r1
    name: ""
    then:
      - skip: {}
`)

	if err := store.Reload(); err == nil {
		t.Fatal("expected Reload to reject an invalid ruleset")
	}
	// The Store should retain its last-known-good ruleset.
	if len(store.List()) != 1 {
		t.Error("expected the Store to keep its previous valid ruleset after a failed reload")
	}
}
