package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/gobwas/glob"

	"github.com/foldsort/foldsort/internal/template"
)

// Validate checks every rule's structural invariants and the
// ruleset-wide id-uniqueness invariant. It is pure and side-effect
// free — it never touches the filesystem. A single violation rejects the
// whole load: loading a ruleset is all-or-nothing.
func Validate(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return &InvalidRuleError{ID: r.ID, Field: "id", Reason: "must not be empty"}
		}
		if seen[r.ID] {
			return &DuplicateRuleIDError{ID: r.ID}
		}
		seen[r.ID] = true

		if err := validateRule(r); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(r Rule) error {
	if r.Name == "" {
		return &InvalidRuleError{ID: r.ID, Field: "name", Reason: "must not be empty"}
	}
	if len(r.Then) == 0 {
		return &InvalidRuleError{ID: r.ID, Field: "then", Reason: "must contain at least one action"}
	}

	for i, a := range r.Then {
		if err := validateAction(r.ID, i, a); err != nil {
			return err
		}
	}

	return validateConditions(r.ID, r.When)
}

func validateAction(ruleID string, idx int, a Action) error {
	field := fmt.Sprintf("then[%d]", idx)

	switch a.Kind {
	case ActionMove:
		if a.Move == nil || a.Move.To == "" {
			return &InvalidRuleError{ID: ruleID, Field: field + ".move.to", Reason: "must not be empty"}
		}
		if err := template.Validate(a.Move.To); err != nil {
			return &InvalidRuleError{ID: ruleID, Field: field + ".move.to", Reason: err.Error()}
		}
	case ActionCopy:
		if a.Copy == nil || a.Copy.To == "" {
			return &InvalidRuleError{ID: ruleID, Field: field + ".copy.to", Reason: "must not be empty"}
		}
		if err := template.Validate(a.Copy.To); err != nil {
			return &InvalidRuleError{ID: ruleID, Field: field + ".copy.to", Reason: err.Error()}
		}
	case ActionRename:
		if a.Rename == nil || a.Rename.To == "" {
			return &InvalidRuleError{ID: ruleID, Field: field + ".rename.to", Reason: "must not be empty"}
		}
		if err := template.Validate(a.Rename.To); err != nil {
			return &InvalidRuleError{ID: ruleID, Field: field + ".rename.to", Reason: err.Error()}
		}
	case ActionDelete:
		// Trash defaults to false; the zero value is already valid.
	case ActionSkip:
		// No fields to validate.
	case ActionExecute:
		if a.Execute == nil || a.Execute.Command == "" {
			return &InvalidRuleError{ID: ruleID, Field: field + ".execute.command", Reason: "must not be empty"}
		}
	default:
		return &InvalidRuleError{ID: ruleID, Field: field, Reason: "unrecognized action kind"}
	}
	return nil
}

func validateConditions(ruleID string, c Conditions) error {
	if c.Filename != "" {
		if _, err := regexp.Compile(c.Filename); err != nil {
			return &InvalidRuleError{ID: ruleID, Field: "when.filename", Reason: err.Error()}
		}
	}
	if c.Path != "" {
		if _, err := glob.Compile(c.Path); err != nil {
			return &InvalidRuleError{ID: ruleID, Field: "when.path", Reason: err.Error()}
		}
	}
	if c.SizeKB != nil {
		if c.SizeKB.Min != nil && c.SizeKB.Max != nil && *c.SizeKB.Min > *c.SizeKB.Max {
			return &InvalidRuleError{ID: ruleID, Field: "when.size_kb", Reason: "min must be <= max"}
		}
	}
	if err := validateDateRange(ruleID, "when.created_date", c.CreatedDate); err != nil {
		return err
	}
	if err := validateDateRange(ruleID, "when.modified_date", c.ModifiedDate); err != nil {
		return err
	}
	for i, m := range c.Metadata {
		if m.Key == "" {
			return &InvalidRuleError{ID: ruleID, Field: fmt.Sprintf("when.metadata[%d].key", i), Reason: "must not be empty"}
		}
		// m.Value is matched against a field either by exact equality or
		// as a regex (internal/matcher.matchMetadata); it doesn't have to
		// compile as a pattern to be usable as a literal, so there's
		// nothing to reject here.
	}
	return nil
}

func validateDateRange(ruleID, field string, dr *DateRange) error {
	if dr == nil {
		return nil
	}
	var from, to time.Time
	var err error
	if dr.From != "" {
		from, err = time.Parse("2006-01-02", dr.From)
		if err != nil {
			return &InvalidRuleError{ID: ruleID, Field: field + ".from", Reason: "not a valid ISO-8601 date"}
		}
	}
	if dr.To != "" {
		to, err = time.Parse("2006-01-02", dr.To)
		if err != nil {
			return &InvalidRuleError{ID: ruleID, Field: field + ".to", Reason: "not a valid ISO-8601 date"}
		}
	}
	if dr.From != "" && dr.To != "" && from.After(to) {
		return &InvalidRuleError{ID: ruleID, Field: field, Reason: "from must not be after to"}
	}
	return nil
}
