package rules

import "fmt"

// InvalidRuleError reports a structural validation failure for a single
// rule.
type InvalidRuleError struct {
	ID     string
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	id := e.ID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("rule %s: field %s: %s", id, e.Field, e.Reason)
}

// DuplicateRuleIDError reports an id collision on add/import.
type DuplicateRuleIDError struct {
	ID string
}

func (e *DuplicateRuleIDError) Error() string {
	return fmt.Sprintf("rule id %q is already in use", e.ID)
}

// RuleNotFoundError reports a remove/toggle/export against a missing id.
type RuleNotFoundError struct {
	ID string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.ID)
}
