package rules

import "testing"

func validRule(id string, then ...Action) Rule {
	return Rule{ID: id, Name: "Rule " + id, Enabled: true, Priority: 1, Then: then}
}

func TestValidate_EmptyRulesetIsValid(t *testing.T) {
	if err := Validate(nil); err != nil {
		t.Errorf("empty ruleset should validate, got %v", err)
	}
}

func TestValidate_RejectsEmptyID(t *testing.T) {
	r := validRule("", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	err := Validate([]Rule{r})
	if _, ok := err.(*InvalidRuleError); !ok {
		t.Fatalf("expected InvalidRuleError, got %v", err)
	}
}

func TestValidate_RejectsDuplicateID(t *testing.T) {
	r1 := validRule("dup", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r2 := validRule("dup", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	err := Validate([]Rule{r1, r2})
	if _, ok := err.(*DuplicateRuleIDError); !ok {
		t.Fatalf("expected DuplicateRuleIDError, got %v", err)
	}
}

func TestValidate_RejectsEmptyName(t *testing.T) {
	r := Rule{ID: "r1", Then: []Action{{Kind: ActionSkip, Skip: &SkipAction{}}}}
	err := Validate([]Rule{r})
	if err == nil {
		t.Fatal("expected an error for an empty rule name")
	}
}

func TestValidate_RejectsNoActions(t *testing.T) {
	r := Rule{ID: "r1", Name: "R1"}
	err := Validate([]Rule{r})
	if err == nil {
		t.Fatal("expected an error for a rule with no actions")
	}
}

func TestValidate_MoveRequiresNonEmptyTo(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionMove, Move: &MoveAction{To: ""}})
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for an empty move.to")
	}
}

func TestValidate_MoveRejectsUnknownTemplatePlaceholder(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionMove, Move: &MoveAction{To: "/dest/{{bogus}}"}})
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected move.to to be template-validated the same way as rename.to")
	}
}

func TestValidate_CopyRejectsUnknownTemplatePlaceholder(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionCopy, Copy: &CopyAction{To: "/dest/{{bogus}}"}})
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected copy.to to be template-validated the same way as rename.to")
	}
}

func TestValidate_MoveAcceptsValidTemplate(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionMove, Move: &MoveAction{To: "/dest/{{year}}/{{filename}}"}})
	if err := Validate([]Rule{r}); err != nil {
		t.Errorf("expected a valid move template to pass, got %v", err)
	}
}

func TestValidate_RenameRejectsUnknownTemplatePlaceholder(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionRename, Rename: &RenameAction{To: "{{nonsense}}"}})
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for an unknown rename placeholder")
	}
}

func TestValidate_ExecuteRequiresCommand(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionExecute, Execute: &ExecuteAction{}})
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for an execute action with no command")
	}
}

func TestValidate_DeleteAndSkipHaveNoRequiredFields(t *testing.T) {
	r1 := validRule("r1", Action{Kind: ActionDelete, Delete: &DeleteAction{}})
	r2 := validRule("r2", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	if err := Validate([]Rule{r1, r2}); err != nil {
		t.Errorf("expected delete/skip to validate with zero-value fields, got %v", err)
	}
}

func TestValidate_RejectsInvalidFilenameRegex(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.Filename = "[unclosed"
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for an invalid filename regex")
	}
}

func TestValidate_RejectsInvalidPathGlob(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.Path = "[unclosed"
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for an invalid path glob")
	}
}

func TestValidate_RejectsSizeMinGreaterThanMax(t *testing.T) {
	min, max := 500.0, 100.0
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.SizeKB = &SizeRange{Min: &min, Max: &max}
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error when size_kb.min > size_kb.max")
	}
}

func TestValidate_AcceptsValidSizeRange(t *testing.T) {
	min, max := 10.0, 500.0
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.SizeKB = &SizeRange{Min: &min, Max: &max}
	if err := Validate([]Rule{r}); err != nil {
		t.Errorf("expected a valid size range to pass, got %v", err)
	}
}

func TestValidate_RejectsMalformedDateRange(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.CreatedDate = &DateRange{From: "not-a-date"}
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for a malformed created_date.from")
	}
}

func TestValidate_RejectsFromAfterTo(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.ModifiedDate = &DateRange{From: "2024-06-01", To: "2024-01-01"}
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error when modified_date.from is after .to")
	}
}

func TestValidate_RejectsEmptyMetadataKey(t *testing.T) {
	r := validRule("r1", Action{Kind: ActionSkip, Skip: &SkipAction{}})
	r.When.Metadata = []MetadataPredicate{{Key: ""}}
	if err := Validate([]Rule{r}); err == nil {
		t.Fatal("expected an error for a metadata predicate with no key")
	}
}
