package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ActionKind identifies which variant of the Action tagged union is set.
type ActionKind string

const (
	ActionMove    ActionKind = "move"
	ActionCopy    ActionKind = "copy"
	ActionRename  ActionKind = "rename"
	ActionDelete  ActionKind = "delete"
	ActionSkip    ActionKind = "skip"
	ActionExecute ActionKind = "execute"
)

// Action is a tagged union over the six action kinds. Exactly one
// of the pointer fields is non-nil, matching Kind.
type Action struct {
	Kind Kind

	Move    *MoveAction
	Copy    *CopyAction
	Rename  *RenameAction
	Delete  *DeleteAction
	Skip    *SkipAction
	Execute *ExecuteAction
}

// Kind is a local alias so zero-value Action (Kind == "") reads clearly
// as "no action decoded yet" in validation error messages.
type Kind = ActionKind

// MoveAction moves a file into a destination directory.
type MoveAction struct {
	To                string `yaml:"to"`
	PreserveStructure bool   `yaml:"preserve_structure,omitempty"`
}

// CopyAction copies a file into a destination directory.
type CopyAction struct {
	To                string `yaml:"to"`
	PreserveStructure bool   `yaml:"preserve_structure,omitempty"`
}

// RenameAction renames a file within its current parent directory. To is
// a template string.
type RenameAction struct {
	To string `yaml:"to"`
}

// DeleteAction removes a file, optionally via the OS trash.
type DeleteAction struct {
	Trash bool `yaml:"trash,omitempty"`
}

// SkipAction terminates action processing for the current file.
type SkipAction struct{}

// ExecuteAction runs an external command. Args may contain templates.
type ExecuteAction struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// UnmarshalYAML decodes a single-key mapping like `{move: {to: "/dst"}}`
// into the matching variant.
func (a *Action) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("action: expected a single-key mapping, e.g. {move: {...}}")
	}

	key := value.Content[0].Value
	body := value.Content[1]

	switch ActionKind(key) {
	case ActionMove:
		var m MoveAction
		if err := body.Decode(&m); err != nil {
			return fmt.Errorf("action move: %w", err)
		}
		a.Kind, a.Move = ActionMove, &m
	case ActionCopy:
		var c CopyAction
		if err := body.Decode(&c); err != nil {
			return fmt.Errorf("action copy: %w", err)
		}
		a.Kind, a.Copy = ActionCopy, &c
	case ActionRename:
		var r RenameAction
		if err := body.Decode(&r); err != nil {
			return fmt.Errorf("action rename: %w", err)
		}
		a.Kind, a.Rename = ActionRename, &r
	case ActionDelete:
		var d DeleteAction
		if err := body.Decode(&d); err != nil {
			return fmt.Errorf("action delete: %w", err)
		}
		a.Kind, a.Delete = ActionDelete, &d
	case ActionSkip:
		a.Kind, a.Skip = ActionSkip, &SkipAction{}
	case ActionExecute:
		var e ExecuteAction
		if err := body.Decode(&e); err != nil {
			return fmt.Errorf("action execute: %w", err)
		}
		a.Kind, a.Execute = ActionExecute, &e
	default:
		return fmt.Errorf("action: unknown kind %q", key)
	}
	return nil
}

// MarshalYAML re-wraps the action back into its single-key mapping form.
func (a Action) MarshalYAML() (any, error) {
	switch a.Kind {
	case ActionMove:
		return map[string]*MoveAction{"move": a.Move}, nil
	case ActionCopy:
		return map[string]*CopyAction{"copy": a.Copy}, nil
	case ActionRename:
		return map[string]*RenameAction{"rename": a.Rename}, nil
	case ActionDelete:
		return map[string]*DeleteAction{"delete": a.Delete}, nil
	case ActionSkip:
		return map[string]*SkipAction{"skip": a.Skip}, nil
	case ActionExecute:
		return map[string]*ExecuteAction{"execute": a.Execute}, nil
	default:
		return nil, fmt.Errorf("action: cannot marshal unset action")
	}
}
