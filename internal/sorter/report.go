package sorter

import "encoding/json"

// reportJSON mirrors the stable wire shape exactly; Report itself stays
// in Go-native types (map[rules.ActionKind]int, etc.) for callers that
// want to aggregate further.
type reportJSON struct {
	ScannedN  int              `json:"scanned_n"`
	MatchedN  int              `json:"matched_n"`
	PerRule   map[string]int   `json:"per_rule"`
	PerAction map[string]int   `json:"per_action"`
	Files     []fileRecordJSON `json:"files"`
	Cancelled bool             `json:"cancelled"`
	DryRun    bool             `json:"dry_run"`
}

type fileRecordJSON struct {
	Path     string         `json:"path"`
	RuleID   *string        `json:"rule_id"`
	Outcomes []outcomeJSON  `json:"outcomes"`
	Error    *string        `json:"error"`
}

type outcomeJSON struct {
	Kind    string `json:"kind"`
	Target  string `json:"target,omitempty"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MarshalJSON renders the report in its stable wire shape.
func (r *Report) MarshalJSON() ([]byte, error) {
	perAction := make(map[string]int, len(r.PerAction))
	for k, v := range r.PerAction {
		perAction[string(k)] = v
	}

	files := make([]fileRecordJSON, len(r.Files))
	for i, f := range r.Files {
		fj := fileRecordJSON{Path: f.Path}
		if f.RuleID != "" {
			id := f.RuleID
			fj.RuleID = &id
		}
		if f.Error != nil {
			msg := f.Error.Error()
			fj.Error = &msg
		}
		fj.Outcomes = make([]outcomeJSON, len(f.Outcomes))
		for j, o := range f.Outcomes {
			oj := outcomeJSON{Kind: string(o.Kind), Target: o.Target, Success: o.Success, Skipped: o.Skipped}
			if o.Error != nil {
				oj.Error = o.Error.Error()
			}
			fj.Outcomes[j] = oj
		}
		files[i] = fj
	}

	return json.Marshal(reportJSON{
		ScannedN:  r.ScannedN,
		MatchedN:  r.MatchedN,
		PerRule:   r.PerRule,
		PerAction: perAction,
		Files:     files,
		Cancelled: r.Cancelled,
		DryRun:    r.DryRun,
	})
}
